package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"
)

type UserService struct {
	log      *slog.Logger
	repo     domain.UserRepository
	twilio   contracts.Twilio
	registry contracts.Registry
}

func NewUserService(log *slog.Logger, repo domain.UserRepository, twilio contracts.Twilio, registry contracts.Registry) *UserService {
	return &UserService{
		log:      log,
		repo:     repo,
		twilio:   twilio,
		registry: registry,
	}
}

// RequestOTP initiates the registration/login process
func (s *UserService) RequestOTP(ctx context.Context, phone string) error {
	if phone == "" {
		return errors.New("phone number is required")
	}
	return s.twilio.SendOTP(ctx, phone)
}

// VerifyOTP checks the code and handles the user lifecycle
func (s *UserService) VerifyOTP(ctx context.Context, phone, code string) (*domain.User, error) {
	isValid, err := s.twilio.VerifyOTP(ctx, phone, code)
	if err != nil {
		s.log.ErrorContext(ctx, "user - verify otp error", "error", err)
		return nil, fmt.Errorf("verification service error: %w", err)
	}
	if !isValid {
		s.log.ErrorContext(ctx, "user - invalid or expired OTP", "phone", phone)
		return nil, errors.New("invalid or expired OTP")
	}
	// CreateUser uses ON CONFLICT, so it handles returning users too
	user, err := s.repo.CreateUser(ctx, phone)
	if err != nil {
		s.log.ErrorContext(ctx, "user - create user error", "phone", phone, "error", err)
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *UserService) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	return s.repo.GetUsersByIDs(ctx, ids)
}

// UpdateProfile applies the non-nil fields and announces the visible ones to
// every connected user so contact lists refresh without polling. Device token
// changes stay private.
func (s *UserService) UpdateProfile(ctx context.Context, id string, name, avatarURL, bio, deviceToken *string) (*domain.User, error) {
	user, err := s.repo.UpdateProfile(ctx, id, name, avatarURL, bio, deviceToken)
	if err != nil {
		s.log.ErrorContext(ctx, "user - update profile error", "user_id", id, "error", err)
		return nil, err
	}
	if name != nil || avatarURL != nil || bio != nil {
		s.registry.Broadcast(ctx, id, domain.ProfileUpdatedEvent{
			Type:      domain.TypeProfileUpdated,
			UserID:    user.ID,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			Bio:       user.Bio,
		}, contracts.DeliveryDurable)
	}
	s.log.InfoContext(ctx, "user - profile updated", "user_id", id)
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.repo.DeleteUser(ctx, id)
}

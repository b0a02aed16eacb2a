package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var messageTracer = otel.Tracer("message-service")

type IMessageService interface {
	SendMessage(ctx context.Context, from, to, text string) (*domain.Message, error)
	// CreateChatRequest opens (or reopens) a pending conversation toward to.
	CreateChatRequest(ctx context.Context, from, to string) (*domain.Conversation, error)
	AcceptChatRequest(ctx context.Context, convID uuid.UUID, by string) (*domain.Conversation, error)
	DeclineChatRequest(ctx context.Context, convID uuid.UUID, by string) error
	ListConversations(ctx context.Context, identity string, status domain.ConversationStatus) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, convID uuid.UUID, requester string) ([]domain.Message, error)
	// Typing relays an ephemeral typing indicator; it is never persisted.
	Typing(ctx context.Context, from string, sig domain.TypingSignal)
}

type MessageService struct {
	userRepo    domain.UserRepository
	convRepo    domain.ConversationRepository
	msgRepo     domain.MessageRepository
	registry    contracts.Registry
	notifyQueue contracts.NotificationQueue
	txManager   contracts.TxManager
	log         *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	userRepo domain.UserRepository,
	convRepo domain.ConversationRepository,
	msgRepo domain.MessageRepository,
	registry contracts.Registry,
	notifyQueue contracts.NotificationQueue,
	txManager contracts.TxManager,
) *MessageService {
	return &MessageService{
		userRepo:    userRepo,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		registry:    registry,
		notifyQueue: notifyQueue,
		txManager:   txManager,
		log:         log,
	}
}

func (s *MessageService) SendMessage(ctx context.Context, from, to, text string) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.SendMessage", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	defer span.End()

	if to == "" || to == from || text == "" {
		return nil, domain.ErrMalformedPayload
	}

	conv, err := s.convRepo.FindBetween(ctx, domain.ParticipantPair(from, to), []domain.ConversationStatus{domain.ConversationActive})
	if err != nil {
		span.RecordError(err)
		s.log.DebugContext(ctx, "messages - send - no active conversation", "from", from, "to", to, "err", err)
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		From:           from,
		To:             to,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.msgRepo.SaveMessage(txCtx, msg); err != nil {
			return err
		}
		return s.convRepo.BumpLastMessageAt(txCtx, conv.ID, msg.CreatedAt)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.log.ErrorContext(ctx, "messages - send - persist failed", "conv_id", conv.ID, "err", err)
		return nil, err
	}

	event := domain.MessageEvent{
		Type:           domain.TypeMessage,
		MessageID:      msg.ID.String(),
		ConversationID: conv.ID.String(),
		From:           from,
		To:             to,
		Text:           text,
		At:             msg.CreatedAt,
	}
	// The sender's other devices get the echo too.
	s.registry.Send(ctx, to, event, contracts.DeliveryDurable)
	s.registry.Send(ctx, from, event, contracts.DeliveryDurable)
	s.log.InfoContext(ctx, "messages - send - relayed", "message_id", msg.ID, "conv_id", conv.ID)

	if !s.registry.IsReachable(to) {
		s.publishMessageFallback(ctx, msg)
	}
	return msg, nil
}

func (s *MessageService) publishMessageFallback(ctx context.Context, msg *domain.Message) {
	senderName := ""
	avatar := ""
	if sender, err := s.userRepo.GetUserByID(ctx, msg.From); err == nil {
		senderName = sender.Name
		avatar = sender.AvatarURL
	}
	n := contracts.Notification{
		Recipient: msg.To,
		Type:      contracts.NotificationMessage,
		Data: map[string]string{
			"messageId":       msg.ID.String(),
			"conversationId":  msg.ConversationID.String(),
			"from":            msg.From,
			"counterpartName": senderName,
			"avatarUrl":       avatar,
			"text":            msg.Text,
			"at":              msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.notifyQueue.Publish(ctx, n); err != nil {
		s.log.ErrorContext(ctx, "messages - send - fallback publish failed", "message_id", msg.ID, "err", err)
	}
}

func (s *MessageService) CreateChatRequest(ctx context.Context, from, to string) (*domain.Conversation, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.CreateChatRequest", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	defer span.End()

	if to == "" || to == from {
		return nil, domain.ErrInvalidUserID
	}
	if _, err := s.userRepo.GetUserByID(ctx, to); err != nil {
		span.RecordError(err)
		return nil, domain.ErrUserNotFound
	}

	pair := domain.ParticipantPair(from, to)
	existing, err := s.convRepo.FindBetween(ctx, pair, nil)
	if err != nil && !errors.Is(err, domain.ErrConversationNotFound) {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.ConversationBlocked:
			return nil, domain.ErrConversationInactive
		case domain.ConversationDeclined:
			// A declined request may be retried; the row is reused.
			if err := s.convRepo.UpdateStatus(ctx, existing.ID, domain.ConversationPending); err != nil {
				span.RecordError(err)
				return nil, err
			}
			existing.Status = domain.ConversationPending
			existing.CreatedBy = from
			s.notifyChatRequest(ctx, existing, from, to)
			return existing, nil
		default:
			return existing, nil
		}
	}

	conv := &domain.Conversation{
		ID:            uuid.New(),
		Participants:  pair,
		Status:        domain.ConversationPending,
		CreatedBy:     from,
		DeliveredUpTo: map[string]time.Time{},
		ReadUpTo:      map[string]time.Time{},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		s.log.ErrorContext(ctx, "messages - chat request - create failed", "from", from, "to", to, "err", err)
		return nil, err
	}
	s.notifyChatRequest(ctx, conv, from, to)
	s.log.InfoContext(ctx, "messages - chat request - created", "conv_id", conv.ID, "from", from, "to", to)
	return conv, nil
}

func (s *MessageService) notifyChatRequest(ctx context.Context, conv *domain.Conversation, from, to string) {
	s.registry.Send(ctx, to, domain.ChatRequestEvent{
		Type:           domain.TypeChatRequest,
		ConversationID: conv.ID.String(),
		From:           from,
		To:             to,
		Status:         domain.ConversationPending,
		At:             time.Now(),
	}, contracts.DeliveryDurable)
}

func (s *MessageService) AcceptChatRequest(ctx context.Context, convID uuid.UUID, by string) (*domain.Conversation, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.AcceptChatRequest", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
		attribute.String("by", by),
	))
	defer span.End()

	conv, err := s.convRepo.GetConversationByID(ctx, convID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !conv.HasParticipant(by) {
		return nil, domain.ErrNotParticipant
	}
	// Only the receiving side may accept.
	if conv.Status != domain.ConversationPending || conv.CreatedBy == by {
		return nil, domain.ErrConversationInactive
	}
	if err := s.convRepo.UpdateStatus(ctx, convID, domain.ConversationActive); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - chat request - accept failed", "conv_id", convID, "err", err)
		return nil, err
	}
	conv.Status = domain.ConversationActive

	for _, p := range conv.Participants {
		s.registry.Send(ctx, p, domain.ChatRequestAcceptedEvent{
			Type:           domain.TypeChatRequestAccepted,
			ConversationID: convID.String(),
			PartnerID:      conv.Other(p),
		}, contracts.DeliveryDurable)
	}
	s.log.InfoContext(ctx, "messages - chat request - accepted", "conv_id", convID, "by", by)
	return conv, nil
}

func (s *MessageService) DeclineChatRequest(ctx context.Context, convID uuid.UUID, by string) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.DeclineChatRequest", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
		attribute.String("by", by),
	))
	defer span.End()

	conv, err := s.convRepo.GetConversationByID(ctx, convID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !conv.HasParticipant(by) {
		return domain.ErrNotParticipant
	}
	if conv.Status != domain.ConversationPending || conv.CreatedBy == by {
		return domain.ErrConversationInactive
	}
	if err := s.convRepo.UpdateStatus(ctx, convID, domain.ConversationDeclined); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - chat request - decline failed", "conv_id", convID, "err", err)
		return err
	}

	s.registry.Send(ctx, conv.CreatedBy, domain.ChatRequestDeclinedEvent{
		Type:           domain.TypeChatRequestDeclined,
		ConversationID: convID.String(),
		By:             by,
	}, contracts.DeliveryDurable)
	s.log.InfoContext(ctx, "messages - chat request - declined", "conv_id", convID, "by", by)
	return nil
}

func (s *MessageService) ListConversations(ctx context.Context, identity string, status domain.ConversationStatus) ([]domain.Conversation, error) {
	return s.convRepo.ListForIdentity(ctx, identity, status)
}

func (s *MessageService) ListMessages(ctx context.Context, convID uuid.UUID, requester string) ([]domain.Message, error) {
	conv, err := s.convRepo.GetConversationByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requester) {
		return nil, domain.ErrNotParticipant
	}
	return s.msgRepo.ListByConversation(ctx, convID)
}

func (s *MessageService) Typing(ctx context.Context, from string, sig domain.TypingSignal) {
	if sig.To == "" || sig.To == from {
		return
	}
	// Typing hints are worthless late; drop rather than queue.
	s.registry.Send(ctx, sig.To, domain.TypingEvent{
		Type:           domain.TypeTyping,
		From:           from,
		ConversationID: sig.ConversationID,
		Typing:         sig.Typing,
		At:             time.Now(),
	}, contracts.DeliveryVolatile)
}

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository handles the persistent identity
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*User, error)
	CreateUser(ctx context.Context, id string) (*User, error)
	// UpdateProfile applies only the non-nil fields.
	UpdateProfile(ctx context.Context, id string, name, avatarURL, bio, deviceToken *string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// ConversationRepository owns the conversation rows, including the
// per-participant delivery and read cursors stored on them.
type ConversationRepository interface {
	GetConversationByID(ctx context.Context, convID uuid.UUID) (*Conversation, error)
	CreateConversation(ctx context.Context, conv *Conversation) error
	FindBetween(ctx context.Context, pair [2]string, statuses []ConversationStatus) (*Conversation, error)
	ListForIdentity(ctx context.Context, identity string, status ConversationStatus) ([]Conversation, error)
	UpdateStatus(ctx context.Context, convID uuid.UUID, status ConversationStatus) error
	BumpLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error
	// AdvanceDeliveredCursor moves the identity's delivered cursor to at if
	// and only if at is newer than the stored value. Returns whether it moved.
	AdvanceDeliveredCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error)
	// AdvanceReadCursor is the same monotonic rule for the read cursor.
	AdvanceReadCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error)
}

// InboundHead is the newest message addressed to an identity within one
// conversation, used by the reconnect catch-up path.
type InboundHead struct {
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	From           string
	At             time.Time
}

// MessageRepository handles the durable message timeline.
type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error)
	ListByConversation(ctx context.Context, convID uuid.UUID) ([]Message, error)
	// LatestInboundPerConversation returns, for every conversation holding
	// messages addressed to identity, the newest such message.
	LatestInboundPerConversation(ctx context.Context, identity string) ([]InboundHead, error)
}

package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ICursorService = (*CursorService)(nil)

func newCursorFixture(convs []*domain.Conversation, msgs []*domain.Message) (*CursorService, *fakeRegistry, *fakeConvRepo) {
	reg := newFakeRegistry()
	convRepo := newFakeConvRepo(convs...)
	msgRepo := newFakeMsgRepo(msgs...)
	svc := NewCursorService(slog.Default(), convRepo, msgRepo, reg, passthroughTx{})
	return svc, reg, convRepo
}

func activeConversation(a, b string) *domain.Conversation {
	return &domain.Conversation{
		ID:            uuid.New(),
		Participants:  domain.ParticipantPair(a, b),
		Status:        domain.ConversationActive,
		CreatedBy:     a,
		DeliveredUpTo: map[string]time.Time{},
		ReadUpTo:      map[string]time.Time{},
		CreatedAt:     time.Now(),
	}
}

func TestCursorService_MarkDeliveredNotifiesSenderOnAdvance(t *testing.T) {
	conv := activeConversation("alice", "bob")
	msg := &domain.Message{
		ID: uuid.New(), ConversationID: conv.ID,
		From: "alice", To: "bob", Text: "hi", CreatedAt: time.Now(),
	}
	svc, reg, _ := newCursorFixture([]*domain.Conversation{conv}, []*domain.Message{msg})

	require.NoError(t, svc.MarkDelivered(context.Background(), msg.ID))

	sent := reg.sentTo("alice")
	require.Len(t, sent, 1)
	event := sent[0].payload.(domain.DeliveredEvent)
	assert.Equal(t, msg.ID.String(), event.MessageID)
	assert.Equal(t, "bob", event.By)
	assert.Equal(t, contracts.DeliveryDurable, sent[0].mode)
}

func TestCursorService_DuplicateDeliveredIsSilent(t *testing.T) {
	conv := activeConversation("alice", "bob")
	msg := &domain.Message{
		ID: uuid.New(), ConversationID: conv.ID,
		From: "alice", To: "bob", Text: "hi", CreatedAt: time.Now(),
	}
	svc, reg, _ := newCursorFixture([]*domain.Conversation{conv}, []*domain.Message{msg})
	ctx := context.Background()

	require.NoError(t, svc.MarkDelivered(ctx, msg.ID))
	require.NoError(t, svc.MarkDelivered(ctx, msg.ID))

	assert.Len(t, reg.sentTo("alice"), 1, "the second signal moves nothing and tells nobody")
}

func TestCursorService_StaleDeliveredDoesNotRegress(t *testing.T) {
	conv := activeConversation("alice", "bob")
	now := time.Now()
	older := &domain.Message{
		ID: uuid.New(), ConversationID: conv.ID,
		From: "alice", To: "bob", Text: "first", CreatedAt: now.Add(-time.Minute),
	}
	newer := &domain.Message{
		ID: uuid.New(), ConversationID: conv.ID,
		From: "alice", To: "bob", Text: "second", CreatedAt: now,
	}
	svc, reg, convRepo := newCursorFixture([]*domain.Conversation{conv}, []*domain.Message{older, newer})
	ctx := context.Background()

	require.NoError(t, svc.MarkDelivered(ctx, newer.ID))
	require.NoError(t, svc.MarkDelivered(ctx, older.ID))

	assert.Len(t, reg.sentTo("alice"), 1)
	stored, err := convRepo.GetConversationByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), stored.DeliveredUpTo["bob"].UnixMilli())
}

func TestCursorService_MarkDeliveredUnknownMessage(t *testing.T) {
	svc, reg, _ := newCursorFixture(nil, nil)
	err := svc.MarkDelivered(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.Zero(t, reg.sendCount())
}

func TestCursorService_MarkReadNotifiesOtherParticipant(t *testing.T) {
	conv := activeConversation("alice", "bob")
	svc, reg, _ := newCursorFixture([]*domain.Conversation{conv}, nil)
	at := time.Now()

	require.NoError(t, svc.MarkRead(context.Background(), conv.ID, "bob", at))

	sent := reg.sentTo("alice")
	require.Len(t, sent, 1)
	event := sent[0].payload.(domain.ReadUpToEvent)
	assert.Equal(t, "bob", event.By)
	assert.Equal(t, at.UnixMilli(), event.At.UnixMilli())
}

func TestCursorService_MarkReadRejectsNonParticipant(t *testing.T) {
	conv := activeConversation("alice", "bob")
	svc, reg, _ := newCursorFixture([]*domain.Conversation{conv}, nil)

	err := svc.MarkRead(context.Background(), conv.ID, "mallory", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
	assert.Zero(t, reg.sendCount())
}

func TestCursorService_ReconcileOnConnect(t *testing.T) {
	convA := activeConversation("alice", "bob")
	convB := activeConversation("bob", "carol")
	now := time.Now()
	msgs := []*domain.Message{
		{ID: uuid.New(), ConversationID: convA.ID, From: "alice", To: "bob", Text: "old", CreatedAt: now.Add(-time.Minute)},
		{ID: uuid.New(), ConversationID: convA.ID, From: "alice", To: "bob", Text: "new", CreatedAt: now},
		{ID: uuid.New(), ConversationID: convB.ID, From: "carol", To: "bob", Text: "hey", CreatedAt: now},
		{ID: uuid.New(), ConversationID: convA.ID, From: "bob", To: "alice", Text: "outbound", CreatedAt: now},
	}
	svc, reg, convRepo := newCursorFixture([]*domain.Conversation{convA, convB}, msgs)
	ctx := context.Background()

	svc.ReconcileOnConnect(ctx, "bob")

	// one notification per conversation, to each sender
	assert.Len(t, reg.sentTo("alice"), 1)
	assert.Len(t, reg.sentTo("carol"), 1)

	stored, err := convRepo.GetConversationByID(ctx, convA.ID)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), stored.DeliveredUpTo["bob"].UnixMilli(), "watermark lands on the newest inbound message")

	// a second reconnect with nothing new is silent
	svc.ReconcileOnConnect(ctx, "bob")
	assert.Len(t, reg.sentTo("alice"), 1)
	assert.Len(t, reg.sentTo("carol"), 1)
}

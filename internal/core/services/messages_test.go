package services

import (
	"context"
	"log/slog"
	"testing"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ IMessageService = (*MessageService)(nil)

func newMessageFixture(convs ...*domain.Conversation) (*MessageService, *fakeRegistry, *fakeQueue, *fakeConvRepo) {
	reg := newFakeRegistry()
	queue := &fakeQueue{}
	users := newFakeUserRepo(&domain.User{ID: "alice", Name: "Alice"}, &domain.User{ID: "bob", Name: "Bob"})
	convRepo := newFakeConvRepo(convs...)
	msgRepo := newFakeMsgRepo()
	svc := NewMessageService(slog.Default(), users, convRepo, msgRepo, reg, queue, passthroughTx{})
	return svc, reg, queue, convRepo
}

func TestMessageService_SendMessageRelaysBothParties(t *testing.T) {
	conv := activeConversation("alice", "bob")
	svc, reg, queue, convRepo := newMessageFixture(conv)
	reg.reachable["bob"] = true

	msg, err := svc.SendMessage(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err)

	toBob := reg.sentTo("bob")
	require.Len(t, toBob, 1)
	event := toBob[0].payload.(domain.MessageEvent)
	assert.Equal(t, msg.ID.String(), event.MessageID)
	assert.Equal(t, "hello", event.Text)
	assert.Equal(t, contracts.DeliveryDurable, toBob[0].mode)
	assert.Len(t, reg.sentTo("alice"), 1, "the sender's other devices get the echo")

	stored, err := convRepo.GetConversationByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageAt)
	assert.Equal(t, msg.CreatedAt.UnixMilli(), stored.LastMessageAt.UnixMilli())

	assert.Zero(t, queue.count())
}

func TestMessageService_SendMessageUnreachableRecipientGetsPush(t *testing.T) {
	conv := activeConversation("alice", "bob")
	svc, _, queue, _ := newMessageFixture(conv)

	msg, err := svc.SendMessage(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err)

	require.Equal(t, 1, queue.count())
	n := queue.published[0]
	assert.Equal(t, contracts.NotificationMessage, n.Type)
	assert.Equal(t, "bob", n.Recipient)
	assert.Equal(t, msg.ID.String(), n.Data["messageId"])
	assert.Equal(t, "Alice", n.Data["counterpartName"])
}

func TestMessageService_SendMessageRequiresActiveConversation(t *testing.T) {
	pending := activeConversation("alice", "bob")
	pending.Status = domain.ConversationPending
	svc, reg, _, _ := newMessageFixture(pending)

	_, err := svc.SendMessage(context.Background(), "alice", "bob", "hello")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.Zero(t, reg.sendCount())
}

func TestMessageService_ChatRequestLifecycle(t *testing.T) {
	svc, reg, _, _ := newMessageFixture()
	ctx := context.Background()

	conv, err := svc.CreateChatRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationPending, conv.Status)
	assert.Equal(t, "alice", conv.CreatedBy)

	toBob := reg.sentTo("bob")
	require.Len(t, toBob, 1)
	request := toBob[0].payload.(domain.ChatRequestEvent)
	assert.Equal(t, "alice", request.From)

	// creating again returns the same pending conversation
	again, err := svc.CreateChatRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, reg.sentTo("bob"), 1, "no duplicate notification")

	// only the recipient may accept
	_, err = svc.AcceptChatRequest(ctx, conv.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrConversationInactive)

	accepted, err := svc.AcceptChatRequest(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationActive, accepted.Status)
	assert.Len(t, reg.sentTo("alice"), 1)
	assert.Len(t, reg.sentTo("bob"), 2)

	// messages now flow
	_, err = svc.SendMessage(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)
}

func TestMessageService_DeclinedRequestCanBeRetried(t *testing.T) {
	svc, reg, _, _ := newMessageFixture()
	ctx := context.Background()

	conv, err := svc.CreateChatRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.DeclineChatRequest(ctx, conv.ID, "bob"))

	declinedNotices := 0
	for _, s := range reg.sentTo("alice") {
		if _, ok := s.payload.(domain.ChatRequestDeclinedEvent); ok {
			declinedNotices++
		}
	}
	assert.Equal(t, 1, declinedNotices)

	// messaging is blocked on a declined conversation
	_, err = svc.SendMessage(ctx, "alice", "bob", "hi")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	// a retry reopens the same row as pending
	retried, err := svc.CreateChatRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, retried.ID)
	assert.Equal(t, domain.ConversationPending, retried.Status)
}

func TestMessageService_ChatRequestUnknownUser(t *testing.T) {
	svc, _, _, _ := newMessageFixture()
	_, err := svc.CreateChatRequest(context.Background(), "alice", "stranger")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestMessageService_ListMessagesChecksMembership(t *testing.T) {
	conv := activeConversation("alice", "bob")
	svc, _, _, _ := newMessageFixture(conv)
	_, err := svc.ListMessages(context.Background(), conv.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestMessageService_TypingRelayIsVolatile(t *testing.T) {
	svc, reg, _, _ := newMessageFixture()

	svc.Typing(context.Background(), "alice", domain.TypingSignal{To: "bob", Typing: true})

	toBob := reg.sentTo("bob")
	require.Len(t, toBob, 1)
	assert.Equal(t, contracts.DeliveryVolatile, toBob[0].mode)
	event := toBob[0].payload.(domain.TypingEvent)
	assert.True(t, event.Typing)

	// self-typing is dropped
	svc.Typing(context.Background(), "alice", domain.TypingSignal{To: "alice", Typing: true})
	assert.Equal(t, 1, reg.sendCount())
}

func TestMessageService_ListConversationsFiltersByStatus(t *testing.T) {
	active := activeConversation("alice", "bob")
	pending := activeConversation("alice", "carol")
	pending.ID = uuid.New()
	pending.Status = domain.ConversationPending
	svc, _, _, _ := newMessageFixture(active, pending)

	convs, err := svc.ListConversations(context.Background(), "alice", domain.ConversationActive)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, active.ID, convs[0].ID)

	all, err := svc.ListConversations(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

package services

import (
	"context"
	"sync"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
)

type sentEvent struct {
	identity string
	payload  any
	mode     contracts.DeliveryMode
}

type fakeRegistry struct {
	mu         sync.Mutex
	reachable  map[string]bool
	sends      []sentEvent
	broadcasts []sentEvent // identity carries the except value
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{reachable: map[string]bool{}}
}

func (r *fakeRegistry) IsReachable(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reachable[identity]
}

func (r *fakeRegistry) Send(ctx context.Context, identity string, payload any, mode contracts.DeliveryMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentEvent{identity: identity, payload: payload, mode: mode})
}

func (r *fakeRegistry) Broadcast(ctx context.Context, except string, payload any, mode contracts.DeliveryMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, sentEvent{identity: except, payload: payload, mode: mode})
}

func (r *fakeRegistry) sentTo(identity string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, s := range r.sends {
		if s.identity == identity {
			out = append(out, s)
		}
	}
	return out
}

func (r *fakeRegistry) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

type fakePresenceStore struct {
	mu      sync.Mutex
	records map[string]domain.PresenceRecord
	err     error
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{records: map[string]domain.PresenceRecord{}}
}

func (s *fakePresenceStore) SetPresence(ctx context.Context, identity string, online bool, at time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identity] = domain.PresenceRecord{Online: online, At: at}
	return nil
}

func (s *fakePresenceStore) GetPresence(ctx context.Context, identities []string) (map[string]domain.PresenceRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.PresenceRecord{}
	for _, id := range identities {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []contracts.Notification
	err       error
}

func (q *fakeQueue) Publish(ctx context.Context, n contracts.Notification) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, n)
	return nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, group string, handler func(ctx context.Context, entryID string, n contracts.Notification) error) error {
	return nil
}

func (q *fakeQueue) Acknowledge(ctx context.Context, group, entryID string) error { return nil }
func (q *fakeQueue) DeleteEntry(ctx context.Context, entryID string) error        { return nil }

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

// passthroughTx runs fn with the caller's context, no transaction involved.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := map[string]*domain.User{}
	for _, id := range ids {
		if u, err := r.GetUserByID(ctx, id); err == nil {
			out[id] = u
		}
	}
	return out, nil
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	u := domain.NewUser(id)
	r.users[id] = u
	return u, nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id string, name, avatarURL, bio, deviceToken *string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	if bio != nil {
		u.Bio = *bio
	}
	if deviceToken != nil {
		u.DeviceToken = *deviceToken
	}
	return u, nil
}

func (r *fakeUserRepo) DeleteUser(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*domain.Conversation
}

func newFakeConvRepo(convs ...*domain.Conversation) *fakeConvRepo {
	r := &fakeConvRepo{convs: map[uuid.UUID]*domain.Conversation{}}
	for _, c := range convs {
		r.convs[c.ID] = c
	}
	return r
}

func (r *fakeConvRepo) GetConversationByID(ctx context.Context, convID uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r *fakeConvRepo) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = conv
	return nil
}

func (r *fakeConvRepo) FindBetween(ctx context.Context, pair [2]string, statuses []domain.ConversationStatus) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.Participants != pair {
			continue
		}
		if len(statuses) == 0 {
			return c, nil
		}
		for _, st := range statuses {
			if c.Status == st {
				return c, nil
			}
		}
	}
	return nil, domain.ErrConversationNotFound
}

func (r *fakeConvRepo) ListForIdentity(ctx context.Context, identity string, status domain.ConversationStatus) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(identity) && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) UpdateStatus(ctx context.Context, convID uuid.UUID, status domain.ConversationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.Status = status
	return nil
}

func (r *fakeConvRepo) BumpLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	if c.LastMessageAt == nil || c.LastMessageAt.Before(at) {
		c.LastMessageAt = &at
	}
	return nil
}

func (r *fakeConvRepo) AdvanceDeliveredCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error) {
	return r.advance(convID, identity, at, true)
}

func (r *fakeConvRepo) AdvanceReadCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error) {
	return r.advance(convID, identity, at, false)
}

func (r *fakeConvRepo) advance(convID uuid.UUID, identity string, at time.Time, delivered bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return false, domain.ErrConversationNotFound
	}
	cursors := c.ReadUpTo
	if delivered {
		cursors = c.DeliveredUpTo
	}
	if prev, ok := cursors[identity]; ok && !prev.Before(at) {
		return false, nil
	}
	cursors[identity] = at
	return true, nil
}

type fakeMsgRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
}

func newFakeMsgRepo(msgs ...*domain.Message) *fakeMsgRepo {
	r := &fakeMsgRepo{messages: map[uuid.UUID]*domain.Message{}}
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
	return r
}

func (r *fakeMsgRepo) SaveMessage(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = msg
	return nil
}

func (r *fakeMsgRepo) GetMessageByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return m, nil
}

func (r *fakeMsgRepo) ListByConversation(ctx context.Context, convID uuid.UUID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.ConversationID == convID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMsgRepo) LatestInboundPerConversation(ctx context.Context, identity string) ([]domain.InboundHead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := map[uuid.UUID]*domain.Message{}
	for _, m := range r.messages {
		if m.To != identity {
			continue
		}
		if cur, ok := latest[m.ConversationID]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[m.ConversationID] = m
		}
	}
	var out []domain.InboundHead
	for convID, m := range latest {
		out = append(out, domain.InboundHead{
			ConversationID: convID,
			MessageID:      m.ID,
			From:           m.From,
			At:             m.CreatedAt,
		})
	}
	return out, nil
}

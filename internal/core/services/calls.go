package services

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var callTracer = otel.Tracer("call-service")

type ICallService interface {
	// Invite starts a call attempt. Returns ErrBusy when either party already
	// holds an active session; the earlier session always wins.
	Invite(ctx context.Context, from string, sig domain.CallInvite) error
	// Answer accepts or declines a ringing call.
	Answer(ctx context.Context, from string, sig domain.CallAnswerSignal)
	// Candidate relays a transport-negotiation fragment to the session peer.
	Candidate(ctx context.Context, from string, sig domain.CallCandidateSignal)
	// Hangup ends a ringing or answered call from either side.
	Hangup(ctx context.Context, from string, sig domain.CallHangupSignal)
	// HandleOffline tears down the session owned by a disconnecting identity.
	HandleOffline(ctx context.Context, identity string)
	Status(callID string) domain.CallStatus
}

type callSession struct {
	domain.CallSession
	timer *time.Timer
}

// CallService runs the call-signaling state machine. The session table and
// the user-to-session index are mutated only together, under one lock, so a
// session is never indexed without existing and vice versa. All call relays
// are volatile: a stale call event delivered after a reconnect must never
// resurrect a dead call.
type CallService struct {
	mu         sync.Mutex
	sessions   map[string]*callSession
	byIdentity map[string]string // identity -> active call id, busy detection

	registry    contracts.Registry
	users       domain.UserRepository
	notifyQueue contracts.NotificationQueue
	ringTimeout time.Duration
	log         *slog.Logger
}

func NewCallService(
	log *slog.Logger,
	registry contracts.Registry,
	users domain.UserRepository,
	notifyQueue contracts.NotificationQueue,
	ringTimeout time.Duration,
) *CallService {
	return &CallService{
		sessions:    make(map[string]*callSession),
		byIdentity:  make(map[string]string),
		registry:    registry,
		users:       users,
		notifyQueue: notifyQueue,
		ringTimeout: ringTimeout,
		log:         log,
	}
}

func (s *CallService) Invite(ctx context.Context, from string, sig domain.CallInvite) error {
	ctx, span := callTracer.Start(ctx, "CallService.Invite", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", sig.To),
		attribute.String("kind", sig.Kind),
	))
	defer span.End()

	if sig.To == "" || sig.To == from || !sig.Offer.Valid() {
		s.log.DebugContext(ctx, "calls - invite - malformed", "from", from, "to", sig.To)
		return domain.ErrMalformedPayload
	}
	kind := domain.ParseCallKind(sig.Kind)

	s.mu.Lock()
	if _, busy := s.byIdentity[from]; busy {
		s.mu.Unlock()
		s.rejectBusy(ctx, from, sig.To)
		return domain.ErrBusy
	}
	if _, busy := s.byIdentity[sig.To]; busy {
		s.mu.Unlock()
		s.rejectBusy(ctx, from, sig.To)
		return domain.ErrBusy
	}
	sess := &callSession{
		CallSession: domain.CallSession{
			ID:        uuid.NewString(),
			Caller:    from,
			Callee:    sig.To,
			Kind:      kind,
			State:     domain.CallRinging,
			StartedAt: time.Now(),
		},
	}
	s.sessions[sess.ID] = sess
	s.byIdentity[from] = sess.ID
	s.byIdentity[sig.To] = sess.ID
	callID := sess.ID
	sess.timer = time.AfterFunc(s.ringTimeout, func() {
		s.fireRingTimeout(callID)
	})
	s.mu.Unlock()

	span.SetAttributes(attribute.String("call_id", sess.ID))
	s.registry.Send(ctx, sess.Callee, domain.CallIncomingEvent{
		Type:   domain.TypeCallIncoming,
		CallID: sess.ID,
		From:   from,
		Offer:  sig.Offer,
		Kind:   kind,
		At:     sess.StartedAt,
	}, contracts.DeliveryVolatile)
	s.registry.Send(ctx, from, domain.CallRingingEvent{
		Type:   domain.TypeCallRinging,
		CallID: sess.ID,
		To:     sess.Callee,
		Kind:   kind,
		At:     sess.StartedAt,
	}, contracts.DeliveryVolatile)
	s.log.InfoContext(ctx, "calls - invite - ringing", "call_id", sess.ID, "from", from, "to", sess.Callee, "kind", kind)

	if !s.registry.IsReachable(sess.Callee) {
		s.publishCallFallback(ctx, sess, from)
	}
	return nil
}

func (s *CallService) rejectBusy(ctx context.Context, from, to string) {
	s.registry.Send(ctx, from, domain.CallBusyEvent{
		Type: domain.TypeCallBusy,
		To:   to,
	}, contracts.DeliveryVolatile)
	s.log.InfoContext(ctx, "calls - invite - rejected busy", "from", from, "to", to)
}

// publishCallFallback hands a data-only CALL notification to the async
// dispatch path. It carries its own initiation timestamp so a delayed
// delivery can be recognized as stale by the receiving device.
func (s *CallService) publishCallFallback(ctx context.Context, sess *callSession, from string) {
	callerName := "Unknown Caller"
	avatar := ""
	if caller, err := s.users.GetUserByID(ctx, from); err == nil {
		if caller.Name != "" {
			callerName = caller.Name
		}
		avatar = caller.AvatarURL
	}
	n := contracts.Notification{
		Recipient: sess.Callee,
		Type:      contracts.NotificationCall,
		Data: map[string]string{
			"callId":          sess.ID,
			"from":            from,
			"counterpartName": callerName,
			"avatarUrl":       avatar,
			"kind":            string(sess.Kind),
			"at":              strconv.FormatInt(sess.StartedAt.UnixMilli(), 10),
		},
	}
	if err := s.notifyQueue.Publish(ctx, n); err != nil {
		s.log.ErrorContext(ctx, "calls - invite - fallback publish failed", "call_id", sess.ID, "err", err)
	}
}

// fireRingTimeout runs on the session's ring timer. The state is re-checked
// under the lock: a timer racing an answer or decline resolves to a no-op.
func (s *CallService) fireRingTimeout(callID string) {
	ctx := context.Background()
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	if !ok || sess.State != domain.CallRinging {
		s.mu.Unlock()
		return
	}
	sess.State = domain.CallTimeout
	s.removeLocked(sess)
	s.mu.Unlock()

	at := time.Now()
	ended := domain.CallEndedEvent{
		Type:   domain.TypeCallEnded,
		CallID: callID,
		By:     "timeout",
		At:     at,
		State:  domain.CallTimeout,
	}
	s.registry.Send(ctx, sess.Caller, ended, contracts.DeliveryVolatile)
	s.registry.Send(ctx, sess.Callee, ended, contracts.DeliveryVolatile)
	s.log.Info("calls - ring timeout - session expired", "call_id", callID)
}

func (s *CallService) Answer(ctx context.Context, from string, sig domain.CallAnswerSignal) {
	ctx, span := callTracer.Start(ctx, "CallService.Answer", trace.WithAttributes(
		attribute.String("call_id", sig.CallID),
		attribute.Bool("accept", sig.Accept),
	))
	defer span.End()

	s.mu.Lock()
	sess, ok := s.sessions[sig.CallID]
	if !ok || sess.Peer(from) == "" {
		s.mu.Unlock()
		// The session may have legitimately ended concurrently.
		s.log.DebugContext(ctx, "calls - answer - unknown session", "call_id", sig.CallID, "from", from)
		return
	}
	if !sig.Accept {
		sess.stopTimer()
		sess.State = domain.CallDeclined
		s.removeLocked(sess)
		s.mu.Unlock()

		declined := domain.CallDeclinedEvent{
			Type:   domain.TypeCallDeclined,
			CallID: sess.ID,
			From:   from,
		}
		s.registry.Send(ctx, sess.Caller, declined, contracts.DeliveryVolatile)
		s.registry.Send(ctx, sess.Callee, declined, contracts.DeliveryVolatile)
		s.log.InfoContext(ctx, "calls - answer - declined", "call_id", sess.ID, "by", from)
		return
	}
	if !sig.Answer.Valid() {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "calls - answer - malformed descriptor", "call_id", sig.CallID)
		return
	}
	sess.stopTimer()
	sess.State = domain.CallAnswered
	caller, callee, kind := sess.Caller, sess.Callee, sess.Kind
	s.mu.Unlock()

	// The callee already knows it accepted; only the initiator is told.
	s.registry.Send(ctx, caller, domain.CallAnswerEvent{
		Type:   domain.TypeCallAnswer,
		CallID: sig.CallID,
		From:   callee,
		Answer: sig.Answer,
		Kind:   kind,
	}, contracts.DeliveryVolatile)
	s.log.InfoContext(ctx, "calls - answer - accepted", "call_id", sig.CallID, "by", from)
}

func (s *CallService) Candidate(ctx context.Context, from string, sig domain.CallCandidateSignal) {
	if sig.CallID == "" || len(sig.Candidate) == 0 {
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[sig.CallID]
	var peer string
	if ok {
		peer = sess.Peer(from)
	}
	s.mu.Unlock()
	if peer == "" {
		return
	}
	s.registry.Send(ctx, peer, domain.CallCandidateEvent{
		Type:      domain.TypeCallCandidate,
		CallID:    sig.CallID,
		From:      from,
		Candidate: sig.Candidate,
	}, contracts.DeliveryVolatile)
}

func (s *CallService) Hangup(ctx context.Context, from string, sig domain.CallHangupSignal) {
	ctx, span := callTracer.Start(ctx, "CallService.Hangup", trace.WithAttributes(
		attribute.String("call_id", sig.CallID),
		attribute.String("from", from),
	))
	defer span.End()

	s.mu.Lock()
	sess, ok := s.sessions[sig.CallID]
	if !ok || sess.Peer(from) == "" {
		s.mu.Unlock()
		return
	}
	sess.stopTimer()
	prevState := sess.State
	isCaller := from == sess.Caller
	peer := sess.Peer(from)
	sess.State = domain.CallEnded
	s.removeLocked(sess)
	s.mu.Unlock()

	at := time.Now()
	ended := domain.CallEndedEvent{
		Type:   domain.TypeCallEnded,
		CallID: sig.CallID,
		By:     from,
		At:     at,
		State:  prevState,
	}
	s.registry.Send(ctx, peer, ended, contracts.DeliveryVolatile)
	s.registry.Send(ctx, from, ended, contracts.DeliveryVolatile)
	if isCaller {
		// Distinguishes "caller gave up" from ordinary call completion.
		s.registry.Send(ctx, peer, domain.CallCancelledEvent{
			Type:   domain.TypeCallCancelled,
			CallID: sig.CallID,
			By:     from,
			At:     at,
		}, contracts.DeliveryVolatile)
	}
	s.log.InfoContext(ctx, "calls - hangup - ended", "call_id", sig.CallID, "by", from, "prev_state", prevState)

	if !s.registry.IsReachable(peer) {
		reason := "peer_hung_up"
		if isCaller {
			reason = "caller_hung_up"
		}
		n := contracts.Notification{
			Recipient: peer,
			Type:      contracts.NotificationCallEnded,
			Data: map[string]string{
				"callId": sig.CallID,
				"at":     strconv.FormatInt(at.UnixMilli(), 10),
				"reason": reason,
			},
		}
		if err := s.notifyQueue.Publish(ctx, n); err != nil {
			s.log.ErrorContext(ctx, "calls - hangup - fallback publish failed", "call_id", sig.CallID, "err", err)
		}
	}
}

// HandleOffline is wired to the registry's went-offline hook. The session is
// torn down even though the disconnecting side can no longer receive a reply.
func (s *CallService) HandleOffline(ctx context.Context, identity string) {
	s.mu.Lock()
	callID, ok := s.byIdentity[identity]
	if !ok {
		s.mu.Unlock()
		return
	}
	sess := s.sessions[callID]
	sess.stopTimer()
	peer := sess.Peer(identity)
	sess.State = domain.CallDisconnected
	s.removeLocked(sess)
	s.mu.Unlock()

	s.registry.Send(ctx, peer, domain.CallEndedEvent{
		Type:   domain.TypeCallEnded,
		CallID: callID,
		By:     identity,
		At:     time.Now(),
		State:  domain.CallDisconnected,
	}, contracts.DeliveryVolatile)
	s.log.InfoContext(ctx, "calls - offline - session torn down", "call_id", callID, "identity", identity)
}

func (s *CallService) Status(callID string) domain.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return domain.CallStatus{Active: false, CallID: callID}
	}
	startedAt := sess.StartedAt
	return domain.CallStatus{
		Active:    true,
		CallID:    callID,
		State:     sess.State,
		Kind:      sess.Kind,
		StartedAt: &startedAt,
	}
}

// removeLocked drops the session and both index entries atomically with the
// state transition. Callers hold s.mu.
func (s *CallService) removeLocked(sess *callSession) {
	delete(s.sessions, sess.ID)
	delete(s.byIdentity, sess.Caller)
	delete(s.byIdentity, sess.Callee)
}

func (c *callSession) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

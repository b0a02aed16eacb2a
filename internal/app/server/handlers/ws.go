package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chirp/internal/app/registry"
	"chirp/internal/app/server/ws"
	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"
	"chirp/internal/core/services"
	"chirp/pkg/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	hub      *registry.Registry
	cursors  services.ICursorService
	calls    services.ICallService
	messages services.IMessageService
}

func NewWSHandler(
	hub *registry.Registry,
	cursors services.ICursorService,
	calls services.ICallService,
	messages services.IMessageService,
) *WSHandler {
	return &WSHandler{
		hub:      hub,
		cursors:  cursors,
		calls:    calls,
		messages: messages,
	}
}

func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log, _ := r.Context().Value(middleware.LoggerKey).(*slog.Logger)
	if log == nil {
		log = slog.Default()
	}
	span := trace.SpanFromContext(r.Context())
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing user_id")
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))
	// The session must outlive the HTTP request span
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  32,
		WriteBufferSize: 32,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - ws upgrade failed", "err", err)
		cancel()
		return
	}
	defer conn.Close()
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - ws closed", "user_id", userID)
		cancel()
		return nil
	})
	websocket := ws.NewWebSocket(ctx, conn)

	client := ws.NewClient(ctx, websocket, userID)
	s.hub.Register(ctx, client)
	// The offline hooks still relay to other connections after this one's
	// context is cancelled.
	defer s.hub.Unregister(context.WithoutCancel(ctx), client)
	defer client.Close()
	log.InfoContext(r.Context(), "ws handler - register - client added to registry", "user_id", userID, "client_id", client.ID())

	// Catch up the delivered watermarks for everything that arrived while
	// this user was away. Runs off the read path.
	go s.cursors.ReconcileOnConnect(ctx, userID)

	websocket.ReadLoop(func(data []byte) {
		go func(msgData []byte) {
			s.route(ctx, log, userID, msgData)
		}(data)
	})
}

// route dispatches one inbound frame. Malformed frames and frames for
// sessions that no longer exist are dropped, never answered with an error
// that could confuse a client racing a teardown.
func (s *WSHandler) route(ctx context.Context, log *slog.Logger, userID string, data []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.DebugContext(ctx, "ws handler - route - malformed frame", "user_id", userID)
		return
	}

	switch frame.Type {
	case domain.TypeMessage:
		var sig domain.MessageSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		if _, err := s.messages.SendMessage(ctx, userID, sig.To, sig.Text); err != nil {
			s.sendError(ctx, userID, "send_failed", err)
		}

	case domain.TypeDelivered:
		var sig domain.DeliveredSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		msgID, err := uuid.Parse(sig.MessageID)
		if err != nil {
			return
		}
		_ = s.cursors.MarkDelivered(ctx, msgID)

	case domain.TypeReadUpTo:
		var sig domain.ReadSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		convID, err := uuid.Parse(sig.ConversationID)
		if err != nil {
			return
		}
		at := time.Now()
		if sig.At != nil {
			at = *sig.At
		}
		_ = s.cursors.MarkRead(ctx, convID, userID, at)

	case domain.TypeTyping:
		var sig domain.TypingSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		s.messages.Typing(ctx, userID, sig)

	case domain.TypeCallInvite:
		var sig domain.CallInvite
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		if err := s.calls.Invite(ctx, userID, sig); err != nil && !errors.Is(err, domain.ErrBusy) {
			s.sendError(ctx, userID, "call_failed", err)
		}

	case domain.TypeCallAnswer:
		var sig domain.CallAnswerSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		s.calls.Answer(ctx, userID, sig)

	case domain.TypeCallCandidate:
		var sig domain.CallCandidateSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		s.calls.Candidate(ctx, userID, sig)

	case domain.TypeCallHangup:
		var sig domain.CallHangupSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		s.calls.Hangup(ctx, userID, sig)

	default:
		log.DebugContext(ctx, "ws handler - route - unknown frame type", "type", frame.Type, "user_id", userID)
	}
}

func (s *WSHandler) sendError(ctx context.Context, userID, code string, err error) {
	s.hub.Send(ctx, userID, domain.ErrorMessage{
		Type:    domain.TypeError,
		Code:    code,
		Message: err.Error(),
	}, contracts.DeliveryDurable)
}

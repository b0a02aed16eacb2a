package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chirp/internal/core/domain"
	"chirp/internal/core/services"
	"chirp/pkg/middleware"

	"github.com/google/uuid"
)

// RestHandler serves the stateless query and command surface next to the
// WebSocket session: call status polling, presence lookups, conversation
// history, chat requests and profile updates.
type RestHandler struct {
	calls    services.ICallService
	presence services.IPresenceService
	messages services.IMessageService
	users    *services.UserService
}

func NewRestHandler(
	calls services.ICallService,
	presence services.IPresenceService,
	messages services.IMessageService,
	users *services.UserService,
) *RestHandler {
	return &RestHandler{
		calls:    calls,
		presence: presence,
		messages: messages,
		users:    users,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConversationInactive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CallStatus answers the post-notification poll: a device woken by a call
// push asks whether the call is still worth presenting.
func (h *RestHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if callID == "" {
		http.Error(w, "call id required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.calls.Status(callID))
}

func (h *RestHandler) Presence(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		http.Error(w, "ids required", http.StatusBadRequest)
		return
	}
	ids := strings.Split(idsParam, ",")
	verbose := r.URL.Query().Get("verbose") == "1"
	records := h.presence.Query(r.Context(), ids, verbose)
	if !verbose {
		out := make(map[string]bool, len(records))
		for id, rec := range records {
			out[id] = rec.Online
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *RestHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	status := domain.ConversationStatus(r.URL.Query().Get("status"))
	convs, err := h.messages.ListConversations(r.Context(), userID, status)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *RestHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	msgs, err := h.messages.ListMessages(r.Context(), convID, userID)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *RestHandler) CreateChatRequest(w http.ResponseWriter, r *http.Request) {
	log, _ := r.Context().Value(middleware.LoggerKey).(*slog.Logger)
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	conv, err := h.messages.CreateChatRequest(r.Context(), userID, req.To)
	if err != nil {
		log.ErrorContext(r.Context(), "rest handler - create chat request failed", "from", userID, "to", req.To, "err", err)
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *RestHandler) AcceptChatRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	conv, err := h.messages.AcceptChatRequest(r.Context(), convID, userID)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *RestHandler) DeclineChatRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := h.messages.DeclineChatRequest(r.Context(), convID, userID); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RestHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req struct {
		Name        *string `json:"name"`
		AvatarURL   *string `json:"avatarUrl"`
		Bio         *string `json:"bio"`
		DeviceToken *string `json:"deviceToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), userID, req.Name, req.AvatarURL, req.Bio, req.DeviceToken)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *RestHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		http.Error(w, "ids required", http.StatusBadRequest)
		return
	}
	users, err := h.users.GetUsers(r.Context(), strings.Split(idsParam, ","))
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// File: internal/relay/handlers.go
package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

// Handler exposes the relay's REST and websocket endpoints.
type Handler struct {
	svc    *Service
	hub    *Hub
	logger logging.Logger

	upgrader websocket.Upgrader
}

func NewHandler(svc *Service, hub *Hub, logger logging.Logger) *Handler {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Handler{
		svc:    svc,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay fronts first-party clients only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a participant of this thread")
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ===== auth =====

type credentialsRequest struct {
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := h.svc.SignUp(r.Context(), req.Username, req.Password, req.DisplayName, req.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := h.svc.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

// ===== threads =====

func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	threads, err := h.svc.ThreadsForUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, threads)
}

func (h *Handler) LookupThread(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("participants"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "participants query parameter is required")
		return
	}
	participants := strings.Split(raw, ",")

	threadType := domain.ThreadType(q.Get("type"))
	if !threadType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid thread type")
		return
	}

	thread, err := h.svc.LookupThread(r.Context(), userID, participants, threadType, q.Get("client_id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, thread)
}

type createThreadRequest struct {
	Type           domain.ThreadType `json:"type"`
	ClientID       string            `json:"client_id"`
	DisplayName    string            `json:"display_name"`
	ParticipantIDs []string          `json:"participant_ids"`
}

func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	thread, err := h.svc.CreateThread(r.Context(), userID, req.Type, req.ClientID, req.DisplayName, req.ParticipantIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, thread)
}

// ===== messages =====

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	threadID := mux.Vars(r)["id"]

	msgs, err := h.svc.MessagesForThread(r.Context(), userID, threadID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	threadID := mux.Vars(r)["id"]

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), userID, threadID, req.Body, req.CreatedAt)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (h *Handler) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	threadID := mux.Vars(r)["id"]

	if err := h.svc.MarkThreadRead(r.Context(), userID, threadID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"ok": true})
}

// ===== live channel =====

// ServeWS authenticates via the token query parameter (browser websocket
// clients cannot set headers) and hands the connection to the hub.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := h.svc.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.hub.Serve(conn, claims.UserID, h.svc)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// File: internal/relay/router.go
package relay

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carelinkhq/carelink/internal/logging"
)

// NewRouter wires the relay's routes. Everything under /api/threads requires
// a valid bearer token; the websocket endpoint authenticates via query token.
func NewRouter(h *Handler, svc *Service, logger logging.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(RecoverPanic(logger))
	r.Use(RequestLogging(logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/signup", h.SignUp).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", h.SignIn).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)

	authed := r.PathPrefix("/api/threads").Subrouter()
	authed.Use(RequireAuth(svc, logger))
	authed.HandleFunc("", h.ListThreads).Methods(http.MethodGet)
	authed.HandleFunc("", h.CreateThread).Methods(http.MethodPost)
	authed.HandleFunc("/lookup", h.LookupThread).Methods(http.MethodGet)
	authed.HandleFunc("/{id}/messages", h.ListMessages).Methods(http.MethodGet)
	authed.HandleFunc("/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	authed.HandleFunc("/{id}/read", h.MarkThreadRead).Methods(http.MethodPost)

	return r
}

// Package server assembles the HTTP router: session routes, request logging,
// panic recovery, and client IP propagation for the audit trail.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"session-core/internal/session/handler"
)

// New returns the HTTP handler serving the session API. extra middlewares
// (telemetry, rate limiting) run outermost in the order given.
func New(h *handler.Handler, log *slog.Logger, extra ...func(http.Handler) http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range extra {
		r.Use(mw)
	}
	r.Use(Recoverer(log))
	r.Use(RequestLogger(log))
	r.Use(ClientIP)

	r.Get("/hello", hello)
	r.Route("/session", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Delete("/", h.RevokeSession)
		r.Post("/refresh", h.RefreshSession)
		r.Post("/verify", h.VerifySession)
	})
	return r
}

func hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello"))
}

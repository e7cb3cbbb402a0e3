package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

// Routes mounts every endpoint. auth guards everything under /api/v1.
func (h *HTTPHandler) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.HTTPMiddleware(h.l))

	r.Get("/healthz", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Post("/sessions", h.OpenSession)

		r.Route("/sessions/{code}", func(r chi.Router) {
			r.Get("/participants", h.Snapshot)
			r.Post("/participants", h.Join)
			r.Delete("/participants/me", h.Leave)
			r.Post("/heartbeat", h.Heartbeat)
			r.Get("/events", h.ViewerEvents)
			r.Get("/ws", h.ViewerWebSocket)
		})

		r.Route("/streamer", func(r chi.Router) {
			r.Post("/session/close", h.CloseSession)
			r.Get("/events", h.StreamerEvents)
			r.Post("/rounds", h.AdvanceRound)
			r.Post("/participants/{viewerId}/pick", h.TogglePick)
			r.Post("/participants/{viewerId}/approve", h.Approve)
			r.Delete("/participants/{viewerId}", h.Kick)
		})
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/users/*          User registration and read-only queries
  /api/events           Inbound event submission
  /api/scheduler/*      Scheduler queries
  /cron/*               Secret-protected sweep triggers
  /telegram/webhook     Bot transport

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Cron-Secret"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.RegisterUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}/timezone", h.UpdateTimezone)
			r.Get("/{id}/stats", h.GetStats)
			r.Get("/{id}/streak", h.GetStreak)
			r.Get("/{id}/breaks", h.GetBreaks)
			r.Get("/{id}/next", h.GetNextReading)
		})

		r.Post("/events", h.SubmitEvent)

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/pending", h.ListPending)
			r.Get("/unread", h.ListUnread)
		})
	})

	// Cron triggers (external scheduler deployments)
	r.Route("/cron", func(r chi.Router) {
		r.Use(h.requireCronSecret)
		r.Post("/daily", h.CronDaily)
		r.Post("/nudge", h.CronNudge)
	})

	// Bot transport
	r.Post("/telegram/webhook", h.TelegramWebhook)

	return r
}

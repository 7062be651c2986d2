/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Honor proxy headers for client addresses
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the web client

ROUTE GROUPS:
  /api/assignments  Participant routing
  /api/crews/*      Crew state and history
  /api/zones        Zone catalog with occupancy
  /api/anchor       Current derived anchor
  /api/signals      Danger signal ingestion
  /api/rotations/*  Rotation history and manual trigger
  /api/scenarios/*  Demo scenario seeding

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
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/assignments", h.AssignParticipant)

		r.Route("/crews", func(r chi.Router) {
			r.Get("/", h.ListCrews)
			r.Get("/{id}/history", h.CrewHistory)
		})

		r.Get("/zones", h.ListZones)
		r.Get("/anchor", h.GetAnchor)
		r.Post("/signals", h.ReportSignal)

		r.Route("/rotations", func(r chi.Router) {
			r.Get("/", h.ListRotations)
			r.Post("/trigger", h.TriggerRotation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

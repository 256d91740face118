/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/fees/*           Computation and bulk summaries
  /api/students/*       Student records + per-student ledger reads
  /api/classes/*        Class records
  /api/structures/*     Fee structures and their version chains
  /api/scholarships/*   Scholarship definitions and assignments
  /api/charges/*        Charge definitions and per-month assignments
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /metrics              Prometheus metrics

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  Deploy behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Computation and bulk reads
		r.Route("/fees", func(r chi.Router) {
			r.Post("/compute", h.Compute)
			r.Get("/summary", h.GetMonthSummary)
		})

		// Student routes (records + per-student ledger)
		r.Route("/students", func(r chi.Router) {
			r.Post("/", h.CreateStudent)
			r.Get("/{id}/fees", h.GetFeeHistory)
			r.Get("/{id}/fees/{month}", h.GetLatestFee)
		})

		// Class routes
		r.Route("/classes", func(r chi.Router) {
			r.Post("/", h.CreateClass)
		})

		// Fee structure routes
		r.Route("/structures", func(r chi.Router) {
			r.Post("/", h.CreateStructure)
			r.Get("/{id}/versions", h.ListStructureVersions)
			r.Post("/{id}/versions", h.AppendStructureVersion)
		})

		// Scholarship routes
		r.Route("/scholarships", func(r chi.Router) {
			r.Post("/", h.CreateScholarship)
			r.Post("/assignments", h.AssignScholarship)
		})

		// Charge routes
		r.Route("/charges", func(r chi.Router) {
			r.Post("/", h.CreateCharge)
			r.Post("/assignments", h.AssignCharge)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests from the site dashboard

ROUTE GROUPS:
  /api/settlement/*    Daily and monthly settlements
  /api/analysis/*      Alerts, anomaly checks, baselines
  /api/fuel-balance/*  Fuel ledger
  /api/salary/*        Monthly salary from attendance
  /api/report/*        Spreadsheet export
  /api/scheduler/*     Task status and manual triggers
  /health              Liveness check

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/settlement", func(r chi.Router) {
			r.Route("/daily", func(r chi.Router) {
				r.Get("/", h.ComputeDaily)
				r.Get("/list", h.ListDaily)
				r.Post("/refresh", h.RefreshDaily)
				r.Post("/refresh-all", h.RefreshAllDaily)
			})
			r.Route("/monthly", func(r chi.Router) {
				r.Get("/", h.GetMonthly)
				r.Get("/list", h.ListMonthly)
				r.Post("/generate", h.GenerateMonthly)
			})
		})

		r.Route("/analysis", func(r chi.Router) {
			r.Get("/alerts", h.ListAlerts)
			r.Get("/alerts/stats", h.AlertStats)
			r.Put("/alerts/{id}", h.ResolveAlert)
			r.Post("/check", h.CheckAnomalies)
			r.Get("/baselines", h.ListBaselines)
			r.Get("/per-truck-oil", h.PerTruckOil)
		})

		r.Route("/fuel-balance", func(r chi.Router) {
			r.Get("/", h.GetFuelBalance)
			r.Post("/calculate", h.CalculateFuelBalance)
		})

		r.Route("/salary/monthly", func(r chi.Router) {
			r.Get("/", h.GetMonthlySalary)
			r.Get("/list", h.ListMonthlySalaries)
		})

		r.Get("/report/export", h.ExportReport)

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", h.SchedulerStatus)
			r.Post("/tasks/{name}/run", h.RunTask)
			r.Post("/daily", h.TriggerDaily)
		})
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/users/*          Users and their performance reads
  /api/projects/*       Projects and project performance
  /api/tasks/*          Tasks and task efficiency
  /api/timesheets/*     Timesheet submission and approval
  /api/admin/*          Manual rebuild of derived records
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus exposition

Every /api route is wrapped by the metrics recorder under its route pattern.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics/metrics.go: Recorder
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/timesheet-analytics/metrics"
)

// NewRouter creates a new router with all routes configured. rec may be nil,
// in which case nothing is measured and /metrics is not mounted.
func NewRouter(h *Handler, rec *metrics.Recorder) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	route := func(r chi.Router, method, pattern, name string, fn http.HandlerFunc) {
		r.Method(method, pattern, rec.WrapHandler(name, fn))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			route(r, http.MethodGet, "/", "/api/users", h.ListUsers)
			route(r, http.MethodPost, "/", "/api/users", h.CreateUser)
			route(r, http.MethodGet, "/{id}/snapshot", "/api/users/{id}/snapshot", h.GetSnapshot)
			route(r, http.MethodGet, "/{id}/weeks", "/api/users/{id}/weeks", h.GetUserWeeks)
			route(r, http.MethodGet, "/{id}/performance/{week}", "/api/users/{id}/performance/{week}", h.GetEmployeePerformance)
			route(r, http.MethodGet, "/{id}/task-efficiency", "/api/users/{id}/task-efficiency", h.GetUserTaskEfficiency)
			route(r, http.MethodGet, "/{id}/summary", "/api/users/{id}/summary", h.GetSummary)
		})

		r.Route("/projects", func(r chi.Router) {
			route(r, http.MethodGet, "/", "/api/projects", h.ListProjects)
			route(r, http.MethodPost, "/", "/api/projects", h.CreateProject)
			route(r, http.MethodGet, "/{id}", "/api/projects/{id}", h.GetProject)
			route(r, http.MethodPut, "/{id}", "/api/projects/{id}", h.UpdateProject)
			route(r, http.MethodGet, "/{id}/performance", "/api/projects/{id}/performance", h.GetProjectPerformance)
			route(r, http.MethodGet, "/{id}/task-efficiency", "/api/projects/{id}/task-efficiency", h.GetProjectTaskEfficiency)
		})

		r.Route("/tasks", func(r chi.Router) {
			route(r, http.MethodPost, "/", "/api/tasks", h.CreateTask)
			route(r, http.MethodGet, "/{id}", "/api/tasks/{id}", h.GetTask)
			route(r, http.MethodPut, "/{id}", "/api/tasks/{id}", h.UpdateTask)
			route(r, http.MethodPost, "/{id}/complete", "/api/tasks/{id}/complete", h.CompleteTask)
			route(r, http.MethodGet, "/{id}/efficiency", "/api/tasks/{id}/efficiency", h.GetTaskEfficiency)
		})

		r.Route("/timesheets", func(r chi.Router) {
			route(r, http.MethodPost, "/", "/api/timesheets", h.CreateTimesheet)
			route(r, http.MethodGet, "/{id}", "/api/timesheets/{id}", h.GetTimesheet)
			route(r, http.MethodPut, "/{id}", "/api/timesheets/{id}", h.UpdateTimesheet)
			route(r, http.MethodPost, "/{id}/approve", "/api/timesheets/{id}/approve", h.ApproveTimesheet)
			route(r, http.MethodPost, "/{id}/reject", "/api/timesheets/{id}/reject", h.RejectTimesheet)
		})

		r.Route("/admin", func(r chi.Router) {
			route(r, http.MethodPost, "/rebuild", "/api/admin/rebuild", h.Rebuilds.TriggerRebuild)
			route(r, http.MethodGet, "/rebuild", "/api/admin/rebuild", h.Rebuilds.GetLastRebuild)
		})

		r.Route("/scenarios", func(r chi.Router) {
			route(r, http.MethodGet, "/", "/api/scenarios", h.ListScenarios)
			route(r, http.MethodGet, "/current", "/api/scenarios/current", h.GetCurrentScenario)
			route(r, http.MethodPost, "/load", "/api/scenarios/load", h.LoadScenario)
			route(r, http.MethodPost, "/reset", "/api/scenarios/reset", h.ResetDatabase)
		})
	})

	if rec != nil {
		r.Handle("/metrics", rec.Handler())
	}

	return r
}

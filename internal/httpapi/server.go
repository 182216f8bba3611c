// Package httpapi is the control surface (§4.11): one chi handler per
// operation in spec.md §6, returning exit-code-equivalent HTTP statuses.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-lifecycle-engine/internal/campaign"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// Server hosts the HTTP control surface.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer wires routes over the engine's top-level collaborators.
func NewServer(repo store.Repository, creator *campaign.Creator, scheduler *jobs.Scheduler, runner *orchestrator.Orchestrator) *Server {
	h := &handlers{repo: repo, creator: creator, scheduler: scheduler, runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/workers", h.handleListWorkers)

	r.Post("/campaigns", h.handleCreateCampaign)
	r.Get("/campaigns/{campaignName}", h.handleGetStatus)

	r.Route("/schedules/{scheduleID}", func(r chi.Router) {
		r.Post("/preflight", h.handleRunPreFlight)
		r.Post("/launch", h.handleLaunch)
		r.Post("/wrapup", h.handleRunWrapup)
		r.Post("/cancel", h.handleCancel)
		r.Get("/jobs", h.handleJobStatus)
		r.Post("/reschedule", h.handleReschedule)
	})

	return &Server{handler: r}
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server at addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second, // generous: Pre-Flight/Wrap-Up invoke the LLM pipeline
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Package httpserver provides the HTTP REST API server for the screening service.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/screening-service/internal/database"
	"github.com/helixir/screening-service/internal/ingest"
	"github.com/helixir/screening-service/internal/orchestrator"
	"github.com/helixir/screening-service/internal/reconcile"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
)

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MetricsPath     string
}

// Server is the HTTP REST API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	importer     *ingest.Importer
	units        repository.UnitRepository
	judgments    repository.JudgmentLogRepository
	committer    *screening.Committer
	reconciler   *reconcile.Reconciler
	orchestrator *orchestrator.Orchestrator
	db           *database.DB
	logger       zerolog.Logger
	validate     *validator.Validate
	cfg          Config
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	importer *ingest.Importer,
	units repository.UnitRepository,
	judgments repository.JudgmentLogRepository,
	committer *screening.Committer,
	reconciler *reconcile.Reconciler,
	orch *orchestrator.Orchestrator,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		importer:     importer,
		units:        units,
		judgments:    judgments,
		committer:    committer,
		reconciler:   reconciler,
		orchestrator: orch,
		db:           db,
		logger:       logger.With().Str("component", "http-server").Logger(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		cfg:          cfg,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.cfg.MetricsEnabled {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/imports", s.importBatch)
		r.Post("/screenings", s.screenBatch)

		r.Route("/units", func(r chi.Router) {
			r.Get("/", s.listUnits)

			r.Route("/{unitID}", func(r chi.Router) {
				r.Get("/", s.getUnit)
				r.Post("/decisions", s.recordDecision)
				r.Post("/skip-pass1", s.skipPass1)
				r.Post("/merge", s.mergeUnits)
				r.Post("/unmerge", s.unmergeRecord)
				r.Get("/judgments", s.listJudgments)
			})
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

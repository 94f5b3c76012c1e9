// Package api is the HTTP surface of the long-running server: health,
// diagnostics, and the fallback trigger that starts a missed daily run from
// ordinary traffic.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gardenwatch/internal/scheduler"
)

// defaultRequestTimeout bounds every request context.
const defaultRequestTimeout = 30 * time.Second

// DiagnosticsSource produces the diagnostics report.
type DiagnosticsSource interface {
	Collect(ctx context.Context) (*scheduler.Report, error)
}

// DailyTrigger starts the daily run if it has not happened today.
type DailyTrigger interface {
	EnsureDailyRun(ctx context.Context) (scheduler.Outcome, error)
}

// Config holds the server's collaborators. Nil Diagnostics disables the
// diagnostics route; nil Trigger disables the fallback middleware.
type Config struct {
	Logger         *slog.Logger
	Probes         []HealthProbe
	Diagnostics    DiagnosticsSource
	Trigger        DailyTrigger
	RequestTimeout time.Duration
}

// Server owns the chi router.
type Server struct {
	logger      *slog.Logger
	probes      []HealthProbe
	diagnostics DiagnosticsSource
	trigger     DailyTrigger
	timeout     time.Duration

	router *chi.Mux
}

// NewServer builds the router with all routes mounted.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		logger:      cfg.Logger,
		probes:      cfg.Probes,
		diagnostics: cfg.Diagnostics,
		trigger:     cfg.Trigger,
		timeout:     cfg.RequestTimeout,
		router:      chi.NewRouter(),
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// mountRoutes registers middleware in order: Recoverer first so it sees every
// panic, then the request ID so the logger can print it.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.timeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.logger))
	if s.trigger != nil {
		s.router.Use(s.FallbackTrigger)
	}

	s.router.Get("/health", s.HandleHealth)
	if s.diagnostics != nil {
		s.router.Get("/diagnostics", s.HandleDiagnostics)
	}
}

// HandleDiagnostics serves GET /diagnostics.
func (s *Server) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := s.diagnostics.Collect(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "diagnostics collection failed", "error", err)
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, report)
}

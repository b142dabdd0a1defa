package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/apron/internal/config"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/internal/store"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.1.0"

// Server is the apron REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	startTime time.Time
	sched     *scheduler.Scheduler

	// Optional
	store    store.Store
	dispatch scheduler.Runner
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore exposes the movement journal at /api/v1/movements.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithDispatch sets the loop started by StartDispatch.
func WithDispatch(r scheduler.Runner) Option {
	return func(s *Server) {
		s.dispatch = r
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		sched:     sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartDispatch begins the auto-dispatch loop in a background goroutine.
// It does nothing when no loop was configured.
func (s *Server) StartDispatch(ctx context.Context) {
	if s.dispatch == nil {
		return
	}
	go func() {
		if err := s.dispatch.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("dispatch stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleListQueue)
			r.Post("/", s.handleAdmit)
		})
		r.Post("/schedule", s.handleSchedule)

		r.Route("/flights", func(r chi.Router) {
			r.Get("/", s.handleListFlights)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFlight)
				r.Post("/gate", s.handleAssignGate)
			})
		})

		r.Get("/runways", s.handleListRunways)
		r.Get("/gates", s.handleListGates)
		r.Get("/movements", s.handleListMovements)
	})
}

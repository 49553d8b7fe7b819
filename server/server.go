// Package server provides HTTP server management and lifecycle handling for
// the claim intake service: middleware, routes and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salulink/authi-claims/config"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
)

const rateLimiterCleanup = 30 * time.Minute

// RouteRegistrar mounts the API routes
type RouteRegistrar interface {
	Routes(r chi.Router)
}

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	config  *config.Config
	limiter *RateLimiter
	stop    chan struct{}
	once    sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, api RouteRegistrar) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:           router,
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// analysis calls and PDF rendering run inside the request
			WriteTimeout: cfg.AnalysisTimeout + 30*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		config:  cfg,
		limiter: NewRateLimiter(),
		stop:    make(chan struct{}),
	}

	s.setupMiddleware()
	s.setupRoutes(api)

	return s
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		s.router.Use(BlockDirectAccessMiddleware) // before RealIPMiddleware to see the original RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
	s.router.Use(metrics.Metrics)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(api RouteRegistrar) {
	s.router.Handle("/metrics", promhttp.Handler())
	api.Routes(s.router)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server. It blocks until the server stops and returns nil
// after a graceful shutdown.
func (s *Server) Start() error {
	s.limiter.cleanup(s.stop, rateLimiterCleanup)

	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	logging.Info("Starting server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.once.Do(func() { close(s.stop) })

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started", "address", "http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}

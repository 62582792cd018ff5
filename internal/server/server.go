// Package server assembles the HTTP surface: health probes, version, and the
// connection API, behind the standard middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/internal/server/handlers"
	"github.com/3leaps/lakemap/internal/server/middleware"
)

// Timeouts configures the underlying http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// DefaultTimeouts mirrors the configuration defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:     30 * time.Second,
		Write:    30 * time.Second,
		Idle:     120 * time.Second,
		Shutdown: 10 * time.Second,
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithAPI mounts the connection API under /api/v1.
func WithAPI(api *handlers.API) Option {
	return func(s *Server) { s.api = api }
}

// WithMetrics serves m at /metrics and records request counts and
// latencies when m carries HTTP metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithProfiler mounts the pprof handlers under /debug.
func WithProfiler() Option {
	return func(s *Server) { s.profiler = true }
}

// WithTimeouts overrides DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Server) { s.timeouts = t }
}

// Server is the lakemap HTTP server.
type Server struct {
	host     string
	port     int
	timeouts Timeouts
	api      *handlers.API
	metrics  *observability.Metrics
	profiler bool

	router chi.Router

	mu   sync.Mutex
	http *http.Server
}

// New builds a server listening on host:port. Routes are registered
// immediately so Handler can be used without starting a listener.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{host: host, port: port, timeouts: DefaultTimeouts()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	if s.metrics != nil {
		r.Use(s.metrics.HTTP.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewNotFound("route not found: "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewMethodNotAllowed(
			fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	if s.profiler {
		r.Mount("/debug", chimw.Profiler())
	}

	if s.api != nil {
		r.Route("/api/v1", s.api.Routes)
	}
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	observability.ServerLogger.Info("HTTP server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests, waiting at most the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if s.timeouts.Shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.Shutdown)
		defer cancel()
	}
	observability.ServerLogger.Info("Shutting down HTTP server")
	return srv.Shutdown(ctx)
}

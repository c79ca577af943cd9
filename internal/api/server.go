// Package api provides the HTTP control surface for the directory watcher.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/listenupapp/dirwatch/internal/monitor"
	"github.com/listenupapp/dirwatch/internal/ratelimit"
	"github.com/listenupapp/dirwatch/internal/sse"
	"github.com/listenupapp/dirwatch/internal/validation"
)

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins (default: "*").
	CORSOrigins []string
	// SessionRate limits session starts per client per minute; 0 disables it.
	SessionRate int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	registry     *monitor.Registry
	sseManager   *sse.Manager
	sseHandler   *sse.Handler
	validator    *validation.Validator
	startLimiter *ratelimit.KeyedRateLimiter
	router       *chi.Mux
	logger       *slog.Logger
	opts         Options
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(registry *monitor.Registry, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		registry:   registry,
		sseManager: sseManager,
		sseHandler: sse.NewHandler(sseManager, logger),
		validator:  validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
		opts:       opts,
	}
	if opts.SessionRate > 0 {
		s.startLimiter = ratelimit.PerMinute(opts.SessionRate)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.startLimiter != nil {
		s.startLimiter.Stop()
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
// No compression: it would buffer the event stream.
func (s *Server) setupMiddleware() {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.With(s.limitSessionStarts).Post("/", s.handleStartSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleStopSession)
		})

		r.Get("/events", s.sseHandler.ServeHTTP)
	})
}

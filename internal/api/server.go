// Package api is the admin HTTP API: health, the live event stream and the
// recent message log.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/wxgate/internal/audit"
	"github.com/mattjoyce/wxgate/internal/events"
)

// App reports one application's load. *center.Center implements it.
type App interface {
	App() string
	InFlight() int
}

// MessageReader reads the message log. *audit.MessageLog implements it.
type MessageReader interface {
	Recent(ctx context.Context, app string, limit int) ([]audit.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token required by every route but /healthz.
	APIKey string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	apps      []App
	events    *events.Hub
	messages  MessageReader
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	keyDigest keyDigest
	keepAlive time.Duration
}

// New creates a new API server instance. messages may be nil when the
// message log is disabled; /messages then answers 503.
func New(config Config, apps []App, hub *events.Hub, messages MessageReader, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		apps:      apps,
		events:    hub,
		messages:  messages,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
		keyDigest: digestKey(config.APIKey),
		keepAlive: defaultKeepAlive,
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/events", s.handleEvents)
		r.Get("/messages", s.handleMessages)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

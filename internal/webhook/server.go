package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/fault"
)

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	logger *slog.Logger
	server *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*Endpoint
}

// New creates a new webhook server instance. Every endpoint needs a
// Processor and a Verifier.
func New(config Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoints := make(map[string]*Endpoint, len(config.Endpoints))
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]
		if ep.Processor == nil || ep.Verifier == nil {
			return nil, fmt.Errorf("webhook endpoint %q: processor and verifier are required", ep.Path)
		}
		if _, dup := endpoints[ep.Path]; dup {
			return nil, fmt.Errorf("webhook endpoint %q: duplicate path", ep.Path)
		}
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		logger:    logger.With("component", "webhook"),
		endpoints: endpoints,
	}, nil
}

// Start starts the webhook HTTP server and blocks until ctx ends or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path, ep := range s.endpoints {
		r.Get(path, s.handleVerify(ep))
		r.Post(path, s.handleCallback(ep))
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleVerify answers the platform's URL-verification GET by echoing
// echostr when the signature matches.
func (s *Server) handleVerify(ep *Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		echo, err := ep.Verifier.VerifyURL(q.Get(ParamSignature), q.Get(ParamTimestamp), q.Get(ParamNonce), q.Get(ParamEchostr))
		if err != nil {
			s.logger.Warn("url verification failed", "app", ep.App, "error", err)
			s.respondText(w, http.StatusForbidden, "forbidden")
			return
		}
		s.respondText(w, http.StatusOK, echo)
	}
}

// handleCallback passes a callback POST to the endpoint's Processor.
func (s *Server) handleCallback(ep *Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, ep.MaxBodySize+1))
		if err != nil {
			s.respondText(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if int64(len(body)) > ep.MaxBodySize {
			s.respondText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		res, err := ep.Processor.Process(r.Context(), paramsFrom(r), body)
		if err != nil {
			status, msg := statusFor(err)
			s.logger.Log(r.Context(), levelFor(status), "callback rejected",
				"app", ep.App,
				"status", status,
				"error_kind", string(fault.KindOf(err)),
				"error", err,
			)
			s.respondText(w, status, msg)
			return
		}

		contentType := contentTypeText
		if res.Reply.Encrypt {
			contentType = contentTypeXML
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
	}
}

// paramsFrom prefers msg_signature, which is present in safe mode and
// covers the encrypted body.
func paramsFrom(r *http.Request) center.Params {
	q := r.URL.Query()
	sig := q.Get(ParamMsgSignature)
	if sig == "" {
		sig = q.Get(ParamSignature)
	}
	return center.Params{
		Signature: sig,
		Timestamp: q.Get(ParamTimestamp),
		Nonce:     q.Get(ParamNonce),
	}
}

// statusFor maps pipeline faults to HTTP statuses. Bodies never carry error
// detail.
func statusFor(err error) (int, string) {
	switch fault.KindOf(err) {
	case fault.DecryptionFailed:
		return http.StatusForbidden, "forbidden"
	case fault.MalformedMessage:
		return http.StatusBadRequest, "bad request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// respondText sends a plain text response.
func (s *Server) respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

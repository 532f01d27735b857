// Package api exposes the chat engine over HTTP for the browser
// frontend.
//
// Endpoints:
//
//	GET  /                        embedded single-page chat UI
//	GET  /health                  liveness probe
//	GET  /ready                   readiness probe
//	GET  /api/personas            persona roster
//	GET  /api/sessions            session summaries, newest first
//	POST /api/sessions            create session
//	GET  /api/sessions/{id}       full session with messages
//	DELETE /api/sessions/{id}     delete session (stops running polls)
//	POST /api/sessions/{id}/clear clear messages
//	GET  /api/settings            display name + notification flag
//	PUT  /api/settings            update settings
//	POST /api/chat                blocking send (JSON in, JSON out)
//	POST /api/chat/stream         send with SSE reply stream
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery and logging middleware
//   - ratelimit.go: per-IP token bucket for /api/
//   - health.go, persona.go, session.go, settings.go, chat.go: handlers
//   - response.go: JSON response helpers
//   - web.go: embedded browser UI
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads (Slowloris).
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Config wires a Server.
type Config struct {
	Store    *store.Store
	Engine   *chat.Engine
	Personas *persona.Registry
	Logger   log.Logger

	// Per-IP request budget for /api/ routes.
	RequestsPerSecond float64
	RequestBurst      int
}

// Server is the HTTP server for the browser frontend.
type Server struct {
	mux     *http.ServeMux
	logger  log.Logger
	limiter *rateLimiter
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Personas == nil {
		reg, err := persona.New(nil)
		if err != nil {
			return nil, err
		}
		cfg.Personas = reg
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 30
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		logger:  cfg.Logger,
		limiter: newRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
	}

	newHealthHandler(cfg.Store).registerRoutes(mux)
	newPersonaHandler(cfg.Personas).registerRoutes(mux)
	newSessionHandler(cfg.Store, cfg.Engine, cfg.Personas, cfg.Logger).registerRoutes(mux)
	newSettingsHandler(cfg.Store, cfg.Engine, cfg.Logger).registerRoutes(mux)
	newChatHandler(cfg.Store, cfg.Engine, cfg.Logger).registerRoutes(mux)
	registerWebUI(mux)

	return s, nil
}

// Handler returns the routed handler with middleware applied.
// Order: recovery → rate limit (/api/ only) → logging → mux.
func (s *Server) Handler() http.Handler {
	limited := rateLimitMiddleware(s.limiter, s.logger, func(r *http.Request) bool {
		return strings.HasPrefix(r.URL.Path, "/api/")
	})
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		limited,
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

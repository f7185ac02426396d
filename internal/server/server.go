// Package server exposes the bot's read-only status API: health, the
// engine snapshot, recent trades, Prometheus metrics and a websocket
// status stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/engine"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/middleware"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // empty disables authentication
	// RateLimit caps requests per client per RateWindow when a limiter is
	// supplied.
	RateLimit  int
	RateWindow time.Duration
}

// Deps are what the routes read from. Trades, Metrics, Hub and Limiter
// are optional.
type Deps struct {
	Mode    string
	Status  func() *engine.Status
	Trades  handler.TradeLister
	Metrics http.Handler
	Hub     *ws.Hub
	Limiter domain.RateLimiter
}

// Server is the status API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers the routes and middleware.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handler.NewHealthHandler(deps.Mode, deps.Status).HealthCheck)
	mux.HandleFunc("GET /api/status", handler.NewStatusHandler(deps.Mode, deps.Status).GetStatus)
	mux.HandleFunc("GET /api/trades", handler.NewTradesHandler(deps.Trades, deps.Status, logger).ListTrades)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run listens until ctx ends, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.InfoContext(ctx, "listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

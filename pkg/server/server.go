package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/metrics"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the reading session and history over HTTP
type Server struct {
	echo    *echo.Echo
	handler *Handler
	addr    string
	logger  *slog.Logger
}

type config struct {
	addr     string
	logger   *slog.Logger
	recorder metrics.Recorder
	gatherer prometheus.Gatherer
	rng      deck.RNG
	mcp      http.Handler
}

type Option func(*config)

func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics records request counts and serves gatherer on /metrics
func WithMetrics(recorder metrics.Recorder, gatherer prometheus.Gatherer) Option {
	return func(c *config) {
		c.recorder = recorder
		c.gatherer = gatherer
	}
}

// WithRNG sets the random source used to draw cards
func WithRNG(rng deck.RNG) Option {
	return func(c *config) {
		c.rng = rng
	}
}

// WithMCP mounts an MCP streamable HTTP handler at /mcp
func WithMCP(h http.Handler) Option {
	return func(c *config) {
		c.mcp = h
	}
}

func New(ctrl *reading.Controller, uc *history.UseCase, opts ...Option) *Server {
	cfg := &config{
		addr:     ":8080",
		logger:   logging.Default(),
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestIDMiddleware(cfg.logger))
	e.Use(LoggingMiddleware(cfg.logger, cfg.recorder))

	handler := NewHandler(ctrl, uc, cfg.rng)
	handler.Register(e)

	if cfg.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.mcp != nil {
		e.Any("/mcp", echo.WrapHandler(cfg.mcp))
	}

	return &Server{
		echo:    e,
		handler: handler,
		addr:    cfg.addr,
		logger:  cfg.logger,
	}
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is canceled, then shuts down gracefully and waits
// for background generations
func (s *Server) Run(ctx context.Context) error {
	s.handler.baseCtx = logging.With(context.WithoutCancel(ctx), s.logger)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server stopped", goerr.V("addr", s.addr))
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	s.handler.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server")
	}
	s.handler.Wait()
	return nil
}

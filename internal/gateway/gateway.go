// Package gateway exposes the memory engine over HTTP: capture and recall
// endpoints, record administration, user profiles, a websocket turn stream,
// and health/status/metrics surfaces.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/profile"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/store"
)

const (
	defaultListen          = "127.0.0.1:8077"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config carries the gateway's dependencies and HTTP settings.
type Config struct {
	// Listen is the host:port to bind. Defaults to 127.0.0.1:8077.
	Listen string

	// AuthToken protects everything except /health and /metrics.
	// Empty disables authentication.
	AuthToken string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RecallDeadline and RecallMaxItems fill recall requests that
	// leave those knobs unset.
	RecallDeadline time.Duration
	RecallMaxItems int

	Capture  *capture.Service
	Recall   *recall.Engine
	Store    store.Store
	Profiles *profile.Service
	Redactor *redact.Redactor

	// Metrics is optional; nil disables the /metrics endpoint.
	Metrics *metrics.Metrics

	// Bus is optional; nil skips cache invalidation events on edits.
	Bus *event.Bus

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Gateway is the HTTP front of the engine. It owns the listener and
// delegates all memory semantics to the services in its Config.
type Gateway struct {
	cfg       Config
	logger    *slog.Logger
	server    *http.Server
	addr      string
	startedAt time.Time
}

// New validates the dependency set and builds a gateway. It does not bind
// the listener; call Start for that.
func New(cfg Config) (*Gateway, error) {
	cfg = cfg.withDefaults()
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("gateway: %w: store", ErrMissingDependency)
	case cfg.Capture == nil:
		return nil, fmt.Errorf("gateway: %w: capture service", ErrMissingDependency)
	case cfg.Recall == nil:
		return nil, fmt.Errorf("gateway: %w: recall engine", ErrMissingDependency)
	case cfg.Profiles == nil:
		return nil, fmt.Errorf("gateway: %w: profile service", ErrMissingDependency)
	case cfg.Redactor == nil:
		return nil, fmt.Errorf("gateway: %w: redactor", ErrMissingDependency)
	}
	return &Gateway{cfg: cfg, logger: cfg.Logger}, nil
}

// Start binds the listener and serves in the background. It returns an
// error only if the bind itself fails.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         g.cfg.Listen,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Listen)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.cfg.Listen, err)
	}
	g.addr = ln.Addr().String()
	g.startedAt = time.Now()

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: server error", "error", err)
		}
	}()

	g.logger.Info("gateway: listening",
		"addr", g.addr,
		"auth", g.cfg.AuthToken != "")
	return nil
}

// Addr reports the bound address. Valid after Start; useful when Listen
// requested port 0.
func (g *Gateway) Addr() string {
	return g.addr
}

// Stop drains in-flight requests and closes the listener.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	g.logger.Info("gateway: stopped")
	return nil
}

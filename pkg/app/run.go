// Package app assembles the memory engine from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mnemod/mnemod/internal/config"
	"github.com/mnemod/mnemod/internal/mcpserver"
	"github.com/mnemod/mnemod/internal/redact"
)

// stopTimeout bounds the whole shutdown sequence.
const stopTimeout = 30 * time.Second

// RunParams configures the main service loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// Run loads configuration, starts the engine and its HTTP gateway, and
// blocks until a shutdown signal is received.
func Run(params RunParams) error {
	engine, err := StartEngine(params)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	engine.Logger.Info("shutdown signal received", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	engine.Stop(stopCtx)
	engine.Logger.Info("shutdown complete")
	return nil
}

// StartEngine loads configuration and brings the full engine up. The
// caller owns shutdown via Engine.Stop. Service managers use this
// directly; Run wraps it with signal handling.
func StartEngine(params RunParams) (*Engine, error) {
	cfg, cfgPath, err := loadConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	engine, err := BuildEngine(ctx, cfg, params.Version)
	if err != nil {
		return nil, err
	}
	engine.ConfigPath = cfgPath

	if err := engine.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		defer cancel()
		engine.Stop(stopCtx)
		return nil, err
	}

	engine.Logger.Info("mnemod started",
		"version", params.Version,
		"config", cfgPath,
		"listen", engine.Gateway.Addr())
	return engine, nil
}

// RunMCP serves the engine to a single MCP client over stdio. Logs go to
// stderr; stdout belongs to the protocol. The process exits when the
// client disconnects.
func RunMCP(params RunParams) error {
	cfg, _, err := loadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := BuildEngine(ctx, cfg, params.Version)
	if err != nil {
		return err
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		engine.Stop(stopCtx)
	}

	// No gateway in MCP mode: capture workers and the retention schedule
	// run, the stdio transport is the only surface.
	engine.Capture.Start(ctx)
	if err := engine.Sweeper.Start(); err != nil {
		stop()
		return err
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Capture: engine.Capture,
		Recall:  engine.Recall,
		Store:   engine.Store,
		Bus:     engine.Bus,
		Version: params.Version,
		Logger:  engine.Logger,
	})
	if err != nil {
		stop()
		return err
	}

	serveErr := srv.Serve()
	stop()
	return serveErr
}

// loadConfig resolves, loads, and validates the configuration file.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// buildLogger builds the engine logger: text or JSON on stderr, wrapped in
// the redacting handler so detected secrets never reach the output.
func buildLogger(cfg config.LogConfig, redactor *redact.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(redact.NewHandler(inner, redactor))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mnemod/mnemod.yaml →
// ~/.config/mnemod/mnemod.yaml → ./mnemod.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mnemod", "mnemod.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mnemod", "mnemod.yaml"))
	}

	candidates = append(candidates, "mnemod.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/mnemod if set, otherwise ~/.local/share/mnemod.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "mnemod")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mnemod")
}

// Package mcpserver exposes the memory engine to MCP clients over stdio.
// Each tool maps onto one engine operation: save, recall, forget, list.
package mcpserver

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/store"
)

// serverName is reported to clients during the MCP handshake.
const serverName = "mnemod"

// Config carries the server dependencies.
type Config struct {
	Capture *capture.Service
	Recall  *recall.Engine
	Store   store.Store

	// Bus is optional; nil skips invalidation events on forget.
	Bus *event.Bus

	// Version is reported to clients during initialization.
	Version string

	Logger *slog.Logger
}

// Server bridges MCP tool calls onto the memory engine.
type Server struct {
	cfg    Config
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New builds the server and registers the memory tools.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("mcpserver: %w: store", ErrMissingDependency)
	case cfg.Capture == nil:
		return nil, fmt.Errorf("mcpserver: %w: capture service", ErrMissingDependency)
	case cfg.Recall == nil:
		return nil, fmt.Errorf("mcpserver: %w: recall engine", ErrMissingDependency)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.mcp = server.NewMCPServer(serverName, cfg.Version,
		server.WithToolCapabilities(false))
	s.registerTools()
	return s, nil
}

// Serve blocks on the stdio transport until the client disconnects.
func (s *Server) Serve() error {
	s.logger.Info("mcpserver: serving on stdio")
	if err := server.ServeStdio(s.mcp); err != nil {
		return fmt.Errorf("mcpserver: serve: %w", err)
	}
	return nil
}

// Package mcp exposes the engine to code-assistant clients as a tool
// server speaking JSON-RPC over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoracle/memoracle/crawl"
)

// Version is the tool server version.
const Version = "1.0.0"

// Server wraps the engine behind the MCP tool protocol.
type Server struct {
	engine *crawl.Engine
	logger *slog.Logger
	server *mcp.Server
}

// NewServer creates the tool server and registers its tools.
func NewServer(engine *crawl.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "mem-oracle",
		Version: Version,
	}

	s := &Server{
		engine: engine,
		logger: logger,
		server: mcp.NewServer(impl, nil),
	}
	s.registerTools()
	return s
}

// Run serves the tool protocol over stdio until the context is canceled
// or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

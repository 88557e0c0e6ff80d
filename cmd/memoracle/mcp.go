package main

import (
	"log/slog"

	"github.com/memoracle/memoracle/mcp"
)

// McpCmd is the "mcp" subcommand.
type McpCmd struct{}

// Run serves the tool protocol over stdio. Logs go to stderr so they
// cannot corrupt the protocol stream.
func (c *McpCmd) Run(deps *Dependencies) error {
	logger := slog.New(slog.NewTextHandler(deps.Stderr, nil))
	server := mcp.NewServer(deps.Engine, logger)
	return server.Run(deps.Ctx)
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	memhttp "github.com/memoracle/memoracle/http"
)

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Host string `help:"Listen host (overrides config)"`
	Port int    `help:"Listen port (overrides config)"`
}

// Run starts the worker API and blocks until interrupted.
func (c *ServeCmd) Run(deps *Dependencies) error {
	host := deps.Config.Worker.Host
	if c.Host != "" {
		host = c.Host
	}
	port := deps.Config.Worker.Port
	if c.Port != 0 {
		port = c.Port
	}

	ctx, stop := signal.NotifyContext(deps.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resume crawls interrupted by the previous shutdown.
	if err := deps.Engine.RecoverFromCrash(ctx); err != nil {
		return fmt.Errorf("crash recovery: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(deps.Stderr, nil))
	server := memhttp.NewServer(deps.Engine, logger)
	server.ExportDir = filepath.Join(deps.Config.DataDir, "export")
	return server.ListenAndServe(ctx, fmt.Sprintf("%s:%d", host, port))
}

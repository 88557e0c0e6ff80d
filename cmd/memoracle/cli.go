package main

import (
	"context"
	"io"

	"github.com/memoracle/memoracle/config"
	"github.com/memoracle/memoracle/crawl"
)

// Dependencies holds everything a command needs to execute.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Config config.Config
	Engine *crawl.Engine
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config  string `help:"Path to config.json" type:"path"`
	DataDir string `help:"Override the data directory" type:"path"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP worker API"`
	Mcp     McpCmd     `cmd:"" name:"mcp" help:"Run the stdio tool server"`
	Index   IndexCmd   `cmd:"" help:"Index a documentation site"`
	Search  SearchCmd  `cmd:"" help:"Search indexed documentation"`
	Status  StatusCmd  `cmd:"" help:"Show per-docset index status"`
	Refresh RefreshCmd `cmd:"" help:"Re-fetch stale pages"`
	Delete  DeleteCmd  `cmd:"" help:"Delete a docset and all its data"`
	Export  ExportCmd  `cmd:"" help:"Export a docset as markdown files"`
}

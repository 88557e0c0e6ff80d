package main

import (
	"fmt"
	"path/filepath"
)

// ExportCmd is the "export" subcommand.
type ExportCmd struct {
	DocsetID string `arg:"" help:"Docset ID to export"`
	Out      string `help:"Export directory (default <dataDir>/export)" type:"path"`
}

// Run writes every indexed page of the docset as a markdown file.
func (c *ExportCmd) Run(deps *Dependencies) error {
	out := c.Out
	if out == "" {
		out = filepath.Join(deps.Config.DataDir, "export")
	}

	result, err := deps.Engine.ExportDocset(deps.Ctx, c.DocsetID, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Exported %d pages to %s (%d skipped)\n", result.Written, out, result.Skipped)
	return nil
}

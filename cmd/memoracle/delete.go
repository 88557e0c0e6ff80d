package main

import (
	"fmt"

	"github.com/memoracle/memoracle"
)

// DeleteCmd is the "delete" subcommand.
type DeleteCmd struct {
	DocsetID string `arg:"" help:"Docset ID to delete"`
	Force    bool   `help:"Confirm deletion"`
}

// Run deletes a docset and everything under it.
func (c *DeleteCmd) Run(deps *Dependencies) error {
	if !c.Force {
		return memoracle.Errorf(memoracle.EINVALID, "refusing to delete without --force")
	}
	if err := deps.Engine.DeleteDocset(deps.Ctx, c.DocsetID); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Deleted docset %s\n", c.DocsetID)
	return nil
}

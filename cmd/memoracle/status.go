package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/memoracle/memoracle"
)

// StatusCmd is the "status" subcommand.
type StatusCmd struct {
	Docset string `short:"d" help:"Limit to one docset ID"`
}

// Run prints a per-docset status table.
func (c *StatusCmd) Run(deps *Dependencies) error {
	filter := memoracle.DocsetFilter{}
	if c.Docset != "" {
		filter.ID = &c.Docset
	}

	docsets, err := deps.Engine.Docsets.FindDocsets(deps.Ctx, filter)
	if err != nil {
		return err
	}
	if len(docsets) == 0 {
		fmt.Fprintln(deps.Stdout, "No docsets.")
		return nil
	}

	w := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tPAGES\tINDEXED\tPENDING\tERRORS\tCHUNKS")
	for _, docset := range docsets {
		status, err := deps.Engine.Docsets.IndexStatus(deps.Ctx, docset.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			docset.Name, docset.Status, status.TotalPages, status.IndexedPages,
			status.PendingPages, status.ErrorPages, status.TotalChunks)
	}
	return w.Flush()
}

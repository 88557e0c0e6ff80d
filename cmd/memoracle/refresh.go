package main

import (
	"fmt"
	"time"

	"github.com/memoracle/memoracle/crawl"
)

// RefreshCmd is the "refresh" subcommand.
type RefreshCmd struct {
	Docset string        `short:"d" help:"Refresh only this docset ID"`
	Force  bool          `help:"Refresh regardless of age"`
	Full   bool          `help:"Discard content hashes and re-embed everything"`
	MaxAge time.Duration `default:"24h" help:"Refresh pages last indexed before now minus this"`
}

// Run queues stale pages for re-fetching.
func (c *RefreshCmd) Run(deps *Dependencies) error {
	opts := crawl.RefreshOptions{
		Force:       c.Force,
		MaxAge:      c.MaxAge,
		FullReindex: c.Full,
	}

	var plans []*crawl.RefreshPlan
	if c.Docset != "" {
		plan, err := deps.Engine.RefreshDocset(deps.Ctx, c.Docset, opts)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
	} else {
		var err error
		plans, err = deps.Engine.RefreshAll(deps.Ctx, opts)
		if err != nil {
			return err
		}
	}

	for _, plan := range plans {
		fmt.Fprintf(deps.Stdout, "%s: queued %d pages (%d hashes preserved, %d cleared)\n",
			plan.DocsetID, plan.QueuedPages, plan.PreservedHashes, plan.ClearedHashes)
	}
	return nil
}

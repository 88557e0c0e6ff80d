package main

import (
	"fmt"

	"github.com/memoracle/memoracle/crawl"
)

// IndexCmd is the "index" subcommand.
type IndexCmd struct {
	BaseURL string   `arg:"" help:"Scheme and host of the documentation site"`
	Seed    string   `default:"/" help:"Path of the first page to crawl"`
	Name    string   `help:"Display name for the docset"`
	Allow   []string `short:"a" help:"Allowed path prefix (repeatable)"`
	Wait    bool     `short:"w" help:"Wait for the whole crawl to finish"`
}

// Run registers the docset and crawls it.
func (c *IndexCmd) Run(deps *Dependencies) error {
	docset, err := deps.Engine.IndexDocset(deps.Ctx, crawl.IndexInput{
		BaseURL:      c.BaseURL,
		SeedSlug:     c.Seed,
		Name:         c.Name,
		AllowedPaths: c.Allow,
	}, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Indexing %s (docset %s)\n", docset.BaseURL, docset.ID)

	if c.Wait {
		if err := deps.Engine.WaitForCrawl(deps.Ctx, docset.ID); err != nil {
			return err
		}
		status, err := deps.Engine.Docsets.IndexStatus(deps.Ctx, docset.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(deps.Stdout, "Done: %d/%d pages indexed, %d chunks\n",
			status.IndexedPages, status.TotalPages, status.TotalChunks)
	}
	return nil
}

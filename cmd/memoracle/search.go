package main

import (
	"encoding/json"
	"fmt"

	"github.com/memoracle/memoracle"
)

// SearchCmd is the "search" subcommand.
type SearchCmd struct {
	Query  string   `arg:"" help:"Natural-language query"`
	Docset []string `short:"d" help:"Restrict to docset ID (repeatable)"`
	TopK   int      `default:"5" help:"Maximum number of results"`
	JSON   bool     `help:"Print results as JSON"`
}

// Run executes a search and prints the results.
func (c *SearchCmd) Run(deps *Dependencies) error {
	results, err := deps.Engine.Search(deps.Ctx, c.Query, memoracle.SearchOptions{
		DocsetIDs:      c.Docset,
		TopK:           c.TopK,
		FormatSnippets: !c.JSON,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(deps.Stdout, "No results.")
		return nil
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(deps.Stdout, "\n---")
		}
		if r.Snippet != nil {
			fmt.Fprintln(deps.Stdout, r.Snippet.Formatted)
		} else {
			fmt.Fprintf(deps.Stdout, "%s (score %.3f)\n%s\n", r.URL, r.Score, r.Content)
		}
	}
	return nil
}

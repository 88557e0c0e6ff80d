package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/crawl"
)

// SearchDocsInput is the input schema for the search_docs tool.
type SearchDocsInput struct {
	Query     string   `json:"query" jsonschema:"the natural-language query"`
	DocsetIDs []string `json:"docsetIds,omitempty" jsonschema:"restrict the search to these docsets"`
	TopK      int      `json:"topK,omitempty" jsonschema:"maximum number of results (default 10)"`
}

// SearchDocsOutput is the output schema for the search_docs tool.
type SearchDocsOutput struct {
	Results []memoracle.SearchResult `json:"results"`
	Count   int                      `json:"count"`
}

// GetSnippetsInput is the input schema for the get_snippets tool.
type GetSnippetsInput struct {
	Query         string   `json:"query" jsonschema:"the natural-language query"`
	DocsetIDs     []string `json:"docsetIds,omitempty" jsonschema:"restrict the search to these docsets"`
	MaxTotalChars int      `json:"maxTotalChars,omitempty" jsonschema:"character budget for the combined snippets"`
}

// GetSnippetsOutput is the output schema for the get_snippets tool.
type GetSnippetsOutput struct {
	Snippets   []string `json:"snippets"`
	TotalChars int      `json:"totalChars"`
}

// IndexDocsInput is the input schema for the index_docs tool.
type IndexDocsInput struct {
	BaseURL     string `json:"baseUrl" jsonschema:"scheme and host of the documentation site"`
	SeedSlug    string `json:"seedSlug,omitempty" jsonschema:"path of the first page to crawl"`
	Name        string `json:"name,omitempty" jsonschema:"display name for the docset"`
	WaitForSeed bool   `json:"waitForSeed,omitempty" jsonschema:"index the seed page before returning"`
}

// IndexDocsOutput is the output schema for the index_docs tool.
type IndexDocsOutput struct {
	DocsetID string `json:"docsetId"`
	Status   string `json:"status"`
}

// IndexStatusInput is the input schema for the index_status tool.
type IndexStatusInput struct {
	DocsetID string `json:"docsetId,omitempty" jsonschema:"limit the report to one docset"`
}

// IndexStatusOutput is the output schema for the index_status tool.
type IndexStatusOutput struct {
	Docsets []DocsetStatus `json:"docsets"`
}

// DocsetStatus is one docset's status report.
type DocsetStatus struct {
	DocsetID    string                 `json:"docsetId"`
	Name        string                 `json:"name"`
	BaseURL     string                 `json:"baseUrl"`
	Status      string                 `json:"status"`
	IndexStatus *memoracle.IndexStatus `json:"indexStatus"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search indexed documentation and return the most relevant chunks",
	}, s.handleSearchDocs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_snippets",
		Description: "Search indexed documentation and return formatted snippets within a character budget",
	}, s.handleGetSnippets)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_docs",
		Description: "Register a documentation site and start crawling it",
	}, s.handleIndexDocs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report per-docset page and chunk counts",
	}, s.handleIndexStatus)
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, SearchDocsOutput, error) {
	results, err := s.engine.Search(ctx, input.Query, memoracle.SearchOptions{
		DocsetIDs: input.DocsetIDs,
		TopK:      input.TopK,
	})
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}

	var text strings.Builder
	for i, r := range results {
		if i > 0 {
			text.WriteString("\n\n")
		}
		fmt.Fprintf(&text, "[%d] %s (score %.3f)\n%s", i+1, r.URL, r.Score, r.Content)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text.String()}},
	}, SearchDocsOutput{Results: results, Count: len(results)}, nil
}

func (s *Server) handleGetSnippets(ctx context.Context, _ *mcp.CallToolRequest, input GetSnippetsInput) (*mcp.CallToolResult, GetSnippetsOutput, error) {
	results, err := s.engine.Search(ctx, input.Query, memoracle.SearchOptions{
		DocsetIDs:      input.DocsetIDs,
		MaxTotalChars:  input.MaxTotalChars,
		FormatSnippets: true,
	})
	if err != nil {
		return nil, GetSnippetsOutput{}, err
	}

	output := GetSnippetsOutput{Snippets: make([]string, 0, len(results))}
	for _, r := range results {
		if r.Snippet == nil {
			continue
		}
		output.Snippets = append(output.Snippets, r.Snippet.Formatted)
		output.TotalChars += r.Snippet.CharCount
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(output.Snippets, "\n\n---\n\n")}},
	}, output, nil
}

func (s *Server) handleIndexDocs(ctx context.Context, _ *mcp.CallToolRequest, input IndexDocsInput) (*mcp.CallToolResult, IndexDocsOutput, error) {
	docset, err := s.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  input.BaseURL,
		SeedSlug: input.SeedSlug,
		Name:     input.Name,
	}, input.WaitForSeed)
	if err != nil {
		return nil, IndexDocsOutput{}, err
	}

	text := fmt.Sprintf("Indexing %s (docset %s, status %s)", docset.BaseURL, docset.ID, docset.Status)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, IndexDocsOutput{DocsetID: docset.ID, Status: string(docset.Status)}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	filter := memoracle.DocsetFilter{}
	if input.DocsetID != "" {
		filter.ID = &input.DocsetID
	}
	docsets, err := s.engine.Docsets.FindDocsets(ctx, filter)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}

	output := IndexStatusOutput{Docsets: make([]DocsetStatus, 0, len(docsets))}
	var text strings.Builder
	for _, docset := range docsets {
		status, err := s.engine.Docsets.IndexStatus(ctx, docset.ID)
		if err != nil {
			return nil, IndexStatusOutput{}, err
		}
		output.Docsets = append(output.Docsets, DocsetStatus{
			DocsetID:    docset.ID,
			Name:        docset.Name,
			BaseURL:     docset.BaseURL,
			Status:      string(docset.Status),
			IndexStatus: status,
		})
		fmt.Fprintf(&text, "%s (%s): %d/%d pages indexed, %d chunks\n",
			docset.Name, docset.Status, status.IndexedPages, status.TotalPages, status.TotalChunks)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text.String()}},
	}, output, nil
}

// Package trafilatura provides a main-content reducer backed by
// go-trafilatura. It tends to preserve more of technical pages than
// readability and is selectable via the extractor.engine config key.
package trafilatura

import (
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"github.com/memoracle/memoracle"
	"golang.org/x/net/html"
)

// Ensure Reducer implements memoracle.ContentReducer at compile time.
var _ memoracle.ContentReducer = (*Reducer)(nil)

// Reducer strips boilerplate from HTML pages using go-trafilatura.
type Reducer struct{}

// NewReducer creates a new Reducer.
func NewReducer() *Reducer {
	return &Reducer{}
}

// Reduce processes raw HTML and returns the main content.
func (r *Reducer) Reduce(rawHTML, pageURL string) (*memoracle.ReduceResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, memoracle.Errorf(memoracle.EINVALID, "empty HTML input")
	}

	opts := trafilatura.Options{
		EnableFallback: true,
	}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return nil, err
	}

	contentHTML := ""
	if result.ContentNode != nil {
		var b strings.Builder
		if err := html.Render(&b, result.ContentNode); err == nil {
			contentHTML = b.String()
		}
	}

	return &memoracle.ReduceResult{
		Title:       result.Metadata.Title,
		ContentHTML: contentHTML,
	}, nil
}

// Package readability provides a main-content reducer backed by
// go-readability.
package readability

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/memoracle/memoracle"
)

// Ensure Reducer implements memoracle.ContentReducer at compile time.
var _ memoracle.ContentReducer = (*Reducer)(nil)

// Reducer strips boilerplate from HTML pages using go-readability.
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

	u, err := url.Parse(pageURL)
	if err != nil {
		u = nil
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return nil, err
	}

	return &memoracle.ReduceResult{
		Title:       article.Title,
		ContentHTML: article.Content,
	}, nil
}

package crawl

import (
	"net/url"
	"strings"

	"github.com/memoracle/memoracle"
)

// formatSnippet renders a search result as a self-describing snippet:
// a title line, the source URL, an optional section breadcrumb, and the
// content truncated to fit charBudget.
func (e *Engine) formatSnippet(r *memoracle.SearchResult, charBudget int) *memoracle.Snippet {
	title := r.Title
	if title == "" {
		title = "Untitled"
	}
	breadcrumb := Breadcrumb(r.Heading, r.URL)

	var header strings.Builder
	header.WriteString("## ")
	header.WriteString(title)
	header.WriteString("\nSource: ")
	header.WriteString(r.URL)
	if breadcrumb != "" {
		header.WriteString("\nSection: ")
		header.WriteString(breadcrumb)
	}
	header.WriteString("\n\n")

	contentBudget := charBudget - header.Len()
	if contentBudget < 0 {
		contentBudget = 0
	}
	content := TruncateContent(r.Content, contentBudget)

	formatted := header.String() + content
	return &memoracle.Snippet{
		Formatted:  formatted,
		Title:      title,
		URL:        r.URL,
		Breadcrumb: breadcrumb,
		Content:    content,
		CharCount:  len(formatted),
	}
}

// breadcrumbSkip holds path segments too generic to label a section.
var breadcrumbSkip = map[string]bool{"docs": true, "api": true}

// Breadcrumb synthesizes a human-readable section path from a chunk's
// heading and its URL path. Up to the last two path segments (excluding
// /docs and /api) are title-cased and joined with " > "; when the final
// segment already appears in the heading, the heading stands alone.
func Breadcrumb(heading, rawURL string) string {
	var segments []string
	if u, err := url.Parse(rawURL); err == nil {
		for _, seg := range strings.Split(u.Path, "/") {
			if seg == "" || breadcrumbSkip[strings.ToLower(seg)] {
				continue
			}
			segments = append(segments, seg)
		}
	}
	if len(segments) > 2 {
		segments = segments[len(segments)-2:]
	}

	if heading != "" && len(segments) > 0 {
		last := segments[len(segments)-1]
		if strings.Contains(strings.ToLower(heading), strings.ToLower(titleCase(last))) ||
			strings.Contains(strings.ToLower(heading), strings.ToLower(last)) {
			return heading
		}
	}

	parts := make([]string, 0, len(segments)+1)
	for _, seg := range segments {
		parts = append(parts, titleCase(seg))
	}
	if heading != "" {
		parts = append(parts, heading)
	}
	return strings.Join(parts, " > ")
}

// titleCase capitalizes hyphen- and underscore-separated words.
func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// TruncateContent cuts content to at most budget characters, preferring
// a paragraph boundary in the last half of the budget, then a sentence
// boundary in the last half, then a word boundary in the last 30%, then
// a hard cut. A truncated result ends with an ellipsis.
func TruncateContent(content string, budget int) string {
	if len(content) <= budget {
		return content
	}
	if budget <= 1 {
		return "…"
	}

	window := content[:budget-1]

	if idx := strings.LastIndex(window, "\n\n"); idx >= budget/2 {
		return strings.TrimRight(window[:idx], "\n ") + "…"
	}

	sentenceIdx := -1
	for _, marker := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, marker); idx > sentenceIdx {
			sentenceIdx = idx
		}
	}
	if sentenceIdx >= budget/2 {
		return window[:sentenceIdx+1] + "…"
	}

	if idx := strings.LastIndex(window, " "); idx >= budget*7/10 {
		return window[:idx] + "…"
	}

	return window + "…"
}

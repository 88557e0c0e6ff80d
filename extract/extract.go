// Package extract turns fetched page bodies into titles, plain text,
// headings and outgoing links. HTML is parsed to a DOM and reduced to its
// main content; Markdown is processed textually.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/memoracle/memoracle"
)

// Compile-time interface verification.
var _ memoracle.Extractor = (*Extractor)(nil)

// Extractor dispatches extraction by content type.
type Extractor struct {
	reducer memoracle.ContentReducer
}

// New creates an Extractor using the given main-content reducer for the
// HTML path.
func New(reducer memoracle.ContentReducer) *Extractor {
	return &Extractor{reducer: reducer}
}

// Extract processes a fetched body. Markdown content types take the
// Markdown path; everything else is treated as HTML.
func (e *Extractor) Extract(pageURL, content, contentType string) (*memoracle.ExtractResult, error) {
	if content == "" {
		return &memoracle.ExtractResult{URL: pageURL}, nil
	}
	if IsMarkdown(contentType) {
		return e.extractMarkdown(pageURL, content)
	}
	return e.extractHTML(pageURL, content)
}

// IsMarkdown reports whether the content type names Markdown.
func IsMarkdown(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "markdown") || strings.Contains(ct, "text/x-md")
}

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	frontmatterRe = regexp.MustCompile(`(?s)\A---\n.*?\n---\n?`)
	mdHeadingRe   = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	mdLinkRe      = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)
)

// extractMarkdown strips HTML comments and YAML frontmatter, then detects
// headings and links textually.
func (e *Extractor) extractMarkdown(pageURL, content string) (*memoracle.ExtractResult, error) {
	cleaned := htmlCommentRe.ReplaceAllString(content, "")
	cleaned = frontmatterRe.ReplaceAllString(cleaned, "")
	cleaned = normalizeText(cleaned)

	result := &memoracle.ExtractResult{
		URL:     pageURL,
		Content: cleaned,
	}

	for _, m := range mdHeadingRe.FindAllStringSubmatchIndex(cleaned, -1) {
		level := m[3] - m[2]
		text := strings.TrimSpace(cleaned[m[4]:m[5]])
		result.Headings = append(result.Headings, memoracle.Heading{
			Level:  level,
			Text:   text,
			Offset: m[0],
		})
		if result.Title == "" && level == 1 {
			result.Title = text
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return result, nil
	}
	seen := make(map[string]bool)
	for _, m := range mdLinkRe.FindAllStringSubmatch(cleaned, -1) {
		link, ok := resolveSameHost(base, m[1])
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		result.Links = append(result.Links, link)
	}

	return result, nil
}

// resolveSameHost resolves href against base, strips the fragment, and
// rejects cross-host and non-HTTP links.
func resolveSameHost(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != base.Host {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

var (
	tripleNewlineRe = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
)

// normalizeText collapses runs of blank lines, converts tabs to spaces,
// and trims line edges and the overall string.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = trailingSpaceRe.ReplaceAllString(s, "")
	s = tripleNewlineRe.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

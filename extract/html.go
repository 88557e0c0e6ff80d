package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/memoracle/memoracle"
	"golang.org/x/net/html"
)

// extractHTML parses the page to a DOM, pulls out title and same-host
// links, runs the main-content reducer, and renders the result to plain
// text with heading offsets.
func (e *Extractor) extractHTML(pageURL, content string) (*memoracle.ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, memoracle.Errorf(memoracle.EINVALID, "parse HTML: %v", err)
	}

	result := &memoracle.ExtractResult{
		URL:       pageURL,
		Framework: DetectFramework(doc),
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	if base, err := url.Parse(pageURL); err == nil {
		seen := make(map[string]bool)
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			link, ok := resolveSameHost(base, href)
			if !ok || seen[link] {
				return
			}
			seen[link] = true
			result.Links = append(result.Links, link)
		})
	}

	contentHTML := content
	if e.reducer != nil {
		if reduced, err := e.reducer.Reduce(content, pageURL); err == nil && strings.TrimSpace(reduced.ContentHTML) != "" {
			contentHTML = reduced.ContentHTML
			if result.Title == "" {
				result.Title = reduced.Title
			}
		}
	}

	text, headings := renderText(contentHTML)
	if strings.TrimSpace(text) == "" {
		// Reducer produced nothing useful; fall back to the whole body.
		text, headings = renderText(content)
	}
	result.Content = text
	result.Headings = headings

	return result, nil
}

// blockTags are elements whose boundaries become newlines in the plain
// text rendition.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "svg": true,
}

var headingLevels = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

// renderText converts HTML to whitespace-normalized plain text, emitting
// newlines at block-element boundaries, and records each h1-h6 with its
// character offset into the returned text.
func renderText(contentHTML string) (string, []memoracle.Heading) {
	root, err := html.Parse(strings.NewReader(contentHTML))
	if err != nil {
		return "", nil
	}

	var b strings.Builder
	var headings []memoracle.Heading

	// newline ensures at most one blank line between blocks.
	newline := func() {
		s := b.String()
		if s == "" || strings.HasSuffix(s, "\n\n") {
			return
		}
		if strings.HasSuffix(s, "\n") {
			b.WriteString("\n")
			return
		}
		b.WriteString("\n\n")
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := collapseSpaces(n.Data)
			if strings.TrimSpace(text) == "" {
				return
			}
			s := b.String()
			if s != "" && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, " ") {
				b.WriteString(" ")
			}
			b.WriteString(strings.TrimSpace(text))
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			isBlock := blockTags[n.Data]
			if isBlock {
				newline()
			}
			if level, ok := headingLevels[n.Data]; ok {
				text := strings.TrimSpace(nodeText(n))
				if text != "" {
					headings = append(headings, memoracle.Heading{
						Level:  level,
						Text:   text,
						Offset: len(b.String()),
					})
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if isBlock {
				newline()
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return normalizeText(b.String()), headings
}

// nodeText concatenates all descendant text of a node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

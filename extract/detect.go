package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/memoracle/memoracle"
)

// DetectFramework identifies the documentation generator from meta tags
// and DOM fingerprints. Returns FrameworkUnknown when nothing matches.
func DetectFramework(doc *goquery.Document) memoracle.Framework {
	generator, _ := doc.Find(`meta[name="generator"]`).First().Attr("content")
	gen := strings.ToLower(generator)
	switch {
	case strings.Contains(gen, "docusaurus"):
		return memoracle.FrameworkDocusaurus
	case strings.Contains(gen, "mkdocs"):
		return memoracle.FrameworkMkDocs
	case strings.Contains(gen, "sphinx"):
		return memoracle.FrameworkSphinx
	case strings.Contains(gen, "vuepress"):
		return memoracle.FrameworkVuePress
	case strings.Contains(gen, "gitbook"):
		return memoracle.FrameworkGitBook
	}

	switch {
	case doc.Find("#__docusaurus").Length() > 0:
		return memoracle.FrameworkDocusaurus
	case doc.Find(".md-container, .md-main").Length() > 0:
		return memoracle.FrameworkMkDocs
	case doc.Find(".sphinxsidebar, div.rst-content").Length() > 0:
		return memoracle.FrameworkSphinx
	case doc.Find(".theme-default-content, #vuepress").Length() > 0:
		return memoracle.FrameworkVuePress
	case doc.Find(".gitbook-root, [class*='gitbook']").Length() > 0:
		return memoracle.FrameworkGitBook
	case doc.Find("#__next").Length() > 0 && doc.Find("[class*='nextra']").Length() > 0:
		return memoracle.FrameworkNextra
	}

	return memoracle.FrameworkUnknown
}

package crawl

import (
	"context"
	"time"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/extract"
	"github.com/memoracle/memoracle/fs"
)

// ExportResult summarizes a docset export.
type ExportResult struct {
	DocsetID string `json:"docsetId"`
	Written  int    `json:"written"`
	Skipped  int    `json:"skipped"`
}

// ExportDocset writes every indexed page of a docset as a Markdown file
// under exportDir, reducing the cached body to its main content and
// converting that to Markdown. Pages whose cached body is gone are
// skipped. The export replaces any previous one atomically.
func (e *Engine) ExportDocset(ctx context.Context, docsetID, exportDir string) (*ExportResult, error) {
	if e.Cache == nil || e.Converter == nil {
		return nil, memoracle.Errorf(memoracle.EINVALID, "export requires a content cache and a converter")
	}

	docset, err := e.Docsets.FindDocsetByID(ctx, docsetID)
	if err != nil {
		return nil, err
	}

	indexed := memoracle.PageIndexed
	pages, err := e.Pages.FindPages(ctx, memoracle.PageFilter{DocsetID: &docset.ID, Status: &indexed})
	if err != nil {
		return nil, err
	}

	writer := fs.NewExportWriter(exportDir, docset.Name)
	result := &ExportResult{DocsetID: docset.ID}

	for _, page := range pages {
		cached, err := e.Cache.Get(ctx, page.URL)
		if err != nil {
			result.Skipped++
			continue
		}

		markdown, err := e.pageMarkdown(cached)
		if err != nil {
			result.Skipped++
			continue
		}

		fetchedAt := cached.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		if err := writer.Save(&fs.ExportPage{
			URL:       page.URL,
			Title:     page.Title,
			Markdown:  markdown,
			FetchedAt: fetchedAt,
		}); err != nil {
			_ = writer.Abort()
			return nil, err
		}
		result.Written++
	}

	if result.Written == 0 {
		_ = writer.Abort()
		return result, nil
	}
	if err := writer.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// pageMarkdown converts a cached body to Markdown: Markdown bodies pass
// through; HTML is reduced to its main content first.
func (e *Engine) pageMarkdown(cached *memoracle.CachedPage) (string, error) {
	if extract.IsMarkdown(cached.ContentType) {
		return cached.Content, nil
	}

	html := cached.Content
	if e.Reducer != nil {
		if reduced, err := e.Reducer.Reduce(cached.Content, cached.URL); err == nil && reduced.ContentHTML != "" {
			html = reduced.ContentHTML
		}
	}
	return e.Converter.Convert(html)
}

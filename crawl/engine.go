package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/chunk"
)

// Engine defaults.
const (
	DefaultConcurrency    = 4
	DefaultRequestDelay   = 500 * time.Millisecond
	DefaultMaxRetries     = 3
	DefaultStuckThreshold = 5 * time.Minute
)

// Render modes for page fetching.
const (
	RenderHTTP    = "http"
	RenderBrowser = "browser"
	RenderAuto    = "auto"
)

// Options tunes the engine's crawl and retrieval behaviour.
type Options struct {
	Concurrency    int
	RequestDelay   time.Duration
	MaxPages       int
	MaxRetries     int
	StuckThreshold time.Duration
	Render         string // http, browser, auto
	Sitemap        bool   // seed the frontier from sitemaps
	Hybrid         HybridOptions
	Retrieval      RetrievalOptions
}

// HybridOptions tunes score fusion.
type HybridOptions struct {
	Enabled         bool
	Alpha           float32
	VectorTopK      int
	KeywordTopK     int
	MinKeywordScore float32
}

// RetrievalOptions tunes result shaping.
type RetrievalOptions struct {
	MaxChunksPerPage int
	MaxTotalChars    int
	FormatSnippets   bool
	SnippetMaxChars  int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:    DefaultConcurrency,
		RequestDelay:   DefaultRequestDelay,
		MaxPages:       DefaultMaxPages,
		MaxRetries:     DefaultMaxRetries,
		StuckThreshold: DefaultStuckThreshold,
		Render:         RenderHTTP,
		Sitemap:        true,
		Hybrid: HybridOptions{
			Enabled:         true,
			Alpha:           0.7,
			VectorTopK:      50,
			KeywordTopK:     50,
			MinKeywordScore: 0.01,
		},
		Retrieval: RetrievalOptions{
			MaxChunksPerPage: 3,
			MaxTotalChars:    20000,
			FormatSnippets:   true,
			SnippetMaxChars:  2000,
		},
	}
}

// Engine drives the per-page pipeline (fetch, extract, chunk, embed,
// persist), runs the per-docset crawl worker pools, answers search
// queries, and performs crash recovery. Collaborators are injected; the
// engine holds no global state.
type Engine struct {
	Docsets   memoracle.DocsetService
	Pages     memoracle.PageService
	Chunks    memoracle.ChunkService
	Vectors   memoracle.VectorStore
	Fetcher   memoracle.Fetcher
	Renderer  memoracle.Renderer // optional, for browser rendering
	Extractor memoracle.Extractor
	Embedder  memoracle.EmbeddingProvider
	Sitemaps  memoracle.SitemapService // optional
	Cache     memoracle.ContentCache   // optional, for exports
	Reducer   memoracle.ContentReducer // optional, for exports
	Converter memoracle.Converter      // optional, for exports
	Splitter  *chunk.Splitter
	Limiter   *HostLimiter
	Logger    *slog.Logger
	Options   Options

	mu        sync.Mutex
	runners   map[string]*runner
	frontiers map[string]*Frontier
}

// IndexInput describes a docset to index.
type IndexInput struct {
	BaseURL      string   `json:"baseUrl"`
	SeedSlug     string   `json:"seedSlug"`
	Name         string   `json:"name,omitempty"`
	AllowedPaths []string `json:"allowedPaths,omitempty"`
}

// IndexDocset finds or creates the docset for the input, ensures its
// seed page and vector namespace exist, optionally indexes the seed
// synchronously, and starts the background crawl.
func (e *Engine) IndexDocset(ctx context.Context, input IndexInput, waitForSeed bool) (*memoracle.Docset, error) {
	docset, err := e.Docsets.FindDocsetByURL(ctx, input.BaseURL)
	if memoracle.ErrorCode(err) == memoracle.ENOTFOUND {
		docset = &memoracle.Docset{
			Name:         input.Name,
			BaseURL:      input.BaseURL,
			SeedPath:     input.SeedSlug,
			AllowedPaths: input.AllowedPaths,
		}
		if err := e.Docsets.CreateDocset(ctx, docset); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := e.Vectors.Init(ctx, docset.ID); err != nil {
		return nil, err
	}

	indexing := memoracle.DocsetIndexing
	docset, err = e.Docsets.UpdateDocset(ctx, docset.ID, memoracle.DocsetUpdate{Status: &indexing})
	if err != nil {
		return nil, err
	}

	seed, err := e.ensureSeedPage(ctx, docset)
	if err != nil {
		return nil, err
	}

	if e.Options.Sitemap && e.Sitemaps != nil {
		e.seedFromSitemap(ctx, docset)
	}

	if waitForSeed && seed.Status != memoracle.PageIndexed {
		if err := e.IndexPage(ctx, docset, seed); err != nil {
			e.logger().Warn("seed indexing failed", "docset", docset.ID, "url", seed.URL, "error", err)
		}
	}

	e.StartBackgroundCrawl(docset.ID)

	return e.Docsets.FindDocsetByID(ctx, docset.ID)
}

// ensureSeedPage finds or creates the page record for the docset seed.
func (e *Engine) ensureSeedPage(ctx context.Context, docset *memoracle.Docset) (*memoracle.Page, error) {
	seedURL := docset.SeedURL()
	page, err := e.Pages.FindPageByURL(ctx, docset.ID, seedURL)
	if err == nil {
		return page, nil
	}
	if memoracle.ErrorCode(err) != memoracle.ENOTFOUND {
		return nil, err
	}

	page = &memoracle.Page{
		DocsetID: docset.ID,
		URL:      seedURL,
		Path:     docset.SeedPath,
		Status:   memoracle.PagePending,
	}
	if err := e.Pages.CreatePage(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// seedFromSitemap feeds sitemap-advertised URLs through the frontier,
// which applies host, prefix, dedup and cap rules. Sitemap failures are
// logged and ignored; link-following proceeds regardless.
func (e *Engine) seedFromSitemap(ctx context.Context, docset *memoracle.Docset) {
	urls, err := e.Sitemaps.DiscoverURLs(ctx, docset.BaseURL)
	if err != nil {
		e.logger().Debug("sitemap discovery failed", "docset", docset.ID, "error", err)
		return
	}
	if len(urls) == 0 {
		return
	}
	n, err := e.frontier(docset.ID).DiscoverLinks(ctx, docset, docset.BaseURL, urls, -1)
	if err != nil {
		e.logger().Warn("sitemap seeding failed", "docset", docset.ID, "error", err)
		return
	}
	e.logger().Info("sitemap seeded", "docset", docset.ID, "advertised", len(urls), "enqueued", n)
}

// IndexPage runs the page pipeline: fetch with conditional headers,
// short-circuit on 304 or unchanged hash, extract, discover links,
// rebuild chunks, embed, upsert vectors, and persist every state
// transition.
func (e *Engine) IndexPage(ctx context.Context, docset *memoracle.Docset, page *memoracle.Page) error {
	now := time.Now().UTC()
	fetching := memoracle.PageFetching

	// The background claim already moved the page to fetching; the
	// synchronous seed path arrives here in pending.
	if page.Status != memoracle.PageFetching {
		var err error
		page, err = e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
			Status:        &fetching,
			LastAttemptAt: &now,
		})
		if err != nil {
			return err
		}
	}

	result, err := e.fetchPage(ctx, docset, page)
	if err != nil {
		return e.failPage(ctx, page, err)
	}

	// Revalidated and previously indexed: nothing to re-embed.
	if result.StatusCode == 304 && result.FromCache && page.ContentHash != "" {
		indexed := memoracle.PageIndexed
		_, err := e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
			Status:    &indexed,
			FetchedAt: &now,
		})
		return err
	}

	hash := hashContent(result.Content)
	if page.ContentHash != "" && hash == page.ContentHash {
		indexed := memoracle.PageIndexed
		_, err := e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
			Status:    &indexed,
			FetchedAt: &now,
		})
		return err
	}

	fetched := memoracle.PageFetched
	page, err = e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
		Status:       &fetched,
		ContentHash:  &hash,
		ETag:         &result.ETag,
		LastModified: &result.LastModified,
		FetchedAt:    &now,
	})
	if err != nil {
		return err
	}

	extracted, err := e.Extractor.Extract(page.URL, result.Content, result.ContentType)
	if err != nil {
		return e.failPage(ctx, page, err)
	}

	indexing := memoracle.PageIndexing
	page, err = e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
		Status: &indexing,
		Title:  &extracted.Title,
	})
	if err != nil {
		return err
	}

	if docset.Framework == memoracle.FrameworkUnknown && extracted.Framework != memoracle.FrameworkUnknown {
		if _, err := e.Docsets.UpdateDocset(ctx, docset.ID, memoracle.DocsetUpdate{Framework: &extracted.Framework}); err == nil {
			docset.Framework = extracted.Framework
		}
	}

	if len(extracted.Links) > 0 {
		if _, err := e.frontier(docset.ID).DiscoverLinks(ctx, docset, page.URL, extracted.Links, page.Depth); err != nil {
			e.logger().Warn("link discovery failed", "page", page.URL, "error", err)
		}
	}

	if err := e.rebuildChunks(ctx, docset, page, extracted); err != nil {
		return e.failPage(ctx, page, err)
	}

	indexed := memoracle.PageIndexed
	indexedAt := time.Now().UTC()
	_, err = e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
		Status:    &indexed,
		IndexedAt: &indexedAt,
	})
	return err
}

// rebuildChunks deletes the page's prior chunks and vectors, splits the
// extracted content, persists the new chunks, embeds them as one batch,
// and upserts the vectors with denormalized metadata.
func (e *Engine) rebuildChunks(ctx context.Context, docset *memoracle.Docset, page *memoracle.Page, extracted *memoracle.ExtractResult) error {
	prior, err := e.Chunks.FindChunksByPage(ctx, page.ID)
	if err != nil {
		return err
	}
	if len(prior) > 0 {
		ids := make([]string, len(prior))
		for i, c := range prior {
			ids[i] = c.ID
		}
		if err := e.Vectors.Delete(ctx, docset.ID, ids); err != nil {
			return err
		}
		if err := e.Chunks.DeleteChunksByPage(ctx, page.ID); err != nil {
			return err
		}
	}

	pieces := e.splitter().Split(extracted.Content, extracted.Headings)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]*memoracle.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &memoracle.Chunk{
			PageID:      page.ID,
			DocsetID:    docset.ID,
			Content:     piece.Content,
			Heading:     piece.Heading,
			StartOffset: piece.StartOffset,
			EndOffset:   piece.EndOffset,
			Index:       piece.Index,
		}
		texts[i] = piece.Content
	}

	if err := e.Chunks.CreateChunks(ctx, chunks); err != nil {
		return err
	}

	vectors, err := e.Embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	records := make([]memoracle.VectorRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		records[i] = memoracle.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Metadata: memoracle.VectorMetadata{
				DocsetID: docset.ID,
				PageID:   page.ID,
				ChunkID:  c.ID,
				URL:      page.URL,
				Title:    extracted.Title,
				Heading:  c.Heading,
				Content:  c.Content,
			},
		}
		ids[i] = c.ID
	}

	if err := e.Vectors.Upsert(ctx, docset.ID, records); err != nil {
		return err
	}
	return e.Chunks.MarkChunksEmbedded(ctx, ids)
}

// fetchPage retrieves the page body, through the browser renderer when
// configured, otherwise over plain HTTP with conditional headers from
// the page record.
func (e *Engine) fetchPage(ctx context.Context, docset *memoracle.Docset, page *memoracle.Page) (*memoracle.FetchResult, error) {
	if e.useBrowser(docset) {
		html, err := e.Renderer.Render(ctx, page.URL)
		if err != nil {
			return nil, err
		}
		return &memoracle.FetchResult{
			URL:         page.URL,
			Content:     html,
			ContentType: "text/html",
			StatusCode:  200,
		}, nil
	}

	return e.Fetcher.Fetch(ctx, page.URL, memoracle.FetchOptions{
		ETag:         page.ETag,
		LastModified: page.LastModified,
	})
}

// useBrowser decides whether to render through the browser: always in
// browser mode, and in auto mode when the detected framework requires
// JavaScript.
func (e *Engine) useBrowser(docset *memoracle.Docset) bool {
	if e.Renderer == nil {
		return false
	}
	switch e.Options.Render {
	case RenderBrowser:
		return true
	case RenderAuto:
		requires, known := docset.Framework.RequiresJS()
		return known && requires
	default:
		return false
	}
}

// failPage records a pipeline failure: expected crawl statuses (401,
// 403, 404) mark the page skipped; everything else marks it error and
// increments the retry count.
func (e *Engine) failPage(ctx context.Context, page *memoracle.Page, cause error) error {
	message := cause.Error()

	switch memoracle.StatusCode(cause) {
	case 401, 403, 404:
		skipped := memoracle.PageSkipped
		_, err := e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
			Status:       &skipped,
			ErrorMessage: &message,
		})
		if err != nil {
			return err
		}
		e.logger().Debug("page skipped", "url", page.URL, "cause", message)
		return nil
	}

	failed := memoracle.PageError
	retries := page.RetryCount + 1
	_, err := e.Pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{
		Status:       &failed,
		ErrorMessage: &message,
		RetryCount:   &retries,
	})
	if err != nil {
		return err
	}
	e.logger().Warn("page failed", "url", page.URL, "cause", message, "retries", retries)
	return nil
}

// frontier returns the docset's frontier, creating it on first use.
func (e *Engine) frontier(docsetID string) *Frontier {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frontiers == nil {
		e.frontiers = make(map[string]*Frontier)
	}
	f, ok := e.frontiers[docsetID]
	if !ok {
		f = NewFrontier(e.Pages, e.Options.MaxPages)
		e.frontiers[docsetID] = f
	}
	return f
}

func (e *Engine) splitter() *chunk.Splitter {
	if e.Splitter != nil {
		return e.Splitter
	}
	return chunk.NewSplitter(chunk.DefaultOptions())
}

func (e *Engine) limiter() *HostLimiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Limiter == nil {
		e.Limiter = NewHostLimiter(e.Options.RequestDelay)
	}
	return e.Limiter
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// hashContent returns the hex SHA-256 of a page body.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

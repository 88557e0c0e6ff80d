package crawl_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/crawl"
	"github.com/memoracle/memoracle/embedding"
	"github.com/memoracle/memoracle/extract"
	"github.com/memoracle/memoracle/fs"
	"github.com/memoracle/memoracle/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passthroughReducer struct{}

func (passthroughReducer) Reduce(html, pageURL string) (*memoracle.ReduceResult, error) {
	return &memoracle.ReduceResult{ContentHTML: html}, nil
}

// stubFetcher serves canned responses by URL and records fetch counts.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	fetches   map[string]int
}

type stubResponse struct {
	content     string
	contentType string
	status      int
	etag        string
	err         error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string]stubResponse),
		fetches:   make(map[string]int),
	}
}

func (s *stubFetcher) serve(url, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = stubResponse{content: content, contentType: "text/html", status: 200}
}

func (s *stubFetcher) serveStatus(url string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = stubResponse{status: status}
}

func (s *stubFetcher) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[url]
}

func (s *stubFetcher) Fetch(_ context.Context, url string, _ memoracle.FetchOptions) (*memoracle.FetchResult, error) {
	s.mu.Lock()
	resp, ok := s.responses[url]
	s.fetches[url]++
	s.mu.Unlock()

	if !ok {
		return nil, &memoracle.StatusError{StatusCode: 404, URL: url}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, &memoracle.StatusError{StatusCode: resp.status, URL: url}
	}
	return &memoracle.FetchResult{
		URL:         url,
		Content:     resp.content,
		ContentType: resp.contentType,
		ETag:        resp.etag,
		StatusCode:  resp.status,
	}, nil
}

type engineFixture struct {
	engine  *crawl.Engine
	db      *sqlite.DB
	fetcher *stubFetcher
	docsets memoracle.DocsetService
	pages   memoracle.PageService
	chunks  memoracle.ChunkService
	vectors memoracle.VectorStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	dir := t.TempDir()
	db := sqlite.NewDB(filepath.Join(dir, "metadata.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	fetcher := newStubFetcher()
	docsets := sqlite.NewDocsetService(db)
	pages := sqlite.NewPageService(db)
	chunks := sqlite.NewChunkService(db)
	vectors := fs.NewVectorStore(filepath.Join(dir, "vectors"))

	opts := crawl.DefaultOptions()
	opts.Concurrency = 2
	opts.RequestDelay = 0
	opts.Sitemap = false

	engine := &crawl.Engine{
		Docsets:   docsets,
		Pages:     pages,
		Chunks:    chunks,
		Vectors:   vectors,
		Fetcher:   fetcher,
		Extractor: extract.New(passthroughReducer{}),
		Embedder:  embedding.NewLocal(),
		Options:   opts,
	}

	return &engineFixture{
		engine:  engine,
		db:      db,
		fetcher: fetcher,
		docsets: docsets,
		pages:   pages,
		chunks:  chunks,
		vectors: vectors,
	}
}

func (f *engineFixture) waitForCrawl(t *testing.T, docsetID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, f.engine.WaitForCrawl(ctx, docsetID))
}

func TestEngine_IndexDocset_seed_and_links(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/start",
		`<html><head><title>Start</title></head><body>
			<a href="/a">A</a><a href="/b">B</a><a href="https://other.example.com/c">C</a>
			<p>start page text</p></body></html>`)
	f.fetcher.serve("https://docs.example.com/a",
		`<html><body><h1>A</h1><p>alpha content</p></body></html>`)
	f.fetcher.serve("https://docs.example.com/b",
		`<html><body><h1>B</h1><p>beta content</p></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	status, err := f.docsets.IndexStatus(ctx, docset.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalPages)
	assert.Equal(t, 3, status.IndexedPages)
	assert.Zero(t, status.PendingPages)
	assert.Zero(t, status.ErrorPages)
	assert.GreaterOrEqual(t, status.TotalChunks, 3)

	// The cross-host link never became a page.
	_, err = f.pages.FindPageByURL(ctx, docset.ID, "https://other.example.com/c")
	assert.Equal(t, memoracle.ENOTFOUND, memoracle.ErrorCode(err))

	final, err := f.docsets.FindDocsetByID(ctx, docset.ID)
	require.NoError(t, err)
	assert.Equal(t, memoracle.DocsetReady, final.Status)
}

func TestEngine_Search_finds_exact_term(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/start",
		`<html><body><a href="/a">A</a><p>start here</p></body></html>`)
	f.fetcher.serve("https://docs.example.com/a",
		`<html><body><h1>A</h1><p>alpha content</p></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	results, err := f.engine.Search(ctx, "alpha content", memoracle.SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].URL, "/a")
	assert.Contains(t, results[0].Content, "alpha content")
}

func TestEngine_IndexPage_404_is_skipped(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/start",
		`<html><body><a href="/missing">gone</a><p>seed body</p></body></html>`)
	f.fetcher.serveStatus("https://docs.example.com/missing", 404)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	page, err := f.pages.FindPageByURL(ctx, docset.ID, "https://docs.example.com/missing")
	require.NoError(t, err)
	assert.Equal(t, memoracle.PageSkipped, page.Status)
	assert.Contains(t, page.ErrorMessage, "HTTP 404")

	final, err := f.docsets.FindDocsetByID(ctx, docset.ID)
	require.NoError(t, err)
	assert.Equal(t, memoracle.DocsetReady, final.Status)
}

func TestEngine_IndexPage_unchanged_hash_short_circuits(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	url := "https://docs.example.com/start"
	f.fetcher.serve(url, `<html><body><p>stable body text</p></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	page, err := f.pages.FindPageByURL(ctx, docset.ID, url)
	require.NoError(t, err)
	require.Equal(t, memoracle.PageIndexed, page.Status)
	chunksBefore, err := f.chunks.FindChunksByPage(ctx, page.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunksBefore)

	retries := 1
	_, err = f.pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{RetryCount: &retries})
	require.NoError(t, err)

	// Refresh in incremental mode: the fetch returns byte-identical
	// content, so chunk IDs survive.
	plan, err := f.engine.RefreshDocset(ctx, docset.ID, crawl.RefreshOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.QueuedPages)
	assert.Equal(t, 1, plan.PreservedHashes)
	assert.Zero(t, plan.ClearedHashes)
	f.waitForCrawl(t, docset.ID)

	page, err = f.pages.FindPageByURL(ctx, docset.ID, url)
	require.NoError(t, err)
	assert.Equal(t, memoracle.PageIndexed, page.Status)
	assert.Equal(t, 1, page.RetryCount, "refresh never lowers the retry count")

	chunksAfter, err := f.chunks.FindChunksByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, chunksAfter, len(chunksBefore))
	for i := range chunksBefore {
		assert.Equal(t, chunksBefore[i].ID, chunksAfter[i].ID, "chunk IDs are stable across a no-change refresh")
	}
}

func TestEngine_RefreshDocset_full_reindex_clears_hashes(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	url := "https://docs.example.com/start"
	f.fetcher.serve(url, `<html><body><p>page body</p></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	before, err := f.pages.FindPageByURL(ctx, docset.ID, url)
	require.NoError(t, err)
	beforeChunks, err := f.chunks.FindChunksByPage(ctx, before.ID)
	require.NoError(t, err)

	// A page that failed twice before keeps its retry history across
	// the refresh.
	retries := 2
	_, err = f.pages.UpdatePage(ctx, before.ID, memoracle.PageUpdate{RetryCount: &retries})
	require.NoError(t, err)

	plan, err := f.engine.RefreshDocset(ctx, docset.ID, crawl.RefreshOptions{Force: true, FullReindex: true})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.ClearedHashes)
	f.waitForCrawl(t, docset.ID)

	after, err := f.pages.FindPageByURL(ctx, docset.ID, url)
	require.NoError(t, err)
	assert.Equal(t, memoracle.PageIndexed, after.Status)
	assert.Equal(t, 2, after.RetryCount, "refresh never lowers the retry count")

	afterChunks, err := f.chunks.FindChunksByPage(ctx, after.ID)
	require.NoError(t, err)
	require.Len(t, afterChunks, len(beforeChunks))
	for i := range beforeChunks {
		assert.NotEqual(t, beforeChunks[i].ID, afterChunks[i].ID, "a full reindex rebuilds chunks")
	}
}

func TestEngine_empty_content_indexed_with_zero_chunks(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/start", `<html><body></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	page, err := f.pages.FindPageByURL(ctx, docset.ID, "https://docs.example.com/start")
	require.NoError(t, err)
	assert.Equal(t, memoracle.PageIndexed, page.Status)

	chunks, err := f.chunks.FindChunksByPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestEngine_RecoverFromCrash(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/stuck", `<html><body><p>recovered body</p></body></html>`)

	docset := &memoracle.Docset{BaseURL: "https://docs.example.com", SeedPath: "/stuck", AllowedPaths: []string{"/"}}
	require.NoError(t, f.docsets.CreateDocset(ctx, docset))
	require.NoError(t, f.vectors.Init(ctx, docset.ID))

	// Simulate a crash mid-fetch 10 minutes ago.
	page := &memoracle.Page{DocsetID: docset.ID, URL: "https://docs.example.com/stuck"}
	require.NoError(t, f.pages.CreatePage(ctx, page))
	fetching := memoracle.PageFetching
	stale := time.Now().UTC().Add(-10 * time.Minute)
	_, err := f.pages.UpdatePage(ctx, page.ID, memoracle.PageUpdate{Status: &fetching, LastAttemptAt: &stale})
	require.NoError(t, err)

	require.NoError(t, f.engine.RecoverFromCrash(ctx))
	f.waitForCrawl(t, docset.ID)

	recovered, err := f.pages.FindPageByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, memoracle.PageIndexed, recovered.Status)
	assert.Equal(t, 1, recovered.RetryCount, "the reset increments the retry count")
}

func TestEngine_DeleteDocset_cascades_everything(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.fetcher.serve("https://docs.example.com/start", `<html><body><p>cascade target body</p></body></html>`)

	docset, err := f.engine.IndexDocset(ctx, crawl.IndexInput{
		BaseURL:  "https://docs.example.com",
		SeedSlug: "/start",
	}, true)
	require.NoError(t, err)
	f.waitForCrawl(t, docset.ID)

	require.NoError(t, f.engine.DeleteDocset(ctx, docset.ID))

	_, err = f.docsets.FindDocsetByID(ctx, docset.ID)
	assert.Equal(t, memoracle.ENOTFOUND, memoracle.ErrorCode(err))

	matches, err := f.vectors.Search(ctx, docset.ID, make([]float32, embedding.LocalDimensions), 10, -1)
	require.NoError(t, err)
	assert.Empty(t, matches, "the vector namespace is empty after delete")
}

// Package mock provides function-field mock implementations of the
// domain interfaces for tests.
package mock

import (
	"context"
	"time"

	"github.com/memoracle/memoracle"
)

var _ memoracle.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of memoracle.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string, opts memoracle.FetchOptions) (*memoracle.FetchResult, error)
}

func (f *Fetcher) Fetch(ctx context.Context, url string, opts memoracle.FetchOptions) (*memoracle.FetchResult, error) {
	return f.FetchFn(ctx, url, opts)
}

var _ memoracle.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of memoracle.Extractor.
type Extractor struct {
	ExtractFn func(url, content, contentType string) (*memoracle.ExtractResult, error)
}

func (e *Extractor) Extract(url, content, contentType string) (*memoracle.ExtractResult, error) {
	return e.ExtractFn(url, content, contentType)
}

var _ memoracle.EmbeddingProvider = (*EmbeddingProvider)(nil)

// EmbeddingProvider is a mock implementation of
// memoracle.EmbeddingProvider.
type EmbeddingProvider struct {
	NameFn        func() string
	DimensionsFn  func() int
	EmbedFn       func(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingleFn func(ctx context.Context, text string) ([]float32, error)
}

func (p *EmbeddingProvider) Name() string {
	if p.NameFn == nil {
		return "mock"
	}
	return p.NameFn()
}

func (p *EmbeddingProvider) Dimensions() int {
	return p.DimensionsFn()
}

func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.EmbedFn(ctx, texts)
}

func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return p.EmbedSingleFn(ctx, text)
}

var _ memoracle.VectorStore = (*VectorStore)(nil)

// VectorStore is a mock implementation of memoracle.VectorStore.
type VectorStore struct {
	InitFn   func(ctx context.Context, namespace string) error
	UpsertFn func(ctx context.Context, namespace string, records []memoracle.VectorRecord) error
	SearchFn func(ctx context.Context, namespace string, query []float32, topK int, minScore float32) ([]memoracle.VectorMatch, error)
	DeleteFn func(ctx context.Context, namespace string, ids []string) error
	ClearFn  func(ctx context.Context, namespace string) error
}

func (s *VectorStore) Init(ctx context.Context, namespace string) error {
	if s.InitFn == nil {
		return nil
	}
	return s.InitFn(ctx, namespace)
}

func (s *VectorStore) Upsert(ctx context.Context, namespace string, records []memoracle.VectorRecord) error {
	return s.UpsertFn(ctx, namespace, records)
}

func (s *VectorStore) Search(ctx context.Context, namespace string, query []float32, topK int, minScore float32) ([]memoracle.VectorMatch, error) {
	return s.SearchFn(ctx, namespace, query, topK, minScore)
}

func (s *VectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if s.DeleteFn == nil {
		return nil
	}
	return s.DeleteFn(ctx, namespace, ids)
}

func (s *VectorStore) Clear(ctx context.Context, namespace string) error {
	if s.ClearFn == nil {
		return nil
	}
	return s.ClearFn(ctx, namespace)
}

var _ memoracle.ContentCache = (*ContentCache)(nil)

// ContentCache is a mock implementation of memoracle.ContentCache.
type ContentCache struct {
	GetFn    func(ctx context.Context, url string) (*memoracle.CachedPage, error)
	PutFn    func(ctx context.Context, page *memoracle.CachedPage) error
	HasFn    func(ctx context.Context, url string) bool
	DeleteFn func(ctx context.Context, url string) error
	ClearFn  func(ctx context.Context) error
}

func (c *ContentCache) Get(ctx context.Context, url string) (*memoracle.CachedPage, error) {
	return c.GetFn(ctx, url)
}

func (c *ContentCache) Put(ctx context.Context, page *memoracle.CachedPage) error {
	return c.PutFn(ctx, page)
}

func (c *ContentCache) Has(ctx context.Context, url string) bool {
	return c.HasFn(ctx, url)
}

func (c *ContentCache) Delete(ctx context.Context, url string) error {
	return c.DeleteFn(ctx, url)
}

func (c *ContentCache) Clear(ctx context.Context) error {
	return c.ClearFn(ctx)
}

var _ memoracle.SitemapService = (*SitemapService)(nil)

// SitemapService is a mock implementation of memoracle.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL)
}

var _ memoracle.Renderer = (*Renderer)(nil)

// Renderer is a mock implementation of memoracle.Renderer.
type Renderer struct {
	RenderFn func(ctx context.Context, url string) (string, error)
	CloseFn  func() error
}

func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	return r.RenderFn(ctx, url)
}

func (r *Renderer) Close() error {
	if r.CloseFn == nil {
		return nil
	}
	return r.CloseFn()
}

var _ memoracle.Converter = (*Converter)(nil)

// Converter is a mock implementation of memoracle.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}

// Clock returns controllable times for tests.
type Clock struct {
	NowFn func() time.Time
}

func (c *Clock) Now() time.Time {
	if c.NowFn == nil {
		return time.Now()
	}
	return c.NowFn()
}

// Package http provides HTTP-based implementations: the page fetcher
// with conditional requests, sitemap discovery, and the worker API
// server.
package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memoracle/memoracle"
)

// DefaultFetchTimeout is the default per-call timeout for page fetches.
const DefaultFetchTimeout = 30 * time.Second

// DefaultUserAgent identifies the crawler to documentation sites.
const DefaultUserAgent = "mem-oracle/1.0 (+https://github.com/memoracle/memoracle)"

// Ensure Fetcher implements memoracle.Fetcher at compile time.
var _ memoracle.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves pages with conditional requests, writing successful
// bodies through to the content cache and falling back to it on
// transport errors.
type Fetcher struct {
	client    *http.Client
	cache     memoracle.ContentCache
	timeout   time.Duration
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-call timeout. Defaults to DefaultFetchTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// NewFetcher creates a Fetcher backed by the given content cache.
func NewFetcher(cache memoracle.ContentCache, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache:     cache,
		timeout:   DefaultFetchTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.client = &http.Client{Timeout: f.timeout}
	return f
}

// Fetch issues a single conditional GET for the URL.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts memoracle.FetchOptions) (*memoracle.FetchResult, error) {
	etag, lastModified := opts.ETag, opts.LastModified
	var cached *memoracle.CachedPage
	if f.cache != nil {
		cached, _ = f.cache.Get(ctx, url)
	}
	if etag == "" && lastModified == "" && cached != nil {
		etag, lastModified = cached.ETag, cached.LastModified
	}

	result, err := f.do(ctx, url, etag, lastModified, cached)
	if err == nil {
		return result, nil
	}
	if memoracle.StatusCode(err) != 0 {
		return nil, err
	}

	// Transport error: degrade to the cached body when one exists.
	if cached != nil {
		return &memoracle.FetchResult{
			URL:          url,
			Content:      cached.Content,
			ContentType:  cached.ContentType,
			ETag:         cached.ETag,
			LastModified: cached.LastModified,
			StatusCode:   0,
			FromCache:    true,
		}, nil
	}
	return nil, err
}

func (f *Fetcher) do(ctx context.Context, url, etag, lastModified string, cached *memoracle.CachedPage) (*memoracle.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if cached != nil {
			return &memoracle.FetchResult{
				URL:          url,
				Content:      cached.Content,
				ContentType:  cached.ContentType,
				ETag:         cached.ETag,
				LastModified: cached.LastModified,
				StatusCode:   http.StatusNotModified,
				FromCache:    true,
			}, nil
		}
		// A 304 with nothing cached to serve: refetch unconditionally.
		if etag != "" || lastModified != "" {
			return f.do(ctx, url, "", "", nil)
		}
		return nil, &memoracle.StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &memoracle.StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	content := string(body)
	contentType := DetectContentType(url, content, resp.Header.Get("Content-Type"))
	respETag := resp.Header.Get("ETag")
	respLastModified := resp.Header.Get("Last-Modified")

	if f.cache != nil {
		_ = f.cache.Put(ctx, &memoracle.CachedPage{
			URL:          url,
			Content:      content,
			ContentType:  contentType,
			FetchedAt:    time.Now().UTC(),
			ETag:         respETag,
			LastModified: respLastModified,
		})
	}

	return &memoracle.FetchResult{
		URL:          url,
		Content:      content,
		ContentType:  contentType,
		ETag:         respETag,
		LastModified: respLastModified,
		StatusCode:   resp.StatusCode,
		FromCache:    false,
	}, nil
}

// DetectContentType classifies a body by sniffing it: Markdown file
// extensions, leading ATX headings, and YAML frontmatter override
// whatever the server declared.
func DetectContentType(url, body, headerContentType string) string {
	lower := strings.ToLower(url)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".mdx") {
		return "text/markdown"
	}

	trimmed := strings.TrimLeft(body, "\n\r \t")
	if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") {
		return "text/markdown"
	}
	if strings.HasPrefix(trimmed, "---\n") {
		if end := strings.Index(trimmed[4:], "\n---"); end >= 0 {
			return "text/markdown"
		}
	}

	if headerContentType != "" {
		if mt, _, found := strings.Cut(headerContentType, ";"); found {
			return strings.TrimSpace(mt)
		}
		return headerContentType
	}
	return "text/html"
}

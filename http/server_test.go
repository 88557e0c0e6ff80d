package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/crawl"
	"github.com/memoracle/memoracle/embedding"
	"github.com/memoracle/memoracle/extract"
	"github.com/memoracle/memoracle/fs"
	memhttp "github.com/memoracle/memoracle/http"
	"github.com/memoracle/memoracle/mock"
	"github.com/memoracle/memoracle/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopReducer struct{}

func (nopReducer) Reduce(html, pageURL string) (*memoracle.ReduceResult, error) {
	return &memoracle.ReduceResult{ContentHTML: html}, nil
}

func newTestServer(t *testing.T, pages map[string]string) (*memhttp.Server, *crawl.Engine) {
	t.Helper()

	dir := t.TempDir()
	db := sqlite.NewDB(filepath.Join(dir, "metadata.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	fetcher := &mock.Fetcher{
		FetchFn: func(_ context.Context, url string, _ memoracle.FetchOptions) (*memoracle.FetchResult, error) {
			body, ok := pages[url]
			if !ok {
				return nil, &memoracle.StatusError{StatusCode: 404, URL: url}
			}
			return &memoracle.FetchResult{URL: url, Content: body, ContentType: "text/html", StatusCode: 200}, nil
		},
	}

	opts := crawl.DefaultOptions()
	opts.RequestDelay = 0
	opts.Sitemap = false

	engine := &crawl.Engine{
		Docsets:   sqlite.NewDocsetService(db),
		Pages:     sqlite.NewPageService(db),
		Chunks:    sqlite.NewChunkService(db),
		Vectors:   fs.NewVectorStore(filepath.Join(dir, "vectors")),
		Fetcher:   fetcher,
		Extractor: extract.New(nopReducer{}),
		Embedder:  embedding.NewLocal(),
		Options:   opts,
	}

	return memhttp.NewServer(engine, nil), engine
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_health(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestServer_options_preflight(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/retrieve", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_index_then_retrieve(t *testing.T) {
	t.Parallel()

	srv, engine := newTestServer(t, map[string]string{
		"https://docs.example.com/start": `<html><body><a href="/a">A</a><p>seed text</p></body></html>`,
		"https://docs.example.com/a":     `<html><body><h1>A</h1><p>alpha content</p></body></html>`,
	})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/index", map[string]any{
		"baseUrl":     "https://docs.example.com",
		"seedSlug":    "/start",
		"waitForSeed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var indexResp struct {
		DocsetID    string `json:"docsetId"`
		SeedIndexed bool   `json:"seedIndexed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &indexResp))
	assert.NotEmpty(t, indexResp.DocsetID)
	assert.True(t, indexResp.SeedIndexed)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, engine.WaitForCrawl(ctx, indexResp.DocsetID))

	rec = postJSON(t, handler, "/retrieve", map[string]any{
		"query": "alpha content",
		"topK":  1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var retrieveResp struct {
		Results []memoracle.SearchResult `json:"results"`
		Query   string                   `json:"query"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retrieveResp))
	require.NotEmpty(t, retrieveResp.Results)
	assert.Contains(t, retrieveResp.Results[0].URL, "/a")
	assert.NotNil(t, retrieveResp.Results[0].Snippet)
}

func TestServer_retrieve_requires_query(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := postJSON(t, srv.Handler(), "/retrieve", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestServer_docset_not_found(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/docset/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_status_and_pages(t *testing.T) {
	t.Parallel()

	srv, engine := newTestServer(t, map[string]string{
		"https://docs.example.com/start": `<html><body><p>status page body</p></body></html>`,
	})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/index", map[string]any{
		"baseUrl":     "https://docs.example.com",
		"seedSlug":    "/start",
		"waitForSeed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var indexResp struct {
		DocsetID string `json:"docsetId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &indexResp))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, engine.WaitForCrawl(ctx, indexResp.DocsetID))

	req := httptest.NewRequest(http.MethodGet, "/status?docsetId="+indexResp.DocsetID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var statusResp struct {
		Docsets []struct {
			ID          string                 `json:"id"`
			IndexStatus *memoracle.IndexStatus `json:"indexStatus"`
		} `json:"docsets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statusResp))
	require.Len(t, statusResp.Docsets, 1)
	assert.Equal(t, 1, statusResp.Docsets[0].IndexStatus.IndexedPages)

	req = httptest.NewRequest(http.MethodGet, "/docset/"+indexResp.DocsetID+"/pages?status=indexed", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var pagesResp struct {
		Pages []*memoracle.Page `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pagesResp))
	assert.Len(t, pagesResp.Pages, 1)
}

// Package qdrant provides a vector store backed by a Qdrant server's
// HTTP API. Each namespace maps to one collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/memoracle/memoracle"
)

// Ensure VectorStore implements memoracle.VectorStore at compile time.
var _ memoracle.VectorStore = (*VectorStore)(nil)

// VectorStore talks to a Qdrant server. Collections are created lazily
// on the first upsert, when the dimensionality becomes known.
type VectorStore struct {
	baseURL string
	apiKey  string
	prefix  string
	client  *http.Client

	mu         sync.Mutex
	dimensions map[string]int // collection → locked dimensionality
}

// NewVectorStore creates a store for the Qdrant server at baseURL.
// collectionPrefix namespaces this instance's collections on a shared
// server.
func NewVectorStore(baseURL, apiKey, collectionPrefix string) *VectorStore {
	return &VectorStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		prefix:     collectionPrefix,
		client:     &http.Client{Timeout: 30 * time.Second},
		dimensions: make(map[string]int),
	}
}

func (s *VectorStore) collection(namespace string) string {
	return s.prefix + namespace
}

// Init is a no-op for Qdrant; the collection is created on first upsert
// once dimensions are known.
func (s *VectorStore) Init(_ context.Context, _ string) error {
	return nil
}

// Upsert inserts or replaces vectors by ID.
func (s *VectorStore) Upsert(ctx context.Context, namespace string, records []memoracle.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx, namespace, len(records[0].Vector)); err != nil {
		return err
	}

	s.mu.Lock()
	want := s.dimensions[s.collection(namespace)]
	s.mu.Unlock()

	points := make([]map[string]any, len(records))
	for i, rec := range records {
		if len(rec.Vector) != want {
			return &memoracle.DimensionError{Namespace: namespace, Want: want, Got: len(rec.Vector)}
		}
		points[i] = map[string]any{
			"id":      rec.ID,
			"vector":  rec.Vector,
			"payload": rec.Metadata,
		}
	}

	return s.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", s.collection(namespace)),
		map[string]any{"points": points}, nil)
}

type searchResponse struct {
	Result []struct {
		ID      any                      `json:"id"`
		Score   float32                  `json:"score"`
		Payload memoracle.VectorMetadata `json:"payload"`
	} `json:"result"`
}

// Search runs a cosine search with a score threshold.
func (s *VectorStore) Search(ctx context.Context, namespace string, query []float32, topK int, minScore float32) ([]memoracle.VectorMatch, error) {
	s.mu.Lock()
	want, known := s.dimensions[s.collection(namespace)]
	s.mu.Unlock()
	if known && len(query) != want {
		return nil, &memoracle.DimensionError{Namespace: namespace, Want: want, Got: len(query)}
	}

	var resp searchResponse
	err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", s.collection(namespace)),
		map[string]any{
			"vector":          query,
			"limit":           topK,
			"score_threshold": minScore,
			"with_payload":    true,
		}, &resp)
	if err != nil {
		// A missing collection simply has nothing to return yet.
		if memoracle.StatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	matches := make([]memoracle.VectorMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, memoracle.VectorMatch{
			ID:       fmt.Sprintf("%v", r.ID),
			Score:    r.Score,
			Metadata: r.Payload,
		})
	}
	return matches, nil
}

// Delete removes vectors by ID.
func (s *VectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection(namespace)),
		map[string]any{"points": ids}, nil)
	if memoracle.StatusCode(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// Clear drops the namespace's collection.
func (s *VectorStore) Clear(ctx context.Context, namespace string) error {
	err := s.do(ctx, http.MethodDelete,
		"/collections/"+s.collection(namespace), nil, nil)
	if memoracle.StatusCode(err) == http.StatusNotFound {
		err = nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.dimensions, s.collection(namespace))
	s.mu.Unlock()
	return nil
}

// ensureCollection creates the collection with cosine distance when it
// does not exist yet, locking its dimensionality.
func (s *VectorStore) ensureCollection(ctx context.Context, namespace string, dims int) error {
	name := s.collection(namespace)

	s.mu.Lock()
	_, known := s.dimensions[name]
	s.mu.Unlock()
	if known {
		return nil
	}

	err := s.do(ctx, http.MethodPut, "/collections/"+name, map[string]any{
		"vectors": map[string]any{"size": dims, "distance": "Cosine"},
	}, nil)
	// 409 means the collection already exists; its size stands.
	if err != nil && memoracle.StatusCode(err) != http.StatusConflict {
		return err
	}

	s.mu.Lock()
	s.dimensions[name] = dims
	s.mu.Unlock()
	return nil
}

func (s *VectorStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &memoracle.StatusError{StatusCode: resp.StatusCode, URL: s.baseURL + path}
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

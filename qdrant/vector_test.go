package qdrant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorStore_Upsert_creates_collection_then_puts_points(t *testing.T) {
	t.Parallel()

	var createdCollection, putPoints bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/oracle-d1":
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 3, body.Vectors.Size)
			assert.Equal(t, "Cosine", body.Vectors.Distance)
			createdCollection = true
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/oracle-d1/points":
			putPoints = true
			_, _ = w.Write([]byte(`{"result":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := qdrant.NewVectorStore(srv.URL, "", "oracle-")
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, "d1"))
	require.NoError(t, store.Upsert(ctx, "d1", []memoracle.VectorRecord{
		{ID: "c1", Vector: []float32{1, 0, 0}, Metadata: memoracle.VectorMetadata{ChunkID: "c1"}},
	}))
	assert.True(t, createdCollection)
	assert.True(t, putPoints)
}

func TestVectorStore_Upsert_dimension_mismatch_after_lock(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	store := qdrant.NewVectorStore(srv.URL, "", "")
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "d1", []memoracle.VectorRecord{{ID: "c1", Vector: []float32{1, 0, 0}}}))

	err := store.Upsert(ctx, "d1", []memoracle.VectorRecord{{ID: "c2", Vector: []float32{1, 0}}})
	var dimErr *memoracle.DimensionError
	require.ErrorAs(t, err, &dimErr)
}

func TestVectorStore_Search_maps_results(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/d1/points/search", r.URL.Path)
		var body struct {
			Limit          int     `json:"limit"`
			ScoreThreshold float32 `json:"score_threshold"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 5, body.Limit)

		_, _ = w.Write([]byte(`{"result":[
			{"id":"c1","score":0.92,"payload":{"chunkId":"c1","url":"https://docs.example.com/a","content":"alpha"}}
		]}`))
	}))
	defer srv.Close()

	store := qdrant.NewVectorStore(srv.URL, "", "")
	matches, err := store.Search(context.Background(), "d1", []float32{1, 0, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ID)
	assert.InDelta(t, 0.92, float64(matches[0].Score), 1e-6)
	assert.Equal(t, "alpha", matches[0].Metadata.Content)
}

func TestVectorStore_Search_missing_collection_is_empty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := qdrant.NewVectorStore(srv.URL, "", "")
	matches, err := store.Search(context.Background(), "d1", []float32{1}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

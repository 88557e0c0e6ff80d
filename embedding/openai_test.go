package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Embed_orders_by_index(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// Return embeddings out of order; the client must re-sort.
		vec := make([]float32, 1536)
		vec2 := make([]float32, 1536)
		vec[0], vec2[1] = 1, 1
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": vec2, "index": 1},
				{"embedding": vec, "index": 0},
			},
		})
	}))
	defer srv.Close()

	p, err := embedding.NewOpenAI("test-key", srv.URL, "text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimensions())

	vectors, err := p.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][1])
}

func TestOpenAI_Embed_rejects_wrong_dimension(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{1, 2, 3}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	p, err := embedding.NewOpenAI("test-key", srv.URL, "text-embedding-3-small", 0)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"one"})
	require.Error(t, err)
	var provErr *memoracle.ProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestNewOpenAI_requires_api_key(t *testing.T) {
	t.Parallel()

	_, err := embedding.NewOpenAI("", "", "", 0)
	assert.Equal(t, memoracle.EINVALID, memoracle.ErrorCode(err))
}

package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/memoracle/memoracle/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_deterministic(t *testing.T) {
	t.Parallel()

	l := embedding.NewLocal()
	ctx := context.Background()

	a, err := l.EmbedSingle(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := l.EmbedSingle(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text yields identical vectors")
	assert.Len(t, a, embedding.LocalDimensions)
}

func TestLocal_unit_norm(t *testing.T) {
	t.Parallel()

	l := embedding.NewLocal()
	vec, err := l.EmbedSingle(context.Background(), "vectors should have unit length after normalization")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocal_empty_text_is_zero_vector(t *testing.T) {
	t.Parallel()

	l := embedding.NewLocal()
	vec, err := l.EmbedSingle(context.Background(), "a an it")
	require.NoError(t, err)

	// All tokens are <= 2 chars and dropped.
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocal_Embed_preserves_order(t *testing.T) {
	t.Parallel()

	l := embedding.NewLocal()
	ctx := context.Background()

	texts := []string{"alpha content", "beta content", "gamma content"}
	vectors, err := l.Embed(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for i, text := range texts {
		single, err := l.EmbedSingle(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i])
	}
}

func TestLocal_similar_text_scores_higher(t *testing.T) {
	t.Parallel()

	l := embedding.NewLocal()
	ctx := context.Background()

	query, err := l.EmbedSingle(ctx, "configure authentication tokens")
	require.NoError(t, err)
	same, err := l.EmbedSingle(ctx, "configure authentication tokens for the api")
	require.NoError(t, err)
	other, err := l.EmbedSingle(ctx, "rendering charts with javascript")
	require.NoError(t, err)

	assert.Greater(t, dot(query, same), dot(query, other))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

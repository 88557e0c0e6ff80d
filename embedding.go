package memoracle

import "context"

// EmbeddingProvider produces dense vectors for texts. Implementations
// batch internally and preserve input order. Vectors are expected to be
// unit norm.
type EmbeddingProvider interface {
	// Name identifies the provider variant (local, openai, voyage,
	// cohere, gemini).
	Name() string

	// Dimensions is the fixed length of produced vectors.
	Dimensions() int

	// Embed produces one vector per text, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle produces one vector for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

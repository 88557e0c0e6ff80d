// Package embedding provides embedding providers: a deterministic local
// hash-projection embedder and remote API clients (OpenAI, Voyage,
// Cohere, Gemini), with a shared retry layer for transient failures.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/memoracle/memoracle"
)

// LocalDimensions is the fixed dimensionality of the local provider.
const LocalDimensions = 384

// Ensure Local implements memoracle.EmbeddingProvider at compile time.
var _ memoracle.EmbeddingProvider = (*Local)(nil)

// Local is a deterministic, network-free embedding provider. Tokens are
// hashed into a fixed 384-dim space with a sign bit, summed weighted by
// term frequency, and L2-normalized. Identical text always produces the
// identical vector.
type Local struct{}

// NewLocal creates the local provider.
func NewLocal() *Local {
	return &Local{}
}

// Name identifies the provider variant.
func (l *Local) Name() string { return "local" }

// Dimensions is the fixed length of produced vectors.
func (l *Local) Dimensions() int { return LocalDimensions }

// Embed produces one vector per text, preserving order.
func (l *Local) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = l.embed(text)
	}
	return vectors, nil
}

// EmbedSingle produces one vector for one text.
func (l *Local) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return l.embed(text), nil
}

func (l *Local) embed(text string) []float32 {
	vec := make([]float32, LocalDimensions)

	freqs := make(map[string]int)
	for _, tok := range tokenize(text) {
		freqs[tok]++
	}

	for tok, tf := range freqs {
		idx, sign := project(tok)
		vec[idx] += sign * float32(tf)
	}

	// L2-normalize; an all-zero vector stays zero.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// tokenize lowercases, strips punctuation, splits on whitespace, and
// drops tokens of length <= 2.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// project hashes a token's characters into a vector index and a sign.
func project(tok string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()

	idx := int(sum % uint64(LocalDimensions))
	sign := float32(1)
	if sum&(1<<63) != 0 {
		sign = -1
	}
	return idx, sign
}

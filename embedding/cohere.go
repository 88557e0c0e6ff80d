package embedding

import (
	"context"

	"github.com/memoracle/memoracle"
)

// Cohere defaults.
const (
	CohereDefaultBaseURL = "https://api.cohere.ai/v1"
	CohereDefaultModel   = "embed-english-v3.0"
)

var cohereModelDimensions = map[string]int{
	"embed-english-v3.0":            1024,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-v3.0":       1024,
	"embed-multilingual-light-v3.0": 384,
}

// Ensure Cohere implements memoracle.EmbeddingProvider at compile time.
var _ memoracle.EmbeddingProvider = (*Cohere)(nil)

// Cohere embeds texts through the Cohere embed API.
type Cohere struct {
	remoteClient
	baseURL    string
	model      string
	dimensions int
}

// NewCohere creates a Cohere provider.
func NewCohere(apiKey, baseURL, model string, batchSize int) (*Cohere, error) {
	if apiKey == "" {
		return nil, memoracle.Errorf(memoracle.EINVALID, "cohere: API key required")
	}
	if baseURL == "" {
		baseURL = CohereDefaultBaseURL
	}
	if model == "" {
		model = CohereDefaultModel
	}
	dimensions, ok := cohereModelDimensions[model]
	if !ok {
		dimensions = 1024
	}
	return &Cohere{
		remoteClient: newRemoteClient(apiKey, batchSize),
		baseURL:      baseURL,
		model:        model,
		dimensions:   dimensions,
	}, nil
}

// Name identifies the provider variant.
func (p *Cohere) Name() string { return "cohere" }

// Dimensions is the fixed length of produced vectors.
func (p *Cohere) Dimensions() int { return p.dimensions }

type cohereRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

// Embed produces one vector per text, batching internally. Cohere
// returns embeddings in input order.
func (p *Cohere) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range p.batches(texts) {
		var resp cohereResponse
		req := cohereRequest{Model: p.model, Texts: batch, InputType: "search_document"}
		if err := p.postJSON(ctx, p.baseURL+"/embed", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, &memoracle.ProviderError{Provider: "cohere", Message: "response count does not match input"}
		}
		for _, v := range resp.Embeddings {
			if len(v) != p.dimensions {
				return nil, &memoracle.ProviderError{Provider: "cohere", Message: "unexpected embedding size"}
			}
		}
		vectors = append(vectors, resp.Embeddings...)
	}
	return vectors, nil
}

// EmbedSingle produces one vector for one text.
func (p *Cohere) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

package embedding

import (
	"context"

	"github.com/memoracle/memoracle"
)

// Voyage defaults.
const (
	VoyageDefaultBaseURL = "https://api.voyageai.com/v1"
	VoyageDefaultModel   = "voyage-3"
)

var voyageModelDimensions = map[string]int{
	"voyage-3":      1024,
	"voyage-3-lite": 512,
	"voyage-code-3": 1024,
}

// Ensure Voyage implements memoracle.EmbeddingProvider at compile time.
var _ memoracle.EmbeddingProvider = (*Voyage)(nil)

// Voyage embeds texts through the Voyage AI embeddings API.
type Voyage struct {
	remoteClient
	baseURL    string
	model      string
	dimensions int
}

// NewVoyage creates a Voyage provider.
func NewVoyage(apiKey, baseURL, model string, batchSize int) (*Voyage, error) {
	if apiKey == "" {
		return nil, memoracle.Errorf(memoracle.EINVALID, "voyage: API key required")
	}
	if baseURL == "" {
		baseURL = VoyageDefaultBaseURL
	}
	if model == "" {
		model = VoyageDefaultModel
	}
	dimensions, ok := voyageModelDimensions[model]
	if !ok {
		dimensions = 1024
	}
	return &Voyage{
		remoteClient: newRemoteClient(apiKey, batchSize),
		baseURL:      baseURL,
		model:        model,
		dimensions:   dimensions,
	}, nil
}

// Name identifies the provider variant.
func (p *Voyage) Name() string { return "voyage" }

// Dimensions is the fixed length of produced vectors.
func (p *Voyage) Dimensions() int { return p.dimensions }

type voyageRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed produces one vector per text, batching internally.
func (p *Voyage) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range p.batches(texts) {
		var resp voyageResponse
		if err := p.postJSON(ctx, p.baseURL+"/embeddings", voyageRequest{Model: p.model, Input: batch}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) != len(batch) {
			return nil, &memoracle.ProviderError{Provider: "voyage", Message: "response count does not match input"}
		}

		ordered := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, &memoracle.ProviderError{Provider: "voyage", Message: "response index out of range"}
			}
			if len(d.Embedding) != p.dimensions {
				return nil, &memoracle.ProviderError{Provider: "voyage", Message: "unexpected embedding size"}
			}
			ordered[d.Index] = d.Embedding
		}
		for _, v := range ordered {
			if v == nil {
				return nil, &memoracle.ProviderError{Provider: "voyage", Message: "missing embedding in response"}
			}
		}
		vectors = append(vectors, ordered...)
	}
	return vectors, nil
}

// EmbedSingle produces one vector for one text.
func (p *Voyage) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

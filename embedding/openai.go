package embedding

import (
	"context"

	"github.com/memoracle/memoracle"
)

// OpenAI defaults.
const (
	OpenAIDefaultBaseURL = "https://api.openai.com/v1"
	OpenAIDefaultModel   = "text-embedding-3-small"
)

// openaiModelDimensions maps known models to their vector sizes.
var openaiModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Ensure OpenAI implements memoracle.EmbeddingProvider at compile time.
var _ memoracle.EmbeddingProvider = (*OpenAI)(nil)

// OpenAI embeds texts through the OpenAI embeddings API, or any
// API-compatible endpoint via a custom base URL.
type OpenAI struct {
	remoteClient
	baseURL    string
	model      string
	dimensions int
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey, baseURL, model string, batchSize int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, memoracle.Errorf(memoracle.EINVALID, "openai: API key required")
	}
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}
	if model == "" {
		model = OpenAIDefaultModel
	}
	dimensions, ok := openaiModelDimensions[model]
	if !ok {
		dimensions = 1536
	}
	return &OpenAI{
		remoteClient: newRemoteClient(apiKey, batchSize),
		baseURL:      baseURL,
		model:        model,
		dimensions:   dimensions,
	}, nil
}

// Name identifies the provider variant.
func (p *OpenAI) Name() string { return "openai" }

// Dimensions is the fixed length of produced vectors.
func (p *OpenAI) Dimensions() int { return p.dimensions }

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed produces one vector per text, batching internally and re-sorting
// each response by its index field.
func (p *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range p.batches(texts) {
		var resp openaiResponse
		err := p.postJSON(ctx, p.baseURL+"/embeddings", openaiRequest{Model: p.model, Input: batch}, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, &memoracle.ProviderError{Provider: "openai", Message: resp.Error.Message}
		}
		if len(resp.Data) != len(batch) {
			return nil, &memoracle.ProviderError{Provider: "openai", Message: "response count does not match input"}
		}

		ordered := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, &memoracle.ProviderError{Provider: "openai", Message: "response index out of range"}
			}
			if len(d.Embedding) != p.dimensions {
				return nil, &memoracle.ProviderError{Provider: "openai", Message: "unexpected embedding size"}
			}
			ordered[d.Index] = d.Embedding
		}
		for _, v := range ordered {
			if v == nil {
				return nil, &memoracle.ProviderError{Provider: "openai", Message: "missing embedding in response"}
			}
		}
		vectors = append(vectors, ordered...)
	}
	return vectors, nil
}

// EmbedSingle produces one vector for one text.
func (p *OpenAI) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

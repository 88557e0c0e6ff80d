package embedding

import (
	"context"

	"github.com/memoracle/memoracle"
	"google.golang.org/genai"
)

// Gemini defaults.
const (
	GeminiDefaultModel      = "gemini-embedding-001"
	GeminiDefaultDimensions = 768
)

// Ensure Gemini implements memoracle.EmbeddingProvider at compile time.
var _ memoracle.EmbeddingProvider = (*Gemini)(nil)

// Gemini embeds texts through the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSz    int
	retry      RetryPolicy
}

// NewGemini creates a Gemini provider around an existing client.
func NewGemini(client *genai.Client, model string, batchSize int) *Gemini {
	if model == "" {
		model = GeminiDefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Gemini{
		client:     client,
		model:      model,
		dimensions: GeminiDefaultDimensions,
		batchSz:    batchSize,
		retry:      DefaultRetryPolicy(),
	}
}

// Name identifies the provider variant.
func (p *Gemini) Name() string { return "gemini" }

// Dimensions is the fixed length of produced vectors.
func (p *Gemini) Dimensions() int { return p.dimensions }

// Embed produces one vector per text, batching internally.
func (p *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	dims := int32(p.dimensions)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSz {
		end := start + p.batchSz
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		var resp *genai.EmbedContentResponse
		err := p.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			resp, err = p.client.Models.EmbedContent(ctx, p.model, contents, config)
			return err
		})
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) != len(batch) {
			return nil, &memoracle.ProviderError{Provider: "gemini", Message: "response count does not match input"}
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) != p.dimensions {
				return nil, &memoracle.ProviderError{Provider: "gemini", Message: "unexpected embedding size"}
			}
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

// EmbedSingle produces one vector for one text.
func (p *Gemini) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

package embedding

import (
	"context"

	"github.com/memoracle/memoracle"
	"google.golang.org/genai"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIBase   string
	BatchSize int
}

// NewProvider builds the provider named by the config. An empty provider
// selects local.
func NewProvider(ctx context.Context, cfg Config) (memoracle.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocal(), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.APIBase, cfg.Model, cfg.BatchSize)
	case "voyage":
		return NewVoyage(cfg.APIKey, cfg.APIBase, cfg.Model, cfg.BatchSize)
	case "cohere":
		return NewCohere(cfg.APIKey, cfg.APIBase, cfg.Model, cfg.BatchSize)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, memoracle.Errorf(memoracle.EINVALID, "gemini: API key required")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, err
		}
		return NewGemini(client, cfg.Model, cfg.BatchSize), nil
	default:
		return nil, memoracle.Errorf(memoracle.EINVALID, "unknown embedding provider %q", cfg.Provider)
	}
}

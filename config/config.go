// Package config loads and validates the user configuration. The key
// set is closed: unknown keys are rejected, out-of-range values are
// reported all at once.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/memoracle/memoracle"
)

// Config is the fully resolved configuration.
type Config struct {
	DataDir     string          `json:"dataDir"`
	Embedding   EmbeddingConfig `json:"embedding"`
	VectorStore VectorConfig    `json:"vectorStore"`
	Worker      WorkerConfig    `json:"worker"`
	Crawler     CrawlerConfig   `json:"crawler"`
	Hybrid      HybridConfig    `json:"hybrid"`
	Retrieval   RetrievalConfig `json:"retrieval"`
	Extractor   ExtractorConfig `json:"extractor"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	APIBase   string `json:"apiBase,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	Provider         string `json:"provider"`
	URL              string `json:"url,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
	CollectionPrefix string `json:"collectionPrefix,omitempty"`
}

// WorkerConfig configures the worker API listener.
type WorkerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// CrawlerConfig tunes the crawl worker pool.
type CrawlerConfig struct {
	Concurrency  int    `json:"concurrency"`
	RequestDelay int    `json:"requestDelay"` // milliseconds
	Timeout      int    `json:"timeout"`      // milliseconds
	MaxPages     int    `json:"maxPages"`
	UserAgent    string `json:"userAgent"`
	Render       string `json:"render"`
	Sitemap      bool   `json:"sitemap"`
}

// HybridConfig tunes score fusion.
type HybridConfig struct {
	Enabled         bool    `json:"enabled"`
	Alpha           float64 `json:"alpha"`
	VectorTopK      int     `json:"vectorTopK,omitempty"`
	KeywordTopK     int     `json:"keywordTopK,omitempty"`
	MinKeywordScore float64 `json:"minKeywordScore,omitempty"`
}

// RetrievalConfig tunes result shaping.
type RetrievalConfig struct {
	MaxChunksPerPage int  `json:"maxChunksPerPage"`
	MaxTotalChars    int  `json:"maxTotalChars"`
	FormatSnippets   bool `json:"formatSnippets"`
	SnippetMaxChars  int  `json:"snippetMaxChars"`
}

// ExtractorConfig selects the main-content reducer.
type ExtractorConfig struct {
	Engine string `json:"engine"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir: filepath.Join(home, ".mem-oracle"),
		Embedding: EmbeddingConfig{
			Provider:  "local",
			BatchSize: 100,
		},
		VectorStore: VectorConfig{
			Provider: "local",
		},
		Worker: WorkerConfig{
			Port: 7432,
			Host: "127.0.0.1",
		},
		Crawler: CrawlerConfig{
			Concurrency:  4,
			RequestDelay: 500,
			Timeout:      30000,
			MaxPages:     1000,
			UserAgent:    "mem-oracle/1.0",
			Render:       "http",
			Sitemap:      true,
		},
		Hybrid: HybridConfig{
			Enabled:         true,
			Alpha:           0.7,
			VectorTopK:      50,
			KeywordTopK:     50,
			MinKeywordScore: 0.01,
		},
		Retrieval: RetrievalConfig{
			MaxChunksPerPage: 3,
			MaxTotalChars:    20000,
			FormatSnippets:   true,
			SnippetMaxChars:  2000,
		},
		Extractor: ExtractorConfig{
			Engine: "readability",
		},
	}
}

// file mirrors Config with optional fields for merging user input over
// defaults.
type file struct {
	DataDir     *string `json:"dataDir"`
	Embedding   *struct {
		Provider  *string `json:"provider"`
		Model     *string `json:"model"`
		APIKey    *string `json:"apiKey"`
		APIBase   *string `json:"apiBase"`
		BatchSize *int    `json:"batchSize"`
	} `json:"embedding"`
	VectorStore *struct {
		Provider         *string `json:"provider"`
		URL              *string `json:"url"`
		APIKey           *string `json:"apiKey"`
		CollectionPrefix *string `json:"collectionPrefix"`
	} `json:"vectorStore"`
	Worker *struct {
		Port *int    `json:"port"`
		Host *string `json:"host"`
	} `json:"worker"`
	Crawler *struct {
		Concurrency  *int    `json:"concurrency"`
		RequestDelay *int    `json:"requestDelay"`
		Timeout      *int    `json:"timeout"`
		MaxPages     *int    `json:"maxPages"`
		UserAgent    *string `json:"userAgent"`
		Render       *string `json:"render"`
		Sitemap      *bool   `json:"sitemap"`
	} `json:"crawler"`
	Hybrid *struct {
		Enabled         *bool    `json:"enabled"`
		Alpha           *float64 `json:"alpha"`
		VectorTopK      *int     `json:"vectorTopK"`
		KeywordTopK     *int     `json:"keywordTopK"`
		MinKeywordScore *float64 `json:"minKeywordScore"`
	} `json:"hybrid"`
	Retrieval *struct {
		MaxChunksPerPage *int  `json:"maxChunksPerPage"`
		MaxTotalChars    *int  `json:"maxTotalChars"`
		FormatSnippets   *bool `json:"formatSnippets"`
		SnippetMaxChars  *int  `json:"snippetMaxChars"`
	} `json:"retrieval"`
	Extractor *struct {
		Engine *string `json:"engine"`
	} `json:"extractor"`
}

// Load reads config.json at path, merges it over the defaults, and
// validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	cfg, err = Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// Parse merges raw JSON over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f file
	if err := dec.Decode(&f); err != nil {
		return cfg, memoracle.Errorf(memoracle.EINVALID, "invalid configuration: %v", err)
	}

	cfg = merge(cfg, f)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// merge overlays the user's partial config onto the defaults. It is
// pure: neither input is mutated.
func merge(base Config, f file) Config {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	setStr(&base.DataDir, f.DataDir)
	if f.Embedding != nil {
		setStr(&base.Embedding.Provider, f.Embedding.Provider)
		setStr(&base.Embedding.Model, f.Embedding.Model)
		setStr(&base.Embedding.APIKey, f.Embedding.APIKey)
		setStr(&base.Embedding.APIBase, f.Embedding.APIBase)
		setInt(&base.Embedding.BatchSize, f.Embedding.BatchSize)
	}
	if f.VectorStore != nil {
		setStr(&base.VectorStore.Provider, f.VectorStore.Provider)
		setStr(&base.VectorStore.URL, f.VectorStore.URL)
		setStr(&base.VectorStore.APIKey, f.VectorStore.APIKey)
		setStr(&base.VectorStore.CollectionPrefix, f.VectorStore.CollectionPrefix)
	}
	if f.Worker != nil {
		setInt(&base.Worker.Port, f.Worker.Port)
		setStr(&base.Worker.Host, f.Worker.Host)
	}
	if f.Crawler != nil {
		setInt(&base.Crawler.Concurrency, f.Crawler.Concurrency)
		setInt(&base.Crawler.RequestDelay, f.Crawler.RequestDelay)
		setInt(&base.Crawler.Timeout, f.Crawler.Timeout)
		setInt(&base.Crawler.MaxPages, f.Crawler.MaxPages)
		setStr(&base.Crawler.UserAgent, f.Crawler.UserAgent)
		setStr(&base.Crawler.Render, f.Crawler.Render)
		setBool(&base.Crawler.Sitemap, f.Crawler.Sitemap)
	}
	if f.Hybrid != nil {
		setBool(&base.Hybrid.Enabled, f.Hybrid.Enabled)
		setFloat(&base.Hybrid.Alpha, f.Hybrid.Alpha)
		setInt(&base.Hybrid.VectorTopK, f.Hybrid.VectorTopK)
		setInt(&base.Hybrid.KeywordTopK, f.Hybrid.KeywordTopK)
		setFloat(&base.Hybrid.MinKeywordScore, f.Hybrid.MinKeywordScore)
	}
	if f.Retrieval != nil {
		setInt(&base.Retrieval.MaxChunksPerPage, f.Retrieval.MaxChunksPerPage)
		setInt(&base.Retrieval.MaxTotalChars, f.Retrieval.MaxTotalChars)
		setBool(&base.Retrieval.FormatSnippets, f.Retrieval.FormatSnippets)
		setInt(&base.Retrieval.SnippetMaxChars, f.Retrieval.SnippetMaxChars)
	}
	if f.Extractor != nil {
		setStr(&base.Extractor.Engine, f.Extractor.Engine)
	}
	return base
}

// Allowed enum values.
var (
	embeddingProviders = []string{"local", "openai", "voyage", "cohere", "gemini"}
	vectorProviders    = []string{"local", "qdrant", "pinecone"}
	renderModes        = []string{"http", "browser", "auto"}
	extractorEngines   = []string{"readability", "trafilatura"}
)

// Validate checks every numeric range and enum, aggregating all
// offending fields into a single error.
func Validate(cfg Config) error {
	var problems []string

	checkEnum := func(field, value string, allowed []string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s: %q is not one of %s", field, value, strings.Join(allowed, "|")))
	}
	checkRange := func(field string, v, lo, hi int) {
		if v < lo || v > hi {
			problems = append(problems, fmt.Sprintf("%s: %d is outside [%d, %d]", field, v, lo, hi))
		}
	}
	checkUnit := func(field string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s: %g is outside [0, 1]", field, v))
		}
	}

	checkEnum("embedding.provider", cfg.Embedding.Provider, embeddingProviders)
	if cfg.Embedding.BatchSize != 0 {
		checkRange("embedding.batchSize", cfg.Embedding.BatchSize, 1, 1000)
	}
	if cfg.Embedding.APIBase != "" {
		if u, err := url.Parse(cfg.Embedding.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("embedding.apiBase: %q is not a valid URL", cfg.Embedding.APIBase))
		}
	}

	checkEnum("vectorStore.provider", cfg.VectorStore.Provider, vectorProviders)

	checkRange("worker.port", cfg.Worker.Port, 1, 65535)

	checkRange("crawler.concurrency", cfg.Crawler.Concurrency, 1, 50)
	checkRange("crawler.requestDelay", cfg.Crawler.RequestDelay, 0, 60000)
	checkRange("crawler.timeout", cfg.Crawler.Timeout, 1000, 120000)
	checkRange("crawler.maxPages", cfg.Crawler.MaxPages, 1, 100000)
	checkEnum("crawler.render", cfg.Crawler.Render, renderModes)

	checkUnit("hybrid.alpha", cfg.Hybrid.Alpha)
	if cfg.Hybrid.VectorTopK != 0 {
		checkRange("hybrid.vectorTopK", cfg.Hybrid.VectorTopK, 1, 1000)
	}
	if cfg.Hybrid.KeywordTopK != 0 {
		checkRange("hybrid.keywordTopK", cfg.Hybrid.KeywordTopK, 1, 1000)
	}
	checkUnit("hybrid.minKeywordScore", cfg.Hybrid.MinKeywordScore)

	checkRange("retrieval.maxChunksPerPage", cfg.Retrieval.MaxChunksPerPage, 1, 20)
	checkRange("retrieval.maxTotalChars", cfg.Retrieval.MaxTotalChars, 1000, 500000)
	checkRange("retrieval.snippetMaxChars", cfg.Retrieval.SnippetMaxChars, 100, 10000)

	checkEnum("extractor.engine", cfg.Extractor.Engine, extractorEngines)

	if len(problems) > 0 {
		return memoracle.Errorf(memoracle.EINVALID, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

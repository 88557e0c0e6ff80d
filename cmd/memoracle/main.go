// Command memoracle runs the local documentation oracle: a crawler,
// indexer and hybrid search engine for documentation sites, exposed
// over HTTP and a stdio tool protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/config"
	"github.com/memoracle/memoracle/crawl"
	"github.com/memoracle/memoracle/embedding"
	"github.com/memoracle/memoracle/extract"
	"github.com/memoracle/memoracle/fs"
	"github.com/memoracle/memoracle/htmltomarkdown"
	memhttp "github.com/memoracle/memoracle/http"
	"github.com/memoracle/memoracle/qdrant"
	"github.com/memoracle/memoracle/readability"
	"github.com/memoracle/memoracle/rod"
	"github.com/memoracle/memoracle/sqlite"
	"github.com/memoracle/memoracle/trafilatura"
)

func main() {
	ctx := context.Background()

	m := NewMain()
	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program: the composition root that wires the
// engine and its collaborators from the configuration.
type Main struct {
	// ConfigPath overrides the config.json location. Set before Run.
	ConfigPath string

	// Config is resolved by Run.
	Config config.Config

	// DB is the metadata store connection.
	DB *sqlite.DB

	// Engine is the wired indexing-and-retrieval engine.
	Engine *crawl.Engine

	renderer memoracle.Renderer
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close releases everything Run opened.
func (m *Main) Close() error {
	if m.renderer != nil {
		_ = m.renderer.Close()
	}
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("memoracle"),
		kong.Description("Local documentation oracle: crawl, index and search documentation sites."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'memoracle --help' to see available commands")
	}
	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	configPath := m.ConfigPath
	if cli.Config != "" {
		configPath = cli.Config
	}

	cfg, err := m.loadConfig(configPath, cli.DataDir)
	if err != nil {
		return err
	}
	m.Config = cfg

	if err := m.wire(ctx, cfg); err != nil {
		return err
	}
	defer m.Close()

	deps.Config = cfg
	deps.Engine = m.Engine

	return kongCtx.Run(deps)
}

// loadConfig resolves the configuration file, applying the data-dir
// override after the merge.
func (m *Main) loadConfig(configPath, dataDirOverride string) (config.Config, error) {
	if configPath == "" {
		base := config.Default().DataDir
		if dataDirOverride != "" {
			base = dataDirOverride
		}
		configPath = filepath.Join(base, "config.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	return cfg, nil
}

// wire builds the engine and its collaborators.
func (m *Main) wire(ctx context.Context, cfg config.Config) error {
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "db")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	m.DB = sqlite.NewDB(filepath.Join(cfg.DataDir, "db", "metadata.db"))
	if err := m.DB.Open(); err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}

	cache := fs.NewContentCache(filepath.Join(cfg.DataDir, "cache"))

	var vectors memoracle.VectorStore
	switch cfg.VectorStore.Provider {
	case "", "local":
		vectors = fs.NewVectorStore(filepath.Join(cfg.DataDir, "vectors"))
	case "qdrant":
		if cfg.VectorStore.URL == "" {
			return memoracle.Errorf(memoracle.EINVALID, "vectorStore.url required for qdrant")
		}
		vectors = qdrant.NewVectorStore(cfg.VectorStore.URL, cfg.VectorStore.APIKey, cfg.VectorStore.CollectionPrefix)
	case "pinecone":
		return memoracle.Errorf(memoracle.EINVALID, "vectorStore.provider pinecone is recognised but not implemented")
	default:
		return memoracle.Errorf(memoracle.EINVALID, "unknown vectorStore.provider %q", cfg.VectorStore.Provider)
	}

	embedder, err := embedding.NewProvider(ctx, embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		APIBase:   cfg.Embedding.APIBase,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return err
	}

	var reducer memoracle.ContentReducer
	switch cfg.Extractor.Engine {
	case "trafilatura":
		reducer = trafilatura.NewReducer()
	default:
		reducer = readability.NewReducer()
	}

	if cfg.Crawler.Render == crawl.RenderBrowser || cfg.Crawler.Render == crawl.RenderAuto {
		renderer, err := rod.NewRenderer()
		if err != nil {
			return fmt.Errorf("starting browser renderer (is Chrome installed?): %w", err)
		}
		m.renderer = renderer
	}

	opts := crawl.DefaultOptions()
	opts.Concurrency = cfg.Crawler.Concurrency
	opts.RequestDelay = time.Duration(cfg.Crawler.RequestDelay) * time.Millisecond
	opts.MaxPages = cfg.Crawler.MaxPages
	opts.Render = cfg.Crawler.Render
	opts.Sitemap = cfg.Crawler.Sitemap
	opts.Hybrid = crawl.HybridOptions{
		Enabled:         cfg.Hybrid.Enabled,
		Alpha:           float32(cfg.Hybrid.Alpha),
		VectorTopK:      cfg.Hybrid.VectorTopK,
		KeywordTopK:     cfg.Hybrid.KeywordTopK,
		MinKeywordScore: float32(cfg.Hybrid.MinKeywordScore),
	}
	opts.Retrieval = crawl.RetrievalOptions{
		MaxChunksPerPage: cfg.Retrieval.MaxChunksPerPage,
		MaxTotalChars:    cfg.Retrieval.MaxTotalChars,
		FormatSnippets:   cfg.Retrieval.FormatSnippets,
		SnippetMaxChars:  cfg.Retrieval.SnippetMaxChars,
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	m.Engine = &crawl.Engine{
		Docsets:   sqlite.NewDocsetService(m.DB),
		Pages:     sqlite.NewPageService(m.DB),
		Chunks:    sqlite.NewChunkService(m.DB),
		Vectors:   vectors,
		Fetcher: memhttp.NewFetcher(cache,
			memhttp.WithTimeout(time.Duration(cfg.Crawler.Timeout)*time.Millisecond),
			memhttp.WithUserAgent(cfg.Crawler.UserAgent)),
		Renderer:  m.renderer,
		Extractor: extract.New(reducer),
		Embedder:  embedder,
		Sitemaps:  memhttp.NewSitemapService(nil),
		Cache:     cache,
		Reducer:   reducer,
		Converter: htmltomarkdown.NewConverter(),
		Limiter:   crawl.NewHostLimiter(time.Duration(cfg.Crawler.RequestDelay) * time.Millisecond),
		Logger:    logger,
		Options:   opts,
	}
	return nil
}

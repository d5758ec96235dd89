package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/compliance-rag/internal/audit"
	"github.com/ziadkadry99/compliance-rag/internal/chunker"
	"github.com/ziadkadry99/compliance-rag/internal/config"
	"github.com/ziadkadry99/compliance-rag/internal/db"
	"github.com/ziadkadry99/compliance-rag/internal/embeddings"
	"github.com/ziadkadry99/compliance-rag/internal/extract"
	"github.com/ziadkadry99/compliance-rag/internal/filter"
	"github.com/ziadkadry99/compliance-rag/internal/indexer"
	"github.com/ziadkadry99/compliance-rag/internal/llm"
	"github.com/ziadkadry99/compliance-rag/internal/rag"
	"github.com/ziadkadry99/compliance-rag/internal/registry"
	"github.com/ziadkadry99/compliance-rag/internal/retrieval"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

// errNoGenerator is returned by commands that never generate answers if
// something asks them to.
var errNoGenerator = errors.New("answer generation is not available for this command")

// app holds the collaborators a command works with.
type app struct {
	cfg   *config.Config
	db    *db.DB
	audit *audit.Store
	index *vectordb.Index
	svc   *rag.Service
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `crag init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openApp wires the document store from config. withGenerator builds the
// LLM provider; commands that never answer questions skip it so they work
// without generation credentials.
func openApp(withGenerator bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	embedder = embeddings.Normalized(embedder)

	var generator llm.Generator = llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errNoGenerator
	})
	if withGenerator {
		provider, err := createLLMProviderFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
		generator = llm.NewGenerator(provider, cfg.Model, cfg.MaxTokens)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	a := &app{cfg: cfg}

	a.db, err = db.Open(filepath.Join(cfg.DataDir, "crag.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.audit = audit.NewStore(a.db)

	var reg registry.Registry
	switch cfg.Registry.Backend {
	case config.RegistrySQLite:
		reg = registry.NewSQLRegistry(a.db)
	default:
		reg = registry.NewFileRegistry(filepath.Join(rag.DocsDir(cfg.DataDir), "metadata.json"))
	}

	a.index, err = vectordb.Open(rag.IndexDir(cfg.DataDir), embedder)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	extractor := extract.NewPDFExtractor(extract.Options{
		OCR:      cfg.Extract.OCR,
		DPI:      cfg.Extract.DPI,
		Language: cfg.Extract.Language,
		Filter:   filter.Default,
	})
	pipeline := indexer.NewPipeline(extractor, chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap), embedder)
	orchestrator := retrieval.New(a.index, embedder, generator, retrieval.Config{
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		ExcerptChars:    cfg.Retrieval.ExcerptChars,
		QueryExpansion:  cfg.Retrieval.QueryExpansion,
		FallbackQuery:   cfg.Retrieval.FallbackQuery,
	})

	a.svc, err = rag.New(rag.Options{
		DataDir:            cfg.DataDir,
		Registry:           reg,
		Index:              a.index,
		Pipeline:           pipeline,
		Orchestrator:       orchestrator,
		Audit:              a.audit,
		RebuildConcurrency: cfg.Ingest.Concurrency,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model), cfg.EmbeddingBaseURL), nil
	case config.ProviderGoogle:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		return embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 0, cfg.EmbeddingBaseURL), nil
	case config.ProviderHuggingFace:
		// Anonymous access works at a lower rate limit.
		token := os.Getenv(config.APIKeyEnvVar(config.ProviderHuggingFace))
		return embeddings.NewHuggingFaceEmbedder(token, model, cfg.EmbeddingBaseURL), nil
	default:
		return nil, fmt.Errorf("provider %s has no embedding API; set embedding_provider", provider)
	}
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(llm.Settings{
		Provider:     string(cfg.Provider),
		Model:        cfg.Model,
		BaseURL:      cfg.BaseURL,
		RateLimitRPM: cfg.RateLimitRPM,
	})
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reconcile repairs state left by an interrupted run before a command
// touches the store.
func (a *app) reconcile(ctx context.Context) {
	report, err := a.svc.Reconcile(ctx)
	if err != nil {
		slog.Warn("reconciling store", "error", err)
		return
	}
	if report != nil {
		slog.Info("index rebuilt from registry", "docs", report.Docs, "chunks", report.Chunks, "failed", len(report.Failed))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

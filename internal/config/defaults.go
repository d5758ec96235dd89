package config

import "time"

// ModelPreset is the default generation and embedding model for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
}

var modelPresets = map[ProviderType]ModelPreset{
	ProviderHuggingFace: {Model: "google/flan-t5-small", EmbeddingModel: "intfloat/e5-small-v2"},
	ProviderOpenAI:      {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	ProviderAnthropic:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: ""},
	ProviderGoogle:      {Model: "gemini-2.5-flash", EmbeddingModel: "text-embedding-004"},
	ProviderOllama:      {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultIncludes are the bulk ingest patterns used when none are set.
var DefaultIncludes = []string{"**/*.pdf"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderHuggingFace,
		Model:             "google/flan-t5-small",
		MaxTokens:         128,
		EmbeddingProvider: ProviderHuggingFace,
		EmbeddingModel:    "intfloat/e5-small-v2",
		DataDir:           "data",
		Registry:          RegistryConfig{Backend: RegistryJSON},
		Chunk:             ChunkConfig{Size: 800, Overlap: 100},
		Extract:           ExtractConfig{OCR: true, DPI: 200},
		Retrieval: RetrievalConfig{
			TopK:            3,
			MaxContextChars: 1200,
			ExcerptChars:    300,
		},
		Retention: RetentionConfig{
			Window:      30 * 24 * time.Hour,
			Interval:    time.Hour,
			AuditMaxAge: 90 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Port:           8000,
			RequestTimeout: 2 * time.Minute,
			MaxUploadMB:    50,
		},
		Ingest: IngestConfig{Concurrency: 2},
	}
}

// GetPreset returns the default models for provider. Providers without
// an embedding API get an empty EmbeddingModel.
func GetPreset(provider ProviderType) ModelPreset {
	if p, ok := modelPresets[provider]; ok {
		return p
	}
	return modelPresets[ProviderHuggingFace]
}

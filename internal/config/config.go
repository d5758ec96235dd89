package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: CRAG_SERVER__PORT sets server.port.
const EnvPrefix = "CRAG_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CRAG_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// CRAG_RETRIEVAL__TOP_K -> retrieval.top_k
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if len(cfg.Ingest.Include) == 0 {
		cfg.Ingest.Include = DefaultIncludes
	}
	// Switching provider without naming a model picks the provider's preset.
	if k.Exists("provider") && !k.Exists("model") {
		cfg.Model = GetPreset(cfg.Provider).Model
	}
	if k.Exists("embedding_provider") && !k.Exists("embedding_model") {
		cfg.EmbeddingModel = GetPreset(cfg.EmbeddingProvider).EmbeddingModel
	}
	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic:   true,
	ProviderOpenAI:      true,
	ProviderGoogle:      true,
	ProviderOllama:      true,
	ProviderHuggingFace: true,
}

// embeddingProviders lists providers that expose an embedding API.
var embeddingProviders = map[ProviderType]bool{
	ProviderOpenAI:      true,
	ProviderGoogle:      true,
	ProviderOllama:      true,
	ProviderHuggingFace: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai, google, ollama, huggingface", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if !embeddingProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be one of openai, google, ollama, huggingface", c.EmbeddingProvider)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Registry.Backend {
	case RegistryJSON, RegistrySQLite:
	default:
		return fmt.Errorf("invalid registry.backend %q: must be json or sqlite", c.Registry.Backend)
	}

	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive")
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be between 0 and chunk.size")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.Retrieval.MaxContextChars <= 0 || c.Retrieval.ExcerptChars <= 0 {
		return fmt.Errorf("retrieval.max_context_chars and retrieval.excerpt_chars must be positive")
	}
	if c.Retention.Window < 0 || c.Retention.Interval < 0 || c.Retention.AuditMaxAge < 0 {
		return fmt.Errorf("retention durations must be non-negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate_limit_rpm must be non-negative")
	}
	if c.Ingest.Concurrency < 0 {
		return fmt.Errorf("ingest.concurrency must be non-negative")
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderHuggingFace:
		return "HF_TOKEN"
	default:
		return ""
	}
}

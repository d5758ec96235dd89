package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic   ProviderType = "anthropic"
	ProviderOpenAI      ProviderType = "openai"
	ProviderGoogle      ProviderType = "google"
	ProviderOllama      ProviderType = "ollama"
	ProviderHuggingFace ProviderType = "huggingface"
)

// RegistryBackend selects where document entries are stored.
type RegistryBackend string

const (
	RegistryJSON   RegistryBackend = "json"
	RegistrySQLite RegistryBackend = "sqlite"
)

// Config is the top-level crag configuration, corresponding to .crag.yml.
type Config struct {
	Provider          ProviderType    `yaml:"provider" koanf:"provider"`
	Model             string          `yaml:"model" koanf:"model"`
	BaseURL           string          `yaml:"base_url,omitempty" koanf:"base_url"`
	MaxTokens         int             `yaml:"max_tokens" koanf:"max_tokens"`
	RateLimitRPM      int             `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`
	EmbeddingProvider ProviderType    `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string          `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingBaseURL  string          `yaml:"embedding_base_url,omitempty" koanf:"embedding_base_url"`
	DataDir           string          `yaml:"data_dir" koanf:"data_dir"`
	Registry          RegistryConfig  `yaml:"registry" koanf:"registry"`
	Chunk             ChunkConfig     `yaml:"chunk" koanf:"chunk"`
	Extract           ExtractConfig   `yaml:"extract" koanf:"extract"`
	Retrieval         RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Retention         RetentionConfig `yaml:"retention" koanf:"retention"`
	Server            ServerConfig    `yaml:"server" koanf:"server"`
	Ingest            IngestConfig    `yaml:"ingest" koanf:"ingest"`
}

// RegistryConfig holds document registry settings.
type RegistryConfig struct {
	Backend RegistryBackend `yaml:"backend" koanf:"backend"`
}

// ChunkConfig holds chunker settings, in runes.
type ChunkConfig struct {
	Size    int `yaml:"size" koanf:"size"`
	Overlap int `yaml:"overlap" koanf:"overlap"`
}

// ExtractConfig controls the optical fallback for scanned PDFs.
type ExtractConfig struct {
	OCR      bool   `yaml:"ocr" koanf:"ocr"`
	DPI      int    `yaml:"dpi" koanf:"dpi"`
	Language string `yaml:"language,omitempty" koanf:"language"`
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	TopK            int    `yaml:"top_k" koanf:"top_k"`
	MaxContextChars int    `yaml:"max_context_chars" koanf:"max_context_chars"`
	ExcerptChars    int    `yaml:"excerpt_chars" koanf:"excerpt_chars"`
	QueryExpansion  string `yaml:"query_expansion,omitempty" koanf:"query_expansion"`
	FallbackQuery   string `yaml:"fallback_query,omitempty" koanf:"fallback_query"`
}

// RetentionConfig controls automatic document expiry.
type RetentionConfig struct {
	Window      time.Duration `yaml:"window" koanf:"window"`
	Interval    time.Duration `yaml:"interval" koanf:"interval"`
	AuditMaxAge time.Duration `yaml:"audit_max_age" koanf:"audit_max_age"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Port           int           `yaml:"port" koanf:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	MaxUploadMB    int           `yaml:"max_upload_mb" koanf:"max_upload_mb"`
	CORSOrigins    []string      `yaml:"cors_origins,omitempty" koanf:"cors_origins"`
}

// IngestConfig controls bulk directory ingestion.
type IngestConfig struct {
	Include     []string `yaml:"include,omitempty" koanf:"include"`
	Exclude     []string `yaml:"exclude,omitempty" koanf:"exclude"`
	Concurrency int      `yaml:"concurrency" koanf:"concurrency"`
}

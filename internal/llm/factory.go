package llm

import (
	"fmt"
	"os"
)

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	Model    string
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
	// RateLimitRPM wraps the provider in a limiter when positive.
	RateLimitRPM int
}

// APIKeyEnvVar returns the environment variable holding the key for a
// provider, or "" when none is needed.
func APIKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "huggingface":
		return "HF_TOKEN"
	default:
		return ""
	}
}

// NewProvider creates a provider from s, reading API keys from the
// environment. Supported providers: anthropic, openai, google, ollama,
// huggingface.
func NewProvider(s Settings) (Provider, error) {
	key := os.Getenv(APIKeyEnvVar(s.Provider))

	var p Provider
	switch s.Provider {
	case "anthropic", "openai", "google":
		if key == "" {
			return nil, fmt.Errorf("%s: %w (%s)", s.Provider, ErrMissingAPIKey, APIKeyEnvVar(s.Provider))
		}
		switch s.Provider {
		case "anthropic":
			p = NewAnthropicProvider(key, s.Model, s.BaseURL)
		case "openai":
			p = NewOpenAIProvider(key, s.Model, s.BaseURL)
		default:
			p = NewGoogleProvider(key, s.Model, s.BaseURL)
		}

	case "huggingface":
		// Anonymous access works for public models at a low rate.
		p = NewHuggingFaceProvider(key, s.Model, s.BaseURL)

	case "ollama":
		host := s.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		p = NewOllamaProvider(host, s.Model)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, s.Provider)
	}

	if s.RateLimitRPM > 0 {
		p = NewRateLimitedProvider(p, s.RateLimitRPM)
	}
	return p, nil
}

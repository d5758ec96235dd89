package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
)

// DefaultPath is where init writes the configuration.
const DefaultPath = ".crag.yml"

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to crag! Let's configure question answering over your PDFs.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Generation provider.
	providerPrompt := promptui.Select{
		Label: "Select the answer generation provider",
		Items: []string{"huggingface", "openai", "anthropic", "google", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	cfg.Model = GetPreset(cfg.Provider).Model

	modelPrompt := promptui.Prompt{
		Label:   "Generation model",
		Default: cfg.Model,
	}
	if cfg.Model, err = modelPrompt.Run(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 2. Embedding provider. Anthropic has no embedding API.
	cfg.EmbeddingProvider = embeddingProviderFor(cfg.Provider)
	embedPrompt := promptui.Select{
		Label:     "Select the embedding provider",
		Items:     []string{"huggingface", "openai", "google", "ollama"},
		CursorPos: indexOf([]string{"huggingface", "openai", "google", "ollama"}, string(cfg.EmbeddingProvider)),
	}
	_, embedStr, err := embedPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("embedding provider selection: %w", err)
	}
	cfg.EmbeddingProvider = ProviderType(embedStr)
	cfg.EmbeddingModel = GetPreset(cfg.EmbeddingProvider).EmbeddingModel

	// 3. Storage.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory for stored PDFs and the index",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	backendPrompt := promptui.Select{
		Label: "Document registry backend",
		Items: []string{"json", "sqlite"},
	}
	_, backend, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("registry backend: %w", err)
	}
	cfg.Registry.Backend = RegistryBackend(backend)

	// 4. Retention.
	retentionPrompt := promptui.Prompt{
		Label:    "Retention window in days (0 keeps documents forever)",
		Default:  "30",
		Validate: validateNonNegativeInt,
	}
	daysStr, err := retentionPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("retention: %w", err)
	}
	days, _ := strconv.Atoi(strings.TrimSpace(daysStr))
	cfg.Retention.Window = time.Duration(days) * 24 * time.Hour

	// 5. Browser access to the HTTP API.
	corsPrompt := promptui.Prompt{
		Label:   "Allowed CORS origins (comma-separated, blank allows any)",
		Default: "",
	}
	corsStr, err := corsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("cors origins: %w", err)
	}
	cfg.Server.CORSOrigins = splitAndTrim(corsStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Check for API keys.
	for _, p := range []ProviderType{cfg.Provider, cfg.EmbeddingProvider} {
		if envVar := APIKeyEnvVar(p); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: set %s in your environment or .env before running crag.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// generation provider.
func embeddingProviderFor(p ProviderType) ProviderType {
	if embeddingProviders[p] {
		return p
	}
	return ProviderOpenAI
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number of days")
	}
	return nil
}

func indexOf(items []string, v string) int {
	for i, it := range items {
		if it == v {
			return i
		}
	}
	return 0
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxTokens bounds generated answers; grounded answers are short.
const DefaultMaxTokens = 128

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// Generator maps a fully rendered prompt to generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type providerGenerator struct {
	provider  Provider
	model     string
	maxTokens int
}

// NewGenerator sends each prompt to p as a single user message with
// temperature 0. maxTokens <= 0 uses DefaultMaxTokens.
func NewGenerator(p Provider, model string, maxTokens int) Generator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &providerGenerator{provider: p, model: model, maxTokens: maxTokens}
}

func (g *providerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.provider.Complete(ctx, CompletionRequest{
		Model:       g.model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.provider.Name(), err)
	}
	return strings.TrimSpace(resp.Content), nil
}

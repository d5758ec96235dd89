package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	ollamaBatchSize      = 32
)

// OllamaEmbedder generates embeddings with a local Ollama instance.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOllamaEmbedder creates an Ollama embedder. baseURL defaults to
// http://localhost:11434.
func NewOllamaEmbedder(model string, dimensions int, baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: newHTTPClient(),
	}
}

func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.model
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	err := batches(len(texts), ollamaBatchSize, func(start, end int) error {
		var resp ollamaEmbedResponse
		req := ollamaEmbedRequest{Model: e.model, Input: texts[start:end]}
		if err := postJSON(ctx, e.httpClient, e.baseURL+"/api/embed", nil, req, &resp); err != nil {
			return fmt.Errorf("ollama embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return fmt.Errorf("ollama returned %d embeddings, expected %d", len(resp.Embeddings), end-start)
		}
		out = append(out, resp.Embeddings...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package embeddings

import (
	"context"
	"fmt"
	"net/http"
)

const (
	googleBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	googleBatchSize = 100
)

// GoogleModel is a Gemini embedding model name.
type GoogleModel string

const (
	ModelGeminiEmbedding001 GoogleModel = "gemini-embedding-001"
	ModelTextEmbedding004   GoogleModel = "text-embedding-004"
)

func (m GoogleModel) dimensions() int {
	switch m {
	case ModelTextEmbedding004:
		return 768
	default:
		return 3072
	}
}

// GoogleEmbedder generates embeddings with the Generative Language API.
type GoogleEmbedder struct {
	apiKey     string
	model      GoogleModel
	baseURL    string
	httpClient *http.Client
}

// NewGoogleEmbedder creates a Google embedder.
func NewGoogleEmbedder(apiKey string, model GoogleModel) *GoogleEmbedder {
	return &GoogleEmbedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    googleBaseURL,
		httpClient: newHTTPClient(),
	}
}

func (e *GoogleEmbedder) Name() string {
	return "google/" + string(e.model)
}

func (e *GoogleEmbedder) Dimensions() int {
	return e.model.dimensions()
}

type googleBatchRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleEmbedRequest struct {
	Model   string        `json:"model"`
	Content googleContent `json:"content"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := "models/" + string(e.model)
	url := fmt.Sprintf("%s/%s:batchEmbedContents", e.baseURL, model)
	headers := map[string]string{"x-goog-api-key": e.apiKey}

	out := make([][]float32, 0, len(texts))
	err := batches(len(texts), googleBatchSize, func(start, end int) error {
		req := googleBatchRequest{Requests: make([]googleEmbedRequest, 0, end-start)}
		for _, text := range texts[start:end] {
			req.Requests = append(req.Requests, googleEmbedRequest{
				Model:   model,
				Content: googleContent{Parts: []googlePart{{Text: text}}},
			})
		}

		var resp googleBatchResponse
		if err := postJSON(ctx, e.httpClient, url, headers, req, &resp); err != nil {
			return fmt.Errorf("google embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return fmt.Errorf("google returned %d embeddings, expected %d", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			if len(emb.Values) == 0 {
				return fmt.Errorf("google embed: %w", ErrEmptyEmbedding)
			}
			out = append(out, emb.Values)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

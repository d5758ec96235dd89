package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

const (
	// DefaultHuggingFaceModel is a small e5 model; inputs are expected to
	// carry the "query: " or "passage: " prefix.
	DefaultHuggingFaceModel = "intfloat/e5-small-v2"

	huggingFaceBaseURL   = "https://router.huggingface.co/hf-inference/models"
	huggingFaceBatchSize = 16
)

// HuggingFaceEmbedder calls the Inference API feature-extraction task.
type HuggingFaceEmbedder struct {
	token      string
	model      string
	baseURL    string
	dimensions atomic.Int64
	httpClient *http.Client
}

// NewHuggingFaceEmbedder creates an embedder for model. baseURL overrides the
// hosted inference endpoint, e.g. for a self-hosted text-embeddings server.
func NewHuggingFaceEmbedder(token, model, baseURL string) *HuggingFaceEmbedder {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	if baseURL == "" {
		baseURL = huggingFaceBaseURL
	}
	return &HuggingFaceEmbedder{
		token:      token,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

func (e *HuggingFaceEmbedder) Name() string {
	return "huggingface/" + e.model
}

// Dimensions is learned from the first response.
func (e *HuggingFaceEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

type featureExtractionRequest struct {
	Inputs  []string        `json:"inputs"`
	Options map[string]bool `json:"options,omitempty"`
}

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	url := e.baseURL + "/" + e.model + "/pipeline/feature-extraction"
	headers := map[string]string{}
	if e.token != "" {
		headers["Authorization"] = "Bearer " + e.token
	}

	out := make([][]float32, 0, len(texts))
	err := batches(len(texts), huggingFaceBatchSize, func(start, end int) error {
		req := featureExtractionRequest{
			Inputs:  texts[start:end],
			Options: map[string]bool{"wait_for_model": true},
		}
		var raw json.RawMessage
		if err := postJSON(ctx, e.httpClient, url, headers, req, &raw); err != nil {
			return fmt.Errorf("huggingface embed: %w", err)
		}
		vecs, err := decodeFeatures(raw)
		if err != nil {
			return fmt.Errorf("huggingface embed: %w", err)
		}
		if len(vecs) != end-start {
			return fmt.Errorf("huggingface returned %d embeddings, expected %d", len(vecs), end-start)
		}
		out = append(out, vecs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		e.dimensions.Store(int64(len(out[0])))
	}
	return out, nil
}

// decodeFeatures accepts a single vector, a list of vectors, or a list of
// token-level matrices (mean-pooled).
func decodeFeatures(raw json.RawMessage) ([][]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, ErrEmptyEmbedding
		}
		return [][]float32{flat}, nil
	}

	var list [][]float32
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if len(v) == 0 {
				return nil, ErrEmptyEmbedding
			}
		}
		return list, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("unrecognised feature-extraction response: %w", err)
	}
	out := make([][]float32, 0, len(tokens))
	for _, m := range tokens {
		v := meanPool(m)
		if len(v) == 0 {
			return nil, ErrEmptyEmbedding
		}
		out = append(out, v)
	}
	return out, nil
}

func meanPool(m [][]float32) []float32 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float32, len(m[0]))
	for _, row := range m {
		for i := range out {
			if i < len(row) {
				out[i] += row[i]
			}
		}
	}
	for i := range out {
		out[i] /= float32(len(m))
	}
	return out
}

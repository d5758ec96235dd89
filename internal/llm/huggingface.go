package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultHuggingFaceModel is a small instruction-tuned seq2seq model.
	DefaultHuggingFaceModel = "google/flan-t5-small"

	defaultHuggingFaceURL = "https://router.huggingface.co/hf-inference/models"
)

// HuggingFaceProvider calls the Inference API text-generation task.
type HuggingFaceProvider struct {
	token   string
	model   string
	baseURL string
	client  *http.Client
}

// NewHuggingFaceProvider creates a provider for model. baseURL overrides the
// hosted inference endpoint.
func NewHuggingFaceProvider(token, model, baseURL string) *HuggingFaceProvider {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	return &HuggingFaceProvider{
		token:   token,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
	DoSample       bool `json:"do_sample"`
	ReturnFullText bool `json:"return_full_text"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func (p *HuggingFaceProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var headers map[string]string
	if p.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + p.token}
	}

	var raw json.RawMessage
	err := doJSON(ctx, p.client, p.baseURL+"/"+model, headers, hfRequest{
		Inputs: req.prompt(),
		Parameters: hfParameters{
			MaxNewTokens: req.MaxTokens,
			// Greedy decoding; the API rejects temperature 0.
			DoSample: req.Temperature > 0,
		},
		Options: hfOptions{WaitForModel: true},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}

	text, err := GeneratedText(raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	return &CompletionResponse{Content: text, Model: model}, nil
}

// GeneratedText extracts the output of a text-generation call. Accepted
// shapes: [{"generated_text": ...}], {"generated_text": ...}, a plain JSON
// string, or a list of strings.
func GeneratedText(raw json.RawMessage) (string, error) {
	type generated struct {
		GeneratedText *string `json:"generated_text"`
	}

	var list []generated
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].GeneratedText != nil {
		return *list[0].GeneratedText, nil
	}

	var single generated
	if err := json.Unmarshal(raw, &single); err == nil && single.GeneratedText != nil {
		return *single.GeneratedText, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil && len(strs) > 0 {
		return strs[0], nil
	}

	return "", errors.New("unrecognised text-generation response")
}

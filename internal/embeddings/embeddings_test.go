package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vecs [][]float32
	err  error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vecs[:len(texts)], nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }
func (s *stubEmbedder) Name() string    { return "stub" }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNormalized(t *testing.T) {
	e := Normalized(&stubEmbedder{vecs: [][]float32{{1, 1}, {0, 5}}})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}
	assert.Equal(t, e, Normalized(e))
}

func TestEmbedOne(t *testing.T) {
	_, err := EmbedOne(context.Background(), &stubEmbedder{vecs: [][]float32{{}}}, "x")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)

	boom := errors.New("boom")
	_, err = EmbedOne(context.Background(), &stubEmbedder{err: boom}, "x")
	assert.ErrorIs(t, err, boom)
}

func TestToChromemFunc(t *testing.T) {
	fn := ToChromemFunc(&stubEmbedder{vecs: [][]float32{{2, 0}}})
	v, err := fn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestBatches(t *testing.T) {
	var got [][2]int
	err := batches(5, 2, func(start, end int) error {
		got = append(got, [2]int{start, end})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, got)
}

func TestDecodeFeatures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want [][]float32
		err  bool
	}{
		{"flat", `[0.1, 0.2]`, [][]float32{{0.1, 0.2}}, false},
		{"list", `[[1, 2], [3, 4]]`, [][]float32{{1, 2}, {3, 4}}, false},
		{"token matrix", `[[[1, 3], [3, 5]]]`, [][]float32{{2, 4}}, false},
		{"empty vector", `[[]]`, nil, true},
		{"object", `{"error": "loading"}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFeatures(json.RawMessage(tt.raw))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHuggingFaceEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/intfloat/e5-small-v2/pipeline/feature-extraction", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		var req featureExtractionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewHuggingFaceEmbedder("hf_test", "", srv.URL)
	assert.Equal(t, "huggingface/intfloat/e5-small-v2", e.Name())
	assert.Equal(t, 0, e.Dimensions())

	texts := make([]string, huggingFaceBatchSize+3)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, float32(len(texts)), vecs[len(texts)-1][0])
	assert.Equal(t, 3, e.Dimensions())
}

func TestHuggingFaceEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHuggingFaceEmbedder("", "m", srv.URL).Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{1, 2})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 768, srv.URL+"/")
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, 768, e.Dimensions())
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("m", 1, srv.URL).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestGoogleEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		var req googleBatchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		body := `{"embeddings":[` + strings.TrimSuffix(strings.Repeat(`{"values":[0.5,0.5]},`, len(req.Requests)), ",") + `]}`
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	e := NewGoogleEmbedder("key", ModelTextEmbedding004)
	e.baseURL = srv.URL
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}, {0.5, 0.5}}, vecs)
	assert.Equal(t, 768, e.Dimensions())
}

func TestEmbed_EmptyInput(t *testing.T) {
	for _, e := range []Embedder{
		NewHuggingFaceEmbedder("", "", "http://127.0.0.1:0"),
		NewOllamaEmbedder("m", 1, "http://127.0.0.1:0"),
		NewGoogleEmbedder("k", ModelGeminiEmbedding001),
		NewOpenAIEmbedder("k", ModelTextEmbedding3Small, "http://127.0.0.1:0"),
	} {
		vecs, err := e.Embed(context.Background(), nil)
		assert.NoError(t, err, e.Name())
		assert.Nil(t, vecs, e.Name())
	}
}

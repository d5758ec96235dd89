// Package embedtest provides a deterministic Embedder for tests.
package embedtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/ziadkadry99/compliance-rag/internal/embeddings"
)

// Embedder hashes lowercase words into a fixed number of buckets and
// normalizes the result, so texts sharing words are similar.
type Embedder struct {
	Dims int
	// Err, when set, is returned for every call.
	Err error

	mu    sync.Mutex
	calls int
}

// New returns an Embedder with 256 dimensions.
func New() *Embedder {
	return &Embedder{Dims: 256}
}

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Vector(t)
	}
	return out, nil
}

// Vector embeds a single text.
func (e *Embedder) Vector(text string) []float32 {
	v := make([]float32, e.Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dims)]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return embeddings.Normalize(v)
}

func (e *Embedder) Dimensions() int { return e.Dims }
func (e *Embedder) Name() string    { return "embedtest" }

// Calls returns how many times Embed was invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

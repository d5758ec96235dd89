package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts an Embedder to the single-text function chromem-go
// calls when a document or query arrives without a precomputed vector.
// chromem expects unit vectors, so results are normalized.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := EmbedOne(ctx, e, text)
		if err != nil {
			return nil, err
		}
		return Normalize(v), nil
	}
}

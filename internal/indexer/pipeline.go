// Package indexer turns PDF bytes into embedded chunks: extract, filter,
// chunk and embed, then hand the batch to the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/chunker"
	"github.com/ziadkadry99/compliance-rag/internal/embeddings"
	"github.com/ziadkadry99/compliance-rag/internal/extract"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

const defaultEmbedBatch = 32

// Inserter is the part of the vector index ingestion writes to.
type Inserter interface {
	InsertOrCreate(ctx context.Context, chunks []vectordb.Chunk) error
}

// Pipeline runs extraction, chunking and embedding for one document at a
// time. It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	extractor  extract.Extractor
	chunker    *chunker.Chunker
	embedder   embeddings.Embedder
	embedBatch int
}

// NewPipeline creates a Pipeline.
func NewPipeline(ex extract.Extractor, ch *chunker.Chunker, emb embeddings.Embedder) *Pipeline {
	return &Pipeline{
		extractor:  ex,
		chunker:    ch,
		embedder:   emb,
		embedBatch: defaultEmbedBatch,
	}
}

// Prepare extracts, chunks and embeds a document without touching the
// index. It fails with ErrExtractionFailed when nothing usable remains.
func (p *Pipeline) Prepare(ctx context.Context, data []byte, filename, docID string) (*Prepared, error) {
	pages, err := p.extractor.Extract(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
	}

	input := make([]chunker.Page, 0, len(pages))
	for _, pg := range pages {
		input = append(input, chunker.Page{Number: pg.Number, Text: pg.Text})
	}
	res := p.chunker.Chunk(chunker.Meta{DocID: docID, Filename: filename}, input)
	if len(res.Chunks) == 0 {
		return nil, fmt.Errorf("%w: %s: every chunk was filtered out", ErrExtractionFailed, filename)
	}

	texts := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := &Prepared{
		DocID:    docID,
		Filename: filename,
		Pages:    len(pages),
		Dropped:  res.Dropped,
		Chunks:   make([]vectordb.Chunk, len(res.Chunks)),
	}
	for i, c := range res.Chunks {
		out.Chunks[i] = vectordb.Chunk{
			DocID:    c.DocID,
			Filename: c.Filename,
			ChunkID:  c.ChunkID,
			Page:     c.Page,
			Text:     c.Text,
			Vector:   vecs[i],
		}
	}
	return out, nil
}

// Ingest prepares a document and appends it to idx.
func (p *Pipeline) Ingest(ctx context.Context, idx Inserter, data []byte, filename, docID string) (*Result, error) {
	start := time.Now()
	prep, err := p.Prepare(ctx, data, filename, docID)
	if err != nil {
		return nil, err
	}
	if err := idx.InsertOrCreate(ctx, prep.Chunks); err != nil {
		return nil, fmt.Errorf("index %s: %w", docID, err)
	}

	res := &Result{
		DocID:    docID,
		Pages:    prep.Pages,
		Chunks:   len(prep.Chunks),
		Dropped:  prep.Dropped,
		Duration: time.Since(start),
	}
	slog.Info("document ingested",
		"doc_id", docID, "filename", filename,
		"pages", res.Pages, "chunks", res.Chunks, "dropped", res.Dropped,
		"duration", res.Duration)
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.embedBatch {
		end := min(start+p.embedBatch, len(texts))
		vecs, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

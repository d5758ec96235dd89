package indexer

import (
	"errors"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

var (
	// ErrExtractionFailed means the document produced no page text or no
	// chunk survived filtering. Nothing is indexed in that case.
	ErrExtractionFailed = errors.New("no extractable text")
	// ErrEmbeddingFailed wraps embedder failures.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// Prepared is a document that has been extracted, chunked and embedded but
// not yet written to the index.
type Prepared struct {
	DocID    string
	Filename string
	Pages    int
	Dropped  int
	Chunks   []vectordb.Chunk
}

// Result summarizes a single ingestion.
type Result struct {
	DocID    string
	Pages    int
	Chunks   int
	Dropped  int
	Duration time.Duration
}

// ProgressFunc is called during batch processing to report progress.
type ProgressFunc func(processed int, total int, current string)

// Package rag is the document store: it owns the registry, the stored PDF
// files and the vector index, and keeps the three consistent.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/compliance-rag/internal/audit"
	"github.com/ziadkadry99/compliance-rag/internal/dirlock"
	"github.com/ziadkadry99/compliance-rag/internal/extract"
	"github.com/ziadkadry99/compliance-rag/internal/indexer"
	"github.com/ziadkadry99/compliance-rag/internal/registry"
	"github.com/ziadkadry99/compliance-rag/internal/retrieval"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

// NoDocumentsMessage is returned by Ask while nothing is indexed.
const NoDocumentsMessage = "No documents uploaded yet. Please upload a PDF first."

var (
	// ErrInvalidInput is returned for uploads that are not PDF files and for
	// empty questions.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown or unavailable document ids.
	ErrNotFound = registry.ErrNotFound
	// ErrExtractionFailed is returned when an upload yields no usable text.
	ErrExtractionFailed = indexer.ErrExtractionFailed
	// ErrEmbeddingFailed is returned when the embedder fails during upload.
	ErrEmbeddingFailed = indexer.ErrEmbeddingFailed
	// ErrGenerationFailed is returned when the generator fails during Ask.
	ErrGenerationFailed = retrieval.ErrGenerationFailed
)

// Recorder receives an entry for every mutation. audit.Store implements it.
type Recorder interface {
	Log(ctx context.Context, e audit.Entry) error
}

// Options configures a Service.
type Options struct {
	// DataDir holds docs/ (stored PDFs) and the ingest state file.
	DataDir      string
	Registry     registry.Registry
	Index        *vectordb.Index
	Pipeline     *indexer.Pipeline
	Orchestrator *retrieval.Orchestrator
	// Audit is optional.
	Audit Recorder
	// RebuildConcurrency bounds parallel document preparation during
	// rebuilds and bulk ingests. Defaults to 2.
	RebuildConcurrency int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service implements upload, ask, list and the consistency operations.
//
// Mutations are serialized within the process by a mutex and across
// processes sharing DataDir by an exclusive lock on the directory. Each
// mutation reloads the index if another process wrote it. Ask, Search and
// List run concurrently with mutations and reload opportunistically.
//
// An upload's chunks become searchable just before its entry is marked
// ready, so an unfiltered Ask racing an upload may cite a document that
// List does not show yet. The reverse never happens.
type Service struct {
	dataDir     string
	docsDir     string
	registry    registry.Registry
	index       *vectordb.Index
	pipeline    *indexer.Pipeline
	answerer    *retrieval.Orchestrator
	recorder    Recorder
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	dirLock *dirlock.Lock
}

// New creates a Service and its storage directories.
func New(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Index == nil || opts.Pipeline == nil || opts.Orchestrator == nil {
		return nil, errors.New("rag: registry, index, pipeline and orchestrator are required")
	}
	if opts.DataDir == "" {
		return nil, errors.New("rag: data dir is required")
	}
	s := &Service{
		dataDir:     opts.DataDir,
		docsDir:     DocsDir(opts.DataDir),
		registry:    opts.Registry,
		index:       opts.Index,
		pipeline:    opts.Pipeline,
		answerer:    opts.Orchestrator,
		recorder:    opts.Audit,
		concurrency: opts.RebuildConcurrency,
		now:         opts.Now,
		dirLock:     dirlock.New(opts.DataDir),
	}
	if s.concurrency < 1 {
		s.concurrency = 2
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := os.MkdirAll(s.docsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}
	return s, nil
}

// DocsDir is where stored PDFs live under dataDir.
func DocsDir(dataDir string) string { return filepath.Join(dataDir, "docs") }

// IndexDir is where the vector index is persisted under dataDir.
func IndexDir(dataDir string) string { return filepath.Join(dataDir, "index") }

// UploadResult describes a successful upload.
type UploadResult struct {
	DocID    string        `json:"doc_id"`
	Filename string        `json:"filename"`
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"-"`
}

// DocumentInfo is a listed document.
type DocumentInfo struct {
	DocID            string    `json:"doc_id"`
	OriginalFilename string    `json:"original_filename"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// Answer is the result of Ask. NoDocuments is set when nothing is indexed,
// in which case Answer carries NoDocumentsMessage.
type Answer struct {
	Answer      string               `json:"answer"`
	Sources     []retrieval.Citation `json:"sources"`
	NoDocuments bool                 `json:"-"`
}

// Upload validates, stores and indexes a PDF. On failure nothing of the
// document remains: no file, no registry entry, no chunks.
func (s *Service) Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if !extract.IsPDF(name, data) {
		return nil, fmt.Errorf("%w: %q is not a PDF file", ErrInvalidInput, filename)
	}

	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	defer unlock()

	docID, res, err := s.ingestLocked(ctx, name, data)
	if err != nil {
		s.record(ctx, audit.Entry{
			ActorType: audit.ActorUser,
			Action:    audit.ActionUploadErr,
			DocID:     docID,
			Summary:   "Upload of " + name + " failed",
			Detail:    err.Error(),
		})
		return nil, err
	}
	s.record(ctx, audit.Entry{
		ActorType:    audit.ActorUser,
		Action:       audit.ActionUpload,
		DocID:        docID,
		Summary:      "Uploaded " + name,
		Detail:       fmt.Sprintf("%d pages, %d chunks indexed, %d dropped", res.Pages, res.Chunks, res.Dropped),
		AffectedDocs: []string{docID},
	})
	return res, nil
}

// ingestLocked runs one upload. The caller holds s.mu.
func (s *Service) ingestLocked(ctx context.Context, name string, data []byte) (string, *UploadResult, error) {
	entry, err := s.stage(ctx, name, data)
	if err != nil {
		return entry.DocID, nil, fmt.Errorf("upload %s: %w", entry.DocID, err)
	}
	docID := entry.DocID

	res, err := s.pipeline.Ingest(ctx, s.index, data, name, docID)
	if err == nil {
		err = s.registry.SetStatus(ctx, docID, registry.StatusReady)
		if err != nil {
			err = fmt.Errorf("mark ready: %w", err)
			s.dropFromIndexLocked(ctx, docID)
		}
	}
	if err != nil {
		s.unstage(ctx, entry)
		return docID, nil, fmt.Errorf("upload %s (%s): %w", docID, name, err)
	}

	return docID, &UploadResult{
		DocID:    docID,
		Filename: name,
		Pages:    res.Pages,
		Chunks:   res.Chunks,
		Dropped:  res.Dropped,
		Duration: res.Duration,
	}, nil
}

// dropFromIndexLocked rebuilds the index without docID after its chunks
// were inserted but the upload could not be completed.
func (s *Service) dropFromIndexLocked(ctx context.Context, docID string) {
	entries, err := s.registry.List(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("listing registry after failed upload", "doc_id", docID, "error", err)
		return
	}
	keep := make([]registry.Entry, 0, len(entries))
	for _, e := range registry.Ready(entries) {
		if e.DocID != docID {
			keep = append(keep, e)
		}
	}
	if _, err := s.rebuildLocked(context.WithoutCancel(ctx), keep); err != nil {
		slog.Error("rebuilding index after failed upload", "doc_id", docID, "error", err)
	}
}

func newDocID() string { return uuid.New().String() }

// Ask answers question from the indexed documents, optionally restricted
// to one document.
func (s *Service) Ask(ctx context.Context, question, docID string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	s.refreshShared()
	if !s.index.Exists() {
		return &Answer{
			Answer:      NoDocumentsMessage,
			Sources:     []retrieval.Citation{},
			NoDocuments: true,
		}, nil
	}
	if err := s.requireReady(ctx, docID); err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}

	ans, err := s.answerer.Answer(ctx, question, docID)
	if errors.Is(err, vectordb.ErrNoIndex) {
		// Cleared between the check above and the search.
		return &Answer{Answer: NoDocumentsMessage, Sources: []retrieval.Citation{}, NoDocuments: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	return &Answer{Answer: ans.Answer, Sources: ans.Sources}, nil
}

// Search returns the raw passages retrieved for query. It reports
// vectordb.ErrNoIndex while nothing is indexed.
func (s *Service) Search(ctx context.Context, query, docID string, k int) ([]vectordb.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	s.refreshShared()
	if err := s.requireReady(ctx, docID); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if !s.index.Exists() {
		return nil, vectordb.ErrNoIndex
	}
	return s.answerer.Search(ctx, query, docID, k)
}

// requireReady fails with ErrNotFound unless docID is empty or names a
// ready document.
func (s *Service) requireReady(ctx context.Context, docID string) error {
	if docID == "" {
		return nil
	}
	e, err := s.registry.Get(ctx, docID)
	if err != nil {
		return fmt.Errorf("doc %s: %w", docID, err)
	}
	if e.Status != registry.StatusReady {
		return fmt.Errorf("doc %s is %s: %w", docID, e.Status, ErrNotFound)
	}
	return nil
}

// lockWrite serializes a mutation against this process and every other
// process using the data dir, then picks up index changes they made.
func (s *Service) lockWrite(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := s.dirLock.Exclusive(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if _, err := s.index.Refresh(); err != nil {
		release()
		s.mu.Unlock()
		return nil, fmt.Errorf("reload index: %w", err)
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

// refreshShared reloads the index for readers when no writer holds the
// data dir. While one does, readers keep the version they have.
func (s *Service) refreshShared() {
	release, err := s.dirLock.TryShared()
	if err != nil {
		if !errors.Is(err, dirlock.ErrLocked) {
			slog.Debug("locking data dir for refresh", "error", err)
		}
		return
	}
	defer release()
	if _, err := s.index.Refresh(); err != nil {
		slog.Warn("reloading index", "error", err)
	}
}

// List returns the ready documents ordered by upload time.
func (s *Service) List(ctx context.Context) ([]DocumentInfo, error) {
	s.refreshShared()
	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	out := make([]DocumentInfo, 0, len(entries))
	for _, e := range registry.Ready(entries) {
		out = append(out, DocumentInfo{
			DocID:            e.DocID,
			OriginalFilename: e.OriginalFilename,
			UploadedAt:       e.UploadedAt,
		})
	}
	return out, nil
}

// Entries returns every registry entry regardless of status.
func (s *Service) Entries(ctx context.Context) ([]registry.Entry, error) {
	return s.registry.List(ctx)
}

// IndexStats reports what the index currently holds.
func (s *Service) IndexStats() (docs, chunks int) {
	return len(s.index.DocIDs()), s.index.Count()
}

func (s *Service) removeFile(stored string) {
	if stored == "" {
		return
	}
	err := os.Remove(filepath.Join(s.docsDir, stored))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("removing stored file", "file", stored, "error", err)
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Log(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("writing audit entry", "action", e.Action, "error", err)
	}
}

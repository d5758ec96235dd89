package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/audit"
	"github.com/ziadkadry99/compliance-rag/internal/indexer"
	"github.com/ziadkadry99/compliance-rag/internal/registry"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

// RebuildReport summarizes a full index rebuild.
type RebuildReport struct {
	Docs   int `json:"docs"`
	Chunks int `json:"chunks"`
	// Failed lists documents whose stored file no longer produced chunks.
	// They are marked failed and left out of the index.
	Failed []string `json:"failed,omitempty"`
}

// SweepResult lists the documents removed by a retention sweep.
type SweepResult struct {
	Removed []string       `json:"removed"`
	Rebuild *RebuildReport `json:"rebuild,omitempty"`
}

// Delete removes a document's file and registry entry and rebuilds the
// index from the remaining ready documents. If the rebuild fails, the
// document's chunks are dropped from the existing index instead.
func (s *Service) Delete(ctx context.Context, docID string) error {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	defer unlock()

	e, err := s.registry.Get(ctx, docID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	s.removeFile(e.StoredFilename)
	if err := s.registry.Remove(ctx, docID); err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	s.forgetIngested(docID)

	report, err := s.rebuildAfterRemovalLocked(ctx, docID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	s.record(ctx, audit.Entry{
		ActorType:    audit.ActorUser,
		Action:       audit.ActionDelete,
		DocID:        docID,
		Summary:      "Deleted " + e.OriginalFilename,
		Detail:       rebuildDetail(report),
		AffectedDocs: []string{docID},
	})
	return nil
}

// Reset removes every stored file, registry entry and index chunk.
func (s *Service) Reset(ctx context.Context) error {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer unlock()

	entries, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		s.removeFile(e.StoredFilename)
		ids = append(ids, e.DocID)
	}
	s.removeStrayFiles(nil)
	if err := s.registry.Clear(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := s.index.Clear(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := os.Remove(s.statePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("removing ingest state", "error", err)
	}

	s.record(ctx, audit.Entry{
		ActorType:    audit.ActorUser,
		Action:       audit.ActionReset,
		Summary:      fmt.Sprintf("Reset removed %d documents", len(ids)),
		AffectedDocs: ids,
	})
	return nil
}

// Sweep removes every document uploaded more than window before now and
// rebuilds the index if anything was removed. A window of zero or less
// expires every document.
func (s *Service) Sweep(ctx context.Context, now time.Time, window time.Duration) (*SweepResult, error) {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	defer unlock()

	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	res := &SweepResult{Removed: []string{}}
	for _, e := range entries {
		if window > 0 && now.Sub(e.UploadedAt) <= window {
			continue
		}
		s.removeFile(e.StoredFilename)
		if err := s.registry.Remove(ctx, e.DocID); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("sweep: remove %s: %w", e.DocID, err)
		}
		res.Removed = append(res.Removed, e.DocID)
	}
	if len(res.Removed) == 0 {
		return res, nil
	}
	s.forgetIngested(res.Removed...)

	report, err := s.rebuildAfterRemovalLocked(ctx, res.Removed...)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	res.Rebuild = report
	slog.Info("retention sweep removed documents", "count", len(res.Removed), "window", window)
	s.record(ctx, audit.Entry{
		ActorType:    audit.ActorSystem,
		Action:       audit.ActionSweep,
		Summary:      fmt.Sprintf("Retention sweep removed %d documents", len(res.Removed)),
		Detail:       "window " + window.String() + ", " + rebuildDetail(report),
		AffectedDocs: res.Removed,
	})
	return res, nil
}

// Rebuild re-ingests every ready document from its stored file and
// replaces the index.
func (s *Service) Rebuild(ctx context.Context, onProgress indexer.ProgressFunc) (*RebuildReport, error) {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	defer unlock()

	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	report, err := s.rebuildWithProgressLocked(ctx, registry.Ready(entries), onProgress)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	s.record(ctx, audit.Entry{
		ActorType: audit.ActorUser,
		Action:    audit.ActionRebuild,
		Summary:   fmt.Sprintf("Rebuilt index from %d documents", report.Docs),
		Detail:    fmt.Sprintf("%d chunks, %d failed", report.Chunks, len(report.Failed)),
	})
	return report, nil
}

// Reconcile repairs state left by an interrupted run. Pending entries and
// their files are removed, stored files without an entry are deleted, and
// the index is rebuilt when its documents differ from the ready registry
// entries or its manifest is unusable.
func (s *Service) Reconcile(ctx context.Context) (*RebuildReport, error) {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	defer unlock()

	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var dropped []string
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Status == registry.StatusPending {
			s.removeFile(e.StoredFilename)
			if err := s.registry.Remove(ctx, e.DocID); err != nil && !errors.Is(err, registry.ErrNotFound) {
				return nil, fmt.Errorf("reconcile: remove %s: %w", e.DocID, err)
			}
			dropped = append(dropped, e.DocID)
			continue
		}
		known[e.StoredFilename] = true
	}
	s.removeStrayFiles(known)

	ready := registry.Ready(entries)
	want := make([]string, len(ready))
	for i, e := range ready {
		want[i] = e.DocID
	}
	slices.Sort(want)

	if !s.index.Stale() && slices.Equal(want, s.index.DocIDs()) {
		if len(dropped) > 0 {
			s.recordReconcile(ctx, dropped, nil)
		}
		return nil, nil
	}

	slog.Info("index out of sync with registry, rebuilding",
		"registry_docs", len(want), "index_docs", len(s.index.DocIDs()), "stale", s.index.Stale())
	report, err := s.rebuildLocked(ctx, ready)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	s.recordReconcile(ctx, dropped, report)
	return report, nil
}

func (s *Service) recordReconcile(ctx context.Context, dropped []string, report *RebuildReport) {
	summary := fmt.Sprintf("Removed %d interrupted uploads", len(dropped))
	detail := "index consistent"
	if report != nil {
		detail = fmt.Sprintf("index rebuilt from %d documents, %d chunks", report.Docs, report.Chunks)
	}
	s.record(ctx, audit.Entry{
		ActorType:    audit.ActorSystem,
		Action:       audit.ActionReconcile,
		Summary:      summary,
		Detail:       detail,
		AffectedDocs: dropped,
	})
}

// rebuildAfterRemovalLocked runs after the files and entries of removed
// were already deleted, so it ignores cancellation of ctx. If the rebuild
// fails, the removed documents are dropped from the current index instead
// and the report is nil. An error means the index may still hold them.
func (s *Service) rebuildAfterRemovalLocked(ctx context.Context, removed ...string) (*RebuildReport, error) {
	ctx = context.WithoutCancel(ctx)
	entries, err := s.registry.List(ctx)
	if err == nil {
		var report *RebuildReport
		report, err = s.rebuildLocked(ctx, registry.Ready(entries))
		if err == nil {
			return report, nil
		}
	}
	slog.Warn("index rebuild failed, dropping removed documents instead", "docs", removed, "error", err)
	if dropErr := s.index.Drop(ctx, removed...); dropErr != nil {
		return nil, errors.Join(err, dropErr)
	}
	return nil, nil
}

func rebuildDetail(report *RebuildReport) string {
	if report == nil {
		return "removed from index without rebuild"
	}
	return fmt.Sprintf("index rebuilt from %d documents", report.Docs)
}

func (s *Service) rebuildLocked(ctx context.Context, ready []registry.Entry) (*RebuildReport, error) {
	return s.rebuildWithProgressLocked(ctx, ready, nil)
}

// rebuildWithProgressLocked prepares every entry from its stored file and
// swaps in a new index built from the results. Entries whose file no
// longer yields chunks are marked failed.
func (s *Service) rebuildWithProgressLocked(ctx context.Context, ready []registry.Entry, onProgress indexer.ProgressFunc) (*RebuildReport, error) {
	jobs := make([]indexer.Job, len(ready))
	for i, e := range ready {
		path := filepath.Join(s.docsDir, e.StoredFilename)
		jobs[i] = indexer.Job{
			DocID:    e.DocID,
			Filename: e.OriginalFilename,
			Load:     func() ([]byte, error) { return os.ReadFile(path) },
		}
	}

	outcomes := indexer.NewBatcher(s.pipeline, s.concurrency, onProgress).PrepareAll(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &RebuildReport{}
	var chunks []vectordb.Chunk
	for _, o := range outcomes {
		if o.Err != nil {
			if errors.Is(o.Err, indexer.ErrEmbeddingFailed) {
				// The embedder is unavailable; a partial index would
				// silently drop documents.
				return nil, fmt.Errorf("doc %s: %w", o.Job.DocID, o.Err)
			}
			slog.Warn("stored document no longer ingests, marking failed",
				"doc_id", o.Job.DocID, "filename", o.Job.Filename, "error", o.Err)
			if err := s.registry.SetStatus(ctx, o.Job.DocID, registry.StatusFailed); err != nil {
				return nil, fmt.Errorf("mark %s failed: %w", o.Job.DocID, err)
			}
			report.Failed = append(report.Failed, o.Job.DocID)
			continue
		}
		report.Docs++
		chunks = append(chunks, o.Prepared.Chunks...)
	}
	report.Chunks = len(chunks)

	if err := s.index.Rebuild(ctx, chunks); err != nil {
		return nil, err
	}
	slog.Debug("index rebuilt", "docs", report.Docs, "chunks", report.Chunks, "failed", len(report.Failed))
	return report, nil
}

// removeStrayFiles deletes stored PDFs not named in keep. A nil keep
// removes every stored PDF.
func (s *Service) removeStrayFiles(keep map[string]bool) {
	entries, err := os.ReadDir(s.docsDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("reading docs dir", "error", err)
		}
		return
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") || keep[name] {
			continue
		}
		slog.Debug("removing unregistered file", "file", name)
		s.removeFile(name)
	}
}

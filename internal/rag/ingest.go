package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/compliance-rag/internal/audit"
	"github.com/ziadkadry99/compliance-rag/internal/extract"
	"github.com/ziadkadry99/compliance-rag/internal/indexer"
	"github.com/ziadkadry99/compliance-rag/internal/registry"
)

const stateFile = "ingest_state.json"

// BulkReport summarizes IngestFiles.
type BulkReport struct {
	Ingested []UploadResult `json:"ingested"`
	// Skipped holds paths whose content was already ingested.
	Skipped []string `json:"skipped"`
	// Failed maps a path to its error message.
	Failed map[string]string `json:"failed"`
}

// IngestFiles uploads many PDFs from disk. Documents are prepared
// concurrently and inserted one by one; a file whose content was ingested
// by an earlier run and is still registered is skipped unless force is
// set.
func (s *Service) IngestFiles(ctx context.Context, paths []string, force bool, onProgress indexer.ProgressFunc) (*BulkReport, error) {
	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	defer unlock()

	state, err := indexer.LoadState(s.statePath())
	if err != nil {
		return nil, fmt.Errorf("load ingest state: %w", err)
	}

	report := &BulkReport{Skipped: []string{}, Failed: map[string]string{}}
	type pending struct {
		path  string
		name  string
		hash  string
		entry registry.Entry
	}
	var queued []pending
	var jobs []indexer.Job

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			report.Failed[path] = err.Error()
			continue
		}
		name := filepath.Base(path)
		if !extract.IsPDF(name, data) {
			report.Failed[path] = ErrInvalidInput.Error() + ": not a PDF file"
			continue
		}
		hash := indexer.HashBytes(data)
		if id, ok := state.Lookup(hash); ok && !force {
			if _, err := s.registry.Get(ctx, id); err == nil {
				report.Skipped = append(report.Skipped, path)
				continue
			}
		}

		entry, err := s.stage(ctx, name, data)
		if err != nil {
			report.Failed[path] = err.Error()
			continue
		}
		queued = append(queued, pending{path: path, name: name, hash: hash, entry: entry})
		stored := filepath.Join(s.docsDir, entry.StoredFilename)
		jobs = append(jobs, indexer.Job{
			DocID:    entry.DocID,
			Filename: name,
			Load:     func() ([]byte, error) { return os.ReadFile(stored) },
		})
	}

	outcomes := indexer.NewBatcher(s.pipeline, s.concurrency, onProgress).PrepareAll(ctx, jobs)
	for i, o := range outcomes {
		q := queued[i]
		err := o.Err
		if err == nil {
			err = s.index.InsertOrCreate(ctx, o.Prepared.Chunks)
		}
		if err == nil {
			err = s.registry.SetStatus(ctx, q.entry.DocID, registry.StatusReady)
			if err != nil {
				s.dropFromIndexLocked(ctx, q.entry.DocID)
			}
		}
		if err != nil {
			s.unstage(ctx, q.entry)
			report.Failed[q.path] = err.Error()
			slog.Warn("bulk ingest failed", "path", q.path, "error", err)
			continue
		}

		state.Record(q.hash, q.entry.DocID)
		report.Ingested = append(report.Ingested, UploadResult{
			DocID:    q.entry.DocID,
			Filename: q.name,
			Pages:    o.Prepared.Pages,
			Chunks:   len(o.Prepared.Chunks),
			Dropped:  o.Prepared.Dropped,
		})
		s.record(ctx, audit.Entry{
			ActorType:    audit.ActorUser,
			Action:       audit.ActionUpload,
			DocID:        q.entry.DocID,
			Summary:      "Uploaded " + q.name,
			Detail:       fmt.Sprintf("bulk ingest from %s, %d chunks", q.path, len(o.Prepared.Chunks)),
			AffectedDocs: []string{q.entry.DocID},
		})
	}

	if len(report.Ingested) > 0 {
		if err := state.Save(); err != nil {
			slog.Warn("saving ingest state", "error", err)
		}
	}
	return report, ctx.Err()
}

// stage stores data and registers a pending entry for it.
func (s *Service) stage(ctx context.Context, name string, data []byte) (registry.Entry, error) {
	docID := newDocID()
	e := registry.Entry{
		DocID:            docID,
		OriginalFilename: name,
		StoredFilename:   docID + ".pdf",
		UploadedAt:       s.now().UTC(),
		Status:           registry.StatusPending,
	}
	if err := os.WriteFile(filepath.Join(s.docsDir, e.StoredFilename), data, 0o644); err != nil {
		return e, fmt.Errorf("store file: %w", err)
	}
	if err := s.registry.Add(ctx, e); err != nil {
		s.removeFile(e.StoredFilename)
		return e, fmt.Errorf("register: %w", err)
	}
	return e, nil
}

// unstage removes a staged file and entry.
func (s *Service) unstage(ctx context.Context, e registry.Entry) {
	s.removeFile(e.StoredFilename)
	err := s.registry.Remove(context.WithoutCancel(ctx), e.DocID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		slog.Error("removing failed upload from registry", "doc_id", e.DocID, "error", err)
	}
}

func (s *Service) statePath() string {
	return filepath.Join(s.dataDir, stateFile)
}

// forgetIngested drops bulk-ingest hashes for removed documents so the
// same files can be ingested again.
func (s *Service) forgetIngested(docIDs ...string) {
	path := s.statePath()
	if _, err := os.Stat(path); err != nil {
		return
	}
	state, err := indexer.LoadState(path)
	if err != nil {
		slog.Warn("loading ingest state", "error", err)
		return
	}
	state.Forget(docIDs...)
	if err := state.Save(); err != nil {
		slog.Warn("saving ingest state", "error", err)
	}
}

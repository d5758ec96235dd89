package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileRegistry keeps entries in a JSON array on disk. Every mutation
// rewrites the file through a temporary file and a rename, so readers of
// the file never see a partial write.
type FileRegistry struct {
	path string
	mu   sync.Mutex
}

// NewFileRegistry uses the JSON file at path, which need not exist yet.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Path returns the backing file.
func (r *FileRegistry) Path() string { return r.path }

func (r *FileRegistry) Add(_ context.Context, e Entry) error {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	for _, x := range entries {
		if x.DocID == e.DocID {
			return fmt.Errorf("%w: %s", ErrExists, e.DocID)
		}
	}
	return r.save(append(entries, e))
}

func (r *FileRegistry) Get(_ context.Context, docID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.DocID == docID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
}

func (r *FileRegistry) List(_ context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.Before(entries[j].UploadedAt)
	})
	return entries, nil
}

func (r *FileRegistry) SetStatus(_ context.Context, docID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].DocID == docID {
			entries[i].Status = status
			return r.save(entries)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, docID)
}

func (r *FileRegistry) Remove(_ context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.DocID == docID {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return r.save(kept)
}

func (r *FileRegistry) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(nil)
}

// load reads the file; a missing file is an empty registry. Entries written
// before statuses existed are treated as ready.
func (r *FileRegistry) load() ([]Entry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	for i := range entries {
		if entries[i].Status == "" {
			entries[i].Status = StatusReady
		}
	}
	return entries, nil
}

func (r *FileRegistry) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Package registry records which uploaded documents exist and where their
// files are stored.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status tracks a document through ingestion. Only ready documents are
// listed, searchable, or rebuilt into the index.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusFailed:
		return true
	}
	return false
}

// ErrNotFound is returned for unknown document ids.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned when adding an id that is already registered.
var ErrExists = errors.New("document already registered")

// Entry describes one uploaded document.
type Entry struct {
	DocID            string    `json:"doc_id"`
	OriginalFilename string    `json:"original_name"`
	StoredFilename   string    `json:"stored_name"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Status           Status    `json:"status"`
}

// UnmarshalJSON also accepts uploaded_at timestamps without a zone offset,
// which are read as UTC.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var raw struct {
		plain
		UploadedAt string `json:"uploaded_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry(raw.plain)
	if raw.UploadedAt == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw.UploadedAt); err == nil {
			e.UploadedAt = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid uploaded_at %q", raw.UploadedAt)
}

// Registry stores document entries. Implementations are safe for
// concurrent use; List returns entries ordered by upload time.
type Registry interface {
	Add(ctx context.Context, e Entry) error
	Get(ctx context.Context, docID string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	SetStatus(ctx context.Context, docID string, status Status) error
	Remove(ctx context.Context, docID string) error
	Clear(ctx context.Context) error
}

// Ready filters entries down to those with StatusReady.
func Ready(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusReady {
			out = append(out, e)
		}
	}
	return out
}

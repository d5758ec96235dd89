package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/db"
)

// timeFormat is fixed width so uploaded_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLRegistry stores entries in the documents table.
type SQLRegistry struct {
	db *db.DB
}

// NewSQLRegistry creates a registry backed by the given database.
func NewSQLRegistry(d *db.DB) *SQLRegistry {
	return &SQLRegistry{db: d}
}

func (r *SQLRegistry) Add(ctx context.Context, e Entry) error {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}

	if _, err := r.Get(ctx, e.DocID); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, e.DocID)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, original_name, stored_name, uploaded_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		e.DocID, e.OriginalFilename, e.StoredFilename, e.UploadedAt.UTC().Format(timeFormat), string(e.Status),
	)
	if err != nil {
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

func (r *SQLRegistry) Get(ctx context.Context, docID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT doc_id, original_name, stored_name, uploaded_at, status
		 FROM documents WHERE doc_id = ?`, docID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return e, nil
}

func (r *SQLRegistry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc_id, original_name, stored_name, uploaded_at, status
		 FROM documents ORDER BY uploaded_at, doc_id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *SQLRegistry) SetStatus(ctx context.Context, docID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE doc_id = ?`, string(status), docID)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	return requireOne(res, docID)
}

func (r *SQLRegistry) Remove(ctx context.Context, docID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("removing document: %w", err)
	}
	return requireOne(res, docID)
}

func (r *SQLRegistry) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e        Entry
		uploaded string
		status   string
	)
	if err := sc.Scan(&e.DocID, &e.OriginalFilename, &e.StoredFilename, &uploaded, &status); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, uploaded)
	if err != nil {
		return nil, fmt.Errorf("parsing uploaded_at %q: %w", uploaded, err)
	}
	e.UploadedAt = t
	e.Status = Status(status)
	return &e, nil
}

func requireOne(res sql.Result, docID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return nil
}

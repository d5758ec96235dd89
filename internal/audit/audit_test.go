package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/compliance-rag/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndGetByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		ID:           "test-1",
		ActorType:    ActorUser,
		ActorID:      "cli",
		Action:       ActionDelete,
		DocID:        "doc-a",
		Summary:      "Deleted kyc.pdf",
		Detail:       "index rebuilt from 2 documents",
		AffectedDocs: []string{"doc-a"},
	}

	if err := store.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got, err := store.GetByID(ctx, "test-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got.ActorType != ActorUser {
		t.Errorf("ActorType = %q, want %q", got.ActorType, ActorUser)
	}
	if got.Action != ActionDelete {
		t.Errorf("Action = %q, want %q", got.Action, ActionDelete)
	}
	if got.DocID != "doc-a" {
		t.Errorf("DocID = %q, want %q", got.DocID, "doc-a")
	}
	if got.Detail != "index rebuilt from 2 documents" {
		t.Errorf("Detail = %q", got.Detail)
	}
	if len(got.AffectedDocs) != 1 || got.AffectedDocs[0] != "doc-a" {
		t.Errorf("AffectedDocs = %v, want [doc-a]", got.AffectedDocs)
	}
	if got.Timestamp.IsZero() || time.Since(got.Timestamp) > time.Minute {
		t.Errorf("Timestamp = %v, want roughly now", got.Timestamp)
	}
}

func TestLogDefaults(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Log(ctx, Entry{Action: ActionReset, Summary: "reset"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected generated ID")
	}
	if entries[0].ActorType != ActorSystem {
		t.Errorf("ActorType = %q, want %q", entries[0].ActorType, ActorSystem)
	}
	if len(entries[0].AffectedDocs) != 0 {
		t.Errorf("AffectedDocs = %v, want empty", entries[0].AffectedDocs)
	}
}

func seed(t *testing.T, store *Store, entries ...Entry) {
	t.Helper()
	for _, e := range entries {
		if err := store.Log(context.Background(), e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
}

func TestQueryFilterByAction(t *testing.T) {
	store := setupStore(t)
	seed(t, store,
		Entry{Action: ActionUpload, DocID: "a"},
		Entry{Action: ActionUpload, DocID: "b"},
		Entry{Action: ActionDelete, DocID: "a"},
	)

	entries, err := store.Query(context.Background(), QueryFilter{Action: ActionUpload})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestQueryFilterByDoc(t *testing.T) {
	store := setupStore(t)
	seed(t, store,
		Entry{Action: ActionUpload, DocID: "a"},
		Entry{Action: ActionSweep, AffectedDocs: []string{"a", "b"}},
		Entry{Action: ActionUpload, DocID: "b"},
		Entry{Action: ActionUpload, DocID: "ab"},
	)

	entries, err := store.Query(context.Background(), QueryFilter{DocID: "a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.DocID == "ab" || e.DocID == "b" {
			t.Errorf("unexpected entry for %q", e.DocID)
		}
	}
}

func TestQueryNewestFirstWithLimitOffset(t *testing.T) {
	store := setupStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed(t, store, Entry{
			ID:        string(rune('a' + i)),
			Action:    ActionUpload,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}

	entries, err := store.Query(context.Background(), QueryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != "d" || entries[1].ID != "c" {
		t.Errorf("got ids %q, %q, want d, c", entries[0].ID, entries[1].ID)
	}

	rest, err := store.Query(context.Background(), QueryFilter{Offset: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("offset without limit: got %d entries, want 2", len(rest))
	}
}

func TestQuerySinceUntil(t *testing.T) {
	store := setupStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store,
		Entry{ID: "old", Action: ActionUpload, Timestamp: base.Add(-48 * time.Hour)},
		Entry{ID: "mid", Action: ActionUpload, Timestamp: base},
		Entry{ID: "new", Action: ActionUpload, Timestamp: base.Add(48 * time.Hour)},
	)

	since, until := base.Add(-time.Hour), base.Add(time.Hour)
	entries, err := store.Query(context.Background(), QueryFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "mid" {
		t.Errorf("got %v, want only mid", entries)
	}
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	now := time.Now()
	seed(t, store,
		Entry{ID: "old", Action: ActionSweep, Timestamp: now.Add(-30 * 24 * time.Hour)},
		Entry{ID: "recent", Action: ActionSweep, Timestamp: now},
	)

	n, err := store.DeleteBefore(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if _, err := store.GetByID(context.Background(), "recent"); err != nil {
		t.Errorf("recent entry gone: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func setupRouter(t *testing.T) (chi.Router, *Store) {
	t.Helper()
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store)
	return r, store
}

func TestHTTPGetByID(t *testing.T) {
	r, store := setupRouter(t)
	seed(t, store, Entry{ID: "e1", Action: ActionUpload, DocID: "a", Summary: "Uploaded a.pdf"})

	req := httptest.NewRequest(http.MethodGet, "/audit/e1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Summary != "Uploaded a.pdf" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestHTTPGetByIDNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/audit/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHTTPQueryWithFilter(t *testing.T) {
	r, store := setupRouter(t)
	seed(t, store,
		Entry{Action: ActionUpload, DocID: "a"},
		Entry{Action: ActionDelete, DocID: "a"},
		Entry{Action: ActionUpload, DocID: "b"},
	)

	req := httptest.NewRequest(http.MethodGet, "/audit/?action=upload&doc_id=a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d entries, want 1", len(got))
	}
}

func TestHTTPQueryBadSince(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/audit/?since=yesterday", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

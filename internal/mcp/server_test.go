package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/compliance-rag/internal/rag"
	"github.com/ziadkadry99/compliance-rag/internal/retrieval"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

// mockStore implements Store for testing.
type mockStore struct {
	docs    []rag.DocumentInfo
	answer  *rag.Answer
	askErr  error
	results []vectordb.Result
	findErr error
	lastK   int
	lastDoc string
}

func (m *mockStore) Ask(_ context.Context, _, docID string) (*rag.Answer, error) {
	m.lastDoc = docID
	if m.askErr != nil {
		return nil, m.askErr
	}
	if len(m.docs) == 0 {
		return &rag.Answer{Answer: rag.NoDocumentsMessage, NoDocuments: true}, nil
	}
	return m.answer, nil
}

func (m *mockStore) Search(_ context.Context, _, docID string, k int) ([]vectordb.Result, error) {
	m.lastK, m.lastDoc = k, docID
	if m.findErr != nil {
		return nil, m.findErr
	}
	if len(m.docs) == 0 {
		return nil, vectordb.ErrNoIndex
	}
	return m.results, nil
}

func (m *mockStore) List(context.Context) ([]rag.DocumentInfo, error) {
	return m.docs, nil
}

func populated() *mockStore {
	return &mockStore{
		docs: []rag.DocumentInfo{
			{DocID: "d1", OriginalFilename: "kyc.pdf", UploadedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		},
		answer: &rag.Answer{
			Answer: "Every two years.",
			Sources: []retrieval.Citation{
				{DocID: "d1", OriginalFilename: "kyc.pdf", ChunkID: 4, Page: 7, Excerpt: "at least once every two years"},
			},
		},
		results: []vectordb.Result{
			{Chunk: vectordb.Chunk{DocID: "d1", Filename: "kyc.pdf", ChunkID: 4, Page: 7, Text: "at least once every two years"}, Similarity: 0.82},
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"ask_documents", askDocumentsTool, "ask_documents"},
		{"search_documents", searchDocumentsTool, "search_documents"},
		{"list_documents", listDocumentsTool, "list_documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	store := populated()
	srv := NewServer(store)
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.store != store {
		t.Error("store not set correctly")
	}
}

func TestHandleAskDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("answer with sources", func(t *testing.T) {
		store := populated()
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "How often?", "doc_id": "d1"}

		result, err := NewServer(store).handleAskDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		if !strings.HasPrefix(text, "Every two years.") || !strings.Contains(text, "kyc.pdf, page 7") {
			t.Errorf("unexpected text %q", text)
		}
		if store.lastDoc != "d1" {
			t.Errorf("doc_id not forwarded, got %q", store.lastDoc)
		}
	})

	t.Run("missing question", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}
		result, _ := NewServer(populated()).handleAskDocuments(ctx, req)
		if !result.IsError {
			t.Error("expected error for missing question")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "anything"}
		result, _ := NewServer(&mockStore{}).handleAskDocuments(ctx, req)
		if result.IsError {
			t.Error("empty store should not be an error")
		}
		if !strings.Contains(resultText(t, result), "No documents uploaded yet") {
			t.Errorf("unexpected text %q", resultText(t, result))
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		store := populated()
		store.askErr = fmt.Errorf("ask: %w", rag.ErrNotFound)
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "q", "doc_id": "nope"}
		result, _ := NewServer(store).handleAskDocuments(ctx, req)
		if !result.IsError || !strings.Contains(resultText(t, result), "list_documents") {
			t.Errorf("expected list_documents hint, got %v", result.Content)
		}
	})

	t.Run("generator failure", func(t *testing.T) {
		store := populated()
		store.askErr = errors.New("model offline")
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "q"}
		result, _ := NewServer(store).handleAskDocuments(ctx, req)
		if !result.IsError {
			t.Error("expected tool error")
		}
	})
}

func TestHandleSearchDocuments(t *testing.T) {
	ctx := context.Background()
	store := populated()
	srv := NewServer(store)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"query": "update frequency"}
	result, err := srv.handleSearchDocuments(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "kyc.pdf p.7 #4") {
		t.Errorf("unexpected text %q", resultText(t, result))
	}
	if store.lastK != 5 {
		t.Errorf("default limit = %d, want 5", store.lastK)
	}

	req.Params.Arguments = map[string]any{"query": "q", "limit": float64(2)}
	srv.handleSearchDocuments(ctx, req)
	if store.lastK != 2 {
		t.Errorf("limit = %d, want 2", store.lastK)
	}

	empty, _ := NewServer(&mockStore{}).handleSearchDocuments(ctx, req)
	if empty.IsError {
		t.Error("empty store should not be an error")
	}

	store.findErr = fmt.Errorf("search: %w", rag.ErrNotFound)
	req.Params.Arguments = map[string]any{"query": "q", "doc_id": "nope"}
	unknown, _ := srv.handleSearchDocuments(ctx, req)
	if !unknown.IsError || !strings.Contains(resultText(t, unknown), "list_documents") {
		t.Errorf("expected list_documents hint, got %v", unknown.Content)
	}
}

func TestHandleListDocuments(t *testing.T) {
	ctx := context.Background()

	result, err := NewServer(populated()).handleListDocuments(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "d1  kyc.pdf") || !strings.Contains(text, "2026-05-01T09:00:00Z") {
		t.Errorf("unexpected text %q", text)
	}

	result, _ = NewServer(&mockStore{}).handleListDocuments(ctx, mcp.CallToolRequest{})
	if !strings.Contains(resultText(t, result), "No documents") {
		t.Errorf("unexpected text %q", resultText(t, result))
	}
}

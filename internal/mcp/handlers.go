package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/compliance-rag/internal/rag"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

const emptyStoreHint = "No documents uploaded yet. Upload a PDF with `crag upload <file>` first."

func (s *Server) handleAskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	docID := request.GetString("doc_id", "")

	ans, err := s.store.Ask(ctx, question, docID)
	if err != nil {
		if errors.Is(err, rag.ErrNotFound) {
			return unknownDocument(docID), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	if ans.NoDocuments {
		return mcp.NewToolResultText(emptyStoreHint), nil
	}
	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	docID := request.GetString("doc_id", "")
	results, err := s.store.Search(ctx, query, docID, limit)
	if errors.Is(err, vectordb.ErrNoIndex) {
		return mcp.NewToolResultText(emptyStoreHint), nil
	}
	if errors.Is(err, rag.ErrNotFound) {
		return unknownDocument(docID), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func unknownDocument(docID string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("unknown document %q. Use list_documents to see valid ids.", docID))
}

func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText(emptyStoreHint), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d document(s):\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "- %s  %s  (uploaded %s)\n", d.DocID, d.OriginalFilename, d.UploadedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// formatAnswer renders an answer with its sources for agent consumption.
func formatAnswer(ans *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(ans.Answer)
	sb.WriteString("\n")
	if len(ans.Sources) == 0 {
		return sb.String()
	}

	sb.WriteString("\nSources:\n")
	for i, src := range ans.Sources {
		fmt.Fprintf(&sb, "%d. %s, page %d (doc %s, chunk %d)\n", i+1, src.OriginalFilename, src.Page, src.DocID, src.ChunkID)
		if src.Excerpt != "" {
			fmt.Fprintf(&sb, "   %q\n", src.Excerpt)
		}
	}
	return sb.String()
}

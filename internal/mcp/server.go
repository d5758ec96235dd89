// Package mcp exposes the document store to MCP clients over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/compliance-rag/internal/rag"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Store is the part of rag.Service the tools call.
type Store interface {
	Ask(ctx context.Context, question, docID string) (*rag.Answer, error)
	Search(ctx context.Context, query, docID string, k int) ([]vectordb.Result, error)
	List(ctx context.Context) ([]rag.DocumentInfo, error)
}

// Server wraps an MCP server that exposes document question answering.
type Server struct {
	store Store
	mcp   *server.MCPServer
}

// NewServer creates a new MCP server over store.
func NewServer(store Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"crag",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(askDocumentsTool, s.handleAskDocuments)
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

package mcp

import "github.com/mark3labs/mcp-go/mcp"

var askDocumentsTool = mcp.NewTool("ask_documents",
	mcp.WithDescription("Answer a question using only the uploaded PDF documents. Returns the answer and the page-level sources it was drawn from."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
	mcp.WithString("doc_id",
		mcp.Description("Restrict the answer to one document (see list_documents)"),
	),
)

var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Return the raw passages most similar to a query, without generating an answer."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithString("doc_id",
		mcp.Description("Restrict results to one document"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of passages to return (default 5)"),
	),
)

var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List the uploaded documents with their ids, filenames and upload times."),
)

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/compliance-rag/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing question answering over the uploaded PDFs to AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		a.reconcile(context.Background())

		mcpserver.Version = Version
		docs, chunks := a.svc.IndexStats()
		fmt.Fprintf(os.Stderr, "crag MCP server started on stdio (documents=%d, chunks=%d)\n", docs, chunks)

		return mcpserver.NewServer(a.svc).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

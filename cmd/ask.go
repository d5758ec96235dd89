package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the uploaded PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.RequestTimeout)
		defer cancel()

		ans, err := a.svc.Ask(ctx, strings.Join(args, " "), docID)
		if err != nil {
			return err
		}
		if ans.NoDocuments {
			fmt.Println(ans.Answer)
			return nil
		}
		if jsonOut {
			return printJSON(ans)
		}

		fmt.Println(ans.Answer)
		if len(ans.Sources) > 0 {
			fmt.Println("\nSources:")
			for i, src := range ans.Sources {
				fmt.Printf("  %d. %s, page %d (doc %s, chunk %d)\n", i+1, src.OriginalFilename, src.Page, src.DocID, src.ChunkID)
				fmt.Printf("     %s\n", truncate(strings.Join(strings.Fields(src.Excerpt), " "), 120))
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the passages retrieved for a query without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.svc.Search(context.Background(), strings.Join(args, " "), docID, limit)
		if errors.Is(err, vectordb.ErrNoIndex) {
			fmt.Println("Index is empty. Upload a PDF with `crag upload` first.")
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(results)
		}
		fmt.Print(vectordb.FormatResults(results))
		return nil
	},
}

func init() {
	askCmd.Flags().String("doc", "", "restrict the answer to one document id")
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	searchCmd.Flags().String("doc", "", "restrict results to one document id")
	searchCmd.Flags().Int("limit", 5, "maximum number of passages")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(askCmd, searchCmd)
}

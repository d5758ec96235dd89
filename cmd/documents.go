package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compliance-rag/internal/progress"
	"github.com/ziadkadry99/compliance-rag/internal/registry"
	"github.com/ziadkadry99/compliance-rag/internal/retention"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := context.Background()

		if all {
			entries, err := a.svc.Entries(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(entries)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOC ID\tFILENAME\tUPLOADED\tSTATUS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.DocID, e.OriginalFilename, e.UploadedAt.Format(time.RFC3339), e.Status)
			}
			return w.Flush()
		}

		docs, err := a.svc.List(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(docs)
		}
		if len(docs) == 0 {
			fmt.Println("No documents uploaded yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOC ID\tFILENAME\tUPLOADED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.DocID, d.OriginalFilename, d.UploadedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Delete a document and rebuild the index without it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every document, registry entry and index chunk",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset deletes all documents; pass --yes to confirm")
		}
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Println("Store reset.")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete documents older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		window := a.cfg.Retention.Window
		if cmd.Flags().Changed("window") {
			window, _ = cmd.Flags().GetDuration("window")
		}
		sw := retention.New(a.svc, a.audit, retention.Config{
			Window:      window,
			AuditMaxAge: a.cfg.Retention.AuditMaxAge,
		})
		res, err := sw.RunOnce(context.Background())
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(res)
		}
		fmt.Printf("Removed %d document(s) older than %s\n", len(res.Removed), window)
		for _, id := range res.Removed {
			fmt.Printf("  - %s\n", id)
		}
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-ingest every stored document and replace the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		reporter := progress.NewReporter("Rebuilding index")
		report, err := a.svc.Rebuild(context.Background(), progress.Func(reporter))
		reporter.Finish()
		if err != nil {
			return err
		}
		fmt.Printf("Index rebuilt: %d documents, %d chunks\n", report.Docs, report.Chunks)
		for _, id := range report.Failed {
			fmt.Printf("  ! %s marked %s\n", id, registry.StatusFailed)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("all", false, "include pending and failed entries")
	listCmd.Flags().Bool("json", false, "output as JSON")
	resetCmd.Flags().Bool("yes", false, "confirm deleting every document")
	sweepCmd.Flags().Duration("window", 0, "retention window (overrides retention.window; 0 removes everything)")
	sweepCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(listCmd, deleteCmd, resetCmd, sweepCmd, rebuildCmd)
}

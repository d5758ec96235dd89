package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compliance-rag/internal/progress"
	"github.com/ziadkadry99/compliance-rag/internal/walker"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload and index a single PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		a.reconcile(ctx)

		res, err := a.svc.Upload(ctx, data, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(res)
		}
		fmt.Printf("Uploaded %s\n", res.Filename)
		fmt.Printf("  doc_id: %s\n", res.DocID)
		fmt.Printf("  pages: %d, chunks: %d, dropped: %d (%s)\n", res.Pages, res.Chunks, res.Dropped, res.Duration.Round(time.Millisecond))
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Upload every PDF found in files and directories",
	Long: `Walks the given directories for PDFs (honouring ingest.include,
ingest.exclude and .gitignore) and uploads them. Files ingested by an
earlier run are skipped unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := walker.Expand(args, walker.WalkerConfig{
			Include:     a.cfg.Ingest.Include,
			Exclude:     a.cfg.Ingest.Exclude,
			MaxFileSize: int64(a.cfg.Server.MaxUploadMB) << 20,
		})
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No PDF files found.")
			return nil
		}

		ctx := context.Background()
		a.reconcile(ctx)

		reporter := progress.NewReporter("Ingesting PDFs")
		report, err := a.svc.IngestFiles(ctx, paths, force, progress.Func(reporter))
		reporter.Finish()
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(report)
		}
		fmt.Printf("Ingested %d, skipped %d, failed %d\n", len(report.Ingested), len(report.Skipped), len(report.Failed))
		for _, r := range report.Ingested {
			fmt.Printf("  + %s  %s (%d chunks)\n", r.DocID, r.Filename, r.Chunks)
		}
		for path, msg := range report.Failed {
			fmt.Printf("  ! %s: %s\n", path, msg)
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d file(s) failed", len(report.Failed))
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().Bool("json", false, "output the result as JSON")
	ingestCmd.Flags().Bool("force", false, "re-ingest files that were ingested before")
	ingestCmd.Flags().Bool("json", false, "output the report as JSON")
	rootCmd.AddCommand(uploadCmd, ingestCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compliance-rag/internal/retention"
	"github.com/ziadkadry99/compliance-rag/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API for uploading PDFs and asking questions about them.
Interrupted uploads are repaired on startup and, when retention is
configured, expired documents are swept in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a.reconcile(ctx)

		sweeper := retention.New(a.svc, a.audit, retention.Config{
			Window:      a.cfg.Retention.Window,
			Interval:    a.cfg.Retention.Interval,
			AuditMaxAge: a.cfg.Retention.AuditMaxAge,
		})
		sweeper.Start(ctx)
		defer sweeper.Stop()

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv := server.New(server.Config{
			Port:            port,
			RequestTimeout:  a.cfg.Server.RequestTimeout,
			MaxUploadBytes:  int64(a.cfg.Server.MaxUploadMB) << 20,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			RetentionWindow: a.cfg.Retention.Window,
		}, a.svc, a.audit)

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		docs, chunks := a.svc.IndexStats()
		fmt.Fprintf(os.Stderr, "crag server %s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Data: %s\n", a.cfg.DataDir)
		fmt.Fprintf(os.Stderr, "  Indexed: %d documents, %d chunks\n", docs, chunks)
		if sweeper.Enabled() {
			fmt.Fprintf(os.Stderr, "  Retention: %s (swept every %s)\n", a.cfg.Retention.Window, a.cfg.Retention.Interval)
		}

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

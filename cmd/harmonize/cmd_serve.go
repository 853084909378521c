package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/triagekit/harmonize/pkg/harmonize"
	"github.com/triagekit/harmonize/pkg/ingest"
	"github.com/triagekit/harmonize/pkg/server"
	"github.com/triagekit/harmonize/pkg/store"
	"github.com/triagekit/harmonize/pkg/watcher"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <report-dir>...",
		Short: "Watch report directories and serve results over HTTP",
		Long: `Watches the given directories for analyzer report files. Whenever a
batch of reports changes, all reports are re-harmonized and the result
is stored as a new run. Results are served over a read-only HTTP API.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runServe,
	}

	cmd.Flags().String("config", "", "Path to JSON config file")
	cmd.Flags().String("addr", ":8787", "HTTP listen address")
	cmd.Flags().String("store-dir", ".harmonize", "Store directory for runs")
	cmd.Flags().Duration("debounce", watcher.DefaultDebounceDelay, "Delay before re-harmonizing after a report change")
	cmd.Flags().String("ai-endpoint", "", "AI completion endpoint for root-cause and fix synthesis")
	cmd.Flags().String("ai-key", "", "API key for the AI endpoint (or HARMONIZE_AI_KEY)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := harmonize.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	h, err := harmonize.New(cfg, aiOptions(cmd)...)
	if err != nil {
		return err
	}

	storeDir, _ := cmd.Flags().GetString("store-dir")
	st, err := store.Open(storeDir)
	if err != nil {
		return err
	}
	defer st.Close()

	// Globs covering every report file under the watched roots.
	patterns := make([]string, 0, len(args)*2)
	for _, root := range args {
		patterns = append(patterns,
			root+"/**/*.json",
			root+"/**/*.ndjson",
		)
	}

	reharmonize := func() {
		batch, err := ingest.Glob(patterns...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest failed: %v\n", err)
			return
		}
		if len(batch.Findings) == 0 {
			return
		}
		result := h.Harmonize(cmd.Context(), batch.Findings)
		runID, err := st.SaveRun(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "save run failed: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "run %s: %d findings from %d report file(s)\n",
			runID, result.Stats.HarmonizedFindings, len(batch.Files))
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	w, err := watcher.New(
		watcher.Config{Paths: args, DebounceDelay: debounce},
		watcher.ReportHandlerFunc(func(map[string]fsnotify.Op) { reharmonize() }),
	)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	// Harmonize whatever is already on disk before serving.
	reharmonize()

	addr, _ := cmd.Flags().GetString("addr")
	srv := server.NewServer(st, addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

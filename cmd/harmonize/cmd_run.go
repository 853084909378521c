package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/triagekit/harmonize/pkg/ai"
	"github.com/triagekit/harmonize/pkg/harmonize"
	"github.com/triagekit/harmonize/pkg/ingest"
	"github.com/triagekit/harmonize/pkg/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <report-glob>...",
		Short: "Harmonize analyzer reports and print the result",
		Long: `Loads findings from JSON report files matching the given globs,
runs the harmonization pipeline, and prints the result.

Examples:
  harmonize run reports/*.json
  harmonize run 'reports/**/*.ndjson' --output json
  harmonize run reports/*.json --store-dir .harmonize --top 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().String("config", "", "Path to JSON config file")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")
	cmd.Flags().Int("top", 0, "Show only the N highest-priority findings")
	cmd.Flags().String("store-dir", "", "Persist the run to a store directory")
	cmd.Flags().String("ai-endpoint", "", "AI completion endpoint for root-cause and fix synthesis")
	cmd.Flags().String("ai-key", "", "API key for the AI endpoint (or HARMONIZE_AI_KEY)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := harmonize.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	h, err := harmonize.New(cfg, aiOptions(cmd)...)
	if err != nil {
		return err
	}

	batch, err := ingest.Glob(args...)
	if err != nil {
		return err
	}
	for _, warning := range batch.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if len(batch.Findings) == 0 {
		return fmt.Errorf("no findings in %d report file(s)", len(batch.Files))
	}

	result := h.Harmonize(cmd.Context(), batch.Findings)

	if dir, _ := cmd.Flags().GetString("store-dir"); dir != "" {
		runID, err := persistRun(dir, result)
		if err != nil {
			return fmt.Errorf("persist run: %w", err)
		}
		fmt.Fprintf(os.Stderr, "stored run %s in %s\n", runID, dir)
	}

	findings := result.Findings
	if top, _ := cmd.Flags().GetInt("top"); top > 0 {
		findings = result.TopN(top)
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(&harmonize.Result{
			Findings: findings,
			Stats:    result.Stats,
			Errors:   result.Errors,
			Warnings: result.Warnings,
		})
	case "table":
		renderTable(os.Stdout, findings)
		renderSummary(os.Stderr, result)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", output)
	}
}

// aiOptions builds harmonizer options from the AI flags. Returns nil
// when no endpoint is configured, leaving AI stages heuristic-only.
func aiOptions(cmd *cobra.Command) []harmonize.Option {
	endpoint, _ := cmd.Flags().GetString("ai-endpoint")
	if endpoint == "" {
		return nil
	}
	key, _ := cmd.Flags().GetString("ai-key")
	if key == "" {
		key = os.Getenv("HARMONIZE_AI_KEY")
	}
	var opts []ai.HTTPOption
	if key != "" {
		opts = append(opts, ai.WithAPIKey(key))
	}
	return []harmonize.Option{harmonize.WithAIClient(ai.NewHTTPClient(endpoint, opts...))}
}

func persistRun(dir string, result *harmonize.Result) (string, error) {
	st, err := store.Open(dir)
	if err != nil {
		return "", err
	}
	defer st.Close()
	return st.SaveRun(result)
}

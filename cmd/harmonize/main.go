// harmonize - merges raw findings from multiple code analyzers into a
// deduplicated, filtered, prioritized report.
//
// Main CLI entrypoint. Provides commands for one-shot harmonization,
// a serve mode with report watching and an HTTP API, and run history.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/triagekit/harmonize/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "harmonize",
		Short: "Harmonize findings from multiple code analyzers",
		Long: `harmonize ingests JSON findings reports written by static analyzers,
merges duplicates, filters likely false positives, correlates related
findings, scores priority, and proposes fixes.

Configuration is read from an optional JSON file (--config) and
HARMONIZE_* environment variables, e.g.:

  HARMONIZE_DEDUP_SIMILARITYTHRESHOLD=0.9
  HARMONIZE_PRIORITY_SEVERITYWEIGHT=0.5`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/triagekit/harmonize/pkg/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored harmonization runs",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}

	cmd.Flags().String("store-dir", ".harmonize", "Store directory for runs")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")

	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("store-dir")
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Run", "Created", "Findings", "Dups", "FPs", "Fixes", "Errors")
	for _, run := range runs {
		table.Append(
			run.ID,
			run.CreatedAt.Local().Format(time.RFC3339),
			fmt.Sprintf("%d", run.Stats.HarmonizedFindings),
			fmt.Sprintf("%d", run.Stats.DuplicatesRemoved),
			fmt.Sprintf("%d", run.Stats.FalsePositives),
			fmt.Sprintf("%d", run.Stats.FixesGenerated),
			fmt.Sprintf("%d", run.Errors),
		)
	}
	table.Render()
	return nil
}

package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/triagekit/harmonize/pkg/harmonize"
)

const maxMessageWidth = 60

func renderTable(w io.Writer, findings []*harmonize.Harmonized) {
	table := tablewriter.NewTable(w)
	table.Header("Score", "Severity", "Impact", "Category", "Location", "Dups", "Fixes", "Message")

	for _, hf := range findings {
		location := filepath.Base(hf.Finding.FilePath)
		if hf.Finding.Line > 0 {
			location = fmt.Sprintf("%s:%d", location, hf.Finding.Line)
		}
		table.Append(
			fmt.Sprintf("%.1f", hf.PriorityScore),
			hf.Finding.Severity,
			hf.ImpactLevel,
			hf.Finding.Category,
			location,
			fmt.Sprintf("%d", hf.DuplicateCount),
			fmt.Sprintf("%d", len(hf.AutoFixes)),
			truncate(hf.Finding.Message, maxMessageWidth),
		)
	}
	table.Render()
}

func renderSummary(w io.Writer, result *harmonize.Result) {
	s := result.Stats
	fmt.Fprintf(w, "\n%d findings in, %d out (%d duplicates merged, %d false positives filtered)\n",
		s.TotalFindings, s.HarmonizedFindings, s.DuplicatesRemoved, s.FalsePositives)
	if s.FixesGenerated > 0 {
		fmt.Fprintf(w, "%d auto-fixes proposed\n", s.FixesGenerated)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "pipeline error: %s\n", e)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

package harmonize

import (
	"testing"

	"github.com/triagekit/harmonize/pkg/finding"
)

func mkFinding(id, file string, line int, severity, category, ruleID, message string) *finding.Finding {
	return &finding.Finding{
		ID:       id,
		Analyzer: "test",
		FilePath: file,
		Line:     line,
		Severity: severity,
		Category: category,
		RuleID:   ruleID,
		Message:  message,
	}
}

func TestDeduplicator_SameRuleNearbyLines(t *testing.T) {
	// Two findings with the same rule in the same file, two lines apart,
	// must collapse into one cluster with the first as primary.
	d := NewDeduplicator(DefaultConfig().Dedup)
	findings := []*finding.Finding{
		mkFinding("f1", "src/auth.py", 10, finding.SevHigh, "security", "SEC-101", "Hardcoded password detected"),
		mkFinding("f2", "src/auth.py", 12, finding.SevHigh, "security", "SEC-101", "Hardcoded credential found"),
	}

	result := d.Deduplicate(findings)
	if len(result.Unique) != 1 {
		t.Fatalf("expected 1 unique finding, got %d", len(result.Unique))
	}
	if result.Unique[0].ID != "f1" {
		t.Errorf("expected first-seen f1 as primary, got %s", result.Unique[0].ID)
	}
	if got := result.DuplicateOf["f2"]; got != "f1" {
		t.Errorf("expected f2 mapped to f1, got %q", got)
	}
}

func TestDeduplicator_PartitionInvariant(t *testing.T) {
	// Every input id appears exactly once: in Unique or as a DuplicateOf key.
	d := NewDeduplicator(DefaultConfig().Dedup)
	findings := []*finding.Finding{
		mkFinding("a", "x.go", 5, finding.SevLow, "quality", "Q1", "unused variable foo"),
		mkFinding("b", "x.go", 6, finding.SevLow, "quality", "Q1", "unused variable foo"),
		mkFinding("c", "y.go", 1, finding.SevMedium, "quality", "Q2", "missing docstring"),
		mkFinding("d", "z.go", 9, finding.SevHigh, "security", "S1", "sql injection"),
	}

	result := d.Deduplicate(findings)

	seen := make(map[string]int)
	for _, f := range result.Unique {
		seen[f.ID]++
	}
	for id := range result.DuplicateOf {
		seen[id]++
	}
	for _, f := range findings {
		if seen[f.ID] != 1 {
			t.Errorf("finding %s appears %d times across the partition", f.ID, seen[f.ID])
		}
	}
}

func TestDeduplicator_CategoryIsolation(t *testing.T) {
	// Identical message and location, different categories: never merged.
	d := NewDeduplicator(DefaultConfig().Dedup)
	findings := []*finding.Finding{
		mkFinding("a", "x.go", 5, finding.SevLow, "security", "", "suspicious call"),
		mkFinding("b", "x.go", 5, finding.SevLow, "quality", "", "suspicious call"),
	}

	result := d.Deduplicate(findings)
	if len(result.Unique) != 2 {
		t.Errorf("expected findings in different categories to stay separate, got %d unique", len(result.Unique))
	}
}

func TestDeduplicator_LineDistanceGate(t *testing.T) {
	cfg := DefaultConfig().Dedup
	d := NewDeduplicator(cfg)

	near := []*finding.Finding{
		mkFinding("a", "x.go", 10, finding.SevLow, "quality", "Q1", "dup"),
		mkFinding("b", "x.go", 10+cfg.MaxDistanceLines, finding.SevLow, "quality", "Q1", "dup"),
	}
	if result := d.Deduplicate(near); len(result.Unique) != 1 {
		t.Errorf("findings exactly MaxDistanceLines apart should merge, got %d unique", len(result.Unique))
	}

	far := []*finding.Finding{
		mkFinding("a", "x.go", 10, finding.SevLow, "quality", "Q1", "dup"),
		mkFinding("b", "x.go", 11+cfg.MaxDistanceLines, finding.SevLow, "quality", "Q1", "dup"),
	}
	if result := d.Deduplicate(far); len(result.Unique) != 2 {
		t.Errorf("findings beyond MaxDistanceLines should not merge, got %d unique", len(result.Unique))
	}

	// Line 0 means unknown and is treated as co-located within the file.
	unknownLine := []*finding.Finding{
		mkFinding("a", "x.go", 0, finding.SevLow, "quality", "Q1", "dup"),
		mkFinding("b", "x.go", 500, finding.SevLow, "quality", "Q1", "dup"),
	}
	if result := d.Deduplicate(unknownLine); len(result.Unique) != 1 {
		t.Errorf("unknown line should co-locate within the file, got %d unique", len(result.Unique))
	}
}

func TestDeduplicator_Disabled(t *testing.T) {
	cfg := DefaultConfig().Dedup
	cfg.Enabled = false
	d := NewDeduplicator(cfg)

	findings := []*finding.Finding{
		mkFinding("a", "x.go", 5, finding.SevLow, "quality", "Q1", "dup"),
		mkFinding("b", "x.go", 5, finding.SevLow, "quality", "Q1", "dup"),
	}
	result := d.Deduplicate(findings)
	if len(result.Unique) != 2 || len(result.DuplicateOf) != 0 {
		t.Errorf("disabled dedup must pass all findings through, got %d unique %d dups",
			len(result.Unique), len(result.DuplicateOf))
	}
}

func TestDeduplicator_Idempotent(t *testing.T) {
	// Running dedup on an already-deduplicated batch changes nothing.
	d := NewDeduplicator(DefaultConfig().Dedup)
	findings := []*finding.Finding{
		mkFinding("a", "x.go", 5, finding.SevLow, "quality", "Q1", "unused variable foo"),
		mkFinding("b", "x.go", 6, finding.SevLow, "quality", "Q1", "unused variable foo"),
		mkFinding("c", "y.go", 1, finding.SevMedium, "style", "Q2", "line too long"),
	}

	first := d.Deduplicate(findings)
	second := d.Deduplicate(first.Unique)
	if len(second.Unique) != len(first.Unique) {
		t.Errorf("second pass changed unique count: %d -> %d", len(first.Unique), len(second.Unique))
	}
	if len(second.DuplicateOf) != 0 {
		t.Errorf("second pass found %d new duplicates", len(second.DuplicateOf))
	}
}

func TestDeduplicator_SemanticSimilarity(t *testing.T) {
	cfg := DefaultConfig().Dedup
	cfg.SimilarityThreshold = 0.5
	d := NewDeduplicator(cfg)

	// No shared rule id, but messages overlap at Jaccard 0.5.
	findings := []*finding.Finding{
		mkFinding("a", "x.go", 5, finding.SevLow, "quality", "", "SQL injection detected"),
		mkFinding("b", "x.go", 6, finding.SevLow, "quality", "", "SQL injection found"),
	}
	if result := d.Deduplicate(findings); len(result.Unique) != 1 {
		t.Errorf("expected semantic merge at threshold 0.5, got %d unique", len(result.Unique))
	}

	cfg.SimilarityThreshold = 0.6
	d = NewDeduplicator(cfg)
	if result := d.Deduplicate(findings); len(result.Unique) != 2 {
		t.Errorf("expected no merge at threshold 0.6, got %d unique", len(result.Unique))
	}
}

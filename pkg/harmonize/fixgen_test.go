package harmonize

import (
	"context"
	"testing"

	"github.com/triagekit/harmonize/pkg/ai"
	"github.com/triagekit/harmonize/pkg/finding"
)

func TestFixGenerator_TemplateMatch(t *testing.T) {
	g := NewFixGenerator(DefaultConfig().FixGen, nil, 0)
	f := mkFinding("f1", "src/db.py", 42, finding.SevHigh, "security", "S608", "Possible SQL injection via string concat")

	fixes := g.GenerateFixes(context.Background(), f, nil)
	if len(fixes) == 0 {
		t.Fatal("expected at least one template fix")
	}
	fix := fixes[0]
	if fix.Strategy != StrategySuggested {
		t.Errorf("sql injection template should be %q, got %q", StrategySuggested, fix.Strategy)
	}
	if fix.FindingID != "f1" {
		t.Errorf("fix not linked to finding: %q", fix.FindingID)
	}
	base := float64(effortSuggested)
	if fix.EffortMinutes != int(base*severityEffortFactor) {
		t.Errorf("high severity should scale effort, got %d", fix.EffortMinutes)
	}
}

func TestFixGenerator_DeterministicIDs(t *testing.T) {
	g := NewFixGenerator(DefaultConfig().FixGen, nil, 0)
	f := mkFinding("f1", "src/db.py", 42, finding.SevHigh, "security", "S608", "SQL injection detected")

	first := g.GenerateFixes(context.Background(), f, nil)
	second := g.GenerateFixes(context.Background(), f, nil)
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("fix counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].FixID != second[i].FixID {
			t.Errorf("fix id not stable across runs: %q vs %q", first[i].FixID, second[i].FixID)
		}
	}

	// A different finding id yields different fix ids.
	other := *f
	other.ID = "f2"
	otherFixes := g.GenerateFixes(context.Background(), &other, nil)
	if len(otherFixes) > 0 && otherFixes[0].FixID == first[0].FixID {
		t.Error("fix ids should differ across findings")
	}
}

func TestFixGenerator_RootCauseNudge(t *testing.T) {
	g := NewFixGenerator(DefaultConfig().FixGen, nil, 0)
	f := mkFinding("f1", "src/db.py", 42, finding.SevHigh, "security", "S608", "SQL injection detected")

	plain := g.GenerateFixes(context.Background(), f, nil)
	corroborated := g.GenerateFixes(context.Background(), f, &RootCause{
		PrimaryCause: "untrusted input",
		Confidence:   0.9,
	})
	if len(plain) == 0 || len(corroborated) == 0 {
		t.Fatal("expected fixes in both cases")
	}
	want := plain[0].ConfidenceScore + rootCauseConfidenceNudge
	if corroborated[0].ConfidenceScore != want {
		t.Errorf("expected nudged confidence %v, got %v", want, corroborated[0].ConfidenceScore)
	}

	// A weak root cause does not nudge.
	weak := g.GenerateFixes(context.Background(), f, &RootCause{Confidence: 0.5})
	if weak[0].ConfidenceScore != plain[0].ConfidenceScore {
		t.Errorf("weak root cause should not change confidence: %v vs %v",
			weak[0].ConfidenceScore, plain[0].ConfidenceScore)
	}
}

func TestFixGenerator_MinConfidenceFilter(t *testing.T) {
	cfg := DefaultConfig().FixGen
	cfg.MinConfidence = 0.7
	g := NewFixGenerator(cfg, nil, 0)

	// The high-complexity template sits at 0.6, below the raised floor.
	f := mkFinding("f1", "src/big.py", 1, finding.SevMedium, "quality", "C901", "Function has high complexity")
	if fixes := g.GenerateFixes(context.Background(), f, nil); len(fixes) != 0 {
		t.Errorf("expected 0.6-confidence template filtered at floor 0.7, got %d fixes", len(fixes))
	}
}

func TestFixGenerator_CapPerFinding(t *testing.T) {
	cfg := DefaultConfig().FixGen
	cfg.MaxFixesPerFinding = 1
	g := NewFixGenerator(cfg, nil, 0)

	// Message matching several templates still yields one fix.
	f := mkFinding("f1", "src/app.py", 1, finding.SevLow, "quality", "Q1",
		"unused variable with missing docstring and line too long")
	fixes := g.GenerateFixes(context.Background(), f, nil)
	if len(fixes) != 1 {
		t.Errorf("expected cap of 1 fix, got %d", len(fixes))
	}
}

func TestFixGenerator_AIFallbackOnlyWithoutTemplates(t *testing.T) {
	cfg := DefaultConfig().FixGen
	cfg.UseAI = true
	client := ai.Static{Response: "FIX 1:\n" +
		"DESCRIPTION: Wrap the call in a retry loop\n" +
		"STRATEGY: suggested\n" +
		"CONFIDENCE: 0.8\n" +
		"EFFORT_MINUTES: 20\n" +
		"RISKS: retries can mask real outages\n" +
		"VALIDATION: fault-injection test\n"}
	g := NewFixGenerator(cfg, client, 0)

	// No template keyword matches this message, so the AI path runs.
	f := mkFinding("f1", "src/net.py", 7, finding.SevMedium, "reliability", "R1", "transient network failure ignored")
	fixes := g.GenerateFixes(context.Background(), f, nil)
	if len(fixes) != 1 {
		t.Fatalf("expected 1 AI fix, got %d", len(fixes))
	}
	fix := fixes[0]
	if fix.Description != "Wrap the call in a retry loop" {
		t.Errorf("unexpected description %q", fix.Description)
	}
	if fix.ConfidenceScore != 0.8 || fix.EffortMinutes != 20 {
		t.Errorf("unexpected parsed fields: %+v", fix)
	}

	// A template match suppresses the AI path entirely.
	templated := mkFinding("f2", "src/db.py", 1, finding.SevHigh, "security", "S1", "SQL injection detected")
	fixes = g.GenerateFixes(context.Background(), templated, nil)
	for _, fx := range fixes {
		if fx.Description == "Wrap the call in a retry loop" {
			t.Error("AI fix emitted despite template match")
		}
	}
}

func TestFixGenerator_Disabled(t *testing.T) {
	cfg := DefaultConfig().FixGen
	cfg.Enabled = false
	g := NewFixGenerator(cfg, nil, 0)
	f := mkFinding("f1", "src/db.py", 1, finding.SevHigh, "security", "S1", "SQL injection detected")
	if fixes := g.GenerateFixes(context.Background(), f, nil); fixes != nil {
		t.Errorf("disabled generator should return nil, got %v", fixes)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"automated", StrategyAutomated},
		{" Manual ", StrategyManual},
		{"infeasible", StrategyInfeasible},
		{"robotic", StrategySuggested},
		{"", StrategySuggested},
	}
	for _, tt := range tests {
		if got := parseStrategy(tt.in); got != tt.want {
			t.Errorf("parseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitFixBlocks(t *testing.T) {
	text := "FIX 1:\nDESCRIPTION: a\n\nFIX 2:\nDESCRIPTION: b\n"
	blocks := splitFixBlocks(text)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %v", len(blocks), blocks)
	}
}

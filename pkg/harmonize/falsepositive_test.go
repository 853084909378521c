package harmonize

import (
	"strings"
	"testing"

	"github.com/triagekit/harmonize/pkg/finding"
)

func TestFalsePositiveFilter_TestFileLowSeverity(t *testing.T) {
	// A low-severity docstring complaint in test code crosses the default
	// threshold and is filtered out.
	f := NewFalsePositiveFilter(DefaultConfig().FalsePositive)
	fnd := mkFinding("f1", "/tests/test_auth.py", 5, finding.SevLow, "quality", "D103", "Missing docstring in test function")

	v := f.Classify(fnd)
	if !v.FalsePositive {
		t.Fatalf("expected false positive, got verdict %+v", v)
	}
	if v.Confidence < fpTestFileConfidence {
		t.Errorf("expected confidence >= %v, got %v", fpTestFileConfidence, v.Confidence)
	}

	// The same complaint at high severity in production code passes.
	genuine := mkFinding("f2", "/src/auth.py", 5, finding.SevHigh, "security", "SEC-1", "SQL injection via unsanitized input")
	if v := f.Classify(genuine); v.FalsePositive {
		t.Errorf("genuine finding misclassified: %+v", v)
	}
}

func TestFalsePositiveFilter_Whitelist(t *testing.T) {
	cfg := DefaultConfig().FalsePositive
	cfg.WhitelistPatterns = []string{"**/legacy/**"}
	f := NewFalsePositiveFilter(cfg)

	fnd := mkFinding("f1", "src/legacy/old.py", 1, finding.SevHigh, "security", "SEC-1", "SQL injection")
	v := f.Classify(fnd)
	if !v.FalsePositive {
		t.Fatalf("whitelisted path should be filtered, got %+v", v)
	}
	if v.Confidence != fpWhitelistConfidence {
		t.Errorf("expected whitelist confidence %v, got %v", fpWhitelistConfidence, v.Confidence)
	}
}

func TestFalsePositiveFilter_GeneratedCode(t *testing.T) {
	f := NewFalsePositiveFilter(DefaultConfig().FalsePositive)
	fnd := mkFinding("f1", "api/service.pb.go", 100, finding.SevMedium, "quality", "Q1", "function exceeds complexity limit")

	v := f.Classify(fnd)
	if !v.FalsePositive || v.Confidence != fpGeneratedConfidence {
		t.Errorf("generated code should score %v, got %+v", fpGeneratedConfidence, v)
	}
}

func TestFalsePositiveFilter_MaxConfidenceWins(t *testing.T) {
	// A finding triggering both a weak and a strong signal takes the
	// strong signal's confidence, not a sum.
	f := NewFalsePositiveFilter(DefaultConfig().FalsePositive)
	fnd := mkFinding("f1", "/vendor/lib/util_test.py", 3, finding.SevLow, "style", "X-style", "consider shorter name")

	v := f.Classify(fnd)
	if v.Confidence != fpGeneratedConfidence {
		t.Errorf("expected max signal confidence %v, got %v", fpGeneratedConfidence, v.Confidence)
	}
	if len(v.Reasons) < 2 {
		t.Errorf("expected multiple triggered signals in reasons, got %v", v.Reasons)
	}
}

func TestFalsePositiveFilter_SeverityMismatch(t *testing.T) {
	f := NewFalsePositiveFilter(DefaultConfig().FalsePositive)

	// High severity with no severity keywords in the message.
	fnd := mkFinding("f1", "src/app.py", 1, finding.SevCritical, "quality", "Q9", "variable name is short")
	v := f.Classify(fnd)
	found := false
	for _, r := range v.Reasons {
		if strings.HasPrefix(r, "severity_mismatch:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected severity_mismatch signal, reasons: %v", v.Reasons)
	}

	// Keyword-bearing message at high severity is consistent.
	ok := mkFinding("f2", "src/app.py", 1, finding.SevCritical, "security", "S1", "buffer overflow in parser")
	for _, r := range f.Classify(ok).Reasons {
		if strings.HasPrefix(r, "severity_mismatch:") {
			t.Errorf("unexpected severity_mismatch for %q", ok.Message)
		}
	}
}

func TestFalsePositiveFilter_ThresholdBoundary(t *testing.T) {
	// Confidence exactly at the threshold classifies as false positive.
	cfg := DefaultConfig().FalsePositive
	cfg.ConfidenceThreshold = fpKnownPhraseConfidence
	f := NewFalsePositiveFilter(cfg)

	fnd := mkFinding("f1", "src/app.py", 1, finding.SevMedium, "quality", "Q1", "unresolved todo comment in critical path handler")
	v := f.Classify(fnd)
	if v.Confidence != fpKnownPhraseConfidence {
		t.Fatalf("expected exactly %v, got %v (reasons %v)", fpKnownPhraseConfidence, v.Confidence, v.Reasons)
	}
	if !v.FalsePositive {
		t.Error("confidence equal to threshold must classify as false positive")
	}
}

func TestFalsePositiveFilter_FilterPartition(t *testing.T) {
	f := NewFalsePositiveFilter(DefaultConfig().FalsePositive)
	findings := []*finding.Finding{
		mkFinding("fp", "/tests/test_x.py", 1, finding.SevInfo, "quality", "D103", "Missing docstring in test function"),
		mkFinding("ok", "src/db.py", 9, finding.SevCritical, "security", "S1", "SQL injection in query builder"),
	}

	valid, fps := f.Filter(findings)
	if len(valid) != 1 || valid[0].ID != "ok" {
		t.Errorf("unexpected valid set: %v", ids(valid))
	}
	if len(fps) != 1 || fps[0].ID != "fp" {
		t.Errorf("unexpected false-positive set: %v", ids(fps))
	}
}

func TestFalsePositiveFilter_Disabled(t *testing.T) {
	cfg := DefaultConfig().FalsePositive
	cfg.Enabled = false
	f := NewFalsePositiveFilter(cfg)

	findings := []*finding.Finding{
		mkFinding("fp", "/tests/test_x.py", 1, finding.SevInfo, "quality", "D103", "Missing docstring in test function"),
	}
	valid, fps := f.Filter(findings)
	if len(valid) != 1 || len(fps) != 0 {
		t.Errorf("disabled filter must pass everything through, got %d valid %d fp", len(valid), len(fps))
	}
}

func ids(findings []*finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ID
	}
	return out
}

package finding

import (
	"testing"
	"time"
)

func TestSeverityRank_Ordering(t *testing.T) {
	prev := -1
	for _, sev := range Severities {
		rank := SeverityRank(sev)
		if rank <= prev {
			t.Errorf("severity %q rank %d not above previous %d", sev, rank, prev)
		}
		prev = rank
	}
	if got := SeverityRank("urgent"); got != -1 {
		t.Errorf("expected -1 for unknown severity, got %d", got)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"HIGH", "high", true},
		{"  Medium ", "medium", true},
		{"critical", "critical", true},
		{"warn", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeSeverity(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeSeverity(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFinding_Time(t *testing.T) {
	f := &Finding{Timestamp: "2026-03-01T10:00:00Z"}
	ts, ok := f.Time()
	if !ok {
		t.Fatal("expected RFC3339 timestamp to parse")
	}
	if ts.UTC() != time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected time: %v", ts)
	}

	// Date-only form is accepted too.
	f = &Finding{Timestamp: "2026-03-01"}
	if _, ok := f.Time(); !ok {
		t.Error("expected date-only timestamp to parse")
	}

	for _, bad := range []string{"", "yesterday", "03/01/2026"} {
		f := &Finding{Timestamp: bad}
		if _, ok := f.Time(); ok {
			t.Errorf("expected timestamp %q not to parse", bad)
		}
	}
}

func TestFinding_Validate(t *testing.T) {
	valid := Finding{
		ID:       "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Analyzer: "lint",
		FilePath: "src/app.py",
		Severity: SevHigh,
		Category: "security",
		Message:  "hardcoded credential",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid finding rejected: %v", err)
	}

	noID := valid
	noID.ID = ""
	if err := noID.Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	badSev := valid
	badSev.Severity = "warning"
	if err := badSev.Validate(); err == nil {
		t.Error("expected error for unknown severity")
	}

	noPath := valid
	noPath.FilePath = ""
	if err := noPath.Validate(); err == nil {
		t.Error("expected error for missing file path")
	}

	// Malformed timestamps are tolerated; age scoring handles them.
	badTime := valid
	badTime.Timestamp = "not-a-time"
	if err := badTime.Validate(); err != nil {
		t.Errorf("malformed timestamp should not fail validation: %v", err)
	}
}

// Package finding defines the input model for the harmonization pipeline:
// raw issues reported by upstream static-analysis tools.
package finding

import (
	"fmt"
	"strings"
	"time"
)

// Severity levels, ordered from least to most severe.
const (
	SevInfo     = "info"
	SevLow      = "low"
	SevMedium   = "medium"
	SevHigh     = "high"
	SevCritical = "critical"
)

// SeverityRank returns a numeric rank for the given severity level:
// info=0, low=1, medium=2, high=3, critical=4. Unknown values return -1.
func SeverityRank(sev string) int {
	switch sev {
	case SevInfo:
		return 0
	case SevLow:
		return 1
	case SevMedium:
		return 2
	case SevHigh:
		return 3
	case SevCritical:
		return 4
	default:
		return -1
	}
}

// Severities lists all valid severity levels in ascending order.
var Severities = []string{SevInfo, SevLow, SevMedium, SevHigh, SevCritical}

// NormalizeSeverity lower-cases and validates a severity string.
// Unknown values return ("", false).
func NormalizeSeverity(s string) (string, bool) {
	sev := strings.ToLower(strings.TrimSpace(s))
	if SeverityRank(sev) < 0 {
		return "", false
	}
	return sev, true
}

// Finding represents a single raw issue from an upstream analyzer.
// Findings are immutable once ingested; the pipeline never modifies them.
type Finding struct {
	ID       string `json:"id"`                 // ULID, assigned at ingest if absent
	Analyzer string `json:"analyzer"`           // Producer identity
	FilePath string `json:"file"`               // Path as reported by the analyzer
	Line     int    `json:"line,omitempty"`     // 1-indexed; 0 = unknown
	Severity string `json:"severity"`           // One of the Sev* constants
	Category string `json:"category"`           // Free-form, e.g. "security", "quality"
	RuleID   string `json:"ruleId,omitempty"`   // Producer-specific rule identifier
	Message  string `json:"message"`            // Human-readable description
	Snippet  string `json:"snippet,omitempty"`  // Offending code excerpt
	// Timestamp is the RFC 3339 creation time. Kept as a string so that a
	// producer's malformed value degrades to a neutral default downstream
	// instead of failing the whole batch at decode time.
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Time parses the finding's timestamp. ok is false when the timestamp is
// missing or unparseable; callers substitute their documented neutral default.
func (f *Finding) Time() (t time.Time, ok bool) {
	if f.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, f.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Validate checks the invariants a well-formed finding must satisfy.
// A validation failure marks the record as malformed at ingest; it never
// aborts a batch.
func (f *Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("finding has no id")
	}
	if _, ok := NormalizeSeverity(f.Severity); !ok {
		return fmt.Errorf("finding %s: invalid severity %q", f.ID, f.Severity)
	}
	if f.FilePath == "" {
		return fmt.Errorf("finding %s: missing file path", f.ID)
	}
	// Timestamps are deliberately not validated: a malformed value
	// degrades to a neutral age score downstream.
	return nil
}

// Package harmonize reduces raw static-analysis findings into a ranked,
// de-duplicated, causally-explained set of actionable issues.
package harmonize

import (
	"time"

	"github.com/triagekit/harmonize/pkg/finding"
)

// Impact levels derived from the priority score.
const (
	ImpactNegligible = "negligible"
	ImpactLow        = "low"
	ImpactMedium     = "medium"
	ImpactHigh       = "high"
	ImpactCritical   = "critical"
)

// Fix strategies, in decreasing order of automation.
const (
	StrategyAutomated  = "automated"
	StrategySuggested  = "suggested"
	StrategyManual     = "manual"
	StrategyInfeasible = "infeasible"
)

// Confidence buckets for auto-fixes.
const (
	ConfidenceVeryHigh = "very_high" // >= 0.9
	ConfidenceHigh     = "high"      // >= 0.75
	ConfidenceMedium   = "medium"    // >= 0.5
	ConfidenceLow      = "low"       // < 0.5
)

// ConfidenceBucket maps a numeric confidence score to its discrete bucket.
func ConfidenceBucket(score float64) string {
	switch {
	case score >= 0.9:
		return ConfidenceVeryHigh
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RootCause is the inferred underlying reason for a finding.
type RootCause struct {
	PrimaryCause        string   `json:"primaryCause"`
	ContributingFactors []string `json:"contributingFactors,omitempty"` // <= 5
	Evidence            []string `json:"evidence,omitempty"`            // <= 5
	Confidence          float64  `json:"confidence"`                    // 0.0–1.0
	RelatedPatterns     []string `json:"relatedPatterns,omitempty"`     // <= 5
}

// AutoFix is a candidate remediation for one finding.
type AutoFix struct {
	FixID           string   `json:"fixId"`     // hash of finding id + template/source key
	FindingID       string   `json:"findingId"` // owner
	Strategy        string   `json:"strategy"`
	Description     string   `json:"description"`
	CodeChange      string   `json:"codeChange,omitempty"`
	ConfidenceScore float64  `json:"confidenceScore"`
	ConfidenceLevel string   `json:"confidenceLevel"`
	EffortMinutes   int      `json:"effortMinutes"`
	Risks           []string `json:"risks,omitempty"`           // <= 5
	Prerequisites   []string `json:"prerequisites,omitempty"`   // <= 5
	ValidationSteps []string `json:"validationSteps,omitempty"` // <= 5
}

// Harmonized wraps one surviving finding with everything the pipeline
// learned about it. Instances are built once per Harmonize call and never
// mutated afterwards.
type Harmonized struct {
	Finding            *finding.Finding `json:"finding"`
	OriginalFindingIDs []string         `json:"originalFindingIds"`
	AffectedFiles      []string         `json:"affectedFiles"` // primary + up to 5 correlated
	PriorityScore      float64          `json:"priorityScore"` // 0–100
	ImpactLevel        string           `json:"impactLevel"`
	BusinessImpact     string           `json:"businessImpact"`
	IsDuplicate        bool             `json:"isDuplicate"`
	DuplicateOf        string           `json:"duplicateOf,omitempty"`
	DuplicateCount     int              `json:"duplicateCount"`
	CorrelatedIDs      []string         `json:"correlatedIds,omitempty"`
	RootCause          *RootCause       `json:"rootCause,omitempty"`
	AutoFixes          []AutoFix        `json:"autoFixes,omitempty"`
}

// Stats holds aggregate counts for one harmonization run.
type Stats struct {
	TotalFindings      int            `json:"totalFindings"`
	HarmonizedFindings int            `json:"harmonizedFindings"`
	DuplicatesRemoved  int            `json:"duplicatesRemoved"`
	FalsePositives     int            `json:"falsePositives"`
	Correlated         int            `json:"correlated"`
	RootCausesFound    int            `json:"rootCausesFound"`
	FixesGenerated     int            `json:"fixesGenerated"`
	BySeverity         map[string]int `json:"bySeverity"`
	ByCategory         map[string]int `json:"byCategory"`
	ByImpact           map[string]int `json:"byImpact"`
	ProcessingTime     time.Duration  `json:"processingTime"`
}

// Result is the output of one Harmonize call: the ranked findings plus
// run diagnostics. Stage failures land in Errors; they are never raised to
// the caller.
type Result struct {
	Findings []*Harmonized `json:"findings"` // sorted by PriorityScore, descending
	Stats    Stats         `json:"stats"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// DedupResult partitions an input batch into unique representatives and a
// duplicate-id → primary-id map. Every input id appears exactly once: either
// in Unique or as a key of DuplicateOf.
type DedupResult struct {
	Unique      []*finding.Finding
	DuplicateOf map[string]string
}

// CorrelationGraph is the strictly bidirectional view of the correlation
// relation, for visualization. Only mutually-listed pairs become edges.
type CorrelationGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type GraphNode struct {
	ID       string `json:"id"`
	FilePath string `json:"file"`
	Category string `json:"category"`
	Severity string `json:"severity"`
}

type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

package harmonize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/triagekit/harmonize/pkg/ai"
	"github.com/triagekit/harmonize/pkg/finding"
)

var fixLog = log.New(os.Stderr, "[harmonize:fixgen] ", log.Ltime)

// FixGenerator proposes candidate remediations for findings: static
// templates first, with a generative fallback when no template applies.
// Fix ids are content-derived, so re-harmonizing the same batch yields the
// same ids, letting downstream systems treat fixes as idempotent.
type FixGenerator struct {
	cfg     FixGenConfig
	client  ai.Client
	timeout time.Duration
}

// NewFixGenerator creates a generator. A nil client disables the
// generative path, leaving templates only.
func NewFixGenerator(cfg FixGenConfig, client ai.Client, timeout time.Duration) *FixGenerator {
	if client == nil {
		client = ai.Null{}
	}
	return &FixGenerator{cfg: cfg, client: client, timeout: timeout}
}

// fixTemplate is one entry of the static remediation table. A template
// matches when any of its keywords appears in the finding's message or
// rule id; all matching templates emit fixes.
type fixTemplate struct {
	key         string
	keywords    []string
	strategy    string
	confidence  float64
	description string
	codeChange  string
	risks       []string
	prereqs     []string
	validation  []string
}

var fixTemplates = []fixTemplate{
	{
		key:         "hardcoded_credential",
		keywords:    []string{"hardcoded", "hard-coded", "password", "api key", "secret"},
		strategy:    StrategySuggested,
		confidence:  0.85,
		description: "Move the credential into an environment variable or secret manager and rotate the exposed value",
		risks:       []string{"exposed value must be rotated, not just moved", "deploy environments need the new variable"},
		prereqs:     []string{"secret storage available in all environments"},
		validation:  []string{"grep for the literal value across the repository", "verify the service starts with the injected secret"},
	},
	{
		key:         "sql_injection",
		keywords:    []string{"sql injection", "sqli", "string concat", "unparameterized"},
		strategy:    StrategySuggested,
		confidence:  0.8,
		description: "Replace string-built SQL with parameterized queries or a prepared statement",
		risks:       []string{"query semantics can shift subtly when rewriting", "ORM escaping rules differ per driver"},
		validation:  []string{"run the query against known-malicious input", "re-run the reporting analyzer"},
	},
	{
		key:         "high_complexity",
		keywords:    []string{"high complexity", "cyclomatic", "too many branches"},
		strategy:    StrategyManual,
		confidence:  0.6,
		description: "Extract independent branches into named helper functions and add unit tests per branch",
		risks:       []string{"behavior changes if branch conditions are entangled"},
		prereqs:     []string{"test coverage over the affected function"},
		validation:  []string{"existing tests pass", "complexity metric drops below threshold"},
	},
	{
		key:         "duplicate_code",
		keywords:    []string{"duplicate code", "code clone", "duplicated block"},
		strategy:    StrategyManual,
		confidence:  0.6,
		description: "Extract the duplicated block into a shared function and call it from each site",
		risks:       []string{"the clones may have drifted apart in subtle ways"},
		validation:  []string{"diff the clone sites before deleting", "existing tests pass"},
	},
	{
		key:         "missing_docstring",
		keywords:    []string{"missing docstring", "missing documentation", "undocumented"},
		strategy:    StrategyAutomated,
		confidence:  0.9,
		description: "Add a documentation comment describing the symbol's purpose and parameters",
		validation:  []string{"doc linter passes"},
	},
	{
		key:         "line_too_long",
		keywords:    []string{"line too long", "exceeds maximum line"},
		strategy:    StrategyAutomated,
		confidence:  0.95,
		description: "Re-wrap the line with the project formatter",
		validation:  []string{"formatter reports no changes on second run"},
	},
	{
		key:         "missing_whitespace",
		keywords:    []string{"missing whitespace", "whitespace around", "expected blank line"},
		strategy:    StrategyAutomated,
		confidence:  0.95,
		description: "Apply the project formatter to normalize whitespace",
		validation:  []string{"formatter reports no changes on second run"},
	},
	{
		key:         "vulnerable_dependency",
		keywords:    []string{"vulnerable dependency", "known vulnerability", "cve-"},
		strategy:    StrategySuggested,
		confidence:  0.75,
		description: "Upgrade the dependency to the first patched release listed in the advisory",
		risks:       []string{"breaking API changes between versions"},
		prereqs:     []string{"changelog reviewed between current and patched version"},
		validation:  []string{"dependency audit reports no advisory", "integration tests pass"},
	},
	{
		key:         "unused_code",
		keywords:    []string{"unused variable", "unused import", "dead code", "unreachable"},
		strategy:    StrategyAutomated,
		confidence:  0.9,
		description: "Delete the unused declaration",
		risks:       []string{"reflection or generated callers will not show up in static analysis"},
		validation:  []string{"build succeeds", "existing tests pass"},
	},
}

// GenerateFixes proposes candidate fixes for a finding, ordered as
// generated, capped at MaxFixesPerFinding, and filtered to MinConfidence.
// Returns nil when the stage is disabled.
func (g *FixGenerator) GenerateFixes(ctx context.Context, f *finding.Finding, rootCause *RootCause) []AutoFix {
	if !g.cfg.Enabled {
		return nil
	}

	fixes := g.templateFixes(f, rootCause)

	// The generative path only runs when no template matched; templates
	// are cheaper, deterministic, and calibrated.
	if len(fixes) == 0 && g.cfg.UseAI {
		fixes = g.aiFixes(ctx, f, rootCause)
	}

	filtered := fixes[:0]
	for _, fix := range fixes {
		if fix.ConfidenceScore >= g.cfg.MinConfidence {
			filtered = append(filtered, fix)
		}
	}
	if len(filtered) > g.cfg.MaxFixesPerFinding {
		filtered = filtered[:g.cfg.MaxFixesPerFinding]
	}
	return filtered
}

// templateFixes emits one fix per matching template.
func (g *FixGenerator) templateFixes(f *finding.Finding, rootCause *RootCause) []AutoFix {
	haystack := strings.ToLower(f.Message + " " + f.RuleID)
	var fixes []AutoFix
	for _, tmpl := range fixTemplates {
		matched := false
		for _, kw := range tmpl.keywords {
			if strings.Contains(haystack, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		confidence := tmpl.confidence
		// A confident root cause corroborates the template match.
		if rootCause != nil && rootCause.Confidence > 0.7 {
			confidence = math.Min(1.0, confidence+rootCauseConfidenceNudge)
		}

		fixes = append(fixes, AutoFix{
			FixID:           fixID(f.ID, tmpl.key),
			FindingID:       f.ID,
			Strategy:        tmpl.strategy,
			Description:     tmpl.description,
			CodeChange:      tmpl.codeChange,
			ConfidenceScore: confidence,
			ConfidenceLevel: ConfidenceBucket(confidence),
			EffortMinutes:   effortEstimate(tmpl.strategy, f.Severity),
			Risks:           capList(tmpl.risks),
			Prerequisites:   capList(tmpl.prereqs),
			ValidationSteps: capList(tmpl.validation),
		})
	}
	return fixes
}

// aiFixes asks the generative service for one or two fix proposals and
// parses them defensively. Any error yields an empty list, never an error.
func (g *FixGenerator) aiFixes(ctx context.Context, f *finding.Finding, rootCause *RootCause) []AutoFix {
	text, err := ai.ProposeWithTimeout(ctx, g.client, buildFixPrompt(f, rootCause), g.timeout)
	if err != nil {
		if err != ai.ErrUnavailable {
			fixLog.Printf("generative call failed for %s: %v", f.ID, err)
		}
		return nil
	}

	var fixes []AutoFix
	for i, block := range splitFixBlocks(text) {
		fields := ai.ParseKeyValues(block)
		desc := fields["DESCRIPTION"]
		if desc == "" {
			continue
		}
		strategy := parseStrategy(fields["STRATEGY"])
		confidence := ai.ParseFloat(fields["CONFIDENCE"], aiDefaultFixConfidence)

		fixes = append(fixes, AutoFix{
			FixID:           fixID(f.ID, fmt.Sprintf("ai_%d", i+1)),
			FindingID:       f.ID,
			Strategy:        strategy,
			Description:     desc,
			ConfidenceScore: confidence,
			ConfidenceLevel: ConfidenceBucket(confidence),
			EffortMinutes:   ai.ParseInt(fields["EFFORT_MINUTES"], aiDefaultEffortMinutes),
			Risks:           ai.SplitList(fields["RISKS"], maxListItems),
			ValidationSteps: ai.SplitList(fields["VALIDATION"], maxListItems),
		})
		if len(fixes) == 2 {
			break
		}
	}
	return fixes
}

// buildFixPrompt renders the fixed fix-generation prompt.
func buildFixPrompt(f *finding.Finding, rootCause *RootCause) string {
	var sb strings.Builder
	sb.WriteString("Propose 1-2 fixes for this static-analysis finding.\n\n")
	fmt.Fprintf(&sb, "Severity: %s\nCategory: %s\nRule: %s\nFile: %s:%d\nMessage: %s\n",
		f.Severity, f.Category, f.RuleID, f.FilePath, f.Line, f.Message)
	if f.Snippet != "" {
		fmt.Fprintf(&sb, "Snippet:\n%s\n", f.Snippet)
	}
	if rootCause != nil {
		fmt.Fprintf(&sb, "Root cause: %s\n", rootCause.PrimaryCause)
	}
	sb.WriteString("\nRespond in exactly this format, one block per fix:\n" +
		"FIX 1:\n" +
		"DESCRIPTION: <what to change>\n" +
		"STRATEGY: <automated|suggested|manual>\n" +
		"CONFIDENCE: <0.0-1.0>\n" +
		"EFFORT_MINUTES: <int>\n" +
		"RISKS: <item; item>\n" +
		"VALIDATION: <item; item>\n")
	return sb.String()
}

// splitFixBlocks separates a response into per-fix blocks on "FIX N" markers.
func splitFixBlocks(text string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(trimmed, "FIX ") {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current = nil
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// parseStrategy normalizes a strategy field; anything unrecognized
// defaults to suggested.
func parseStrategy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StrategyAutomated:
		return StrategyAutomated
	case StrategyManual:
		return StrategyManual
	case StrategyInfeasible:
		return StrategyInfeasible
	default:
		return StrategySuggested
	}
}

// effortEstimate is the strategy baseline, scaled up for high-severity
// findings where extra care (review, staged rollout) is expected.
func effortEstimate(strategy, severity string) int {
	var base float64
	switch strategy {
	case StrategyAutomated:
		base = effortAutomated
	case StrategySuggested:
		base = effortSuggested
	case StrategyManual:
		base = effortManual
	case StrategyInfeasible:
		return 0
	}
	if finding.SeverityRank(severity) >= finding.SeverityRank(finding.SevHigh) {
		base *= severityEffortFactor
	}
	return int(base)
}

// fixID derives a stable id from the finding id and the template or source
// key, so the same pairing always produces the same id across runs.
func fixID(findingID, key string) string {
	sum := sha256.Sum256([]byte(findingID + "|" + key))
	return hex.EncodeToString(sum[:8])
}

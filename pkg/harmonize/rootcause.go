package harmonize

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/triagekit/harmonize/pkg/ai"
	"github.com/triagekit/harmonize/pkg/finding"
)

var rcLog = log.New(os.Stderr, "[harmonize:rootcause] ", log.Ltime)

// RootCauseAnalyzer infers the underlying reason for a finding, as opposed
// to its surface symptom. The generative client, when configured, gets the
// first attempt; its answer is accepted only above the configured
// confidence floor, and any failure degrades silently to the heuristic
// keyword table. Heuristics-only mode is the default, not a degraded path.
type RootCauseAnalyzer struct {
	cfg     RootCauseConfig
	client  ai.Client
	timeout time.Duration
}

// NewRootCauseAnalyzer creates an analyzer. A nil client is replaced with
// ai.Null, putting the analyzer in pure-heuristic mode.
func NewRootCauseAnalyzer(cfg RootCauseConfig, client ai.Client, timeout time.Duration) *RootCauseAnalyzer {
	if client == nil {
		client = ai.Null{}
	}
	return &RootCauseAnalyzer{cfg: cfg, client: client, timeout: timeout}
}

// causeRule maps message keywords to a root-cause category. The table is
// ordered and first match wins, so more specific patterns come first.
type causeRule struct {
	keywords    []string
	category    string
	description string
	pattern     string
}

var causeRules = []causeRule{
	{
		keywords:    []string{"injection", "xss", "cross-site", "unsanitized", "tainted"},
		category:    "lack_of_input_validation",
		description: "Untrusted input reaches a sensitive sink without validation or encoding",
		pattern:     "input-validation",
	},
	{
		keywords:    []string{"hardcoded", "hard-coded", "default password", "default credential", "plaintext secret"},
		category:    "insecure_configuration",
		description: "Sensitive configuration is embedded in source instead of injected at deploy time",
		pattern:     "secret-management",
	},
	{
		keywords:    []string{"high complexity", "cyclomatic", "duplicate code", "code clone", "too many branches"},
		category:    "poor_code_organization",
		description: "Code has grown beyond maintainable structure, raising defect probability",
		pattern:     "refactoring",
	},
	{
		keywords:    []string{"vulnerable dependency", "outdated dependency", "known vulnerability", "cve-"},
		category:    "dependency_issues",
		description: "A third-party dependency carries a known defect or is past its support window",
		pattern:     "dependency-hygiene",
	},
	{
		keywords:    []string{"thread safety", "race condition", "data race", "concurrent access"},
		category:    "race_condition",
		description: "Shared state is accessed concurrently without a consistent locking discipline",
		pattern:     "concurrency",
	},
	{
		keywords:    []string{"memory leak", "resource leak", "not closed", "unclosed"},
		category:    "memory_management",
		description: "A resource is acquired without a guaranteed release path",
		pattern:     "resource-lifecycle",
	},
	{
		keywords:    []string{"no tests", "untested", "missing test", "coverage"},
		category:    "missing_tests",
		description: "The affected code path lacks automated verification",
		pattern:     "test-coverage",
	},
}

// Analyze infers the root cause for one finding, with its correlated
// neighbors as context. Returns nil when the stage is disabled.
func (r *RootCauseAnalyzer) Analyze(ctx context.Context, f *finding.Finding, correlated []*finding.Finding) *RootCause {
	if !r.cfg.Enabled {
		return nil
	}

	if r.cfg.UseAI {
		if rc := r.analyzeAI(ctx, f, correlated); rc != nil {
			return rc
		}
	}
	return r.analyzeHeuristic(f, correlated)
}

// AnalyzeBatch analyzes a batch, resolving each finding's correlated
// neighbors through the correlation map.
func (r *RootCauseAnalyzer) AnalyzeBatch(ctx context.Context, findings []*finding.Finding, correlations map[string][]string) map[string]*RootCause {
	byID := make(map[string]*finding.Finding, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
	}

	out := make(map[string]*RootCause, len(findings))
	for _, f := range findings {
		var correlated []*finding.Finding
		for _, id := range correlations[f.ID] {
			if other, ok := byID[id]; ok {
				correlated = append(correlated, other)
			}
		}
		out[f.ID] = r.Analyze(ctx, f, correlated)
	}
	return out
}

// analyzeAI attempts a structured generative call. Any failure (transport
// error, malformed response, confidence below the floor) returns nil so
// the caller falls through to heuristics. Errors never propagate.
func (r *RootCauseAnalyzer) analyzeAI(ctx context.Context, f *finding.Finding, correlated []*finding.Finding) *RootCause {
	prompt := buildRootCausePrompt(f, correlated)
	text, err := ai.ProposeWithTimeout(ctx, r.client, prompt, r.timeout)
	if err != nil {
		if err != ai.ErrUnavailable {
			rcLog.Printf("generative call failed for %s, using heuristics: %v", f.ID, err)
		}
		return nil
	}

	fields := ai.ParseKeyValues(text)
	cause := fields["CAUSE"]
	if cause == "" {
		rcLog.Printf("generative response for %s missing CAUSE, using heuristics", f.ID)
		return nil
	}
	confidence := ai.ParseFloat(fields["CONFIDENCE"], 0)
	if confidence < r.cfg.MinConfidence {
		return nil
	}

	return &RootCause{
		PrimaryCause:        cause,
		ContributingFactors: ai.SplitList(fields["FACTORS"], maxListItems),
		Evidence:            ai.SplitList(fields["EVIDENCE"], maxListItems),
		Confidence:          confidence,
		RelatedPatterns:     ai.SplitList(fields["PATTERNS"], maxListItems),
	}
}

// buildRootCausePrompt renders the fixed prompt template, embedding the
// finding and up to maxCorrelatedContext correlated findings.
func buildRootCausePrompt(f *finding.Finding, correlated []*finding.Finding) string {
	var sb strings.Builder
	sb.WriteString("Identify the root cause of this static-analysis finding.\n\n")
	fmt.Fprintf(&sb, "Analyzer: %s\nSeverity: %s\nCategory: %s\nRule: %s\nFile: %s:%d\nMessage: %s\n",
		f.Analyzer, f.Severity, f.Category, f.RuleID, f.FilePath, f.Line, f.Message)
	if f.Snippet != "" {
		fmt.Fprintf(&sb, "Snippet:\n%s\n", f.Snippet)
	}
	if len(correlated) > 0 {
		sb.WriteString("\nCorrelated findings:\n")
		for i, c := range correlated {
			if i == maxCorrelatedContext {
				break
			}
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", c.Severity, c.Message, c.FilePath)
		}
	}
	sb.WriteString("\nRespond in exactly this format:\n" +
		"CAUSE: <one sentence>\n" +
		"FACTORS: <item; item; ...>\n" +
		"EVIDENCE: <item; item; ...>\n" +
		"CONFIDENCE: <0.0-1.0>\n" +
		"PATTERNS: <item; item; ...>\n")
	return sb.String()
}

// analyzeHeuristic matches the message against the ordered keyword table.
// No match produces a generic root cause at lower confidence.
func (r *RootCauseAnalyzer) analyzeHeuristic(f *finding.Finding, correlated []*finding.Finding) *RootCause {
	msg := strings.ToLower(f.Message)
	for _, rule := range causeRules {
		for _, kw := range rule.keywords {
			if !strings.Contains(msg, kw) {
				continue
			}
			return &RootCause{
				PrimaryCause: rule.description,
				ContributingFactors: capList([]string{
					fmt.Sprintf("category: %s", f.Category),
					fmt.Sprintf("severity: %s", f.Severity),
					fmt.Sprintf("reported by %s", f.Analyzer),
				}),
				Evidence:        capList(causeEvidence(f, rule, len(correlated))),
				Confidence:      heuristicConfidence,
				RelatedPatterns: capList([]string{rule.pattern, rule.category}),
			}
		}
	}

	return &RootCause{
		PrimaryCause: fmt.Sprintf("%s issue reported by %s: %s",
			f.Category, f.Analyzer, firstSentence(f.Message)),
		ContributingFactors: capList([]string{
			fmt.Sprintf("category: %s", f.Category),
			fmt.Sprintf("severity: %s", f.Severity),
		}),
		Evidence:   capList(causeEvidence(f, causeRule{}, len(correlated))),
		Confidence: genericConfidence,
	}
}

// causeEvidence synthesizes evidence strings from the finding's own fields.
func causeEvidence(f *finding.Finding, rule causeRule, correlatedCount int) []string {
	evidence := []string{fmt.Sprintf("finding in %s", path.Dir(normalizePath(f.FilePath)))}
	if f.RuleID != "" {
		evidence = append(evidence, fmt.Sprintf("rule %s triggered", f.RuleID))
	}
	if rule.category != "" {
		evidence = append(evidence, fmt.Sprintf("message matches %s pattern", rule.category))
	}
	if correlatedCount > 0 {
		evidence = append(evidence, fmt.Sprintf("%d correlated findings nearby", correlatedCount))
	}
	return evidence
}

func capList(items []string) []string {
	if len(items) > maxListItems {
		return items[:maxListItems]
	}
	return items
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?\n"); idx > 0 {
		return s[:idx]
	}
	return s
}

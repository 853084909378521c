package harmonize

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/triagekit/harmonize/pkg/finding"
)

var fpLog = log.New(os.Stderr, "[harmonize:fpfilter] ", log.Ltime)

// FalsePositiveFilter classifies findings as genuine or likely noise using
// a fixed, ordered table of heuristic signals. The final confidence is the
// maximum over all triggered signals; a single strong signal dominates,
// and weak signals never accumulate past the strongest one.
type FalsePositiveFilter struct {
	cfg FalsePositiveConfig
}

// NewFalsePositiveFilter creates a filter with the given configuration.
func NewFalsePositiveFilter(cfg FalsePositiveConfig) *FalsePositiveFilter {
	return &FalsePositiveFilter{cfg: cfg}
}

// Verdict carries the classification outcome for one finding.
type Verdict struct {
	FalsePositive bool
	Confidence    float64
	Reasons       []string
}

// Filter splits findings into genuine and likely-false-positive sets.
// When the stage is disabled, everything passes through as valid.
func (f *FalsePositiveFilter) Filter(findings []*finding.Finding) (valid, falsePositives []*finding.Finding) {
	if !f.cfg.Enabled {
		return findings, nil
	}
	for _, fnd := range findings {
		v := f.Classify(fnd)
		if v.FalsePositive {
			falsePositives = append(falsePositives, fnd)
		} else {
			valid = append(valid, fnd)
		}
	}
	if len(falsePositives) > 0 {
		fpLog.Printf("filtered %d of %d findings as likely false positives",
			len(falsePositives), len(findings))
	}
	return valid, falsePositives
}

// A signal inspects one finding and either abstains (ok=false) or reports
// a confidence that the finding is noise, with a human-readable reason.
type fpSignal struct {
	name  string
	check func(f *FalsePositiveFilter, fnd *finding.Finding) (conf float64, reason string, ok bool)
}

// fpSignals is the ordered signal table. Order only affects reason output;
// classification takes the max confidence over all triggered signals.
var fpSignals = []fpSignal{
	{"whitelist", (*FalsePositiveFilter).checkWhitelist},
	{"test_file", (*FalsePositiveFilter).checkTestFile},
	{"generated", (*FalsePositiveFilter).checkGenerated},
	{"documentation", (*FalsePositiveFilter).checkDocumentation},
	{"known_phrase", (*FalsePositiveFilter).checkKnownPhrase},
	{"severity_mismatch", (*FalsePositiveFilter).checkSeverityConsistency},
	{"heuristic_score", (*FalsePositiveFilter).checkHeuristics},
}

// Classify runs every signal over the finding and returns the combined
// verdict. A finding is a false positive iff the max signal confidence
// meets the configured threshold.
func (f *FalsePositiveFilter) Classify(fnd *finding.Finding) Verdict {
	var v Verdict
	for _, sig := range fpSignals {
		conf, reason, ok := sig.check(f, fnd)
		if !ok {
			continue
		}
		v.Reasons = append(v.Reasons, fmt.Sprintf("%s: %s", sig.name, reason))
		if conf > v.Confidence {
			v.Confidence = conf
		}
	}
	v.FalsePositive = v.Confidence >= f.cfg.ConfidenceThreshold
	return v
}

func (f *FalsePositiveFilter) checkWhitelist(fnd *finding.Finding) (float64, string, bool) {
	path := normalizePath(fnd.FilePath)
	for _, pattern := range f.cfg.WhitelistPatterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			fpLog.Printf("bad whitelist pattern %q: %v", pattern, err)
			continue
		}
		if matched || strings.Contains(path, pattern) {
			return fpWhitelistConfidence, fmt.Sprintf("path matches whitelist %q", pattern), true
		}
	}
	return 0, "", false
}

// testPathMarkers identify test code by path convention.
var testPathMarkers = []string{"/test/", "/tests/", "/spec/", "_test.", ".test.", ".spec.", "test_"}

func (f *FalsePositiveFilter) checkTestFile(fnd *finding.Finding) (float64, string, bool) {
	if finding.SeverityRank(fnd.Severity) > finding.SeverityRank(finding.SevLow) {
		return 0, "", false
	}
	if pathContainsAny(fnd.FilePath, testPathMarkers) {
		return fpTestFileConfidence, "low-severity finding in test code", true
	}
	return 0, "", false
}

var generatedPathMarkers = []string{"/vendor/", "/node_modules/", "/generated/", "/gen/", ".pb.go", "_gen.go", ".min.js", "/dist/", "/build/"}

func (f *FalsePositiveFilter) checkGenerated(fnd *finding.Finding) (float64, string, bool) {
	if pathContainsAny(fnd.FilePath, generatedPathMarkers) {
		return fpGeneratedConfidence, "generated or vendored code", true
	}
	return 0, "", false
}

var docPathMarkers = []string{"/docs/", "/doc/", ".md", ".rst", ".txt", "/examples/"}

func (f *FalsePositiveFilter) checkDocumentation(fnd *finding.Finding) (float64, string, bool) {
	if isSecurityCategory(fnd.Category) {
		return 0, "", false
	}
	if pathContainsAny(fnd.FilePath, docPathMarkers) {
		return fpDocsConfidence, "documentation file, non-security category", true
	}
	return 0, "", false
}

// knownFPPhrases are message fragments that upstream analyzers commonly
// over-report.
var knownFPPhrases = []string{
	"todo comment",
	"fixme comment",
	"unused parameter self",
	"unused parameter cls",
	"line too long in generated",
	"consider adding a docstring",
	"missing docstring in test",
}

func (f *FalsePositiveFilter) checkKnownPhrase(fnd *finding.Finding) (float64, string, bool) {
	msg := strings.ToLower(fnd.Message)
	for _, phrase := range knownFPPhrases {
		if strings.Contains(msg, phrase) {
			return fpKnownPhraseConfidence, fmt.Sprintf("known noisy phrase %q", phrase), true
		}
	}
	return 0, "", false
}

// highSeverityKeywords mark messages that plausibly justify a high or
// critical severity.
var highSeverityKeywords = []string{
	"injection", "xss", "rce", "remote code", "overflow", "vulnerab",
	"exploit", "bypass", "leak", "exposure", "credential", "hardcoded",
	"unsafe", "traversal", "deserialization", "csrf",
}

// checkSeverityConsistency flags findings whose severity disagrees with
// their message: high/critical without any high-severity keyword, or
// low/info carrying one.
func (f *FalsePositiveFilter) checkSeverityConsistency(fnd *finding.Finding) (float64, string, bool) {
	msg := strings.ToLower(fnd.Message)
	hasKeyword := false
	for _, kw := range highSeverityKeywords {
		if strings.Contains(msg, kw) {
			hasKeyword = true
			break
		}
	}
	rank := finding.SeverityRank(fnd.Severity)
	highSev := rank >= finding.SeverityRank(finding.SevHigh)
	lowSev := rank <= finding.SeverityRank(finding.SevLow)

	switch {
	case highSev && !hasKeyword:
		return fpInconsistentConfidence, "high severity but message lacks severity keywords", true
	case lowSev && hasKeyword:
		return fpInconsistentConfidence, "low severity but message suggests a serious issue", true
	}
	return 0, "", false
}

// genericWording signals an advisory rather than a defect.
var genericWording = []string{"consider", "might", "may want", "could be", "possible ", "possibly", "potential "}

// checkHeuristics is the feature-additive score. Despite the configuration
// name this is a fixed scoring function, not a learned model: each feature
// contributes a hand-tuned increment and the sum is capped at 1.0.
func (f *FalsePositiveFilter) checkHeuristics(fnd *finding.Finding) (float64, string, bool) {
	if !f.cfg.UseMLHeuristics {
		return 0, "", false
	}
	score := 0.0
	var features []string

	if len(tokenize(fnd.Message)) < 6 {
		score += 0.2
		features = append(features, "brief message")
	}
	msg := strings.ToLower(fnd.Message)
	for _, w := range genericWording {
		if strings.Contains(msg, w) {
			score += 0.2
			features = append(features, "generic wording")
			break
		}
	}
	if strings.Count(normalizePath(fnd.FilePath), "/") > 6 {
		score += 0.1
		features = append(features, "deeply nested path")
	}
	if rid := strings.ToLower(fnd.RuleID); rid != "" &&
		(strings.HasSuffix(rid, "info") || strings.HasSuffix(rid, "style") || strings.HasSuffix(rid, "0001")) {
		score += 0.15
		features = append(features, "informational rule id")
	}
	if (fnd.Category == "style" || fnd.Category == "convention" || fnd.Category == "formatting") &&
		finding.SeverityRank(fnd.Severity) <= finding.SeverityRank(finding.SevLow) {
		score += 0.25
		features = append(features, "stylistic category at low severity")
	}

	if score == 0 {
		return 0, "", false
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, strings.Join(features, ", "), true
}

func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

func pathContainsAny(path string, markers []string) bool {
	p := normalizePath(path)
	for _, m := range markers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

var securityCategories = []string{"security", "vulnerability", "secrets", "sast", "dependency"}

func isSecurityCategory(cat string) bool {
	c := strings.ToLower(cat)
	for _, s := range securityCategories {
		if strings.Contains(c, s) {
			return true
		}
	}
	return false
}

package harmonize

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/triagekit/harmonize/pkg/finding"
)

// PriorityScorer computes a 0–100 composite score per finding as a weighted
// sum of severity, batch frequency, business impact, and age sub-scores.
// Construction fails fast when the weights do not sum to 1.0.
type PriorityScorer struct {
	cfg PriorityConfig
	now func() time.Time // injectable for tests
}

// Priority is the scoring outcome for one finding.
type Priority struct {
	Score          float64
	ImpactLevel    string
	BusinessImpact string
}

// NewPriorityScorer validates the weights and creates a scorer.
func NewPriorityScorer(cfg PriorityConfig) (*PriorityScorer, error) {
	if err := cfg.validateWeights(); err != nil {
		return nil, err
	}
	return &PriorityScorer{cfg: cfg, now: time.Now}, nil
}

// severityScores is the fixed severity sub-score table.
var severityScores = map[string]float64{
	finding.SevCritical: 100,
	finding.SevHigh:     75,
	finding.SevMedium:   50,
	finding.SevLow:      25,
	finding.SevInfo:     10,
}

// ScoreFindings scores a whole batch. Rule and category frequencies are
// counted batch-wide, never persisted across calls.
func (s *PriorityScorer) ScoreFindings(findings []*finding.Finding) map[string]Priority {
	ruleCounts := make(map[string]int)
	categoryCounts := make(map[string]int)
	for _, f := range findings {
		if f.RuleID != "" {
			ruleCounts[f.RuleID]++
		}
		categoryCounts[f.Category]++
	}

	out := make(map[string]Priority, len(findings))
	for _, f := range findings {
		score := s.cfg.SeverityWeight*severityScores[f.Severity] +
			s.cfg.FrequencyWeight*frequencyScore(ruleCounts[f.RuleID], categoryCounts[f.Category]) +
			s.cfg.ImpactWeight*s.impactScore(f) +
			s.cfg.AgeWeight*s.ageScore(f)
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		out[f.ID] = Priority{
			Score:          score,
			ImpactLevel:    ImpactLevelForScore(score),
			BusinessImpact: businessImpactText(f),
		}
	}
	return out
}

// frequencyScore rewards rules and categories that recur across the batch.
// Logarithmic so a pathological analyzer can't dominate the ranking.
func frequencyScore(ruleCount, categoryCount int) float64 {
	rule := 30 * math.Log10(float64(ruleCount)+1)
	if rule > 100 {
		rule = 100
	}
	cat := 20 * math.Log10(float64(categoryCount)+1)
	if cat > 50 {
		cat = 50
	}
	return rule + cat
}

// sensitivePathKeywords mark code handling credentials or money; a
// security finding touching one of these is near-maximal impact.
var sensitivePathKeywords = []string{
	"auth", "login", "session", "credential", "token", "password",
	"secret", "payment", "billing", "checkout",
}

// impactScore starts at a neutral 50 and applies the path rules as a
// running max/min: later rules tighten an already-applied bound, never
// loosen it.
func (s *PriorityScorer) impactScore(f *finding.Finding) float64 {
	p := normalizePath(f.FilePath)
	impact := 50.0

	raise := func(v float64) {
		if v > impact {
			impact = v
		}
	}
	lower := func(v float64) {
		if v < impact {
			impact = v
		}
	}

	for _, crit := range s.cfg.BusinessCriticalPaths {
		if strings.Contains(p, strings.ToLower(crit)) {
			raise(100)
			break
		}
	}
	if isSecurityCategory(f.Category) && pathContainsAny(p, sensitivePathKeywords) {
		raise(95)
	}
	if pathContainsAny(p, []string{"/api/", "/service", "/controller", "/handler"}) {
		raise(80)
	}
	if pathContainsAny(p, []string{"/db/", "/database/", "/model", "/repository/", "/dao/"}) {
		raise(75)
	}
	if pathContainsAny(p, []string{"/core/", "/util", "/shared/", "/common/", "/lib/"}) {
		raise(70)
	}
	if pathContainsAny(p, testPathMarkers) {
		lower(30)
	}
	if pathContainsAny(p, docPathMarkers) {
		lower(20)
	}
	return impact
}

// ageScore buckets the finding's age in days. An unparseable timestamp
// scores a neutral default rather than erroring.
func (s *PriorityScorer) ageScore(f *finding.Finding) float64 {
	created, ok := f.Time()
	if !ok {
		return neutralAgeScore
	}
	days := s.now().Sub(created).Hours() / 24
	switch {
	case days <= 7:
		return 100
	case days <= 30:
		return 80
	case days <= 90:
		return 60
	default:
		return 40
	}
}

// ImpactLevelForScore maps a priority score to its discrete impact level.
// The top bucket is inclusive of 100.
func ImpactLevelForScore(score float64) string {
	switch {
	case score >= 90:
		return ImpactCritical
	case score >= 70:
		return ImpactHigh
	case score >= 40:
		return ImpactMedium
	case score >= 20:
		return ImpactLow
	default:
		return ImpactNegligible
	}
}

// businessImpactRule maps a path keyword set to a canned impact statement.
// First match wins; the numeric score is deliberately not consulted.
type businessImpactRule struct {
	keywords []string
	text     string
}

var businessImpactRules = []businessImpactRule{
	{[]string{"payment", "billing", "checkout"}, "Critical: Affects payment processing"},
	{[]string{"auth", "login", "session"}, "High: Affects authentication and access control"},
	{[]string{"/api/", "/service"}, "Medium: Affects service interfaces"},
	{[]string{"/ui/", "/view", "/frontend/"}, "Medium: Affects user-facing functionality"},
	{testPathMarkers, "Low: Affects test code only"},
}

func businessImpactText(f *finding.Finding) string {
	p := normalizePath(f.FilePath)
	for _, rule := range businessImpactRules {
		if pathContainsAny(p, rule.keywords) {
			return rule.text
		}
	}
	return fmt.Sprintf("Medium: Affects %s in %s", f.Category, path.Base(p))
}

package harmonize

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/triagekit/harmonize/pkg/ai"
	"github.com/triagekit/harmonize/pkg/finding"
	"golang.org/x/sync/errgroup"
)

var harmLog = log.New(os.Stderr, "[harmonize] ", log.Ltime)

// fixConcurrency bounds the parallel per-finding root-cause/fix work.
const fixConcurrency = 8

// Stage interfaces exist so a failing stage can be substituted in tests;
// production always uses the concrete components built by New.
type deduplicator interface {
	Deduplicate([]*finding.Finding) DedupResult
}

type fpFilter interface {
	Filter([]*finding.Finding) (valid, falsePositives []*finding.Finding)
}

type correlator interface {
	Correlate([]*finding.Finding) map[string][]string
}

type priorityScorer interface {
	ScoreFindings([]*finding.Finding) map[string]Priority
}

type causeAnalyzer interface {
	AnalyzeBatch(ctx context.Context, findings []*finding.Finding, correlations map[string][]string) map[string]*RootCause
}

type fixGenerator interface {
	GenerateFixes(ctx context.Context, f *finding.Finding, rootCause *RootCause) []AutoFix
}

// Harmonizer sequences the full pipeline over a batch of findings:
// dedup → false-positive filter → correlate → score → root cause → fixes,
// then builds the ranked output. Every stage runs under failure isolation:
// a stage that panics is recorded in Result.Errors and treated as a no-op
// pass-through, so one analyzer's malformed data never prevents the rest
// of the batch from being ranked and returned.
type Harmonizer struct {
	cfg    Config
	dedup  deduplicator
	filter fpFilter
	corr   correlator
	scorer priorityScorer
	causes causeAnalyzer
	fixes  fixGenerator
}

// Option configures a Harmonizer.
type Option func(*options)

type options struct {
	client  ai.Client
	timeout time.Duration
}

// WithAIClient injects the generative capability used by root-cause
// analysis and fix generation. Without it, both run heuristics-only.
func WithAIClient(c ai.Client) Option {
	return func(o *options) { o.client = c }
}

// WithAITimeout bounds each individual generative call.
func WithAITimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New validates the configuration and builds a Harmonizer. Configuration
// errors fail here, before any findings are processed.
func New(cfg Config, opts ...Option) (*Harmonizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	scorer, err := NewPriorityScorer(cfg.Priority)
	if err != nil {
		return nil, err
	}

	return &Harmonizer{
		cfg:    cfg,
		dedup:  NewDeduplicator(cfg.Dedup),
		filter: NewFalsePositiveFilter(cfg.FalsePositive),
		corr:   NewCorrelator(cfg.Correlation),
		scorer: scorer,
		causes: NewRootCauseAnalyzer(cfg.RootCause, o.client, o.timeout),
		fixes:  NewFixGenerator(cfg.FixGen, o.client, o.timeout),
	}, nil
}

// Harmonize runs the full pipeline over one batch. It always returns a
// Result, never an error: stage failures are enumerated in Result.Errors
// and the affected stage degrades to a pass-through.
func (h *Harmonizer) Harmonize(ctx context.Context, findings []*finding.Finding) *Result {
	start := time.Now()
	result := &Result{}
	result.Stats.TotalFindings = len(findings)

	// Stage 1: deduplication. Fallback: everything unique.
	dedup := DedupResult{Unique: findings, DuplicateOf: map[string]string{}}
	h.runStage("deduplication", result, func() {
		dedup = h.dedup.Deduplicate(findings)
	})
	result.Stats.DuplicatesRemoved = len(dedup.DuplicateOf)

	// Stage 2: false-positive filter. Fallback: everything valid.
	valid := dedup.Unique
	var falsePositives []*finding.Finding
	h.runStage("false-positive filter", result, func() {
		valid, falsePositives = h.filter.Filter(dedup.Unique)
	})
	result.Stats.FalsePositives = len(falsePositives)

	// Stage 3: correlation. Fallback: empty relation.
	correlations := map[string][]string{}
	h.runStage("correlation", result, func() {
		correlations = h.corr.Correlate(valid)
	})
	result.Stats.Correlated = len(correlations)

	// Stage 4: priority scoring. Fallback: neutral defaults so the batch
	// still comes back ranked, just uninformatively.
	priorities := map[string]Priority{}
	h.runStage("priority scoring", result, func() {
		priorities = h.scorer.ScoreFindings(valid)
	})

	// Stage 5: root-cause analysis. Fallback: no causes.
	causes := map[string]*RootCause{}
	h.runStage("root-cause analysis", result, func() {
		causes = h.causes.AnalyzeBatch(ctx, valid, correlations)
	})

	// Stage 6: fix generation, parallel per finding. Output order is
	// restored by index, so concurrency never reorders results.
	fixesByIdx := make([][]AutoFix, len(valid))
	h.runStage("fix generation", result, func() {
		var g errgroup.Group
		g.SetLimit(fixConcurrency)
		for i, f := range valid {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("fix generation for %s: %v", f.ID, r)
					}
				}()
				fixesByIdx[i] = h.fixes.GenerateFixes(ctx, f, causes[f.ID])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			panic(err) // recorded by runStage; per-finding slots stay usable
		}
	})

	// Assembly: one Harmonized per surviving finding.
	byID := make(map[string]*finding.Finding, len(valid))
	for _, f := range valid {
		byID[f.ID] = f
	}
	dupCounts := make(map[string]int)
	for _, primary := range dedup.DuplicateOf {
		dupCounts[primary]++
	}

	for i, f := range valid {
		pri, ok := priorities[f.ID]
		if !ok {
			pri = defaultPriority(f)
		}
		hf := &Harmonized{
			Finding:            f,
			OriginalFindingIDs: []string{f.ID},
			AffectedFiles:      affectedFiles(f, correlations[f.ID], byID),
			PriorityScore:      pri.Score,
			ImpactLevel:        pri.ImpactLevel,
			BusinessImpact:     pri.BusinessImpact,
			DuplicateCount:     dupCounts[f.ID],
			CorrelatedIDs:      correlations[f.ID],
			RootCause:          causes[f.ID],
			AutoFixes:          fixesByIdx[i],
		}
		result.Stats.FixesGenerated += len(hf.AutoFixes)
		if hf.RootCause != nil {
			result.Stats.RootCausesFound++
		}
		result.Findings = append(result.Findings, hf)
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		return result.Findings[i].PriorityScore > result.Findings[j].PriorityScore
	})

	result.Stats.HarmonizedFindings = len(result.Findings)
	result.Stats.BySeverity = make(map[string]int)
	result.Stats.ByCategory = make(map[string]int)
	result.Stats.ByImpact = make(map[string]int)
	for _, hf := range result.Findings {
		result.Stats.BySeverity[hf.Finding.Severity]++
		result.Stats.ByCategory[hf.Finding.Category]++
		result.Stats.ByImpact[hf.ImpactLevel]++
	}
	result.Stats.ProcessingTime = time.Since(start)

	harmLog.Printf("harmonized %d/%d findings in %v (%d duplicates, %d false positives, %d errors)",
		result.Stats.HarmonizedFindings, result.Stats.TotalFindings,
		result.Stats.ProcessingTime, result.Stats.DuplicatesRemoved,
		result.Stats.FalsePositives, len(result.Errors))
	return result
}

// runStage executes one pipeline stage under failure isolation. A panic is
// converted into an entry in Result.Errors; the caller's pre-initialized
// fallback values remain in effect, making the stage a no-op pass-through.
func (h *Harmonizer) runStage(name string, result *Result, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s stage failed: %v", name, r)
			harmLog.Print(msg)
			result.Errors = append(result.Errors, msg)
		}
	}()
	fn()
}

// defaultPriority is the neutral score used when the scoring stage failed.
func defaultPriority(f *finding.Finding) Priority {
	return Priority{
		Score:          50,
		ImpactLevel:    ImpactLevelForScore(50),
		BusinessImpact: businessImpactText(f),
	}
}

// affectedFiles collects the primary file plus up to maxAffectedFiles
// distinct files from correlated findings.
func affectedFiles(f *finding.Finding, correlatedIDs []string, byID map[string]*finding.Finding) []string {
	files := []string{f.FilePath}
	seen := map[string]bool{f.FilePath: true}
	for _, id := range correlatedIDs {
		other, ok := byID[id]
		if !ok || seen[other.FilePath] {
			continue
		}
		seen[other.FilePath] = true
		files = append(files, other.FilePath)
		if len(files) == 1+maxAffectedFiles {
			break
		}
	}
	return files
}

// TopN returns the n highest-priority findings. The result shares the
// underlying entries; it is a projection, not a recomputation.
func (r *Result) TopN(n int) []*Harmonized {
	if n > len(r.Findings) {
		n = len(r.Findings)
	}
	if n < 0 {
		n = 0
	}
	return r.Findings[:n]
}

// ByCategory returns the findings in the given category, preserving rank
// order.
func (r *Result) ByCategory(category string) []*Harmonized {
	var out []*Harmonized
	for _, hf := range r.Findings {
		if hf.Finding.Category == category {
			out = append(out, hf)
		}
	}
	return out
}

// AutoFixable returns findings holding at least one fix whose confidence
// meets the given auto-apply threshold.
func (r *Result) AutoFixable(threshold float64) []*Harmonized {
	var out []*Harmonized
	for _, hf := range r.Findings {
		for _, fix := range hf.AutoFixes {
			if fix.ConfidenceScore >= threshold {
				out = append(out, hf)
				break
			}
		}
	}
	return out
}

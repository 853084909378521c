package harmonize

import (
	"log"
	"os"

	"github.com/triagekit/harmonize/pkg/finding"
)

var dedupLog = log.New(os.Stderr, "[harmonize:dedup] ", log.Ltime)

// Deduplicator groups findings into duplicate clusters and keeps one
// primary per cluster. Clustering is greedy and single-pass: findings are
// visited in input order, and each not-yet-grouped finding absorbs every
// later not-yet-grouped finding similar to it. First seen wins as primary,
// which keeps the result deterministic for a given input order.
type Deduplicator struct {
	cfg DedupConfig
}

// NewDeduplicator creates a deduplicator with the given configuration.
func NewDeduplicator(cfg DedupConfig) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// Deduplicate partitions the input into unique representatives and a
// duplicate-id → primary-id map. Every input id lands exactly once: in
// Unique or as a key of DuplicateOf. When the stage is disabled, all
// findings pass through unchanged with an empty map.
func (d *Deduplicator) Deduplicate(findings []*finding.Finding) DedupResult {
	result := DedupResult{DuplicateOf: make(map[string]string)}
	if !d.cfg.Enabled || len(findings) == 0 {
		result.Unique = findings
		return result
	}

	// Fresh cache per call: no shared mutable state across batches.
	cache := newSimCache()

	grouped := make([]bool, len(findings))
	for i, primary := range findings {
		if grouped[i] {
			continue
		}
		grouped[i] = true
		result.Unique = append(result.Unique, primary)

		for j := i + 1; j < len(findings); j++ {
			if grouped[j] {
				continue
			}
			if d.areSimilar(primary, findings[j], cache) {
				grouped[j] = true
				result.DuplicateOf[findings[j].ID] = primary.ID
			}
		}
	}

	if removed := len(result.DuplicateOf); removed > 0 {
		dedupLog.Printf("%d findings collapsed into %d unique (%d duplicates)",
			len(findings), len(result.Unique), removed)
	}
	return result
}

// areSimilar reports whether two findings describe the same underlying
// issue. Findings in different categories never merge.
func (d *Deduplicator) areSimilar(a, b *finding.Finding, cache *simCache) bool {
	if a.Category != b.Category {
		return false
	}

	// A shared rule id is a strong signal: only location can veto.
	if a.RuleID != "" && a.RuleID == b.RuleID {
		return d.sameLocation(a, b)
	}

	score := cache.similarity(a.Message, b.Message, d.cfg.UseSemantic)
	if score < d.cfg.SimilarityThreshold {
		return false
	}
	return d.sameLocation(a, b)
}

// sameLocation reports whether two findings are co-located: same file and
// within MaxDistanceLines of each other. A missing line number on either
// side is treated as co-located within the file. With ConsiderLocation
// disabled, everything passes.
func (d *Deduplicator) sameLocation(a, b *finding.Finding) bool {
	if !d.cfg.ConsiderLocation {
		return true
	}
	if a.FilePath != b.FilePath {
		return false
	}
	if a.Line == 0 || b.Line == 0 {
		return true
	}
	dist := a.Line - b.Line
	if dist < 0 {
		dist = -dist
	}
	return dist <= d.cfg.MaxDistanceLines
}

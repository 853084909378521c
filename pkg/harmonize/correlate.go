package harmonize

import (
	"log"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/triagekit/harmonize/pkg/finding"
)

var corrLog = log.New(os.Stderr, "[harmonize:correlate] ", log.Ltime)

// Correlator builds a weak "related to" relation over findings from file
// proximity, rule-family similarity, and category match. Per-finding lists
// are capped; oversized sets are re-ranked by a weighted score and
// truncated, so the stored relation is not guaranteed symmetric.
type Correlator struct {
	cfg CorrelationConfig
}

// NewCorrelator creates a correlator with the given configuration.
func NewCorrelator(cfg CorrelationConfig) *Correlator {
	return &Correlator{cfg: cfg}
}

// Correlate returns a finding-id → correlated-finding-ids map. Self is
// always excluded. When the stage is disabled, the map is empty.
func (c *Correlator) Correlate(findings []*finding.Finding) map[string][]string {
	out := make(map[string][]string)
	if !c.cfg.Enabled || len(findings) < 2 {
		return out
	}

	byID := make(map[string]*finding.Finding, len(findings))
	byCategory := make(map[string][]*finding.Finding)
	byRule := make(map[string][]*finding.Finding)
	byDir := make(map[string][]*finding.Finding) // keyed per ancestor level

	for _, f := range findings {
		byID[f.ID] = f
		byCategory[f.Category] = append(byCategory[f.Category], f)
		if f.RuleID != "" {
			byRule[f.RuleID] = append(byRule[f.RuleID], f)
		}
		for depth := 0; depth <= c.cfg.FileProximityThreshold; depth++ {
			byDir[dirKey(f.FilePath, depth)] = append(byDir[dirKey(f.FilePath, depth)], f)
		}
	}

	// Distinct rule ids, for the rule-family pass.
	ruleIDs := make([]string, 0, len(byRule))
	for id := range byRule {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	truncated := 0
	for _, f := range findings {
		related := make(map[string]struct{})

		// Directory proximity: any finding sharing an ancestor directory
		// within the configured number of levels.
		for depth := 0; depth <= c.cfg.FileProximityThreshold; depth++ {
			for _, other := range byDir[dirKey(f.FilePath, depth)] {
				related[other.ID] = struct{}{}
			}
		}

		// Rule family: identical rule id, or a rule id whose leading tokens
		// overlap above the similarity threshold.
		if f.RuleID != "" {
			for _, rid := range ruleIDs {
				if rid == f.RuleID || ruleSimilarity(f.RuleID, rid) >= c.cfg.RuleSimilarityThreshold {
					for _, other := range byRule[rid] {
						related[other.ID] = struct{}{}
					}
				}
			}
		}

		// Same category.
		for _, other := range byCategory[f.Category] {
			related[other.ID] = struct{}{}
		}

		delete(related, f.ID)
		if len(related) == 0 {
			continue
		}

		ids := make([]string, 0, len(related))
		for id := range related {
			ids = append(ids, id)
		}

		if len(ids) > c.cfg.MaxCorrelatedFindings {
			ids = c.rankAndTruncate(f, ids, byID)
			truncated++
		} else {
			sort.Strings(ids)
		}
		out[f.ID] = ids
	}

	if truncated > 0 {
		corrLog.Printf("correlated %d findings (%d lists truncated to %d)",
			len(out), truncated, c.cfg.MaxCorrelatedFindings)
	}
	return out
}

// rankAndTruncate orders an oversized correlation set by relatedness and
// keeps the top MaxCorrelatedFindings. The weights are hand-tuned defaults.
func (c *Correlator) rankAndTruncate(f *finding.Finding, ids []string, byID map[string]*finding.Finding) []string {
	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(ids))
	for _, id := range ids {
		other := byID[id]
		score := 0.0
		if f.RuleID != "" && f.RuleID == other.RuleID {
			score += corrWeightSameRule
		}
		if path.Dir(normalizePath(f.FilePath)) == path.Dir(normalizePath(other.FilePath)) {
			score += corrWeightSameDir
		}
		if f.FilePath == other.FilePath {
			score += corrWeightSameFile
			if f.Line > 0 && other.Line > 0 {
				dist := f.Line - other.Line
				if dist < 0 {
					dist = -dist
				}
				if dist <= corrLineDistanceSpan {
					score += corrWeightLineProximity * (1 - float64(dist)/float64(corrLineDistanceSpan))
				}
			}
		}
		if f.Category == other.Category {
			score += corrWeightSameCategory
		}
		ranked = append(ranked, scored{id: id, score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	out := make([]string, 0, c.cfg.MaxCorrelatedFindings)
	for _, s := range ranked[:c.cfg.MaxCorrelatedFindings] {
		out = append(out, s.id)
	}
	return out
}

// Graph derives the strictly bidirectional view of a correlation map:
// an edge exists only when both sides list each other. This symmetric view
// is for visualization; the raw stored map may be asymmetric.
func (c *Correlator) Graph(findings []*finding.Finding, correlations map[string][]string) CorrelationGraph {
	var g CorrelationGraph
	listed := make(map[string]map[string]bool, len(correlations))
	for id, ids := range correlations {
		set := make(map[string]bool, len(ids))
		for _, other := range ids {
			set[other] = true
		}
		listed[id] = set
	}

	for _, f := range findings {
		g.Nodes = append(g.Nodes, GraphNode{
			ID:       f.ID,
			FilePath: f.FilePath,
			Category: f.Category,
			Severity: f.Severity,
		})
	}

	seen := make(map[string]bool)
	for id, set := range listed {
		for other := range set {
			if !listed[other][id] {
				continue
			}
			key := pairKey(id, other)
			if seen[key] {
				continue
			}
			seen[key] = true
			a, b := id, other
			if a > b {
				a, b = b, a
			}
			g.Edges = append(g.Edges, GraphEdge{Source: a, Target: b})
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g
}

// dirKey computes the ancestor-directory key at the given depth: depth 0 is
// the file's parent directory, depth N is N levels further up. Paths too
// shallow for the requested depth collapse to "root".
func dirKey(filePath string, depth int) string {
	dir := path.Dir(normalizePath(filePath))
	for i := 0; i < depth; i++ {
		parent := path.Dir(dir)
		if parent == dir || parent == "." || parent == "/" {
			return "root"
		}
		dir = parent
	}
	if dir == "." || dir == "/" || dir == "" {
		return "root"
	}
	return dir
}

// ruleSimilarity measures token-prefix overlap between two rule ids:
// the number of shared leading tokens over the longer token count.
func ruleSimilarity(a, b string) float64 {
	ta := splitRuleID(a)
	tb := splitRuleID(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for i := 0; i < len(ta) && i < len(tb); i++ {
		if ta[i] != tb[i] {
			break
		}
		common++
	}
	longer := len(ta)
	if len(tb) > longer {
		longer = len(tb)
	}
	return float64(common) / float64(longer)
}

func splitRuleID(id string) []string {
	return strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ':' || r == '/'
	})
}

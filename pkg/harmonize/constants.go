package harmonize

// Default configuration constants for the pipeline stages. These are the
// single source of truth, referenced by the config defaults, the koanf
// loader, and the CLI help text. Keep them here so a value change is a
// one-line diff.
const (
	// -------------------------------------------------------------------------
	// Deduplicator
	// -------------------------------------------------------------------------

	// DefaultSimilarityThreshold is the minimum message similarity for two
	// findings without a shared rule id to be considered duplicates.
	DefaultSimilarityThreshold = 0.8

	// DefaultMaxDistanceLines is the maximum line distance between two
	// findings in the same file for them to still count as co-located.
	DefaultMaxDistanceLines = 5

	// containmentSimilarity is the similarity assigned when semantic
	// (Jaccard) matching is disabled and one message contains the other.
	containmentSimilarity = 0.9

	// -------------------------------------------------------------------------
	// False-positive filter
	// -------------------------------------------------------------------------

	// DefaultFPConfidenceThreshold is the minimum accumulated confidence
	// for a finding to be classified as a false positive.
	DefaultFPConfidenceThreshold = 0.7

	// Signal confidences, strongest source wins.
	fpWhitelistConfidence    = 0.9
	fpTestFileConfidence     = 0.8
	fpGeneratedConfidence    = 0.95
	fpDocsConfidence         = 0.85
	fpKnownPhraseConfidence  = 0.7
	fpInconsistentConfidence = 0.6

	// -------------------------------------------------------------------------
	// Correlator
	// -------------------------------------------------------------------------

	// DefaultFileProximityThreshold is how many directory levels up two
	// files may diverge and still be considered proximate.
	DefaultFileProximityThreshold = 2

	// DefaultRuleSimilarityThreshold is the minimum token-prefix overlap
	// for two rule ids to be judged similar.
	DefaultRuleSimilarityThreshold = 0.8

	// DefaultMaxCorrelatedFindings caps the correlation list per finding.
	// Larger raw sets are re-ranked and truncated, which is what makes the
	// stored relation possibly asymmetric.
	DefaultMaxCorrelatedFindings = 10

	// Re-rank weights when a correlation set exceeds the cap. Hand-tuned,
	// validated empirically rather than derived.
	corrWeightSameRule      = 10.0
	corrWeightSameDir       = 5.0
	corrWeightSameFile      = 3.0
	corrWeightSameCategory  = 1.0
	corrLineDistanceSpan    = 50 // same-file line distance scaled into +0..2
	corrWeightLineProximity = 2.0

	// -------------------------------------------------------------------------
	// Priority scorer
	// -------------------------------------------------------------------------

	// Default score weights. Must sum to 1.0 within WeightSumTolerance.
	DefaultSeverityWeight  = 0.4
	DefaultFrequencyWeight = 0.2
	DefaultImpactWeight    = 0.3
	DefaultAgeWeight       = 0.1

	// WeightSumTolerance is the allowed deviation of the weight sum from 1.0.
	WeightSumTolerance = 0.01

	// neutralAgeScore is used when a finding's timestamp is unparseable.
	neutralAgeScore = 70.0

	// -------------------------------------------------------------------------
	// Root-cause analyzer
	// -------------------------------------------------------------------------

	// DefaultRootCauseMinConfidence is the floor an AI-proposed root cause
	// must meet; below it the analyzer falls back to heuristics.
	DefaultRootCauseMinConfidence = 0.6

	// heuristicConfidence is the fixed confidence of a keyword-table match.
	heuristicConfidence = 0.7

	// genericConfidence is the confidence of the catch-all root cause when
	// no keyword matches.
	genericConfidence = 0.5

	// maxCorrelatedContext is how many correlated findings are embedded in
	// an AI root-cause prompt.
	maxCorrelatedContext = 3

	// -------------------------------------------------------------------------
	// Fix generator
	// -------------------------------------------------------------------------

	// DefaultFixMinConfidence filters out low-confidence fix candidates.
	DefaultFixMinConfidence = 0.5

	// DefaultAutoApplyThreshold is the confidence above which a fix is
	// considered safe to apply without review.
	DefaultAutoApplyThreshold = 0.9

	// DefaultMaxFixesPerFinding caps the fix list per finding.
	DefaultMaxFixesPerFinding = 3

	// rootCauseConfidenceNudge is added to a template fix's confidence when
	// the accompanying root cause is itself confident (> 0.7).
	rootCauseConfidenceNudge = 0.05

	// Effort baselines in minutes, by strategy. HIGH/CRITICAL severity
	// multiplies the baseline by severityEffortFactor.
	effortAutomated      = 5
	effortSuggested      = 15
	effortManual         = 60
	severityEffortFactor = 1.5

	// AI response fallbacks for malformed numeric fields.
	aiDefaultFixConfidence = 0.7
	aiDefaultEffortMinutes = 30

	// -------------------------------------------------------------------------
	// Shared list caps
	// -------------------------------------------------------------------------

	// maxListItems bounds the free-text lists on root causes and fixes
	// (contributing factors, evidence, risks, validation steps).
	maxListItems = 5

	// maxAffectedFiles bounds the correlated files attached to a
	// harmonized finding beyond its primary file.
	maxAffectedFiles = 5
)

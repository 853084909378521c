package harmonize

import (
	"fmt"
	"math"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment-variable config overrides,
// e.g. HARMONIZE_PRIORITY_SEVERITYWEIGHT=0.5.
const EnvPrefix = "HARMONIZE_"

// DedupConfig configures the deduplication stage.
type DedupConfig struct {
	Enabled             bool    `koanf:"enabled"`
	SimilarityThreshold float64 `koanf:"similaritythreshold"` // [0,1]
	ConsiderLocation    bool    `koanf:"considerlocation"`
	MaxDistanceLines    int     `koanf:"maxdistancelines"`
	UseSemantic         bool    `koanf:"usesemantic"` // Jaccard vs substring containment
}

// FalsePositiveConfig configures the false-positive filter.
type FalsePositiveConfig struct {
	Enabled             bool     `koanf:"enabled"`
	ConfidenceThreshold float64  `koanf:"confidencethreshold"` // [0,1]
	WhitelistPatterns   []string `koanf:"whitelistpatterns"`   // doublestar globs
	UseMLHeuristics     bool     `koanf:"usemlheuristics"`
}

// CorrelationConfig configures the cross-file correlator.
type CorrelationConfig struct {
	Enabled                 bool    `koanf:"enabled"`
	FileProximityThreshold  int     `koanf:"fileproximitythreshold"`  // >= 0 directory levels
	RuleSimilarityThreshold float64 `koanf:"rulesimilaritythreshold"` // [0,1]
	MaxCorrelatedFindings   int     `koanf:"maxcorrelatedfindings"`   // > 0
}

// PriorityConfig configures the priority scorer. The four weights must sum
// to 1.0 within WeightSumTolerance.
type PriorityConfig struct {
	SeverityWeight        float64  `koanf:"severityweight"`
	FrequencyWeight       float64  `koanf:"frequencyweight"`
	ImpactWeight          float64  `koanf:"impactweight"`
	AgeWeight             float64  `koanf:"ageweight"`
	BusinessCriticalPaths []string `koanf:"businesscriticalpaths"` // case-insensitive substrings or globs
}

// RootCauseConfig configures root-cause analysis.
type RootCauseConfig struct {
	Enabled       bool    `koanf:"enabled"`
	UseAI         bool    `koanf:"useai"`
	MinConfidence float64 `koanf:"minconfidence"` // AI acceptance floor
}

// FixGenConfig configures auto-fix generation.
type FixGenConfig struct {
	Enabled            bool    `koanf:"enabled"`
	UseAI              bool    `koanf:"useai"`
	MinConfidence      float64 `koanf:"minconfidence"`
	AutoApplyThreshold float64 `koanf:"autoapplythreshold"`
	MaxFixesPerFinding int     `koanf:"maxfixesperfinding"` // > 0
}

// Config bundles the per-stage configurations. It is read-only after
// construction; every component receives it explicitly.
type Config struct {
	Dedup         DedupConfig         `koanf:"dedup"`
	FalsePositive FalsePositiveConfig `koanf:"falsepositive"`
	Correlation   CorrelationConfig   `koanf:"correlation"`
	Priority      PriorityConfig      `koanf:"priority"`
	RootCause     RootCauseConfig     `koanf:"rootcause"`
	FixGen        FixGenConfig        `koanf:"fixgen"`
}

// DefaultConfig returns the fully-populated default configuration.
func DefaultConfig() Config {
	return Config{
		Dedup: DedupConfig{
			Enabled:             true,
			SimilarityThreshold: DefaultSimilarityThreshold,
			ConsiderLocation:    true,
			MaxDistanceLines:    DefaultMaxDistanceLines,
			UseSemantic:         true,
		},
		FalsePositive: FalsePositiveConfig{
			Enabled:             true,
			ConfidenceThreshold: DefaultFPConfidenceThreshold,
			UseMLHeuristics:     true,
		},
		Correlation: CorrelationConfig{
			Enabled:                 true,
			FileProximityThreshold:  DefaultFileProximityThreshold,
			RuleSimilarityThreshold: DefaultRuleSimilarityThreshold,
			MaxCorrelatedFindings:   DefaultMaxCorrelatedFindings,
		},
		Priority: PriorityConfig{
			SeverityWeight:  DefaultSeverityWeight,
			FrequencyWeight: DefaultFrequencyWeight,
			ImpactWeight:    DefaultImpactWeight,
			AgeWeight:       DefaultAgeWeight,
		},
		RootCause: RootCauseConfig{
			Enabled:       true,
			MinConfidence: DefaultRootCauseMinConfidence,
		},
		FixGen: FixGenConfig{
			Enabled:            true,
			MinConfidence:      DefaultFixMinConfidence,
			AutoApplyThreshold: DefaultAutoApplyThreshold,
			MaxFixesPerFinding: DefaultMaxFixesPerFinding,
		},
	}
}

// Validate fails fast on configuration errors. Bad weights or out-of-range
// thresholds indicate a deployment error, not bad input data, so this is
// the one layer where strict validation applies.
func (c Config) Validate() error {
	if err := unitRange("dedup.similaritythreshold", c.Dedup.SimilarityThreshold); err != nil {
		return err
	}
	if c.Dedup.MaxDistanceLines < 0 {
		return fmt.Errorf("dedup.maxdistancelines must be >= 0, got %d", c.Dedup.MaxDistanceLines)
	}
	if err := unitRange("falsepositive.confidencethreshold", c.FalsePositive.ConfidenceThreshold); err != nil {
		return err
	}
	if c.Correlation.FileProximityThreshold < 0 {
		return fmt.Errorf("correlation.fileproximitythreshold must be >= 0, got %d", c.Correlation.FileProximityThreshold)
	}
	if err := unitRange("correlation.rulesimilaritythreshold", c.Correlation.RuleSimilarityThreshold); err != nil {
		return err
	}
	if c.Correlation.MaxCorrelatedFindings <= 0 {
		return fmt.Errorf("correlation.maxcorrelatedfindings must be > 0, got %d", c.Correlation.MaxCorrelatedFindings)
	}
	if err := c.Priority.validateWeights(); err != nil {
		return err
	}
	if err := unitRange("rootcause.minconfidence", c.RootCause.MinConfidence); err != nil {
		return err
	}
	if err := unitRange("fixgen.minconfidence", c.FixGen.MinConfidence); err != nil {
		return err
	}
	if err := unitRange("fixgen.autoapplythreshold", c.FixGen.AutoApplyThreshold); err != nil {
		return err
	}
	if c.FixGen.MaxFixesPerFinding <= 0 {
		return fmt.Errorf("fixgen.maxfixesperfinding must be > 0, got %d", c.FixGen.MaxFixesPerFinding)
	}
	return nil
}

func (p PriorityConfig) validateWeights() error {
	sum := p.SeverityWeight + p.FrequencyWeight + p.ImpactWeight + p.AgeWeight
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("priority weights must sum to 1.0 (±%g), got %g", WeightSumTolerance, sum)
	}
	return nil
}

func unitRange(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %g", name, v)
	}
	return nil
}

// LoadConfig builds a Config from layered sources: built-in defaults, then
// an optional JSON config file, then HARMONIZE_* environment variables.
// The result is validated before being returned.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(confmap.Provider(defaultsMap(defaults), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := defaults
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultsMap flattens the default config for the confmap provider so that
// file/env layers override individual keys rather than whole sections.
func defaultsMap(c Config) map[string]interface{} {
	return map[string]interface{}{
		"dedup.enabled":                       c.Dedup.Enabled,
		"dedup.similaritythreshold":           c.Dedup.SimilarityThreshold,
		"dedup.considerlocation":              c.Dedup.ConsiderLocation,
		"dedup.maxdistancelines":              c.Dedup.MaxDistanceLines,
		"dedup.usesemantic":                   c.Dedup.UseSemantic,
		"falsepositive.enabled":               c.FalsePositive.Enabled,
		"falsepositive.confidencethreshold":   c.FalsePositive.ConfidenceThreshold,
		"falsepositive.usemlheuristics":       c.FalsePositive.UseMLHeuristics,
		"correlation.enabled":                 c.Correlation.Enabled,
		"correlation.fileproximitythreshold":  c.Correlation.FileProximityThreshold,
		"correlation.rulesimilaritythreshold": c.Correlation.RuleSimilarityThreshold,
		"correlation.maxcorrelatedfindings":   c.Correlation.MaxCorrelatedFindings,
		"priority.severityweight":             c.Priority.SeverityWeight,
		"priority.frequencyweight":            c.Priority.FrequencyWeight,
		"priority.impactweight":               c.Priority.ImpactWeight,
		"priority.ageweight":                  c.Priority.AgeWeight,
		"rootcause.enabled":                   c.RootCause.Enabled,
		"rootcause.useai":                     c.RootCause.UseAI,
		"rootcause.minconfidence":             c.RootCause.MinConfidence,
		"fixgen.enabled":                      c.FixGen.Enabled,
		"fixgen.useai":                        c.FixGen.UseAI,
		"fixgen.minconfidence":                c.FixGen.MinConfidence,
		"fixgen.autoapplythreshold":           c.FixGen.AutoApplyThreshold,
		"fixgen.maxfixesperfinding":           c.FixGen.MaxFixesPerFinding,
	}
}

// Package config provides configuration management for Recollect.
// It loads settings from a YAML file plus environment variables with the
// RECOLLECT_ prefix, and provides defaults for every tunable.
//
// All numeric parameters of the memory core (decay rate, resolution
// thresholds, reinforcement boosts, strategy weights) are named fields
// here rather than literals in code. They are first-pass values pending
// calibration against real data; tests supply alternate configurations
// to exercise edge behavior deterministically.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Recollect memory core.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// SQLitePath is the path to the SQLite database file (default: ./data/recollect.db).
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN enables the pgvector-backed vector index when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDims is the dimensionality of memory embeddings
	// (default: 1536). All stored vectors must match it.
	EmbeddingDims int `yaml:"embedding_dims"`
}

// ResolverConfig contains entity-resolution thresholds and stage
// confidences.
type ResolverConfig struct {
	// AutoResolveThreshold is the minimum fuzzy score for a single
	// candidate to resolve without disambiguation (default: 0.85).
	AutoResolveThreshold float64 `yaml:"auto_resolve_threshold"`

	// DisambiguationGap is the minimum score gap between the top two
	// fuzzy candidates; a smaller gap forces disambiguation (default: 0.15).
	DisambiguationGap float64 `yaml:"disambiguation_gap"`

	// AmbiguousBandLow is the lower bound of the score band that keeps a
	// candidate in play without auto-resolving (default: 0.65).
	AmbiguousBandLow float64 `yaml:"ambiguous_band_low"`

	// FuzzySearchFloor is the minimum raw text score fed into fuzzy
	// candidate search (default: 0.4).
	FuzzySearchFloor float64 `yaml:"fuzzy_search_floor"`

	// Fuzzy score blend weights. Must sum to 1.0.
	FuzzyTextWeight     float64 `yaml:"fuzzy_text_weight"`     // default: 0.4
	FuzzyHistoryWeight  float64 `yaml:"fuzzy_history_weight"`  // default: 0.3
	FuzzySemanticWeight float64 `yaml:"fuzzy_semantic_weight"` // default: 0.3

	// Per-stage resolution confidences.
	UserAliasConfidence      float64 `yaml:"user_alias_confidence"`      // default: 0.95
	CoreferenceConfidence    float64 `yaml:"coreference_confidence"`     // default: 0.60
	BootstrapConfidence      float64 `yaml:"bootstrap_confidence"`       // default: 0.90
	DisambiguationConfidence float64 `yaml:"disambiguation_confidence"`  // default: 0.85

	// AliasConfidenceCap is the ceiling for learned alias confidence
	// (default: 0.95).
	AliasConfidenceCap float64 `yaml:"alias_confidence_cap"`

	// AliasTouchBoost is added to alias confidence on each hit, up to the
	// cap (default: 0.01).
	AliasTouchBoost float64 `yaml:"alias_touch_boost"`

	// CoreferenceTimeout bounds the stage-4 reasoning call; on expiry the
	// pipeline falls through to stage 5 (default: 3s).
	CoreferenceTimeout time.Duration `yaml:"coreference_timeout"`
}

// StrategyWeights is one per-strategy weight vector over the five
// retrieval signals. Each vector must sum to 1.0.
type StrategyWeights struct {
	Semantic      float64 `yaml:"semantic"`
	EntityOverlap float64 `yaml:"entity_overlap"`
	Temporal      float64 `yaml:"temporal"`
	Importance    float64 `yaml:"importance"`
	Reinforcement float64 `yaml:"reinforcement"`
}

// Sum returns the total of the five weights.
func (w StrategyWeights) Sum() float64 {
	return w.Semantic + w.EntityOverlap + w.Temporal + w.Importance + w.Reinforcement
}

// RetrievalConfig contains candidate-generation and selection tunables.
type RetrievalConfig struct {
	// Per-source candidate caps.
	SemanticTopK int `yaml:"semantic_top_k"` // default: 50
	EntityTopK   int `yaml:"entity_top_k"`   // default: 30
	TemporalTopK int `yaml:"temporal_top_k"` // default: 30
	SummaryCount int `yaml:"summary_count"`  // default: 5

	// Selection limits.
	MaxResults  int `yaml:"max_results"`  // default: 15
	TokenBudget int `yaml:"token_budget"` // default: 3000

	// CharsPerToken is the divisor for the len(text)/n token estimate
	// (default: 4).
	CharsPerToken int `yaml:"chars_per_token"`

	// SummaryBoost is the flat multiplier applied to summary scores after
	// weighting (default: 1.15).
	SummaryBoost float64 `yaml:"summary_boost"`

	// TemporalDecayRate is the per-day exponent for the temporal
	// relevance signal outside an explicit range (default: 0.01).
	TemporalDecayRate float64 `yaml:"temporal_decay_rate"`

	// EmbedTimeout bounds the query-embedding call; on expiry retrieval
	// proceeds with a nil embedding (default: 2s).
	EmbedTimeout time.Duration `yaml:"embed_timeout"`

	// ClassifyTimeout bounds the reasoning fallback for query
	// classification; on expiry the exploratory default stands
	// (default: 2s).
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`

	// Per-strategy signal weights.
	FactualWeights     StrategyWeights `yaml:"factual_weights"`
	TemporalWeights    StrategyWeights `yaml:"temporal_weights"`
	ProceduralWeights  StrategyWeights `yaml:"procedural_weights"`
	ExploratoryWeights StrategyWeights `yaml:"exploratory_weights"`
}

// LifecycleConfig contains decay, reinforcement, conflict, and
// consolidation tunables.
type LifecycleConfig struct {
	// ConfidenceCap is the global ceiling on stored and effective
	// confidence (default: 0.95).
	ConfidenceCap float64 `yaml:"confidence_cap"`

	// DecayRatePerDay is the exponent of the effective-confidence decay
	// (default: 0.01).
	DecayRatePerDay float64 `yaml:"decay_rate_per_day"`

	// AgingAfterDays is the staleness horizon for the passive aging
	// predicate (default: 90).
	AgingAfterDays int `yaml:"aging_after_days"`

	// AgingMinReinforcement exempts well-reinforced memories from aging
	// (default: 2).
	AgingMinReinforcement int `yaml:"aging_min_reinforcement"`

	// ReinforcementBoosts is the diminishing confidence boost schedule;
	// reinforcements beyond the schedule reuse the last entry
	// (default: [0.15, 0.10, 0.05, 0.02]).
	ReinforcementBoosts []float64 `yaml:"reinforcement_boosts"`

	// Conflict-resolution rule thresholds, applied in order.
	ConflictConfidenceGap    float64 `yaml:"conflict_confidence_gap"`     // default: 0.2
	ConflictReinforcementGap int     `yaml:"conflict_reinforcement_gap"`  // default: 3
	ConflictRecencyGapDays   int     `yaml:"conflict_recency_gap_days"`   // default: 30

	// DBConflictPenalty multiplies the memory-side confidence when the
	// authoritative store wins (default: 0.5).
	DBConflictPenalty float64 `yaml:"db_conflict_penalty"`

	// Consolidation trigger: more than MinEpisodes active episodic
	// memories across at least MinSessions of the last SessionWindow
	// sessions.
	ConsolidationSessionWindow int `yaml:"consolidation_session_window"` // default: 5
	ConsolidationMinEpisodes   int `yaml:"consolidation_min_episodes"`   // default: 10
	ConsolidationMinSessions   int `yaml:"consolidation_min_sessions"`   // default: 3

	// SummarizeTimeout bounds the consolidation reasoning call
	// (default: 20s).
	SummarizeTimeout time.Duration `yaml:"summarize_timeout"`
}

// ReasoningConfig contains guardrails for the external reasoning and
// embedding capabilities.
type ReasoningConfig struct {
	// BreakerMaxFailures is the consecutive-failure count that trips the
	// circuit (default: 3).
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`

	// BreakerTimeout is how long the circuit stays open before half-open
	// probing (default: 30s).
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`

	// RatePerSecond caps reasoning calls per second (default: 5).
	RatePerSecond float64 `yaml:"rate_per_second"`

	// RateBurst is the limiter burst size (default: 10).
	RateBurst int `yaml:"rate_burst"`
}

// DefaultConfig returns a Config with the first-pass default values for
// every tunable.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			SQLitePath:    "./data/recollect.db",
			EmbeddingDims: 1536,
		},
		Resolver: ResolverConfig{
			AutoResolveThreshold:     0.85,
			DisambiguationGap:        0.15,
			AmbiguousBandLow:         0.65,
			FuzzySearchFloor:         0.4,
			FuzzyTextWeight:          0.4,
			FuzzyHistoryWeight:       0.3,
			FuzzySemanticWeight:      0.3,
			UserAliasConfidence:      0.95,
			CoreferenceConfidence:    0.60,
			BootstrapConfidence:      0.90,
			DisambiguationConfidence: 0.85,
			AliasConfidenceCap:       0.95,
			AliasTouchBoost:          0.01,
			CoreferenceTimeout:       3 * time.Second,
		},
		Retrieval: RetrievalConfig{
			SemanticTopK:      50,
			EntityTopK:        30,
			TemporalTopK:      30,
			SummaryCount:      5,
			MaxResults:        15,
			TokenBudget:       3000,
			CharsPerToken:     4,
			SummaryBoost:      1.15,
			TemporalDecayRate: 0.01,
			EmbedTimeout:      2 * time.Second,
			ClassifyTimeout:   2 * time.Second,
			FactualWeights: StrategyWeights{
				Semantic: 0.25, EntityOverlap: 0.40, Temporal: 0.05,
				Importance: 0.15, Reinforcement: 0.15,
			},
			TemporalWeights: StrategyWeights{
				Semantic: 0.20, EntityOverlap: 0.10, Temporal: 0.45,
				Importance: 0.15, Reinforcement: 0.10,
			},
			ProceduralWeights: StrategyWeights{
				Semantic: 0.35, EntityOverlap: 0.10, Temporal: 0.05,
				Importance: 0.30, Reinforcement: 0.20,
			},
			ExploratoryWeights: StrategyWeights{
				Semantic: 0.40, EntityOverlap: 0.10, Temporal: 0.10,
				Importance: 0.25, Reinforcement: 0.15,
			},
		},
		Lifecycle: LifecycleConfig{
			ConfidenceCap:              0.95,
			DecayRatePerDay:            0.01,
			AgingAfterDays:             90,
			AgingMinReinforcement:      2,
			ReinforcementBoosts:        []float64{0.15, 0.10, 0.05, 0.02},
			ConflictConfidenceGap:      0.2,
			ConflictReinforcementGap:   3,
			ConflictRecencyGapDays:     30,
			DBConflictPenalty:          0.5,
			ConsolidationSessionWindow: 5,
			ConsolidationMinEpisodes:   10,
			ConsolidationMinSessions:   3,
			SummarizeTimeout:           20 * time.Second,
		},
		Reasoning: ReasoningConfig{
			BreakerMaxFailures: 3,
			BreakerTimeout:     30 * time.Second,
			RatePerSecond:      5,
			RateBurst:          10,
		},
	}
}

// Load reads configuration from an optional YAML file, applies
// environment overrides, validates, and returns the result. An empty
// path loads defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies RECOLLECT_-prefixed environment variables on
// top of file/default values. Only operationally relevant knobs have env
// overrides; the numeric tuning surface stays in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RECOLLECT_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("RECOLLECT_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("RECOLLECT_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.TokenBudget = n
		}
	}
	if v := os.Getenv("RECOLLECT_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.MaxResults = n
		}
	}
}

// Validate checks cross-field invariants the memory core relies on.
func (c *Config) Validate() error {
	r := c.Resolver
	if sum := r.FuzzyTextWeight + r.FuzzyHistoryWeight + r.FuzzySemanticWeight; !near(sum, 1.0) {
		return fmt.Errorf("config: fuzzy blend weights must sum to 1.0, got %.3f", sum)
	}
	if r.AutoResolveThreshold <= r.AmbiguousBandLow {
		return fmt.Errorf("config: auto_resolve_threshold (%.2f) must exceed ambiguous_band_low (%.2f)",
			r.AutoResolveThreshold, r.AmbiguousBandLow)
	}

	for name, w := range map[string]StrategyWeights{
		"factual_weights":     c.Retrieval.FactualWeights,
		"temporal_weights":    c.Retrieval.TemporalWeights,
		"procedural_weights":  c.Retrieval.ProceduralWeights,
		"exploratory_weights": c.Retrieval.ExploratoryWeights,
	} {
		if !near(w.Sum(), 1.0) {
			return fmt.Errorf("config: %s must sum to 1.0, got %.3f", name, w.Sum())
		}
	}

	if c.Retrieval.CharsPerToken < 1 {
		return fmt.Errorf("config: chars_per_token must be >= 1, got %d", c.Retrieval.CharsPerToken)
	}

	l := c.Lifecycle
	if l.ConfidenceCap <= 0 || l.ConfidenceCap > 1 {
		return fmt.Errorf("config: confidence_cap must be in (0, 1], got %.2f", l.ConfidenceCap)
	}
	if l.DecayRatePerDay < 0 {
		return fmt.Errorf("config: decay_rate_per_day must be >= 0, got %.4f", l.DecayRatePerDay)
	}
	if len(l.ReinforcementBoosts) == 0 {
		return fmt.Errorf("config: reinforcement_boosts must not be empty")
	}
	if l.DBConflictPenalty <= 0 || l.DBConflictPenalty > 1 {
		return fmt.Errorf("config: db_conflict_penalty must be in (0, 1], got %.2f", l.DBConflictPenalty)
	}

	return nil
}

// near reports whether a is within floating-point slack of b.
func near(a, b float64) bool {
	const eps = 1e-6
	diff := a - b
	return diff < eps && diff > -eps
}

// Package lifecycle owns the epistemic state of semantic memories:
// confidence decay, reinforcement, the status state machine, conflict
// detection/resolution, and consolidation.
//
// Decay is passive. Effective confidence is a pure function of stored
// fields evaluated at read time, never a stored or cached value, so
// reads are idempotent and there is no background decay job to go
// stale.
package lifecycle

import (
	"math"
	"time"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/pkg/types"
)

// hoursPerDay converts durations to fractional days for decay math.
const hoursPerDay = 24.0

// EffectiveConfidence returns the decayed confidence of a memory at the
// given instant:
//
//	min(stored, cap) * exp(-rate * days_since_last_validated)
//
// The result is monotonically non-increasing in elapsed time, never
// exceeds the stored confidence, and is bit-identical for identical
// inputs. Reading never mutates anything.
func EffectiveConfidence(stored float64, lastValidatedAt, now time.Time, cfg config.LifecycleConfig) float64 {
	c := math.Min(stored, cfg.ConfidenceCap)
	if c < 0 {
		c = 0
	}

	days := now.Sub(lastValidatedAt).Hours() / hoursPerDay
	if days < 0 {
		days = 0
	}

	return c * math.Exp(-cfg.DecayRatePerDay*days)
}

// ReinforcementBoost returns the confidence boost for the given prior
// reinforcement count, following the diminishing schedule. Counts past
// the end of the schedule reuse the last entry.
func ReinforcementBoost(reinforcementCount int, cfg config.LifecycleConfig) float64 {
	boosts := cfg.ReinforcementBoosts
	idx := reinforcementCount
	if idx >= len(boosts) {
		idx = len(boosts) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return boosts[idx]
}

// ReinforcedConfidence returns the new stored confidence after one
// corroboration. It never decreases confidence and never exceeds the
// cap.
func ReinforcedConfidence(stored float64, reinforcementCount int, cfg config.LifecycleConfig) float64 {
	boosted := stored + ReinforcementBoost(reinforcementCount, cfg)
	return math.Min(boosted, cfg.ConfidenceCap)
}

// IsAging reports whether a memory has gone stale: no validation for
// longer than the aging horizon and too few reinforcements to be
// considered settled. Computed passively at read time; there is no
// background job that flips memories to aging.
func IsAging(mem *types.SemanticMemory, now time.Time, cfg config.LifecycleConfig) bool {
	if mem.Status != types.StatusActive {
		return false
	}

	days := now.Sub(mem.LastValidatedAt).Hours() / hoursPerDay
	return days > float64(cfg.AgingAfterDays) && mem.ReinforcementCount < cfg.AgingMinReinforcement
}

// ObservedStatus returns the status a reader should treat the memory as
// having right now: the stored status, or aging when the passive
// predicate holds.
func ObservedStatus(mem *types.SemanticMemory, now time.Time, cfg config.LifecycleConfig) types.MemoryStatus {
	if IsAging(mem, now, cfg) {
		return types.StatusAging
	}
	return mem.Status
}

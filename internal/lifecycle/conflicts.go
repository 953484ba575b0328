package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

// resolveConflict settles a clash between an existing active memory and
// an incoming fact with an incompatible value. Rules apply in order and
// the first match wins:
//
//	a. incoming value is from the authoritative store  => trust it (dual truth)
//	b. confidence gap > threshold                      => higher confidence wins
//	c. reinforcement-count gap >= threshold            => more-reinforced wins
//	d. creation-time gap > threshold                   => newer wins
//	e. otherwise                                       => unresolved, surface both
//
// Every branch, including (e), appends a durable conflict record.
func (m *Manager) resolveConflict(ctx context.Context, existing *types.SemanticMemory, fact IncomingFact) (*FactOutcome, error) {
	now := m.now()

	// Rule (a): dual truth. The authoritative store outranks any
	// memory-origin value. The memory side is demoted to conflicted with
	// its confidence halved, never deleted.
	if fact.FromAuthoritativeSource {
		return m.applyDBWins(ctx, existing, fact, now)
	}

	// Rule (b): confidence gap.
	confGap := existing.Confidence - fact.Confidence
	if math.Abs(confGap) > m.cfg.ConflictConfidenceGap {
		if confGap > 0 {
			return m.applyExistingWins(ctx, existing, fact, types.StrategyHigherConfidence,
				fmt.Sprintf("existing confidence %.2f exceeds incoming %.2f by more than %.2f",
					existing.Confidence, fact.Confidence, m.cfg.ConflictConfidenceGap), now)
		}
		return m.applyIncomingWins(ctx, existing, fact, types.ConflictMemoryVsMemory, types.StrategyHigherConfidence,
			fmt.Sprintf("incoming confidence %.2f exceeds existing %.2f by more than %.2f",
				fact.Confidence, existing.Confidence, m.cfg.ConflictConfidenceGap), now)
	}

	// Rule (c): reinforcement gap. An incoming fact starts with zero
	// reinforcements, so in practice this favors the existing memory.
	if existing.ReinforcementCount >= m.cfg.ConflictReinforcementGap {
		return m.applyExistingWins(ctx, existing, fact, types.StrategyMoreReinforced,
			fmt.Sprintf("existing memory reinforced %d times, incoming has none",
				existing.ReinforcementCount), now)
	}

	// Rule (d): recency. When the existing memory is old enough, the
	// newer claim replaces it.
	ageGap := fact.ObservedAt.Sub(existing.CreatedAt)
	if ageGap > time.Duration(m.cfg.ConflictRecencyGapDays)*24*time.Hour {
		return m.applyIncomingWins(ctx, existing, fact, types.ConflictTemporal, types.StrategyNewerWins,
			fmt.Sprintf("existing value is %.0f days older than the incoming claim (threshold %d)",
				ageGap.Hours()/24, m.cfg.ConflictRecencyGapDays), now)
	}

	// Rule (e): unresolved. Both values stand; the caller disambiguates.
	conflict := m.buildConflict(existing, fact, types.ConflictMemoryVsMemory, types.StrategyUnresolved,
		"no rule separates the values; surfacing both for external disambiguation", now)
	if err := m.conflicts.Append(ctx, conflict); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to record unresolved conflict: %w", err)
	}

	return &FactOutcome{
		Conflict:      conflict,
		Resolved:      false,
		ExistingValue: existing.ObjectValue,
		IncomingValue: fact.ObjectValue,
	}, nil
}

// applyDBWins implements the dual-truth rule: persist the db-origin
// value as the live memory, demote the memory-origin side to conflicted
// with halved confidence.
func (m *Manager) applyDBWins(ctx context.Context, existing *types.SemanticMemory, fact IncomingFact, now time.Time) (*FactOutcome, error) {
	conflict := m.buildConflict(existing, fact, types.ConflictMemoryVsDB, types.StrategyTrustDB,
		"incoming value originates from the authoritative domain store", now)
	if err := m.conflicts.Append(ctx, conflict); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to record conflict: %w", err)
	}

	// The winner becomes durable before the existing memory is touched,
	// so a failure partway through never leaves the key without an
	// active fact. A failed demotion retracts the winner again, so the
	// key never carries two active facts either.
	created, err := m.createFact(ctx, fact)
	if err != nil {
		return nil, err
	}

	if err := m.memories.SetConfidence(ctx, existing.ID, existing.Confidence*m.cfg.DBConflictPenalty); err != nil {
		m.retractFact(ctx, created.ID)
		return nil, fmt.Errorf("lifecycle: failed to demote conflicted confidence: %w", err)
	}
	if err := m.transitionWithRetry(ctx, existing.ID, types.StatusConflicted, ""); err != nil {
		m.retractFact(ctx, created.ID)
		return nil, err
	}

	return &FactOutcome{Memory: created, Conflict: conflict, Resolved: true}, nil
}

// applyIncomingWins persists the incoming fact as the live memory and
// supersedes the existing one, leaving a traceable chain.
func (m *Manager) applyIncomingWins(ctx context.Context, existing *types.SemanticMemory, fact IncomingFact, ctype types.ConflictType, strategy types.ResolutionStrategy, rationale string, now time.Time) (*FactOutcome, error) {
	conflict := m.buildConflict(existing, fact, ctype, strategy, rationale, now)
	if err := m.conflicts.Append(ctx, conflict); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to record conflict: %w", err)
	}

	created, err := m.createFact(ctx, fact)
	if err != nil {
		return nil, err
	}

	if err := m.transitionWithRetry(ctx, existing.ID, types.StatusSuperseded, created.ID); err != nil {
		m.retractFact(ctx, created.ID)
		return nil, err
	}

	return &FactOutcome{Memory: created, Conflict: conflict, Resolved: true}, nil
}

// retractFact invalidates a memory created earlier in the same failed
// operation, restoring the single-active-fact invariant for its key.
// Best effort: the row is fresh and uncontended, and if even this write
// fails the store is down and the original error already reports that.
func (m *Manager) retractFact(ctx context.Context, id string) {
	_ = m.memories.TransitionStatus(ctx, id, types.StatusActive, types.StatusInvalidated, "")
}

// applyExistingWins keeps the existing memory live and persists the
// losing claim as an already-superseded memory pointing at the winner,
// so the rejected value stays auditable without a second active fact.
func (m *Manager) applyExistingWins(ctx context.Context, existing *types.SemanticMemory, fact IncomingFact, strategy types.ResolutionStrategy, rationale string, now time.Time) (*FactOutcome, error) {
	conflict := m.buildConflict(existing, fact, types.ConflictMemoryVsMemory, strategy, rationale, now)
	if err := m.conflicts.Append(ctx, conflict); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to record conflict: %w", err)
	}

	loser := &types.SemanticMemory{
		ID:                   types.NewID("mem:sem"),
		UserID:               fact.UserID,
		SubjectEntityID:      fact.SubjectEntityID,
		Predicate:            fact.Predicate,
		ObjectValue:          fact.ObjectValue,
		Confidence:           clampConfidence(fact.Confidence, m.cfg.ConfidenceCap),
		LastValidatedAt:      fact.ObservedAt,
		Status:               types.StatusSuperseded,
		SupersededByMemoryID: existing.ID,
		Importance:           fact.Importance,
		Embedding:            fact.Embedding,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := m.memories.CreateSemantic(ctx, loser); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to store losing claim: %w", err)
	}

	return &FactOutcome{Memory: existing, Conflict: conflict, Resolved: true}, nil
}

// buildConflict assembles the append-only audit record with both values
// and the chosen strategy.
func (m *Manager) buildConflict(existing *types.SemanticMemory, fact IncomingFact, ctype types.ConflictType, strategy types.ResolutionStrategy, rationale string, now time.Time) *types.MemoryConflict {
	return &types.MemoryConflict{
		ID:              types.NewID("cfl"),
		DetectedAtEvent: fact.EventID,
		Type:            ctype,
		Strategy:        strategy,
		Rationale:       rationale,
		CreatedAt:       now,
		ConflictData: map[string]interface{}{
			"user_id":                      fact.UserID,
			"subject_entity_id":            fact.SubjectEntityID,
			"predicate":                    fact.Predicate,
			"existing_memory_id":           existing.ID,
			"existing_value":               existing.ObjectValue,
			"existing_confidence":          existing.Confidence,
			"existing_reinforcement_count": existing.ReinforcementCount,
			"existing_created_at":          existing.CreatedAt,
			"incoming_value":               fact.ObjectValue,
			"incoming_confidence":          fact.Confidence,
			"incoming_observed_at":         fact.ObservedAt,
			"incoming_from_authoritative":  fact.FromAuthoritativeSource,
		},
	}
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ErrTransientConflict is returned when a guarded mutation lost its race
// twice in a row. The operation as a whole is safe to retry.
var ErrTransientConflict = errors.New("transient concurrent mutation, retry the request")

// IncomingFact is a fact proposed for storage by extraction. It passes
// through the conflict path before becoming durable.
type IncomingFact struct {
	UserID          string
	SubjectEntityID string
	Predicate       string
	ObjectValue     string

	// Confidence is the extractor's confidence in the fact.
	Confidence float64

	// Importance seeds the retrieval importance signal.
	Importance float64

	// Embedding may be nil; it is backfilled asynchronously.
	Embedding []float32

	// FromAuthoritativeSource marks values read from the external domain
	// store. Such values win conflicts unconditionally (dual truth).
	FromAuthoritativeSource bool

	// ObservedAt is when the fact was asserted; used by the recency rule.
	ObservedAt time.Time

	// EventID names the request/event proposing the fact, recorded on
	// any conflict for auditability.
	EventID string
}

// FactOutcome reports what happened to a proposed fact.
type FactOutcome struct {
	// Memory is the live memory carrying the fact's value after the
	// operation: the newly created memory, the reinforced one, or the
	// conflict winner. Nil when the conflict was left unresolved.
	Memory *types.SemanticMemory

	// Reinforced is true when the fact corroborated an existing memory.
	Reinforced bool

	// Conflict is the audit record when a conflict was detected, on every
	// resolution branch including the unresolved one.
	Conflict *types.MemoryConflict

	// Resolved is false only on the unresolved branch: both values stand
	// and the caller must disambiguate.
	Resolved bool

	// ExistingValue and IncomingValue surface both sides of an
	// unresolved conflict.
	ExistingValue string
	IncomingValue string
}

// Manager owns all mutations of semantic-memory epistemic state.
// The retrieval scorer consumes its pure functions (EffectiveConfidence)
// and extraction routes new facts through RecordFact.
type Manager struct {
	memories  storage.MemoryStore
	conflicts storage.ConflictStore
	cfg       config.LifecycleConfig

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewManager creates a lifecycle manager over the given stores.
func NewManager(memories storage.MemoryStore, conflicts storage.ConflictStore, cfg config.LifecycleConfig) *Manager {
	return &Manager{
		memories:  memories,
		conflicts: conflicts,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the manager's time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Config returns the lifecycle tunables, for consumers that need the
// pure functions with consistent parameters (the retrieval scorer).
func (m *Manager) Config() config.LifecycleConfig {
	return m.cfg
}

// RecordFact routes a proposed fact through the conflict path and
// persists the outcome. Matching values reinforce the existing memory;
// clashing values are resolved by the first-matching rule, producing an
// append-only conflict record on every branch.
func (m *Manager) RecordFact(ctx context.Context, fact IncomingFact) (*FactOutcome, error) {
	if fact.UserID == "" || fact.SubjectEntityID == "" || fact.Predicate == "" {
		return nil, fmt.Errorf("%w: user, subject, and predicate are required", storage.ErrInvalidInput)
	}
	if fact.ObservedAt.IsZero() {
		fact.ObservedAt = m.now()
	}

	existing, err := m.memories.FindActiveFact(ctx, fact.UserID, fact.SubjectEntityID, fact.Predicate)
	if errors.Is(err, storage.ErrNotFound) {
		created, createErr := m.createFact(ctx, fact)
		if createErr != nil {
			return nil, createErr
		}
		return &FactOutcome{Memory: created, Resolved: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to look up existing fact: %w", err)
	}

	if valuesMatch(existing.ObjectValue, fact.ObjectValue) {
		reinforced, reinforceErr := m.Reinforce(ctx, existing.ID)
		if reinforceErr != nil {
			return nil, reinforceErr
		}
		return &FactOutcome{Memory: reinforced, Reinforced: true, Resolved: true}, nil
	}

	return m.resolveConflict(ctx, existing, fact)
}

// FactView is a read-time view of a semantic memory with its passive
// epistemic state evaluated.
type FactView struct {
	Memory *types.SemanticMemory

	// EffectiveConfidence is the decayed confidence at read time.
	EffectiveConfidence float64

	// ObservedStatus is the stored status, or aging when the passive
	// staleness predicate holds.
	ObservedStatus types.MemoryStatus
}

// Inspect loads a memory and evaluates its observed epistemic state.
// Reading mutates nothing; decay and aging are computed, never stored.
func (m *Manager) Inspect(ctx context.Context, id string) (*FactView, error) {
	mem, err := m.memories.GetSemantic(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return &FactView{
		Memory:              mem,
		EffectiveConfidence: EffectiveConfidence(mem.Confidence, mem.LastValidatedAt, now, m.cfg),
		ObservedStatus:      ObservedStatus(mem, now, m.cfg),
	}, nil
}

// Reinforce applies one corroboration to a memory: confidence boosted on
// the diminishing schedule (never above the cap), reinforcement count
// incremented, last_validated_at reset (the only decay-reset trigger).
// The store write is a guarded increment; a lost race is retried once
// against refreshed state.
func (m *Manager) Reinforce(ctx context.Context, id string) (*types.SemanticMemory, error) {
	for attempt := 0; attempt < 2; attempt++ {
		mem, err := m.memories.GetSemantic(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: failed to load memory for reinforcement: %w", err)
		}
		if mem.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: cannot reinforce %s memory", storage.ErrInvalidTransition, mem.Status)
		}

		now := m.now()
		update := storage.ReinforceUpdate{
			NewConfidence:              ReinforcedConfidence(mem.Confidence, mem.ReinforcementCount, m.cfg),
			ExpectedReinforcementCount: mem.ReinforcementCount,
			ValidatedAt:                now,
		}

		err = m.memories.Reinforce(ctx, id, update)
		if err == nil {
			mem.Confidence = update.NewConfidence
			mem.ReinforcementCount++
			mem.LastValidatedAt = now
			mem.Status = types.StatusActive
			return mem, nil
		}
		if !errors.Is(err, storage.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("lifecycle: reinforcement failed: %w", err)
		}
	}

	return nil, ErrTransientConflict
}

// Validate explicitly revalidates an aging memory, returning it to
// active and resetting its decay reference point.
func (m *Manager) Validate(ctx context.Context, id string) error {
	mem, err := m.memories.GetSemantic(ctx, id)
	if err != nil {
		return err
	}

	now := m.now()
	if mem.Status == types.StatusAging {
		if err := m.transitionWithRetry(ctx, id, types.StatusActive, ""); err != nil {
			return err
		}
	} else if mem.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot validate %s memory", storage.ErrInvalidTransition, mem.Status)
	}

	return m.memories.TouchValidated(ctx, id, now)
}

// Invalidate retracts a memory. Terminal: the row is retained but the
// memory accepts no further transitions.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	return m.transitionWithRetry(ctx, id, types.StatusInvalidated, "")
}

// createFact persists a brand-new semantic memory in active status.
func (m *Manager) createFact(ctx context.Context, fact IncomingFact) (*types.SemanticMemory, error) {
	now := m.now()
	mem := &types.SemanticMemory{
		ID:                      types.NewID("mem:sem"),
		UserID:                  fact.UserID,
		SubjectEntityID:         fact.SubjectEntityID,
		Predicate:               fact.Predicate,
		ObjectValue:             fact.ObjectValue,
		Confidence:              clampConfidence(fact.Confidence, m.cfg.ConfidenceCap),
		LastValidatedAt:         fact.ObservedAt,
		Status:                  types.StatusActive,
		Importance:              fact.Importance,
		Embedding:               fact.Embedding,
		FromAuthoritativeSource: fact.FromAuthoritativeSource,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := m.memories.CreateSemantic(ctx, mem); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to store fact: %w", err)
	}
	return mem, nil
}

// transitionWithRetry applies a status transition guarded by the current
// status, retrying once on a lost race.
func (m *Manager) transitionWithRetry(ctx context.Context, id string, to types.MemoryStatus, supersededBy string) error {
	for attempt := 0; attempt < 2; attempt++ {
		mem, err := m.memories.GetSemantic(ctx, id)
		if err != nil {
			return err
		}
		if !ValidTransition(mem.Status, to) {
			return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, mem.Status, to)
		}

		err = m.memories.TransitionStatus(ctx, id, mem.Status, to, supersededBy)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConcurrentUpdate) {
			return err
		}
	}

	return ErrTransientConflict
}

// valuesMatch reports whether two object values express the same fact.
// Comparison is case- and whitespace-insensitive.
func valuesMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// clampConfidence bounds a confidence value to [0, cap].
func clampConfidence(c, cap float64) float64 {
	if c < 0 {
		return 0
	}
	if c > cap {
		return cap
	}
	return c
}

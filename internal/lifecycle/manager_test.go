package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

func newTestManager(store *fakeStore, now time.Time) *Manager {
	m := NewManager(store, store, lifecycleDefaults())
	m.SetClock(func() time.Time { return now })
	return m
}

func seedFact(t *testing.T, store *fakeStore, mem *types.SemanticMemory) *types.SemanticMemory {
	t.Helper()
	if mem.Status == "" {
		mem.Status = types.StatusActive
	}
	require.NoError(t, store.CreateSemantic(context.Background(), mem))
	return mem
}

func TestRecordFactCreatesNewMemory(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Thursday",
		Confidence:      0.7,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Memory)
	assert.True(t, outcome.Resolved)
	assert.False(t, outcome.Reinforced)
	assert.Nil(t, outcome.Conflict)
	assert.Equal(t, types.StatusActive, outcome.Memory.Status)
	assert.Equal(t, 0, outcome.Memory.ReinforcementCount)
	assert.Equal(t, now, outcome.Memory.LastValidatedAt)
}

func TestRecordFactMatchingValueReinforces(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Thursday",
		Confidence:      0.70,
		LastValidatedAt: now.Add(-10 * 24 * time.Hour),
		CreatedAt:       now.Add(-10 * 24 * time.Hour),
	})

	// Value matching is case- and whitespace-insensitive.
	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "  thursday ",
		Confidence:      0.6,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Reinforced)
	assert.Nil(t, outcome.Conflict)
	assert.Equal(t, existing.ID, outcome.Memory.ID)
	assert.InDelta(t, 0.85, outcome.Memory.Confidence, 1e-9, "first boost is +0.15")
	assert.Equal(t, 1, outcome.Memory.ReinforcementCount)
	assert.Equal(t, now, outcome.Memory.LastValidatedAt, "reinforcement resets the decay clock")
}

func TestRecordFactCloseClashIsUnresolved(t *testing.T) {
	// Thursday five days ago vs Friday today: confidences within the
	// gap, no reinforcements, recency gap under the threshold. No rule
	// separates the values, so both are surfaced and nothing is written
	// to the existing memory.
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Thursday",
		Confidence:      0.70,
		LastValidatedAt: now.Add(-5 * 24 * time.Hour),
		CreatedAt:       now.Add(-5 * 24 * time.Hour),
	})

	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Friday",
		Confidence:      0.65,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Resolved)
	assert.Nil(t, outcome.Memory)
	assert.Equal(t, "Thursday", outcome.ExistingValue)
	assert.Equal(t, "Friday", outcome.IncomingValue)

	require.NotNil(t, outcome.Conflict)
	assert.Equal(t, types.StrategyUnresolved, outcome.Conflict.Strategy)
	assert.Len(t, store.conflicts, 1, "unresolved conflicts are still recorded")

	unchanged, err := store.GetSemantic(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, unchanged.Status)
	assert.Equal(t, "Thursday", unchanged.ObjectValue)
}

func TestRecordFactOldValueLosesToNewerClaim(t *testing.T) {
	// Same clash, but the existing value is 40 days old: the recency
	// rule promotes the incoming claim and supersedes the old one.
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Thursday",
		Confidence:      0.70,
		LastValidatedAt: now.Add(-40 * 24 * time.Hour),
		CreatedAt:       now.Add(-40 * 24 * time.Hour),
	})

	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Friday",
		Confidence:      0.65,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	require.NotNil(t, outcome.Memory)
	assert.Equal(t, "Friday", outcome.Memory.ObjectValue)
	assert.Equal(t, types.StrategyNewerWins, outcome.Conflict.Strategy)

	superseded, err := store.GetSemantic(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuperseded, superseded.Status)
	assert.Equal(t, outcome.Memory.ID, superseded.SupersededByMemoryID)
}

func TestRecordFactHigherConfidenceWins(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "engineer",
		Confidence:      0.90,
		LastValidatedAt: now.Add(-2 * 24 * time.Hour),
		CreatedAt:       now.Add(-2 * 24 * time.Hour),
	})

	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "manager",
		Confidence:      0.5,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, existing.ID, outcome.Memory.ID, "existing memory stays live")
	assert.Equal(t, types.StrategyHigherConfidence, outcome.Conflict.Strategy)

	// The losing claim is persisted as an already-superseded row
	// pointing at the winner.
	var loser *types.SemanticMemory
	for _, mem := range store.semantic {
		if mem.ObjectValue == "manager" {
			loser = mem
		}
	}
	require.NotNil(t, loser)
	assert.Equal(t, types.StatusSuperseded, loser.Status)
	assert.Equal(t, existing.ID, loser.SupersededByMemoryID)

	// The winner is still the unique active fact.
	live, err := store.FindActiveFact(context.Background(), "user-1", "ent:person:dana", "role")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, live.ID)
}

func TestRecordFactMoreReinforcedWins(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:             "user-1",
		SubjectEntityID:    "ent:person:dana",
		Predicate:          "coffee_order",
		ObjectValue:        "flat white",
		Confidence:         0.75,
		ReinforcementCount: 4,
		LastValidatedAt:    now.Add(-3 * 24 * time.Hour),
		CreatedAt:          now.Add(-20 * 24 * time.Hour),
	})

	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "coffee_order",
		ObjectValue:     "espresso",
		Confidence:      0.7,
		ObservedAt:      now,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, existing.ID, outcome.Memory.ID)
	assert.Equal(t, types.StrategyMoreReinforced, outcome.Conflict.Strategy)
}

func TestRecordFactDualTruthTrustsDB(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:             "user-1",
		SubjectEntityID:    "ent:organization:kai",
		Predicate:          "billing_address",
		ObjectValue:        "12 Old Road",
		Confidence:         0.90,
		ReinforcementCount: 5,
		LastValidatedAt:    now.Add(-24 * time.Hour),
		CreatedAt:          now.Add(-24 * time.Hour),
	})

	// The authoritative value wins regardless of the memory's high
	// confidence and reinforcement.
	outcome, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:                  "user-1",
		SubjectEntityID:         "ent:organization:kai",
		Predicate:               "billing_address",
		ObjectValue:             "99 New Street",
		Confidence:              0.9,
		FromAuthoritativeSource: true,
		ObservedAt:              now,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, "99 New Street", outcome.Memory.ObjectValue)
	assert.Equal(t, types.ConflictMemoryVsDB, outcome.Conflict.Type)
	assert.Equal(t, types.StrategyTrustDB, outcome.Conflict.Strategy)

	demoted, err := store.GetSemantic(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConflicted, demoted.Status)
	assert.InDelta(t, 0.45, demoted.Confidence, 1e-9, "demotion halves confidence")
}

func TestRecordFactDualTruthCreateFailureLeavesExistingUntouched(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "billing_address",
		ObjectValue:     "12 Old Road",
		Confidence:      0.90,
		LastValidatedAt: now.Add(-24 * time.Hour),
		CreatedAt:       now.Add(-24 * time.Hour),
	})

	store.createSemanticErr = errors.New("disk full")

	_, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:                  "user-1",
		SubjectEntityID:         "ent:organization:kai",
		Predicate:               "billing_address",
		ObjectValue:             "99 New Street",
		Confidence:              0.9,
		FromAuthoritativeSource: true,
		ObservedAt:              now,
	})
	require.Error(t, err)

	// The existing memory is still the live fact, undemoted; a retry of
	// the whole request starts from a clean slate.
	live, findErr := store.FindActiveFact(context.Background(), "user-1", "ent:organization:kai", "billing_address")
	require.NoError(t, findErr)
	assert.Equal(t, existing.ID, live.ID)
	assert.Equal(t, "12 Old Road", live.ObjectValue)
	assert.Equal(t, types.StatusActive, live.Status)
	assert.InDelta(t, 0.90, live.Confidence, 1e-9)
}

func TestRecordFactDualTruthDemotionFailureRetractsWinner(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "billing_address",
		ObjectValue:     "12 Old Road",
		Confidence:      0.90,
		LastValidatedAt: now.Add(-24 * time.Hour),
		CreatedAt:       now.Add(-24 * time.Hour),
	})

	store.transitionHook = func(_ string, to types.MemoryStatus) error {
		if to == types.StatusConflicted {
			return errors.New("io fault")
		}
		return nil
	}

	_, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:                  "user-1",
		SubjectEntityID:         "ent:organization:kai",
		Predicate:               "billing_address",
		ObjectValue:             "99 New Street",
		Confidence:              0.9,
		FromAuthoritativeSource: true,
		ObservedAt:              now,
	})
	require.Error(t, err)

	// The created winner was retracted, so the key still has exactly one
	// active fact and it is the existing one.
	live, findErr := store.FindActiveFact(context.Background(), "user-1", "ent:organization:kai", "billing_address")
	require.NoError(t, findErr)
	assert.Equal(t, existing.ID, live.ID)
	assert.Equal(t, "12 Old Road", live.ObjectValue)

	for _, mem := range store.semantic {
		if mem.ObjectValue == "99 New Street" {
			assert.Equal(t, types.StatusInvalidated, mem.Status, "the orphaned winner must not stay active")
		}
	}
}

func TestRecordFactNewerWinsSupersedeFailureRetractsWinner(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	existing := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Thursday",
		Confidence:      0.70,
		LastValidatedAt: now.Add(-40 * 24 * time.Hour),
		CreatedAt:       now.Add(-40 * 24 * time.Hour),
	})

	store.transitionHook = func(_ string, to types.MemoryStatus) error {
		if to == types.StatusSuperseded {
			return errors.New("io fault")
		}
		return nil
	}

	_, err := m.RecordFact(context.Background(), IncomingFact{
		UserID:          "user-1",
		SubjectEntityID: "ent:organization:kai",
		Predicate:       "delivery_preference",
		ObjectValue:     "Friday",
		Confidence:      0.65,
		ObservedAt:      now,
	})
	require.Error(t, err)

	live, findErr := store.FindActiveFact(context.Background(), "user-1", "ent:organization:kai", "delivery_preference")
	require.NoError(t, findErr)
	assert.Equal(t, existing.ID, live.ID, "the old value stays live when its supersession could not commit")

	for _, mem := range store.semantic {
		if mem.ObjectValue == "Friday" {
			assert.Equal(t, types.StatusInvalidated, mem.Status)
		}
	}
}

func TestReinforceRetriesOnceOnLostRace(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "coffee_order",
		ObjectValue:     "flat white",
		Confidence:      0.5,
		LastValidatedAt: now,
		CreatedAt:       now,
	})

	// Simulate a concurrent writer landing between the read and the
	// guarded write, once.
	raced := false
	store.reinforceHook = func() {
		if raced {
			return
		}
		raced = true
		store.mu.Lock()
		store.semantic[mem.ID].ReinforcementCount++
		store.mu.Unlock()
	}

	updated, err := m.Reinforce(context.Background(), mem.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ReinforcementCount, "the retry read refreshed state")
}

func TestReinforceSurfacesTransientConflictAfterTwoRaces(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "coffee_order",
		ObjectValue:     "flat white",
		Confidence:      0.5,
		LastValidatedAt: now,
		CreatedAt:       now,
	})

	store.reinforceHook = func() {
		store.mu.Lock()
		store.semantic[mem.ID].ReinforcementCount++
		store.mu.Unlock()
	}

	_, err := m.Reinforce(context.Background(), mem.ID)
	assert.ErrorIs(t, err, ErrTransientConflict)
}

func TestReinforceTerminalMemoryFails(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "engineer",
		Status:          types.StatusInvalidated,
		LastValidatedAt: now,
		CreatedAt:       now,
	})

	_, err := m.Reinforce(context.Background(), mem.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
}

func TestValidateReturnsAgingMemoryToActive(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "engineer",
		Status:          types.StatusAging,
		LastValidatedAt: now.Add(-100 * 24 * time.Hour),
		CreatedAt:       now.Add(-100 * 24 * time.Hour),
	})

	require.NoError(t, m.Validate(context.Background(), mem.ID))

	refreshed, err := store.GetSemantic(context.Background(), mem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, refreshed.Status)
	assert.Equal(t, now, refreshed.LastValidatedAt)
}

func TestInspectEvaluatesPassiveStateWithoutWriting(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "engineer",
		Confidence:      0.80,
		LastValidatedAt: now.Add(-100 * 24 * time.Hour),
		CreatedAt:       now.Add(-100 * 24 * time.Hour),
	})

	view, err := m.Inspect(context.Background(), mem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAging, view.ObservedStatus, "100 unvalidated days exceed the aging horizon")
	expected := EffectiveConfidence(0.80, now.Add(-100*24*time.Hour), now, lifecycleDefaults())
	assert.InDelta(t, expected, view.EffectiveConfidence, 1e-12)
	assert.Less(t, view.EffectiveConfidence, 0.80)

	// The stored row is untouched: aging and decay are read-time views.
	stored, err := store.GetSemantic(context.Background(), mem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stored.Status)
	assert.Equal(t, 0.80, stored.Confidence)
}

func TestInvalidateIsTerminal(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	mem := seedFact(t, store, &types.SemanticMemory{
		UserID:          "user-1",
		SubjectEntityID: "ent:person:dana",
		Predicate:       "role",
		ObjectValue:     "engineer",
		LastValidatedAt: now,
		CreatedAt:       now,
	})

	require.NoError(t, m.Invalidate(context.Background(), mem.ID))
	assert.ErrorIs(t, m.Invalidate(context.Background(), mem.ID), storage.ErrInvalidTransition)

	refreshed, err := store.GetSemantic(context.Background(), mem.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInvalidated, refreshed.Status)
}

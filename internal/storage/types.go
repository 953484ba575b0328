package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConcurrentUpdate indicates that a compare-and-set update lost a
	// race with a concurrent writer. Callers retry once against refreshed
	// state before surfacing the failure as transient.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")

	// ErrInvalidTransition indicates a lifecycle status change that the
	// state machine does not permit (e.g. out of a terminal status).
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EntityMatch is one fuzzy-search hit with its supporting signals.
type EntityMatch struct {
	// Entity is the matched canonical entity.
	Entity *types.CanonicalEntity

	// TextScore is the approximate text-similarity score in [0, 1]
	// produced by the store's fuzzy matcher.
	TextScore float64

	// AliasConfidence is the historical confidence of the best matching
	// alias, or 0 when the hit came from the canonical name itself.
	AliasConfidence float64

	// UseCount is the best matching alias's use count. Used for
	// deterministic tie-breaking.
	UseCount int
}

// Neighbor is one vector-search hit.
type Neighbor struct {
	// ID is the memory identifier.
	ID string

	// Similarity is the cosine similarity to the query vector in [0, 1].
	Similarity float64
}

// TimeRange is a half-open [From, To) window for temporal queries.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range. A zero bound is
// unconstrained on that side.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// IsZero reports whether the range has no bounds at all.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// ReinforceUpdate carries the atomic field updates applied when a
// semantic memory is corroborated.
type ReinforceUpdate struct {
	// NewConfidence is the boosted stored confidence (capped upstream).
	NewConfidence float64

	// ExpectedReinforcementCount guards the update: the write only
	// applies if the stored count still matches, otherwise the store
	// returns ErrConcurrentUpdate.
	ExpectedReinforcementCount int

	// ValidatedAt becomes the new last_validated_at (the decay reset).
	ValidatedAt time.Time
}

// ConsolidationWindow describes the episodic set eligible for
// consolidation in a user's recent sessions.
type ConsolidationWindow struct {
	// UserID is the owning user.
	UserID string

	// SessionIDs are the distinct sessions in the window, most recent first.
	SessionIDs []string

	// Memories are the active, unconsolidated episodic memories in those
	// sessions.
	Memories []*types.EpisodicMemory
}

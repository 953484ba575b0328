// Package storage provides composable storage interfaces for the
// Recollect memory core.
//
// The storage layer is designed with small, focused interfaces that can
// be implemented independently and composed as needed. The SQLite
// backend implements the entity, memory, and conflict stores; the
// pgvector backend implements vector search. External collaborators
// (the read-only domain store, the reasoning and embedding
// capabilities) are consumed through ports defined alongside them.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

// EntityStore persists canonical entities and their aliases.
type EntityStore interface {
	// CreateOrGet creates a canonical entity, or returns the existing one
	// when the natural key (entityType, externalRef) is already present.
	// Idempotent: safe to retry after transient failures.
	CreateOrGet(ctx context.Context, entityType, externalRef, name string) (*types.CanonicalEntity, error)

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error)

	// FindByName looks up an entity by canonical name, case-insensitively.
	// Returns ErrNotFound when no entity matches.
	FindByName(ctx context.Context, name string) (*types.CanonicalEntity, error)

	// FuzzySearch returns entities whose names or aliases approximately
	// match text, with per-hit text scores >= threshold. Results carry
	// the best matching alias's historical confidence and use count.
	FuzzySearch(ctx context.Context, text string, threshold float64) ([]EntityMatch, error)

	// FindAlias looks up an alias scoped to (aliasText, userID). An empty
	// userID matches only global aliases. Returns ErrNotFound if absent.
	FindAlias(ctx context.Context, aliasText, userID string) (*types.EntityAlias, error)

	// CreateOrTouchAlias creates the alias if new; otherwise it atomically
	// increments use_count and nudges confidence (capped at the store's
	// configured ceiling). Unique on (alias_text, user_id, entity_id).
	CreateOrTouchAlias(ctx context.Context, alias *types.EntityAlias) error

	// ListAliases returns all aliases pointing at an entity, for
	// administrative inspection.
	ListAliases(ctx context.Context, entityID string) ([]*types.EntityAlias, error)

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore persists the four memory kinds and supports the retrieval
// sub-queries and lifecycle mutations. Semantic memories are never
// physically deleted; lifecycle transitions are guarded compare-and-set
// updates so concurrent mutations surface as ErrConcurrentUpdate.
type MemoryStore interface {
	// CreateSemantic stores a new semantic memory.
	CreateSemantic(ctx context.Context, mem *types.SemanticMemory) error

	// GetSemantic retrieves a semantic memory by ID.
	GetSemantic(ctx context.Context, id string) (*types.SemanticMemory, error)

	// FindActiveFact returns the active or aging semantic memory for
	// (userID, subjectEntityID, predicate), or ErrNotFound.
	FindActiveFact(ctx context.Context, userID, subjectEntityID, predicate string) (*types.SemanticMemory, error)

	// Reinforce atomically applies a reinforcement update. The write is
	// guarded by the expected reinforcement count and fails with
	// ErrConcurrentUpdate when a concurrent reinforcement landed first.
	Reinforce(ctx context.Context, id string, update ReinforceUpdate) error

	// TransitionStatus updates a memory's lifecycle status, guarded by
	// the expected current status. supersededBy is recorded when the new
	// status is superseded. Returns ErrInvalidTransition for moves the
	// state machine forbids and ErrConcurrentUpdate on a CAS miss.
	TransitionStatus(ctx context.Context, id string, from, to types.MemoryStatus, supersededBy string) error

	// SetConfidence overwrites stored confidence, guarded by the expected
	// current status (used by the dual-truth demotion).
	SetConfidence(ctx context.Context, id string, confidence float64) error

	// CreateEpisodic stores a new episodic memory.
	CreateEpisodic(ctx context.Context, mem *types.EpisodicMemory) error

	// CreateProcedural stores a new procedural memory.
	CreateProcedural(ctx context.Context, mem *types.ProceduralMemory) error

	// ListByEntities returns up to limit unconsolidated candidates that
	// reference at least one of the given entity IDs, newest first.
	ListByEntities(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Candidate, error)

	// ListByTimeRange returns up to limit unconsolidated candidates
	// created inside the range, newest first.
	ListByTimeRange(ctx context.Context, userID string, r TimeRange, limit int) ([]types.Candidate, error)

	// GetCandidates resolves memory IDs (e.g. vector-search hits) to
	// scorable candidates, skipping consolidated or terminal memories.
	GetCandidates(ctx context.Context, ids []string) ([]types.Candidate, error)

	// ListRecentSummaries returns the user's most recent consolidated
	// summaries, newest first.
	ListRecentSummaries(ctx context.Context, userID string, limit int) ([]*types.MemorySummary, error)

	// CreateSummary stores a consolidation summary.
	CreateSummary(ctx context.Context, summary *types.MemorySummary) error

	// FindSummaryByWindow returns the summary for a consolidation window
	// key, or ErrNotFound. Makes consolidation idempotent per window.
	FindSummaryByWindow(ctx context.Context, userID, windowKey string) (*types.MemorySummary, error)

	// ConsolidationWindow returns the user's active episodic memories in
	// their most recent sessionCount sessions.
	ConsolidationWindow(ctx context.Context, userID string, sessionCount int) (*ConsolidationWindow, error)

	// MarkConsolidated flags episodic memories as absorbed into a
	// summary, excluding them from future candidate pools. The rows are
	// retained.
	MarkConsolidated(ctx context.Context, ids []string) error

	// TouchValidated resets last_validated_at for an aging memory being
	// explicitly revalidated, moving it back to active.
	TouchValidated(ctx context.Context, id string, at time.Time) error

	// Close releases any resources held by the store.
	Close() error
}

// ConflictStore is the append-only audit trail for detected conflicts.
type ConflictStore interface {
	// Append durably records a conflict. Records are never mutated.
	Append(ctx context.Context, conflict *types.MemoryConflict) error

	// ListByEntity returns conflicts whose data references the given
	// subject entity, newest first.
	ListByEntity(ctx context.Context, subjectEntityID string, limit int) ([]*types.MemoryConflict, error)
}

// VectorIndex provides nearest-neighbor search over memory embeddings.
type VectorIndex interface {
	// NearestNeighbors returns up to k memory IDs most similar to the
	// query vector within the user's scope, best first.
	NearestNeighbors(ctx context.Context, vector []float32, userID string, k int) ([]Neighbor, error)
}

// DomainStore is the read-only port onto the external domain-data store.
// The Memory Core bootstraps canonical entities from it and trusts its
// values unconditionally in conflicts; it never writes through this port.
type DomainStore interface {
	// SearchEntities returns domain records matching text. typeHint
	// narrows the search when non-empty.
	SearchEntities(ctx context.Context, text, typeHint string) ([]types.DomainRecord, error)
}

// Package core assembles the memory engine: entity resolution,
// multi-signal retrieval, and lifecycle management behind one facade.
// The facade owns no policy of its own; it wires the stage components
// together and keeps the vector index in step with new memories.
package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/lifecycle"
	"github.com/scrypster/recollect/internal/reasoning"
	"github.com/scrypster/recollect/internal/resolver"
	"github.com/scrypster/recollect/internal/retrieval"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/trace"
	"github.com/scrypster/recollect/pkg/types"
)

// EmbeddingSink receives embeddings for newly created memories. The
// pgvector index implements it; a nil sink disables semantic search
// without affecting the other retrieval sources.
type EmbeddingSink interface {
	Upsert(ctx context.Context, memoryID, userID string, vector []float32) error
}

// Deps carries the collaborators the engine is assembled from. Entities,
// Memories, and Conflicts are required; the rest are optional and
// degrade the corresponding capability when absent.
type Deps struct {
	Entities  storage.EntityStore
	Memories  storage.MemoryStore
	Conflicts storage.ConflictStore
	Vectors   storage.VectorIndex
	Sink      EmbeddingSink
	Domain    storage.DomainStore
	Reasoner  reasoning.Reasoner
	Embedder  reasoning.Embedder
	Observer  trace.Observer
}

// Engine is the assembled memory core.
type Engine struct {
	cfg *config.Config

	resolver     *resolver.Resolver
	analyzer     *retrieval.Analyzer
	generator    *retrieval.Generator
	scorer       *retrieval.Scorer
	selector     *retrieval.Selector
	manager      *lifecycle.Manager
	consolidator *lifecycle.Consolidator

	memories  storage.MemoryStore
	conflicts storage.ConflictStore
	sink      EmbeddingSink
	embedder  reasoning.Embedder
	observer  trace.Observer
}

// New assembles the engine from its dependencies and configuration.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("core: config is required")
	}
	if deps.Entities == nil || deps.Memories == nil || deps.Conflicts == nil {
		return nil, fmt.Errorf("core: entity, memory, and conflict stores are required")
	}
	if deps.Observer == nil {
		deps.Observer = trace.Nop{}
	}

	res := resolver.New(deps.Entities, deps.Domain, deps.Reasoner, deps.Embedder, cfg.Resolver, deps.Observer)
	manager := lifecycle.NewManager(deps.Memories, deps.Conflicts, cfg.Lifecycle)

	return &Engine{
		cfg:          cfg,
		resolver:     res,
		analyzer:     retrieval.NewAnalyzer(res, deps.Reasoner, deps.Embedder, cfg.Retrieval),
		generator:    retrieval.NewGenerator(deps.Memories, deps.Vectors, cfg.Retrieval, deps.Observer),
		scorer:       retrieval.NewScorer(cfg.Retrieval, cfg.Lifecycle),
		selector:     retrieval.NewSelector(cfg.Retrieval, deps.Observer),
		manager:      manager,
		consolidator: lifecycle.NewConsolidator(manager, deps.Reasoner, deps.Embedder),
		memories:     deps.Memories,
		conflicts:    deps.Conflicts,
		sink:         deps.Sink,
		embedder:     deps.Embedder,
		observer:     deps.Observer,
	}, nil
}

// Resolve maps a mention to a canonical entity through the staged
// resolution pipeline.
func (e *Engine) Resolve(ctx context.Context, mention, userID string, rc resolver.Context) (*types.Resolution, error) {
	return e.resolver.Resolve(ctx, mention, userID, rc)
}

// ConfirmDisambiguation records a user's choice after an ambiguous
// resolution and learns the alias for next time.
func (e *Engine) ConfirmDisambiguation(ctx context.Context, mention, userID, entityID string) (*types.Resolution, error) {
	return e.resolver.ConfirmDisambiguation(ctx, mention, userID, entityID)
}

// RetrievalResult is the assembled context for a query.
type RetrievalResult struct {
	// Strategy is the classification the query received.
	Strategy retrieval.Strategy

	// Items are the selected candidates, summaries first.
	Items []retrieval.Scored

	// TokensUsed is the estimated token footprint of the selection.
	TokensUsed int
}

// Retrieve runs the full retrieval pipeline for a query: analysis,
// concurrent candidate generation, deterministic scoring, and
// budget-constrained selection.
func (e *Engine) Retrieve(ctx context.Context, query, userID string) (*RetrievalResult, error) {
	analysis, err := e.analyzer.Analyze(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	candidates, err := e.generator.Generate(ctx, userID, analysis)
	if err != nil {
		return nil, err
	}

	scored := e.scorer.ScoreAll(candidates, analysis, time.Now())
	selection := e.selector.Select(scored)

	return &RetrievalResult{
		Strategy:   analysis.Strategy,
		Items:      selection.Items,
		TokensUsed: selection.TokensUsed,
	}, nil
}

// RecordFact routes a proposed semantic fact through the lifecycle
// manager's conflict path. The fact's embedding is backfilled
// best-effort when the engine has an embedder, then mirrored into the
// vector index.
func (e *Engine) RecordFact(ctx context.Context, fact lifecycle.IncomingFact) (*lifecycle.FactOutcome, error) {
	if len(fact.Embedding) == 0 && e.embedder != nil {
		text := fact.Predicate + ": " + fact.ObjectValue
		if vec, err := reasoning.EmbedWithTimeout(ctx, e.embedder, text, e.cfg.Retrieval.EmbedTimeout); err == nil {
			fact.Embedding = vec
		}
	}

	outcome, err := e.manager.RecordFact(ctx, fact)
	if err != nil {
		return nil, err
	}

	if outcome.Conflict != nil {
		trace.Emit(e.observer, trace.KindConflictDetected, func(ev *trace.Event) {
			ev.Stage = string(outcome.Conflict.Strategy)
			ev.Subject = fact.SubjectEntityID
			ev.Detail = outcome.Conflict.Rationale
		})
	}

	if outcome.Memory != nil && len(outcome.Memory.Embedding) > 0 {
		e.indexEmbedding(ctx, outcome.Memory.ID, outcome.Memory.UserID, outcome.Memory.Embedding)
	}
	return outcome, nil
}

// Episode is a raw conversational observation to remember.
type Episode struct {
	UserID     string
	SessionID  string
	Content    string
	EntityIDs  []string
	Importance float64
}

// RecordEpisode stores an episodic memory, embedding its content
// best-effort and mirroring the embedding into the vector index.
func (e *Engine) RecordEpisode(ctx context.Context, episode Episode) (*types.EpisodicMemory, error) {
	mem := &types.EpisodicMemory{
		UserID:     episode.UserID,
		SessionID:  episode.SessionID,
		Content:    episode.Content,
		EntityIDs:  episode.EntityIDs,
		Importance: episode.Importance,
	}

	if e.embedder != nil {
		if vec, err := reasoning.EmbedWithTimeout(ctx, e.embedder, episode.Content, e.cfg.Retrieval.EmbedTimeout); err == nil {
			mem.Embedding = vec
		}
	}

	if err := e.memories.CreateEpisodic(ctx, mem); err != nil {
		return nil, err
	}
	if len(mem.Embedding) > 0 {
		e.indexEmbedding(ctx, mem.ID, mem.UserID, mem.Embedding)
	}
	return mem, nil
}

// Procedure is how-to knowledge to remember.
type Procedure struct {
	UserID     string
	Task       string
	Steps      []string
	EntityIDs  []string
	Importance float64
}

// RecordProcedure stores a procedural memory.
func (e *Engine) RecordProcedure(ctx context.Context, procedure Procedure) (*types.ProceduralMemory, error) {
	mem := &types.ProceduralMemory{
		UserID:     procedure.UserID,
		Task:       procedure.Task,
		Steps:      procedure.Steps,
		EntityIDs:  procedure.EntityIDs,
		Importance: procedure.Importance,
	}

	if e.embedder != nil {
		if vec, err := reasoning.EmbedWithTimeout(ctx, e.embedder, mem.CandidateText(), e.cfg.Retrieval.EmbedTimeout); err == nil {
			mem.Embedding = vec
		}
	}

	if err := e.memories.CreateProcedural(ctx, mem); err != nil {
		return nil, err
	}
	if len(mem.Embedding) > 0 {
		e.indexEmbedding(ctx, mem.ID, mem.UserID, mem.Embedding)
	}
	return mem, nil
}

// GetFact returns a semantic memory with its read-time epistemic state:
// the decayed effective confidence and the passively observed status.
func (e *Engine) GetFact(ctx context.Context, id string) (*lifecycle.FactView, error) {
	return e.manager.Inspect(ctx, id)
}

// ReinforceFact applies one corroboration to a semantic memory.
func (e *Engine) ReinforceFact(ctx context.Context, id string) (*types.SemanticMemory, error) {
	return e.manager.Reinforce(ctx, id)
}

// ValidateFact explicitly revalidates an aging memory.
func (e *Engine) ValidateFact(ctx context.Context, id string) error {
	return e.manager.Validate(ctx, id)
}

// InvalidateFact retracts a memory.
func (e *Engine) InvalidateFact(ctx context.Context, id string) error {
	return e.manager.Invalidate(ctx, id)
}

// Consolidate runs the consolidation check for a user, producing (or
// returning) the window's summary when the trigger holds.
func (e *Engine) Consolidate(ctx context.Context, userID string) (*types.MemorySummary, error) {
	summary, err := e.consolidator.Consolidate(ctx, userID)
	if err != nil || summary == nil {
		return summary, err
	}

	trace.Emit(e.observer, trace.KindConsolidationRun, func(ev *trace.Event) {
		ev.Subject = summary.ID
		ev.Count = len(summary.SourceIDs)
	})

	if len(summary.Embedding) > 0 {
		e.indexEmbedding(ctx, summary.ID, summary.UserID, summary.Embedding)
	}
	return summary, nil
}

// ListConflicts returns the audit trail for a subject entity.
func (e *Engine) ListConflicts(ctx context.Context, subjectEntityID string, limit int) ([]*types.MemoryConflict, error) {
	return e.conflicts.ListByEntity(ctx, subjectEntityID, limit)
}

// indexEmbedding mirrors an embedding into the vector index. Failures
// are logged and swallowed: the record store is the source of truth and
// the index is rebuildable.
func (e *Engine) indexEmbedding(ctx context.Context, memoryID, userID string, vector []float32) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Upsert(ctx, memoryID, userID, vector); err != nil {
		log.Printf("core: failed to index embedding for %s: %v", memoryID, err)
	}
}

package retrieval

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/trace"
	"github.com/scrypster/recollect/pkg/types"
)

// Generator produces the deduplicated candidate pool for a query by
// fanning out four retrieval sub-queries concurrently: vector
// similarity, entity overlap, temporal range, and the most recent
// consolidated summaries. The fan-out bounds retrieval latency by the
// slowest single source rather than their sum.
type Generator struct {
	memories storage.MemoryStore
	vectors  storage.VectorIndex
	cfg      config.RetrievalConfig
	observer trace.Observer
}

// NewGenerator creates a candidate generator. vectors may be nil; the
// semantic-similarity source then contributes nothing. observer may be
// nil.
func NewGenerator(memories storage.MemoryStore, vectors storage.VectorIndex, cfg config.RetrievalConfig, observer trace.Observer) *Generator {
	if observer == nil {
		observer = trace.Nop{}
	}
	return &Generator{
		memories: memories,
		vectors:  vectors,
		cfg:      cfg,
		observer: observer,
	}
}

// Generate runs the four sub-queries concurrently, joins, and
// deduplicates by memory ID. Store failures are fatal for the request;
// read consistency is best-effort with respect to concurrent writers.
func (g *Generator) Generate(ctx context.Context, userID string, analysis *Analysis) ([]types.Candidate, error) {
	var (
		mu        sync.Mutex
		bySource  = make(map[string][]types.Candidate, 4)
	)

	collect := func(source string, candidates []types.Candidate) {
		mu.Lock()
		bySource[source] = candidates
		mu.Unlock()
		trace.Emit(g.observer, trace.KindCandidatesGenerated, func(e *trace.Event) {
			e.Stage = source
			e.Subject = analysis.Query
			e.Count = len(candidates)
		})
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if g.vectors == nil || len(analysis.Embedding) == 0 {
			return nil
		}
		neighbors, err := g.vectors.NearestNeighbors(groupCtx, analysis.Embedding, userID, g.cfg.SemanticTopK)
		if err != nil {
			return fmt.Errorf("retrieval: vector search failed: %w", err)
		}
		ids := make([]string, len(neighbors))
		for i, n := range neighbors {
			ids[i] = n.ID
		}
		candidates, err := g.memories.GetCandidates(groupCtx, ids)
		if err != nil {
			return fmt.Errorf("retrieval: failed to load vector candidates: %w", err)
		}
		collect("semantic", candidates)
		return nil
	})

	group.Go(func() error {
		if len(analysis.EntityIDs) == 0 {
			return nil
		}
		candidates, err := g.memories.ListByEntities(groupCtx, userID, analysis.EntityIDs, g.cfg.EntityTopK)
		if err != nil {
			return fmt.Errorf("retrieval: entity-overlap query failed: %w", err)
		}
		collect("entity_overlap", candidates)
		return nil
	})

	group.Go(func() error {
		if analysis.TimeRange.IsZero() {
			return nil
		}
		candidates, err := g.memories.ListByTimeRange(groupCtx, userID, analysis.TimeRange, g.cfg.TemporalTopK)
		if err != nil {
			return fmt.Errorf("retrieval: temporal query failed: %w", err)
		}
		collect("temporal", candidates)
		return nil
	})

	group.Go(func() error {
		// Summaries are always in the pool regardless of strategy.
		summaries, err := g.memories.ListRecentSummaries(groupCtx, userID, g.cfg.SummaryCount)
		if err != nil {
			return fmt.Errorf("retrieval: summary query failed: %w", err)
		}
		candidates := make([]types.Candidate, len(summaries))
		for i, s := range summaries {
			candidates[i] = s
		}
		collect("summaries", candidates)
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Deduplicate by ID across sources. Source order is fixed so the
	// merged pool is deterministic for identical inputs.
	seen := make(map[string]struct{})
	var pool []types.Candidate
	for _, source := range []string{"summaries", "semantic", "entity_overlap", "temporal"} {
		for _, candidate := range bySource[source] {
			id := candidate.CandidateID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pool = append(pool, candidate)
		}
	}

	return pool, nil
}

package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/scrypster/recollect/internal/reasoning"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// Consolidator replaces accumulations of raw episodic memories with one
// durable summary per session window. Sources are marked excludable
// from future candidate pools, never deleted.
type Consolidator struct {
	manager  *Manager
	reasoner reasoning.Reasoner
	embedder reasoning.Embedder
}

// NewConsolidator creates a consolidator. The reasoner produces the
// summarizing narrative; the embedder (optional) backfills the summary
// embedding.
func NewConsolidator(manager *Manager, reasoner reasoning.Reasoner, embedder reasoning.Embedder) *Consolidator {
	return &Consolidator{
		manager:  manager,
		reasoner: reasoner,
		embedder: embedder,
	}
}

// Consolidate checks the user's recent-session window and, when the
// trigger holds (more than MinEpisodes active episodics spanning at
// least MinSessions of the last SessionWindow sessions), requests one
// summarizing narrative over the source set and persists it.
//
// Idempotent per session window: re-running with the same window
// returns the existing summary instead of duplicating it. A reasoning
// timeout skips the window without error; the sources stay eligible for
// the next attempt.
func (c *Consolidator) Consolidate(ctx context.Context, userID string) (*types.MemorySummary, error) {
	cfg := c.manager.cfg

	window, err := c.manager.memories.ConsolidationWindow(ctx, userID, cfg.ConsolidationSessionWindow)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to load consolidation window: %w", err)
	}

	if len(window.Memories) <= cfg.ConsolidationMinEpisodes {
		return nil, nil
	}
	if distinctSessions(window.Memories) < cfg.ConsolidationMinSessions {
		return nil, nil
	}

	key := windowKey(window)
	if existing, findErr := c.manager.memories.FindSummaryByWindow(ctx, userID, key); findErr == nil {
		return existing, nil
	} else if !errors.Is(findErr, storage.ErrNotFound) {
		return nil, fmt.Errorf("lifecycle: failed to check consolidation window %s: %w", key, findErr)
	}

	sources := make([]string, len(window.Memories))
	sourceIDs := make([]string, len(window.Memories))
	entitySet := make(map[string]struct{})
	for i, mem := range window.Memories {
		sources[i] = mem.Content
		sourceIDs[i] = mem.ID
		for _, eid := range mem.EntityIDs {
			entitySet[eid] = struct{}{}
		}
	}

	sumCtx, cancel := context.WithTimeout(ctx, cfg.SummarizeTimeout)
	narrative, err := c.reasoner.Summarize(sumCtx, sources)
	cancel()
	if err != nil {
		if errors.Is(err, reasoning.ErrCapabilityTimeout) || errors.Is(err, reasoning.ErrCapabilityUnavailable) {
			// Deterministic fallback: skip this window, try again later.
			log.Printf("lifecycle: consolidation skipped for user %s: %v", userID, err)
			return nil, nil
		}
		return nil, fmt.Errorf("lifecycle: summarization failed: %w", err)
	}

	summary := &types.MemorySummary{
		ID:         types.NewID("mem:sum"),
		UserID:     userID,
		Narrative:  narrative,
		SourceIDs:  sourceIDs,
		EntityIDs:  sortedKeys(entitySet),
		WindowKey:  key,
		Importance: maxImportance(window.Memories),
		CreatedAt:  c.manager.now(),
	}

	if c.embedder != nil {
		if vec, embErr := reasoning.EmbedWithTimeout(ctx, c.embedder, narrative, cfg.SummarizeTimeout); embErr == nil {
			summary.Embedding = vec
		}
		// A missing embedding is fine; readers score semantic similarity
		// as zero until backfill.
	}

	if err := c.manager.memories.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to store summary: %w", err)
	}

	if err := c.manager.memories.MarkConsolidated(ctx, sourceIDs); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to mark sources consolidated: %w", err)
	}

	return summary, nil
}

// windowKey derives a deterministic key for a consolidation window from
// its session set, so re-running the same window is a no-op.
func windowKey(window *storage.ConsolidationWindow) string {
	sessions := append([]string(nil), window.SessionIDs...)
	sort.Strings(sessions)
	sum := sha256.Sum256([]byte(strings.Join(sessions, "|")))
	return hex.EncodeToString(sum[:16])
}

// distinctSessions counts the distinct session IDs across the episodic set.
func distinctSessions(memories []*types.EpisodicMemory) int {
	seen := make(map[string]struct{})
	for _, mem := range memories {
		seen[mem.SessionID] = struct{}{}
	}
	return len(seen)
}

// maxImportance returns the highest importance among the sources; the
// summary should rank at least as high as its strongest source.
func maxImportance(memories []*types.EpisodicMemory) float64 {
	max := 0.0
	for _, mem := range memories {
		if mem.Importance > max {
			max = mem.Importance
		}
	}
	return max
}

// sortedKeys returns the map keys in sorted order for deterministic output.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

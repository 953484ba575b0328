package lifecycle

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// fakeStore is an in-memory MemoryStore + ConflictStore with the same
// guarded-update semantics as the SQLite backend.
type fakeStore struct {
	mu        sync.Mutex
	semantic  map[string]*types.SemanticMemory
	episodic  map[string]*types.EpisodicMemory
	summaries map[string]*types.MemorySummary
	conflicts []*types.MemoryConflict

	// reinforceHook runs before each guarded Reinforce, for race tests.
	reinforceHook func()

	// createSemanticErr, when set, fails the next CreateSemantic once.
	createSemanticErr error

	// transitionHook runs before each TransitionStatus; a non-nil return
	// aborts the transition, for failure-injection tests.
	transitionHook func(id string, to types.MemoryStatus) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		semantic:  make(map[string]*types.SemanticMemory),
		episodic:  make(map[string]*types.EpisodicMemory),
		summaries: make(map[string]*types.MemorySummary),
	}
}

func (f *fakeStore) CreateSemantic(_ context.Context, mem *types.SemanticMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSemanticErr != nil {
		err := f.createSemanticErr
		f.createSemanticErr = nil
		return err
	}
	if mem.ID == "" {
		mem.ID = types.NewID("mem:sem")
	}
	clone := *mem
	f.semantic[mem.ID] = &clone
	return nil
}

func (f *fakeStore) GetSemantic(_ context.Context, id string) (*types.SemanticMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.semantic[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *mem
	return &clone, nil
}

func (f *fakeStore) FindActiveFact(_ context.Context, userID, subjectEntityID, predicate string) (*types.SemanticMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *types.SemanticMemory
	for _, mem := range f.semantic {
		if mem.UserID != userID || mem.SubjectEntityID != subjectEntityID || mem.Predicate != predicate {
			continue
		}
		if mem.Status != types.StatusActive && mem.Status != types.StatusAging {
			continue
		}
		if found == nil || mem.CreatedAt.After(found.CreatedAt) {
			found = mem
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	clone := *found
	return &clone, nil
}

func (f *fakeStore) Reinforce(_ context.Context, id string, update storage.ReinforceUpdate) error {
	if f.reinforceHook != nil {
		f.reinforceHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.semantic[id]
	if !ok {
		return storage.ErrNotFound
	}
	if mem.Status.IsTerminal() {
		return storage.ErrInvalidTransition
	}
	if mem.ReinforcementCount != update.ExpectedReinforcementCount {
		return storage.ErrConcurrentUpdate
	}
	mem.Confidence = update.NewConfidence
	mem.ReinforcementCount++
	mem.LastValidatedAt = update.ValidatedAt
	mem.Status = types.StatusActive
	return nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, id string, from, to types.MemoryStatus, supersededBy string) error {
	if f.transitionHook != nil {
		if err := f.transitionHook(id, to); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.semantic[id]
	if !ok {
		return storage.ErrNotFound
	}
	if mem.Status != from {
		if mem.Status.IsTerminal() {
			return storage.ErrInvalidTransition
		}
		return storage.ErrConcurrentUpdate
	}
	mem.Status = to
	if supersededBy != "" {
		mem.SupersededByMemoryID = supersededBy
	}
	return nil
}

func (f *fakeStore) SetConfidence(_ context.Context, id string, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.semantic[id]
	if !ok {
		return storage.ErrNotFound
	}
	mem.Confidence = confidence
	return nil
}

func (f *fakeStore) TouchValidated(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.semantic[id]
	if !ok {
		return storage.ErrNotFound
	}
	if mem.Status.IsTerminal() {
		return storage.ErrInvalidTransition
	}
	mem.LastValidatedAt = at
	mem.Status = types.StatusActive
	return nil
}

func (f *fakeStore) CreateEpisodic(_ context.Context, mem *types.EpisodicMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mem.ID == "" {
		mem.ID = types.NewID("mem:epi")
	}
	clone := *mem
	f.episodic[mem.ID] = &clone
	return nil
}

func (f *fakeStore) CreateProcedural(_ context.Context, _ *types.ProceduralMemory) error {
	return nil
}

func (f *fakeStore) ListByEntities(_ context.Context, _ string, _ []string, _ int) ([]types.Candidate, error) {
	return nil, nil
}

func (f *fakeStore) ListByTimeRange(_ context.Context, _ string, _ storage.TimeRange, _ int) ([]types.Candidate, error) {
	return nil, nil
}

func (f *fakeStore) GetCandidates(_ context.Context, _ []string) ([]types.Candidate, error) {
	return nil, nil
}

func (f *fakeStore) ListRecentSummaries(_ context.Context, _ string, _ int) ([]*types.MemorySummary, error) {
	return nil, nil
}

func (f *fakeStore) CreateSummary(_ context.Context, summary *types.MemorySummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if summary.ID == "" {
		summary.ID = types.NewID("mem:sum")
	}
	clone := *summary
	f.summaries[summary.ID] = &clone
	return nil
}

func (f *fakeStore) FindSummaryByWindow(_ context.Context, userID, windowKey string) (*types.MemorySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, summary := range f.summaries {
		if summary.UserID == userID && summary.WindowKey == windowKey {
			clone := *summary
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ConsolidationWindow(_ context.Context, userID string, sessionCount int) (*storage.ConsolidationWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	latest := make(map[string]time.Time)
	for _, mem := range f.episodic {
		if mem.UserID != userID || mem.Consolidated {
			continue
		}
		if mem.CreatedAt.After(latest[mem.SessionID]) {
			latest[mem.SessionID] = mem.CreatedAt
		}
	}

	sessions := make([]string, 0, len(latest))
	for id := range latest {
		sessions = append(sessions, id)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !latest[sessions[i]].Equal(latest[sessions[j]]) {
			return latest[sessions[i]].After(latest[sessions[j]])
		}
		return sessions[i] < sessions[j]
	})
	if len(sessions) > sessionCount {
		sessions = sessions[:sessionCount]
	}

	window := &storage.ConsolidationWindow{UserID: userID, SessionIDs: sessions}
	inWindow := make(map[string]bool, len(sessions))
	for _, id := range sessions {
		inWindow[id] = true
	}
	for _, mem := range f.episodic {
		if mem.UserID == userID && !mem.Consolidated && inWindow[mem.SessionID] {
			clone := *mem
			window.Memories = append(window.Memories, &clone)
		}
	}
	sort.Slice(window.Memories, func(i, j int) bool {
		if !window.Memories[i].CreatedAt.Equal(window.Memories[j].CreatedAt) {
			return window.Memories[i].CreatedAt.Before(window.Memories[j].CreatedAt)
		}
		return window.Memories[i].ID < window.Memories[j].ID
	})
	return window, nil
}

func (f *fakeStore) MarkConsolidated(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if mem, ok := f.episodic[id]; ok {
			mem.Consolidated = true
		}
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Append(_ context.Context, conflict *types.MemoryConflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *conflict
	f.conflicts = append(f.conflicts, &clone)
	return nil
}

func (f *fakeStore) ListByEntity(_ context.Context, subjectEntityID string, limit int) ([]*types.MemoryConflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.MemoryConflict
	for _, conflict := range f.conflicts {
		if id, _ := conflict.ConflictData["subject_entity_id"].(string); strings.EqualFold(id, subjectEntityID) {
			clone := *conflict
			out = append(out, &clone)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

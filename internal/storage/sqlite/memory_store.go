package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

const semanticColumns = `id, user_id, subject_entity_id, predicate, object_value,
	confidence, reinforcement_count, last_validated_at, status, superseded_by_memory_id,
	importance, embedding, from_authoritative, created_at, updated_at`

// CreateSemantic stores a new semantic memory, assigning an ID when the
// caller did not.
func (s *Store) CreateSemantic(ctx context.Context, mem *types.SemanticMemory) error {
	if mem == nil || mem.UserID == "" || mem.SubjectEntityID == "" || mem.Predicate == "" {
		return fmt.Errorf("%w: user, subject entity, and predicate are required", storage.ErrInvalidInput)
	}
	if mem.ID == "" {
		mem.ID = types.NewID("mem:sem")
	}
	if mem.Status == "" {
		mem.Status = types.StatusActive
	}
	now := time.Now().UTC()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = mem.CreatedAt
	}
	if mem.LastValidatedAt.IsZero() {
		mem.LastValidatedAt = mem.CreatedAt
	}

	embedding, err := encodeJSON(mem.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO semantic_memories (`+semanticColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.UserID, mem.SubjectEntityID, mem.Predicate, mem.ObjectValue,
		mem.Confidence, mem.ReinforcementCount, mem.LastValidatedAt, string(mem.Status),
		nullIfEmpty(mem.SupersededByMemoryID), mem.Importance, embedding,
		mem.FromAuthoritativeSource, mem.CreatedAt, mem.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create semantic memory: %w", err)
	}
	return nil
}

// GetSemantic retrieves a semantic memory by ID.
func (s *Store) GetSemantic(ctx context.Context, id string) (*types.SemanticMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+semanticColumns+` FROM semantic_memories WHERE id = ?`, id)
	return scanSemantic(row)
}

// FindActiveFact returns the live fact for (userID, subject, predicate).
// At most one active-or-aging row exists per fact key; the ORDER BY is
// only a deterministic guard against manual data edits.
func (s *Store) FindActiveFact(ctx context.Context, userID, subjectEntityID, predicate string) (*types.SemanticMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+semanticColumns+` FROM semantic_memories
		WHERE user_id = ? AND subject_entity_id = ? AND predicate = ?
		  AND status IN ('active', 'aging')
		ORDER BY created_at DESC, id LIMIT 1`,
		userID, subjectEntityID, predicate)
	return scanSemantic(row)
}

// Reinforce applies a reinforcement update guarded by the expected
// reinforcement count.
func (s *Store) Reinforce(ctx context.Context, id string, update storage.ReinforceUpdate) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semantic_memories SET
			confidence = ?,
			reinforcement_count = reinforcement_count + 1,
			last_validated_at = ?,
			status = 'active',
			updated_at = ?
		WHERE id = ? AND reinforcement_count = ? AND status IN ('active', 'aging')`,
		update.NewConfidence, update.ValidatedAt, time.Now().UTC(),
		id, update.ExpectedReinforcementCount)
	if err != nil {
		return fmt.Errorf("sqlite: failed to reinforce memory: %w", err)
	}
	return s.checkGuardedUpdate(ctx, result, id, func(current *types.SemanticMemory) error {
		if current.Status.IsTerminal() {
			return storage.ErrInvalidTransition
		}
		return storage.ErrConcurrentUpdate
	})
}

// TransitionStatus moves a memory's lifecycle status with a
// compare-and-set guard on the expected current status.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to types.MemoryStatus, supersededBy string) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", storage.ErrInvalidTransition, from)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE semantic_memories SET
			status = ?,
			superseded_by_memory_id = COALESCE(?, superseded_by_memory_id),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), nullIfEmpty(supersededBy), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("sqlite: failed to transition memory status: %w", err)
	}
	return s.checkGuardedUpdate(ctx, result, id, func(current *types.SemanticMemory) error {
		if current.Status == to || current.Status.IsTerminal() {
			return storage.ErrInvalidTransition
		}
		return storage.ErrConcurrentUpdate
	})
}

// SetConfidence overwrites stored confidence. Used by the dual-truth
// demotion, where the memory-side claim keeps existing at reduced
// weight.
func (s *Store) SetConfidence(ctx context.Context, id string, confidence float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semantic_memories SET confidence = ?, updated_at = ? WHERE id = ?`,
		confidence, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set confidence: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchValidated resets the decay reference point and returns the
// memory to active.
func (s *Store) TouchValidated(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semantic_memories SET
			last_validated_at = ?, status = 'active', updated_at = ?
		WHERE id = ? AND status IN ('active', 'aging')`,
		at, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch memory: %w", err)
	}
	return s.checkGuardedUpdate(ctx, result, id, func(current *types.SemanticMemory) error {
		return storage.ErrInvalidTransition
	})
}

// checkGuardedUpdate classifies a zero-row guarded UPDATE: missing row,
// forbidden transition, or a lost CAS race.
func (s *Store) checkGuardedUpdate(ctx context.Context, result sql.Result, id string, classify func(*types.SemanticMemory) error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	current, err := s.GetSemantic(ctx, id)
	if err != nil {
		return err
	}
	return classify(current)
}

// CreateEpisodic stores a new episodic memory.
func (s *Store) CreateEpisodic(ctx context.Context, mem *types.EpisodicMemory) error {
	if mem == nil || mem.UserID == "" || mem.SessionID == "" || mem.Content == "" {
		return fmt.Errorf("%w: user, session, and content are required", storage.ErrInvalidInput)
	}
	if mem.ID == "" {
		mem.ID = types.NewID("mem:epi")
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	entityIDs, err := encodeJSON(mem.EntityIDs)
	if err != nil {
		return err
	}
	embedding, err := encodeJSON(mem.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episodic_memories (id, user_id, session_id, content, entity_ids, importance, embedding, consolidated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.UserID, mem.SessionID, mem.Content, entityIDs,
		mem.Importance, embedding, mem.Consolidated, mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create episodic memory: %w", err)
	}
	return nil
}

// CreateProcedural stores a new procedural memory.
func (s *Store) CreateProcedural(ctx context.Context, mem *types.ProceduralMemory) error {
	if mem == nil || mem.UserID == "" || mem.Task == "" {
		return fmt.Errorf("%w: user and task are required", storage.ErrInvalidInput)
	}
	if mem.ID == "" {
		mem.ID = types.NewID("mem:pro")
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	steps, err := encodeJSON(mem.Steps)
	if err != nil {
		return err
	}
	entityIDs, err := encodeJSON(mem.EntityIDs)
	if err != nil {
		return err
	}
	embedding, err := encodeJSON(mem.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procedural_memories (id, user_id, task, steps, entity_ids, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.UserID, mem.Task, steps, entityIDs, mem.Importance, embedding, mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create procedural memory: %w", err)
	}
	return nil
}

// ListByEntities returns unconsolidated candidates referencing any of
// the given entities, newest first. Semantic facts match on their
// subject; episodic and procedural memories match on their entity sets.
func (s *Store) ListByEntities(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Candidate, error) {
	if len(entityIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	want := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = struct{}{}
	}

	var pool []types.Candidate

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entityIDs)), ", ")
	args := []interface{}{userID}
	for _, id := range entityIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+semanticColumns+` FROM semantic_memories
		WHERE user_id = ? AND subject_entity_id IN (`+placeholders+`)
		  AND status IN ('active', 'aging')
		ORDER BY created_at DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: entity query over facts failed: %w", err)
	}
	if pool, err = appendSemanticRows(pool, rows); err != nil {
		return nil, err
	}

	episodic, err := s.listEpisodic(ctx, `
		SELECT id, user_id, session_id, content, entity_ids, importance, embedding, consolidated, created_at
		FROM episodic_memories
		WHERE user_id = ? AND consolidated = 0 AND entity_ids IS NOT NULL
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	for _, mem := range episodic {
		if overlapsAny(mem.EntityIDs, want) {
			pool = append(pool, mem)
		}
	}

	procedural, err := s.listProcedural(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, mem := range procedural {
		if overlapsAny(mem.EntityIDs, want) {
			pool = append(pool, mem)
		}
	}

	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

// ListByTimeRange returns unconsolidated candidates created inside the
// window, newest first. Temporal retrieval is episodic-centric; facts
// and procedures surface through the other sub-queries.
func (s *Store) ListByTimeRange(ctx context.Context, userID string, r storage.TimeRange, limit int) ([]types.Candidate, error) {
	if r.IsZero() || limit <= 0 {
		return nil, nil
	}

	episodic, err := s.listEpisodic(ctx, `
		SELECT id, user_id, session_id, content, entity_ids, importance, embedding, consolidated, created_at
		FROM episodic_memories
		WHERE user_id = ? AND consolidated = 0 AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC, id LIMIT ?`, userID, r.From, r.To, limit)
	if err != nil {
		return nil, err
	}

	pool := make([]types.Candidate, len(episodic))
	for i, mem := range episodic {
		pool[i] = mem
	}
	return pool, nil
}

// GetCandidates resolves memory IDs to scorable candidates, routing by
// ID prefix and skipping consolidated or terminal rows.
func (s *Store) GetCandidates(ctx context.Context, ids []string) ([]types.Candidate, error) {
	var pool []types.Candidate
	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, "mem:sem:"):
			mem, err := s.GetSemantic(ctx, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if mem.Status.IsTerminal() {
				continue
			}
			pool = append(pool, mem)

		case strings.HasPrefix(id, "mem:epi:"):
			mems, err := s.listEpisodic(ctx, `
				SELECT id, user_id, session_id, content, entity_ids, importance, embedding, consolidated, created_at
				FROM episodic_memories WHERE id = ?`, id)
			if err != nil {
				return nil, err
			}
			if len(mems) == 1 && !mems[0].Consolidated {
				pool = append(pool, mems[0])
			}

		case strings.HasPrefix(id, "mem:pro:"):
			row := s.db.QueryRowContext(ctx, `
				SELECT id, user_id, task, steps, entity_ids, importance, embedding, created_at
				FROM procedural_memories WHERE id = ?`, id)
			mem, err := scanProcedural(row)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			pool = append(pool, mem)

		case strings.HasPrefix(id, "mem:sum:"):
			row := s.db.QueryRowContext(ctx, `
				SELECT id, user_id, narrative, source_ids, entity_ids, window_key, importance, embedding, created_at
				FROM memory_summaries WHERE id = ?`, id)
			summary, err := scanSummary(row)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			pool = append(pool, summary)
		}
	}
	return pool, nil
}

// ListRecentSummaries returns the user's newest summaries.
func (s *Store) ListRecentSummaries(ctx context.Context, userID string, limit int) ([]*types.MemorySummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, narrative, source_ids, entity_ids, window_key, importance, embedding, created_at
		FROM memory_summaries WHERE user_id = ?
		ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*types.MemorySummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// CreateSummary stores a consolidation summary. The unique window-key
// index makes duplicate consolidation attempts fail loudly rather than
// silently doubling summaries.
func (s *Store) CreateSummary(ctx context.Context, summary *types.MemorySummary) error {
	if summary == nil || summary.UserID == "" || summary.WindowKey == "" {
		return fmt.Errorf("%w: user and window key are required", storage.ErrInvalidInput)
	}
	if summary.ID == "" {
		summary.ID = types.NewID("mem:sum")
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	sourceIDs, err := encodeJSON(summary.SourceIDs)
	if err != nil {
		return err
	}
	entityIDs, err := encodeJSON(summary.EntityIDs)
	if err != nil {
		return err
	}
	embedding, err := encodeJSON(summary.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_summaries (id, user_id, narrative, source_ids, entity_ids, window_key, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.UserID, summary.Narrative, sourceIDs, entityIDs,
		summary.WindowKey, summary.Importance, embedding, summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create summary: %w", err)
	}
	return nil
}

// FindSummaryByWindow returns the summary for a window key.
func (s *Store) FindSummaryByWindow(ctx context.Context, userID, windowKey string) (*types.MemorySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, narrative, source_ids, entity_ids, window_key, importance, embedding, created_at
		FROM memory_summaries WHERE user_id = ? AND window_key = ?`, userID, windowKey)
	return scanSummary(row)
}

// ConsolidationWindow returns the user's unconsolidated episodic
// memories across their most recent sessionCount sessions.
func (s *Store) ConsolidationWindow(ctx context.Context, userID string, sessionCount int) (*storage.ConsolidationWindow, error) {
	if sessionCount <= 0 {
		return nil, fmt.Errorf("%w: session count must be positive", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM episodic_memories
		WHERE user_id = ? AND consolidated = 0
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC, session_id LIMIT ?`, userID, sessionCount)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list sessions: %w", err)
	}
	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: failed to list sessions: %w", err)
	}
	rows.Close()

	window := &storage.ConsolidationWindow{UserID: userID, SessionIDs: sessions}
	if len(sessions) == 0 {
		return window, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sessions)), ", ")
	args := []interface{}{userID}
	for _, id := range sessions {
		args = append(args, id)
	}

	window.Memories, err = s.listEpisodic(ctx, `
		SELECT id, user_id, session_id, content, entity_ids, importance, embedding, consolidated, created_at
		FROM episodic_memories
		WHERE user_id = ? AND consolidated = 0 AND session_id IN (`+placeholders+`)
		ORDER BY created_at ASC, id`, args...)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// MarkConsolidated flags episodic memories as absorbed into a summary.
func (s *Store) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodic_memories SET consolidated = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to mark memories consolidated: %w", err)
	}
	return nil
}

func (s *Store) listEpisodic(ctx context.Context, query string, args ...interface{}) ([]*types.EpisodicMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: episodic query failed: %w", err)
	}
	defer rows.Close()

	var mems []*types.EpisodicMemory
	for rows.Next() {
		var (
			mem       types.EpisodicMemory
			entityIDs sql.NullString
			embedding sql.NullString
		)
		if err := rows.Scan(&mem.ID, &mem.UserID, &mem.SessionID, &mem.Content,
			&entityIDs, &mem.Importance, &embedding, &mem.Consolidated, &mem.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan episodic memory: %w", err)
		}
		if err := decodeJSON(entityIDs, &mem.EntityIDs); err != nil {
			return nil, err
		}
		if err := decodeJSON(embedding, &mem.Embedding); err != nil {
			return nil, err
		}
		mems = append(mems, &mem)
	}
	return mems, rows.Err()
}

func (s *Store) listProcedural(ctx context.Context, userID string) ([]*types.ProceduralMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, task, steps, entity_ids, importance, embedding, created_at
		FROM procedural_memories WHERE user_id = ? AND entity_ids IS NOT NULL
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: procedural query failed: %w", err)
	}
	defer rows.Close()

	var mems []*types.ProceduralMemory
	for rows.Next() {
		mem, err := scanProcedural(rows)
		if err != nil {
			return nil, err
		}
		mems = append(mems, mem)
	}
	return mems, rows.Err()
}

func scanSemantic(row rowScanner) (*types.SemanticMemory, error) {
	var (
		mem          types.SemanticMemory
		status       string
		supersededBy sql.NullString
		embedding    sql.NullString
	)
	err := row.Scan(&mem.ID, &mem.UserID, &mem.SubjectEntityID, &mem.Predicate, &mem.ObjectValue,
		&mem.Confidence, &mem.ReinforcementCount, &mem.LastValidatedAt, &status, &supersededBy,
		&mem.Importance, &embedding, &mem.FromAuthoritativeSource, &mem.CreatedAt, &mem.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan semantic memory: %w", err)
	}
	mem.Status = types.MemoryStatus(status)
	mem.SupersededByMemoryID = supersededBy.String
	if err := decodeJSON(embedding, &mem.Embedding); err != nil {
		return nil, err
	}
	return &mem, nil
}

func scanProcedural(row rowScanner) (*types.ProceduralMemory, error) {
	var (
		mem       types.ProceduralMemory
		steps     sql.NullString
		entityIDs sql.NullString
		embedding sql.NullString
	)
	err := row.Scan(&mem.ID, &mem.UserID, &mem.Task, &steps, &entityIDs,
		&mem.Importance, &embedding, &mem.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan procedural memory: %w", err)
	}
	if err := decodeJSON(steps, &mem.Steps); err != nil {
		return nil, err
	}
	if err := decodeJSON(entityIDs, &mem.EntityIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(embedding, &mem.Embedding); err != nil {
		return nil, err
	}
	return &mem, nil
}

func scanSummary(row rowScanner) (*types.MemorySummary, error) {
	var (
		summary   types.MemorySummary
		sourceIDs sql.NullString
		entityIDs sql.NullString
		embedding sql.NullString
	)
	err := row.Scan(&summary.ID, &summary.UserID, &summary.Narrative, &sourceIDs, &entityIDs,
		&summary.WindowKey, &summary.Importance, &embedding, &summary.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan summary: %w", err)
	}
	if err := decodeJSON(sourceIDs, &summary.SourceIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(entityIDs, &summary.EntityIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(embedding, &summary.Embedding); err != nil {
		return nil, err
	}
	return &summary, nil
}

func appendSemanticRows(pool []types.Candidate, rows *sql.Rows) ([]types.Candidate, error) {
	defer rows.Close()
	for rows.Next() {
		mem, err := scanSemantic(rows)
		if err != nil {
			return nil, err
		}
		pool = append(pool, mem)
	}
	return pool, rows.Err()
}

func overlapsAny(ids []string, want map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := want[id]; ok {
			return true
		}
	}
	return false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

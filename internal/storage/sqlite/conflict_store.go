package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// Append durably records a conflict. The table is append-only; rows
// are never updated or deleted.
func (s *Store) Append(ctx context.Context, conflict *types.MemoryConflict) error {
	if conflict == nil || conflict.Type == "" {
		return fmt.Errorf("%w: conflict type is required", storage.ErrInvalidInput)
	}
	if conflict.ID == "" {
		conflict.ID = types.NewID("cfl")
	}
	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now().UTC()
	}

	data, err := encodeJSON(conflict.ConflictData)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, detected_at_event, conflict_type, conflict_data, resolution_strategy, rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conflict.ID, conflict.DetectedAtEvent, string(conflict.Type), data,
		string(conflict.Strategy), conflict.Rationale, conflict.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append conflict: %w", err)
	}
	return nil
}

// ListByEntity returns conflicts whose data references the subject
// entity, newest first. The match runs over the JSON payload; conflict
// volume is low enough that a scan beats maintaining a side index.
func (s *Store) ListByEntity(ctx context.Context, subjectEntityID string, limit int) ([]*types.MemoryConflict, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, detected_at_event, conflict_type, conflict_data, resolution_strategy, rationale, created_at
		FROM conflicts
		WHERE conflict_data LIKE '%' || ? || '%'
		ORDER BY created_at DESC, id LIMIT ?`,
		subjectEntityID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*types.MemoryConflict
	for rows.Next() {
		var (
			conflict     types.MemoryConflict
			conflictType string
			strategy     string
			data         sql.NullString
		)
		if err := rows.Scan(&conflict.ID, &conflict.DetectedAtEvent, &conflictType,
			&data, &strategy, &conflict.Rationale, &conflict.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan conflict: %w", err)
		}
		conflict.Type = types.ConflictType(conflictType)
		conflict.Strategy = types.ResolutionStrategy(strategy)
		if err := decodeJSON(data, &conflict.ConflictData); err != nil {
			return nil, err
		}
		conflicts = append(conflicts, &conflict)
	}
	return conflicts, rows.Err()
}

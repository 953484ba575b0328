package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// CreateOrGet creates a canonical entity or returns the existing one
// for the natural key (entityType, externalRef). The insert races are
// resolved by the unique index: on conflict we re-read.
func (s *Store) CreateOrGet(ctx context.Context, entityType, externalRef, name string) (*types.CanonicalEntity, error) {
	if entityType == "" || externalRef == "" || name == "" {
		return nil, fmt.Errorf("%w: entity type, external ref, and name are required", storage.ErrInvalidInput)
	}

	if existing, err := s.findByNaturalKey(ctx, entityType, externalRef); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	entity := &types.CanonicalEntity{
		ID:            types.NewID("ent:" + entityType),
		EntityType:    entityType,
		CanonicalName: name,
		ExternalRef:   externalRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, canonical_name, external_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, external_ref) DO NOTHING`,
		entity.ID, entity.EntityType, entity.CanonicalName, entity.ExternalRef,
		entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to create entity: %w", err)
	}

	// Re-read either way: a conflicting concurrent insert means our row
	// was discarded and someone else's won.
	return s.findByNaturalKey(ctx, entityType, externalRef)
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name, external_ref, properties, embedding, created_at, updated_at
		FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// FindByName looks up an entity by canonical name, case-insensitively.
func (s *Store) FindByName(ctx context.Context, name string) (*types.CanonicalEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name, external_ref, properties, embedding, created_at, updated_at
		FROM entities WHERE canonical_name = ? COLLATE NOCASE
		ORDER BY id LIMIT 1`, name)
	return scanEntity(row)
}

func (s *Store) findByNaturalKey(ctx context.Context, entityType, externalRef string) (*types.CanonicalEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name, external_ref, properties, embedding, created_at, updated_at
		FROM entities WHERE entity_type = ? AND external_ref = ?`, entityType, externalRef)
	return scanEntity(row)
}

// FuzzySearch scores every canonical name and alias against text with
// bigram Dice similarity and returns entities whose best score clears
// the threshold. The scan is in-process; SQLite has no fuzzy operator
// and the entity table is small relative to the memory tables.
func (s *Store) FuzzySearch(ctx context.Context, text string, threshold float64) ([]storage.EntityMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: search text is required", storage.ErrInvalidInput)
	}

	best := make(map[string]*storage.EntityMatch)

	rows, err := s.db.QueryContext(ctx, `SELECT id, canonical_name FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fuzzy name scan failed: %w", err)
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan entity name: %w", err)
		}
		score := diceSimilarity(text, name)
		if score < threshold {
			continue
		}
		if cur, ok := best[id]; !ok || score > cur.TextScore {
			best[id] = &storage.EntityMatch{TextScore: score}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: fuzzy name scan failed: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT entity_id, alias_text, confidence, use_count FROM aliases`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fuzzy alias scan failed: %w", err)
	}
	for rows.Next() {
		var (
			entityID, aliasText string
			confidence          float64
			useCount            int
		)
		if err := rows.Scan(&entityID, &aliasText, &confidence, &useCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan alias: %w", err)
		}
		score := diceSimilarity(text, aliasText)
		if score < threshold {
			continue
		}
		cur, ok := best[entityID]
		if !ok || score > cur.TextScore {
			best[entityID] = &storage.EntityMatch{
				TextScore:       score,
				AliasConfidence: confidence,
				UseCount:        useCount,
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: fuzzy alias scan failed: %w", err)
	}
	rows.Close()

	matches := make([]storage.EntityMatch, 0, len(best))
	for id, match := range best {
		entity, err := s.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		match.Entity = entity
		matches = append(matches, *match)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].TextScore != matches[j].TextScore {
			return matches[i].TextScore > matches[j].TextScore
		}
		if matches[i].UseCount != matches[j].UseCount {
			return matches[i].UseCount > matches[j].UseCount
		}
		return matches[i].Entity.ID < matches[j].Entity.ID
	})

	if len(matches) > s.opts.FuzzyCandidateLimit {
		matches = matches[:s.opts.FuzzyCandidateLimit]
	}
	return matches, nil
}

// FindAlias looks up an alias scoped to (aliasText, userID).
func (s *Store) FindAlias(ctx context.Context, aliasText, userID string) (*types.EntityAlias, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alias_text, entity_id, user_id, source, confidence, use_count, created_at
		FROM aliases WHERE alias_text = ? COLLATE NOCASE AND user_id = ?
		ORDER BY confidence DESC, use_count DESC, entity_id LIMIT 1`,
		aliasText, userID)
	return scanAlias(row)
}

// CreateOrTouchAlias inserts the alias or, when it already exists,
// bumps use_count and nudges confidence toward the cap atomically.
func (s *Store) CreateOrTouchAlias(ctx context.Context, alias *types.EntityAlias) error {
	if alias == nil || alias.AliasText == "" || alias.EntityID == "" {
		return fmt.Errorf("%w: alias text and entity id are required", storage.ErrInvalidInput)
	}

	createdAt := alias.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	useCount := alias.UseCount
	if useCount <= 0 {
		useCount = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (alias_text, entity_id, user_id, source, confidence, use_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (alias_text, user_id, entity_id) DO UPDATE SET
			use_count  = use_count + 1,
			confidence = MIN(?, confidence + ?)`,
		alias.AliasText, alias.EntityID, alias.UserID, string(alias.Source),
		alias.Confidence, useCount, createdAt,
		s.opts.AliasConfidenceCap, s.opts.AliasTouchBoost)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert alias: %w", err)
	}
	return nil
}

// ListAliases returns all aliases pointing at an entity.
func (s *Store) ListAliases(ctx context.Context, entityID string) ([]*types.EntityAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alias_text, entity_id, user_id, source, confidence, use_count, created_at
		FROM aliases WHERE entity_id = ?
		ORDER BY use_count DESC, alias_text`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*types.EntityAlias
	for rows.Next() {
		alias, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*types.CanonicalEntity, error) {
	var (
		entity     types.CanonicalEntity
		properties sql.NullString
		embedding  sql.NullString
	)
	err := row.Scan(&entity.ID, &entity.EntityType, &entity.CanonicalName, &entity.ExternalRef,
		&properties, &embedding, &entity.CreatedAt, &entity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
	}
	if err := decodeJSON(properties, &entity.Properties); err != nil {
		return nil, err
	}
	if err := decodeJSON(embedding, &entity.Embedding); err != nil {
		return nil, err
	}
	return &entity, nil
}

func scanAlias(row rowScanner) (*types.EntityAlias, error) {
	var (
		alias  types.EntityAlias
		source string
	)
	err := row.Scan(&alias.AliasText, &alias.EntityID, &alias.UserID, &source,
		&alias.Confidence, &alias.UseCount, &alias.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan alias: %w", err)
	}
	alias.Source = types.AliasSource(source)
	return &alias, nil
}

// diceSimilarity is the Sørensen-Dice coefficient over character
// bigrams of the lowercased inputs. Equal strings score 1.0; strings
// shorter than two runes match only exactly.
func diceSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0
	}

	counts := make(map[string]int, len(bigramsA))
	for _, bg := range bigramsA {
		counts[bg]++
	}
	overlap := 0
	for _, bg := range bigramsB {
		if counts[bg] > 0 {
			counts[bg]--
			overlap++
		}
	}

	return 2.0 * float64(overlap) / float64(len(bigramsA)+len(bigramsB))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

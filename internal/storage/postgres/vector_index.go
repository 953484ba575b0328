// Package postgres implements vector similarity search over memory
// embeddings on PostgreSQL with the pgvector extension. It is the only
// Postgres-backed component; the record stores stay on SQLite and the
// index holds just (memory_id, user_id, embedding) rows.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recollect/internal/storage"
)

// Index is a pgvector-backed storage.VectorIndex.
type Index struct {
	db   *sql.DB
	dims int
}

// Open connects to PostgreSQL and prepares the embeddings table. dims
// is the embedding dimensionality; all stored vectors must match it.
func Open(dsn string, dims int) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimensions must be positive, got %d", dims)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	idx := &Index{db: db, dims: dims}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureSchema() error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_embeddings (
			memory_id TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, idx.dims),
		`CREATE INDEX IF NOT EXISTS idx_memory_embeddings_user
			ON memory_embeddings (user_id)`,
	}
	for _, stmt := range statements {
		if _, err := idx.db.Exec(stmt); err != nil {
			return fmt.Errorf("postgres: failed to prepare embeddings schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert stores or replaces a memory's embedding.
func (idx *Index) Upsert(ctx context.Context, memoryID, userID string, vector []float32) error {
	if memoryID == "" || len(vector) != idx.dims {
		return fmt.Errorf("%w: memory id and a %d-dim vector are required", storage.ErrInvalidInput, idx.dims)
	}

	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings (memory_id, user_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (memory_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			embedding = EXCLUDED.embedding`,
		memoryID, userID, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert embedding: %w", err)
	}
	return nil
}

// Delete removes a memory's embedding from the index. Missing rows are
// not an error.
func (idx *Index) Delete(ctx context.Context, memoryID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM memory_embeddings WHERE memory_id = $1`, memoryID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete embedding: %w", err)
	}
	return nil
}

// NearestNeighbors returns up to k memory IDs closest to the query
// vector in the user's scope, best first, with cosine similarity.
func (idx *Index) NearestNeighbors(ctx context.Context, vector []float32, userID string, k int) ([]storage.Neighbor, error) {
	if len(vector) != idx.dims {
		return nil, fmt.Errorf("%w: query vector must have %d dimensions, got %d", storage.ErrInvalidInput, idx.dims, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	query := pgvector.NewVector(vector)
	rows, err := idx.db.QueryContext(ctx, `
		SELECT memory_id, 1 - (embedding <=> $1) AS similarity
		FROM memory_embeddings
		WHERE user_id = $2
		ORDER BY embedding <=> $1, memory_id
		LIMIT $3`,
		query, userID, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer rows.Close()

	var neighbors []storage.Neighbor
	for rows.Next() {
		var n storage.Neighbor
		if err := rows.Scan(&n.ID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

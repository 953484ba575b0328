// Package sqlite implements the entity, memory, and conflict stores on
// an embedded SQLite database. The database runs in WAL mode with a
// single writer connection; concurrent lifecycle mutations are
// serialized at the driver level and guarded again by compare-and-set
// predicates in the UPDATE statements.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Options tunes store behavior that is policy rather than schema.
type Options struct {
	// AliasTouchBoost is added to an alias's confidence on each reuse.
	AliasTouchBoost float64

	// AliasConfidenceCap is the ceiling for learned alias confidence.
	AliasConfidenceCap float64

	// FuzzyCandidateLimit bounds how many fuzzy hits a search returns.
	FuzzyCandidateLimit int
}

// Store is the SQLite-backed implementation of the entity, memory, and
// conflict store interfaces.
type Store struct {
	db   *sql.DB
	opts Options
}

// Open opens (creating if needed) the database at path and applies the
// schema. The returned store owns the connection.
func Open(path string, opts Options) (*Store, error) {
	if opts.AliasTouchBoost <= 0 {
		opts.AliasTouchBoost = 0.01
	}
	if opts.AliasConfidenceCap <= 0 {
		opts.AliasConfidenceCap = 0.95
	}
	if opts.FuzzyCandidateLimit <= 0 {
		opts.FuzzyCandidateLimit = 10
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Single connection: SQLite has one writer anyway, and a single
	// conn avoids SQLITE_BUSY churn between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db, opts: opts}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeJSON marshals v for a TEXT column, returning NULL for nil-ish
// values so the column stays readable.
func encodeJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: failed to encode json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeJSON unmarshals a TEXT column into out, leaving out untouched
// for NULL or empty columns.
func decodeJSON(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("sqlite: failed to decode json column: %w", err)
	}
	return nil
}

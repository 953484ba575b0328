package sqlite

// Schema is the embedded SQLite schema for the Recollect stores. All
// statements are idempotent so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id             TEXT PRIMARY KEY,
    entity_type    TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    external_ref   TEXT NOT NULL,
    properties     TEXT,
    embedding      TEXT,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL,
    UNIQUE (entity_type, external_ref)
);

CREATE INDEX IF NOT EXISTS idx_entities_name
    ON entities (canonical_name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS aliases (
    alias_text TEXT NOT NULL COLLATE NOCASE,
    entity_id  TEXT NOT NULL REFERENCES entities (id),
    user_id    TEXT NOT NULL DEFAULT '',
    source     TEXT NOT NULL,
    confidence REAL NOT NULL,
    use_count  INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (alias_text, user_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_aliases_entity ON aliases (entity_id);

CREATE TABLE IF NOT EXISTS semantic_memories (
    id                      TEXT PRIMARY KEY,
    user_id                 TEXT NOT NULL,
    subject_entity_id       TEXT NOT NULL,
    predicate               TEXT NOT NULL,
    object_value            TEXT NOT NULL,
    confidence              REAL NOT NULL,
    reinforcement_count     INTEGER NOT NULL DEFAULT 0,
    last_validated_at       TIMESTAMP NOT NULL,
    status                  TEXT NOT NULL DEFAULT 'active',
    superseded_by_memory_id TEXT,
    importance              REAL NOT NULL DEFAULT 0,
    embedding               TEXT,
    from_authoritative      INTEGER NOT NULL DEFAULT 0,
    created_at              TIMESTAMP NOT NULL,
    updated_at              TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_semantic_fact
    ON semantic_memories (user_id, subject_entity_id, predicate, status);

CREATE TABLE IF NOT EXISTS episodic_memories (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    session_id   TEXT NOT NULL,
    content      TEXT NOT NULL,
    entity_ids   TEXT,
    importance   REAL NOT NULL DEFAULT 0,
    embedding    TEXT,
    consolidated INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodic_session
    ON episodic_memories (user_id, session_id, consolidated);

CREATE INDEX IF NOT EXISTS idx_episodic_created
    ON episodic_memories (user_id, created_at);

CREATE TABLE IF NOT EXISTS procedural_memories (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    task       TEXT NOT NULL,
    steps      TEXT,
    entity_ids TEXT,
    importance REAL NOT NULL DEFAULT 0,
    embedding  TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_summaries (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    narrative  TEXT NOT NULL,
    source_ids TEXT NOT NULL,
    entity_ids TEXT,
    window_key TEXT NOT NULL,
    importance REAL NOT NULL DEFAULT 0,
    embedding  TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (user_id, window_key)
);

CREATE TABLE IF NOT EXISTS conflicts (
    id                  TEXT PRIMARY KEY,
    detected_at_event   TEXT,
    conflict_type       TEXT NOT NULL,
    conflict_data       TEXT NOT NULL,
    resolution_strategy TEXT NOT NULL,
    rationale           TEXT,
    created_at          TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_created ON conflicts (created_at);
`

package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: per-owner memory items",
		SQL: `
CREATE TABLE memories (
    id             TEXT PRIMARY KEY,
    owner          TEXT NOT NULL,
    kind           TEXT NOT NULL CHECK (kind IN ('short_term', 'long_term', 'episodic', 'semantic')),
    title          TEXT,
    content        TEXT NOT NULL,
    importance     REAL NOT NULL DEFAULT 0.5,
    access_count   INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    last_accessed  INTEGER NOT NULL,
    expires_at     INTEGER,

    -- Bumped on every row mutation; lets callers detect lost updates.
    version        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_memories_owner_kind ON memories(owner, kind);
CREATE INDEX idx_memories_expires    ON memories(expires_at);
CREATE INDEX idx_memories_accessed   ON memories(owner, last_accessed DESC);
`,
	},
	{
		Version:     2,
		Description: "personalities: one profile per owner",
		SQL: `
CREATE TABLE personalities (
    owner                 TEXT PRIMARY KEY,
    communication_style   TEXT NOT NULL DEFAULT 'casual' CHECK (communication_style IN ('casual', 'formal', 'friendly', 'professional')),
    interests             TEXT NOT NULL DEFAULT '[]',
    preferences           TEXT NOT NULL DEFAULT '{}',
    conversation_patterns TEXT NOT NULL DEFAULT '{}',
    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL,

    -- CAS counter: merges are read-modify-write, the version guard keeps
    -- concurrent updates from losing each other's merges.
    version               INTEGER NOT NULL DEFAULT 0
);
`,
	},
	{
		Version:     3,
		Description: "conversation_contexts: rolling per-conversation state",
		SQL: `
CREATE TABLE conversation_contexts (
    conversation_id   TEXT NOT NULL,
    owner             TEXT NOT NULL,
    current_topic     TEXT NOT NULL DEFAULT '',
    user_mood         TEXT NOT NULL DEFAULT 'neutral',
    conversation_flow TEXT NOT NULL DEFAULT '[]',
    active_refs       TEXT NOT NULL DEFAULT '[]',
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,

    -- Conversation ids are scoped per owner; the same id used by two owners
    -- is two independent contexts.
    PRIMARY KEY (conversation_id, owner)
);

CREATE INDEX idx_contexts_owner ON conversation_contexts(owner);
`,
	},
	{
		Version:     4,
		Description: "memory_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

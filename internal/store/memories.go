package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory kinds. short_term and episodic items expire; long_term and
// semantic items do not.
const (
	KindShortTerm = "short_term"
	KindLongTerm  = "long_term"
	KindEpisodic  = "episodic"
	KindSemantic  = "semantic"
)

// Memory represents a single memory item owned by one user.
type Memory struct {
	ID           string
	Owner        string
	Kind         string
	Title        string
	Content      string
	Importance   float64
	AccessCount  int
	CreatedAt    int64
	LastAccessed int64
	ExpiresAt    *int64 // nil = never expires
	Version      int64
}

// Expired reports whether the memory's expiry has elapsed at the given time.
func (m *Memory) Expired(now int64) bool {
	return m.ExpiresAt != nil && *m.ExpiresAt <= now
}

const memoryColumns = `id, owner, kind, title, content, importance, access_count, created_at, last_accessed, expires_at, version`

// CreateMemory inserts a new memory item. Mints a UUID if the ID is unset
// and fills timestamps from the current time when zero.
func (db *DB) CreateMemory(m *Memory) error {
	if m.Owner == "" {
		return fmt.Errorf("create memory: owner required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.LastAccessed == 0 {
		m.LastAccessed = m.CreatedAt
	}

	_, err := db.Exec(`
		INSERT INTO memories (id, owner, kind, title, content, importance, access_count, created_at, last_accessed, expires_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, m.ID, m.Owner, m.Kind, m.Title, m.Content, m.Importance,
		m.AccessCount, m.CreatedAt, m.LastAccessed, m.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	m.Version = 0
	return nil
}

// GetMemory returns a memory by owner and id, or nil if not found.
// Includes expired rows; callers that need active-only semantics check
// Expired() themselves.
func (db *DB) GetMemory(owner, id string) (*Memory, error) {
	row := db.QueryRow(`
		SELECT `+memoryColumns+` FROM memories WHERE owner = ? AND id = ?
	`, owner, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ListMemories returns active (non-expired) memories for an owner, optionally
// filtered to the given kinds, ordered by importance then recency of access.
func (db *DB) ListMemories(owner string, kinds []string, now int64, limit int) ([]Memory, error) {
	query := `
		SELECT ` + memoryColumns + ` FROM memories
		WHERE owner = ? AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{owner, now}

	if len(kinds) > 0 {
		query += ` AND kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += ` ORDER BY importance DESC, last_accessed DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// RecentShortTerm returns the owner's active short_term memories,
// most recently accessed first.
func (db *DB) RecentShortTerm(owner string, now int64, limit int) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE owner = ? AND kind = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY last_accessed DESC, created_at DESC
		LIMIT ?
	`, owner, KindShortTerm, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recent short term: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TouchMemories bumps access_count and last_accessed for the given ids.
// A single UPDATE keeps the bump atomic per item under concurrent searches.
func (db *DB) TouchMemories(owner string, ids []string, now int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{now, owner}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := db.Exec(`
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = ?, version = version + 1
		WHERE owner = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

// PromoteMemory flips a short_term memory to long_term and clears its expiry.
// The conditional WHERE makes the promote/expire race resolve in favor of
// expiry only when expires_at had already elapsed. Returns false if no row
// was eligible (wrong kind, already expired, or missing).
func (db *DB) PromoteMemory(owner, id string, now int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE memories
		SET kind = ?, expires_at = NULL, version = version + 1
		WHERE owner = ? AND id = ? AND kind = ?
		  AND (expires_at IS NULL OR expires_at > ?)
	`, KindLongTerm, owner, id, KindShortTerm, now)
	if err != nil {
		return false, fmt.Errorf("promote memory: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ExpireMemories hard-deletes every memory whose expiry has elapsed,
// across all owners. Vectors go with them via ON DELETE CASCADE.
func (db *DB) ExpireMemories(now int64) (int, error) {
	result, err := db.Exec(`
		DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire memories: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// PromoteEligible promotes every active short_term memory at or above the
// importance threshold, across all owners. Used by the sweep.
func (db *DB) PromoteEligible(threshold float64, now int64) (int, error) {
	result, err := db.Exec(`
		UPDATE memories
		SET kind = ?, expires_at = NULL, version = version + 1
		WHERE kind = ? AND importance >= ?
		  AND (expires_at IS NULL OR expires_at > ?)
	`, KindLongTerm, KindShortTerm, threshold, now)
	if err != nil {
		return 0, fmt.Errorf("promote eligible: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// TrimShortTerm deletes the owner's excess short_term memories beyond keep,
// dropping the least important / least recently accessed first.
func (db *DB) TrimShortTerm(owner string, keep int, now int64) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := db.Exec(`
		DELETE FROM memories
		WHERE owner = ? AND kind = ? AND id NOT IN (
			SELECT id FROM memories
			WHERE owner = ? AND kind = ? AND (expires_at IS NULL OR expires_at > ?)
			ORDER BY importance DESC, last_accessed DESC
			LIMIT ?
		)
	`, owner, KindShortTerm, owner, KindShortTerm, now, keep)
	if err != nil {
		return 0, fmt.Errorf("trim short term: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DeleteMemory removes a memory and its vector by owner and id.
func (db *DB) DeleteMemory(owner, id string) error {
	if err := db.DeleteVector(id); err != nil {
		return fmt.Errorf("delete vector for memory %s: %w", id, err)
	}
	_, err := db.Exec("DELETE FROM memories WHERE owner = ? AND id = ?", owner, id)
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	return nil
}

// CountMemories returns the number of memories stored for an owner.
func (db *DB) CountMemories(owner string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM memories WHERE owner = ?", owner).Scan(&count)
	return count, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var title sql.NullString
	var expiresAt sql.NullInt64
	err := row.Scan(&m.ID, &m.Owner, &m.Kind, &title, &m.Content, &m.Importance,
		&m.AccessCount, &m.CreatedAt, &m.LastAccessed, &expiresAt, &m.Version)
	if err != nil {
		return nil, err
	}
	m.Title = title.String
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Int64
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

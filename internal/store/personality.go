package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Personality holds the learned profile for one owner.
type Personality struct {
	Owner                string
	CommunicationStyle   string // casual, formal, friendly, professional
	Interests            []string
	Preferences          map[string]any
	ConversationPatterns map[string]any
	CreatedAt            int64
	UpdatedAt            int64
	Version              int64
}

// GetOrCreatePersonality returns the owner's personality, creating a default
// profile on first interaction.
func (db *DB) GetOrCreatePersonality(owner string) (*Personality, error) {
	p, err := db.getPersonality(owner)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT OR IGNORE INTO personalities (owner, communication_style, interests, preferences, conversation_patterns, created_at, updated_at)
		VALUES (?, 'casual', '[]', '{}', '{}', ?, ?)
	`, owner, now, now)
	if err != nil {
		return nil, fmt.Errorf("create personality: %w", err)
	}
	return db.getPersonality(owner)
}

func (db *DB) getPersonality(owner string) (*Personality, error) {
	var p Personality
	var interests, preferences, patterns string
	err := db.QueryRow(`
		SELECT owner, communication_style, interests, preferences, conversation_patterns, created_at, updated_at, version
		FROM personalities WHERE owner = ?
	`, owner).Scan(&p.Owner, &p.CommunicationStyle, &interests, &preferences, &patterns, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get personality: %w", err)
	}

	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	if err := json.Unmarshal([]byte(preferences), &p.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &p.ConversationPatterns); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	return &p, nil
}

// UpdatePersonality merges changes into the owner's profile. Interests are
// unioned (deduplicated), preferences and patterns are merged key-by-key,
// never overwritten wholesale. An empty style leaves the current one alone.
// The merge is read-modify-write; the version guard on the UPDATE re-reads
// and retries when a concurrent update lands first, so no merge is lost.
func (db *DB) UpdatePersonality(owner, style string, interests []string, preferences, patterns map[string]any) (*Personality, error) {
	for attempt := 0; attempt < 5; attempt++ {
		p, err := db.GetOrCreatePersonality(owner)
		if err != nil {
			return nil, err
		}

		if style != "" {
			p.CommunicationStyle = style
		}

		seen := make(map[string]bool, len(p.Interests))
		for _, i := range p.Interests {
			seen[i] = true
		}
		for _, i := range interests {
			if i != "" && !seen[i] {
				p.Interests = append(p.Interests, i)
				seen[i] = true
			}
		}

		if p.Preferences == nil {
			p.Preferences = map[string]any{}
		}
		for k, v := range preferences {
			p.Preferences[k] = v
		}
		if p.ConversationPatterns == nil {
			p.ConversationPatterns = map[string]any{}
		}
		for k, v := range patterns {
			p.ConversationPatterns[k] = v
		}

		interestsJSON, err := json.Marshal(p.Interests)
		if err != nil {
			return nil, fmt.Errorf("encode interests: %w", err)
		}
		preferencesJSON, err := json.Marshal(p.Preferences)
		if err != nil {
			return nil, fmt.Errorf("encode preferences: %w", err)
		}
		patternsJSON, err := json.Marshal(p.ConversationPatterns)
		if err != nil {
			return nil, fmt.Errorf("encode patterns: %w", err)
		}

		now := time.Now().UnixMilli()
		result, err := db.Exec(`
			UPDATE personalities
			SET communication_style = ?, interests = ?, preferences = ?, conversation_patterns = ?, updated_at = ?, version = version + 1
			WHERE owner = ? AND version = ?
		`, p.CommunicationStyle, string(interestsJSON), string(preferencesJSON), string(patternsJSON), now, owner, p.Version)
		if err != nil {
			return nil, fmt.Errorf("update personality: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			// A concurrent update won the race; merge against the fresh row.
			continue
		}
		p.UpdatedAt = now
		p.Version++
		return p, nil
	}
	return nil, fmt.Errorf("update personality for %s: retries exhausted", owner)
}

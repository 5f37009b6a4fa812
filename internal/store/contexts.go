package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ConversationContext is the rolling state for one conversation.
type ConversationContext struct {
	ConversationID   string
	Owner            string
	CurrentTopic     string
	UserMood         string
	ConversationFlow []string // ordered topic labels, oldest first
	ActiveRefs       []string // memory ids considered relevant to this conversation
	CreatedAt        int64
	UpdatedAt        int64
}

// GetContext returns the context for a conversation, or nil if none exists.
// The owner filter keeps one user from reading another's conversation state.
func (db *DB) GetContext(conversationID, owner string) (*ConversationContext, error) {
	var c ConversationContext
	var flow, refs string
	err := db.QueryRow(`
		SELECT conversation_id, owner, current_topic, user_mood, conversation_flow, active_refs, created_at, updated_at
		FROM conversation_contexts WHERE conversation_id = ? AND owner = ?
	`, conversationID, owner).Scan(&c.ConversationID, &c.Owner, &c.CurrentTopic, &c.UserMood, &flow, &refs, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	if err := json.Unmarshal([]byte(flow), &c.ConversationFlow); err != nil {
		return nil, fmt.Errorf("decode conversation flow: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &c.ActiveRefs); err != nil {
		return nil, fmt.Errorf("decode active refs: %w", err)
	}
	return &c, nil
}

// SaveContext creates or replaces the conversation's context row.
func (db *DB) SaveContext(c *ConversationContext) error {
	flowJSON, err := json.Marshal(c.ConversationFlow)
	if err != nil {
		return fmt.Errorf("encode conversation flow: %w", err)
	}
	refsJSON, err := json.Marshal(c.ActiveRefs)
	if err != nil {
		return fmt.Errorf("encode active refs: %w", err)
	}

	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	_, err = db.Exec(`
		INSERT INTO conversation_contexts (conversation_id, owner, current_topic, user_mood, conversation_flow, active_refs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, owner) DO UPDATE SET
			current_topic = excluded.current_topic,
			user_mood = excluded.user_mood,
			conversation_flow = excluded.conversation_flow,
			active_refs = excluded.active_refs,
			updated_at = excluded.updated_at
	`, c.ConversationID, c.Owner, c.CurrentTopic, c.UserMood, string(flowJSON), string(refsJSON), c.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	c.UpdatedAt = now
	return nil
}

package memory

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lazypower/recall/internal/store"
)

// Tracker maintains per-conversation rolling state derived from the message
// stream: current topic, user mood, a bounded topic flow, and the set of
// memory ids considered active for the conversation. The tracker never
// queries memory itself; callers pass in whatever search returned for the
// message.
type Tracker struct {
	DB        *store.DB
	FlowLimit int

	mu sync.Mutex
}

// NewTracker creates a Tracker with the given flow bound.
func NewTracker(db *store.DB, flowLimit int) *Tracker {
	if flowLimit <= 0 {
		flowLimit = 20
	}
	return &Tracker{DB: db, FlowLimit: flowLimit}
}

// Observe folds one message into the conversation's context. The context row
// is created lazily on first observe. memoryRefs are unioned into
// active_memory_refs.
func (t *Tracker) Observe(conversationID, owner, message, topic, mood string, memoryRefs []string) error {
	if conversationID == "" || owner == "" {
		return fmt.Errorf("%w: conversation and owner required", ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.DB.GetContext(conversationID, owner)
	if err != nil {
		return storageErr("get context", err)
	}
	if c == nil {
		c = &store.ConversationContext{
			ConversationID: conversationID,
			Owner:          owner,
			UserMood:       "neutral",
		}
	}

	if topic != "" {
		c.CurrentTopic = topic
		c.ConversationFlow = append(c.ConversationFlow, topic)
		if len(c.ConversationFlow) > t.FlowLimit {
			// Drop oldest on overflow.
			c.ConversationFlow = c.ConversationFlow[len(c.ConversationFlow)-t.FlowLimit:]
		}
	}
	if mood != "" {
		c.UserMood = mood
	}

	seen := make(map[string]bool, len(c.ActiveRefs))
	for _, r := range c.ActiveRefs {
		seen[r] = true
	}
	for _, r := range memoryRefs {
		if r != "" && !seen[r] {
			c.ActiveRefs = append(c.ActiveRefs, r)
			seen[r] = true
		}
	}

	if err := t.DB.SaveContext(c); err != nil {
		return storageErr("save context", err)
	}

	t.learnPatterns(owner, message)
	return nil
}

// Snapshot returns a read-only copy of the conversation's context, or
// ErrNotFound if nothing has been observed for it yet.
func (t *Tracker) Snapshot(conversationID, owner string) (*store.ConversationContext, error) {
	c, err := t.DB.GetContext(conversationID, owner)
	if err != nil {
		return nil, storageErr("get context", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	copied := *c
	copied.ConversationFlow = append([]string(nil), c.ConversationFlow...)
	copied.ActiveRefs = append([]string(nil), c.ActiveRefs...)
	return &copied, nil
}

// learnPatterns updates the owner's conversation_patterns incrementally:
// message count and running average message length. Best-effort; pattern
// learning never fails an observe.
func (t *Tracker) learnPatterns(owner, message string) {
	if strings.TrimSpace(message) == "" {
		return
	}

	p, err := t.DB.GetOrCreatePersonality(owner)
	if err != nil {
		log.Printf("tracker: load personality for %s: %v", owner, err)
		return
	}

	count := toFloat(p.ConversationPatterns["message_count"])
	avgLen := toFloat(p.ConversationPatterns["avg_message_length"])

	msgLen := float64(len(message))
	count++
	avgLen += (msgLen - avgLen) / count

	patterns := map[string]any{
		"message_count":      count,
		"avg_message_length": avgLen,
	}
	if _, err := t.DB.UpdatePersonality(owner, "", nil, nil, patterns); err != nil {
		log.Printf("tracker: update patterns for %s: %v", owner, err)
	}
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

package memory

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lazypower/recall/internal/store"
)

// ContextPayload is the bounded bundle of personality, memory, and recency
// data handed to the generation collaborator for one turn.
type ContextPayload struct {
	Owner          string              `json:"owner"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Message        string              `json:"message"`
	Personality    *PersonalityProfile `json:"personality,omitempty"`
	CurrentTopic   string              `json:"current_topic,omitempty"`
	UserMood       string              `json:"user_mood,omitempty"`
	Memories       []ContextMemory     `json:"memories"`   // relevant long_term/semantic/episodic, ranked
	ShortTerm      []ContextMemory     `json:"short_term"` // recency window, most recent first
}

// PersonalityProfile is the small fixed-size personality slice of a payload.
type PersonalityProfile struct {
	CommunicationStyle string         `json:"communication_style"`
	Interests          []string       `json:"interests,omitempty"`
	Preferences        map[string]any `json:"preferences,omitempty"`
}

// ContextMemory is one memory entry inside a payload.
type ContextMemory struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
	Score      float64 `json:"score,omitempty"`
}

// Items counts the budgeted entries in the payload.
func (p *ContextPayload) Items() int {
	n := len(p.Memories) + len(p.ShortTerm)
	if p.Personality != nil {
		n++
	}
	return n
}

// Assembler merges personality, promoted memories, and the short-term
// recency window into a bounded payload for the generation step.
type Assembler struct {
	Manager *Manager
	Tracker *Tracker
}

// NewAssembler creates an Assembler over the given manager and tracker.
func NewAssembler(mgr *Manager, tracker *Tracker) *Assembler {
	return &Assembler{Manager: mgr, Tracker: tracker}
}

// BuildContext assembles the payload for one turn. maxItems bounds the
// total entry count; fixed priority order is personality first, then
// relevant durable memories, then the short-term recency window, truncating
// lowest-ranked items first.
//
// Best-effort: optional-collaborator failures degrade the payload. Only an
// unreachable store fails the call, with ErrStorageUnavailable.
func (a *Assembler) BuildContext(ctx context.Context, owner, conversationID, userMessage string, maxItems int) (*ContextPayload, error) {
	if owner == "" {
		return nil, ErrInvalidInput
	}
	if maxItems <= 0 {
		maxItems = 10
	}

	now := time.Now().UnixMilli()
	payload := &ContextPayload{
		Owner:          owner,
		ConversationID: conversationID,
		Message:        userMessage,
		Memories:       []ContextMemory{},
		ShortTerm:      []ContextMemory{},
	}

	// Personality constraints always come first and consume one slot.
	personality, err := a.Manager.DB.GetOrCreatePersonality(owner)
	if err != nil {
		return nil, storageErr("load personality", err)
	}
	budget := maxItems
	if budget > 0 {
		payload.Personality = &PersonalityProfile{
			CommunicationStyle: personality.CommunicationStyle,
			Interests:          personality.Interests,
			Preferences:        personality.Preferences,
		}
		budget--
	}

	if conversationID != "" {
		snap, err := a.Tracker.Snapshot(conversationID, owner)
		switch {
		case err == nil:
			payload.CurrentTopic = snap.CurrentTopic
			payload.UserMood = snap.UserMood
		case errors.Is(err, ErrNotFound):
			// Nothing observed yet; fine.
		case errors.Is(err, ErrStorageUnavailable):
			return nil, err
		default:
			log.Printf("assemble: snapshot %s: %v", conversationID, err)
		}
	}

	// Promoted durable memories, ranked by relevance to the message.
	if budget > 0 {
		kinds := []string{store.KindLongTerm, store.KindSemantic, store.KindEpisodic}
		results, err := a.Manager.Search(ctx, owner, userMessage, kinds, budget)
		if err != nil {
			if errors.Is(err, ErrStorageUnavailable) {
				return nil, err
			}
			log.Printf("assemble: search failed, continuing without memories: %v", err)
		}
		for _, r := range results {
			// Close the race window with a concurrent expiry sweep.
			if r.Memory.Expired(now) {
				continue
			}
			payload.Memories = append(payload.Memories, ContextMemory{
				ID:         r.Memory.ID,
				Kind:       r.Memory.Kind,
				Title:      r.Memory.Title,
				Content:    r.Memory.Content,
				Importance: r.Memory.Importance,
				Score:      r.Score,
			})
			budget--
		}
	}

	// Short-term recency window fills whatever budget remains.
	if budget > 0 {
		recent, err := a.Manager.DB.RecentShortTerm(owner, now, budget)
		if err != nil {
			return nil, storageErr("recent short term", err)
		}
		ids := make([]string, 0, len(recent))
		for _, mem := range recent {
			if mem.Expired(now) {
				continue
			}
			payload.ShortTerm = append(payload.ShortTerm, ContextMemory{
				ID:         mem.ID,
				Kind:       mem.Kind,
				Title:      mem.Title,
				Content:    mem.Content,
				Importance: mem.Importance,
			})
			ids = append(ids, mem.ID)
		}
		// Surfacing into a context counts as an access.
		if err := a.Manager.DB.TouchMemories(owner, ids, now); err != nil {
			log.Printf("assemble: touch short term: %v", err)
		}
	}

	return payload, nil
}

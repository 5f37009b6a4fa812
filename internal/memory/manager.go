package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/store"
)

// noveltyWindow caps how many existing memories the scorer compares
// new content against.
const noveltyWindow = 50

// Manager orchestrates creation, promotion, search, and expiry of memory
// items. It owns the policy knobs; the store owns the rows.
type Manager struct {
	DB       *store.DB
	Scorer   *Scorer
	Embedder Embedder
	cfg      config.MemoryConfig
	stopCh   chan struct{}
}

// NewManager creates a Manager with the given store and policy config.
func NewManager(db *store.DB, cfg config.MemoryConfig) *Manager {
	return &Manager{
		DB:     db,
		Scorer: NewScorer(cfg.MinContentLength),
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// SetEmbedder configures the optional vector-similarity collaborator.
func (m *Manager) SetEmbedder(emb Embedder) {
	m.Embedder = emb
}

// Config returns the policy config the manager was built with.
func (m *Manager) Config() config.MemoryConfig {
	return m.cfg
}

// StoreShortTerm scores content and records it as an expiring short_term
// memory for the owner. An empty title is derived from the content.
func (m *Manager) StoreShortTerm(ctx context.Context, owner, title, content string) (*store.Memory, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	now := time.Now()

	existing, err := m.DB.ListMemories(owner, nil, now.UnixMilli(), noveltyWindow)
	if err != nil {
		return nil, storageErr("list memories for scoring", err)
	}
	contents := make([]string, len(existing))
	for i := range existing {
		contents[i] = existing[i].Content
	}

	importance := m.Scorer.Score(ctx, content, contents)

	if title == "" {
		title = deriveTitle(content)
	}

	expiresAt := now.Add(m.cfg.ShortTermRetention).UnixMilli()
	mem := &store.Memory{
		Owner:      owner,
		Kind:       store.KindShortTerm,
		Title:      title,
		Content:    content,
		Importance: importance,
		ExpiresAt:  &expiresAt,
	}
	if err := m.DB.CreateMemory(mem); err != nil {
		return nil, storageErr("create short term memory", err)
	}

	m.embedMemory(ctx, mem)

	// Bounded storage growth: drop the owner's least valuable short-term
	// items beyond the cap.
	if trimmed, err := m.DB.TrimShortTerm(owner, m.cfg.ShortTermLimit, now.UnixMilli()); err != nil {
		log.Printf("trim short term for %s: %v", owner, err)
	} else if trimmed > 0 {
		log.Printf("trimmed %d excess short-term memories for %s", trimmed, owner)
	}

	return mem, nil
}

// StoreLongTerm records a durable long_term memory directly, bypassing the
// scorer (explicit operator intent). Importance is clamped to [0,1].
func (m *Manager) StoreLongTerm(ctx context.Context, owner, title, content string, importance float64) (*store.Memory, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	if title == "" {
		title = deriveTitle(content)
	}

	mem := &store.Memory{
		Owner:      owner,
		Kind:       store.KindLongTerm,
		Title:      title,
		Content:    content,
		Importance: importance,
	}
	if err := m.DB.CreateMemory(mem); err != nil {
		return nil, storageErr("create long term memory", err)
	}

	m.embedMemory(ctx, mem)
	return mem, nil
}

// StoreEpisodic records an event memory. Episodic items carry their own
// retention window, longer than short_term, and are never promoted.
func (m *Manager) StoreEpisodic(ctx context.Context, owner, title, content string, importance float64) (*store.Memory, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	if title == "" {
		title = deriveTitle(content)
	}

	expiresAt := time.Now().Add(m.cfg.EpisodicRetention).UnixMilli()
	mem := &store.Memory{
		Owner:      owner,
		Kind:       store.KindEpisodic,
		Title:      title,
		Content:    content,
		Importance: importance,
		ExpiresAt:  &expiresAt,
	}
	if err := m.DB.CreateMemory(mem); err != nil {
		return nil, storageErr("create episodic memory", err)
	}

	m.embedMemory(ctx, mem)
	return mem, nil
}

// Promote flips a short_term memory to long_term, clearing its expiry and
// preserving id and history. Promoting an already-long_term item is a no-op
// returning the item unchanged. Below-threshold promotion requires force.
func (m *Manager) Promote(owner, id string, force bool) (*store.Memory, error) {
	now := time.Now().UnixMilli()

	mem, err := m.DB.GetMemory(owner, id)
	if err != nil {
		return nil, storageErr("get memory", err)
	}
	if mem == nil || mem.Expired(now) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if mem.Kind == store.KindLongTerm {
		return mem, nil
	}
	if mem.Kind != store.KindShortTerm {
		return nil, fmt.Errorf("%w: %s memories are not promotable", ErrPrecondition, mem.Kind)
	}
	if !force && mem.Importance < m.cfg.PromotionThreshold {
		return nil, fmt.Errorf("%w: importance %.2f below threshold %.2f",
			ErrPrecondition, mem.Importance, m.cfg.PromotionThreshold)
	}

	promoted, err := m.DB.PromoteMemory(owner, id, now)
	if err != nil {
		return nil, storageErr("promote memory", err)
	}
	if !promoted {
		// Lost the race with the expiry sweep.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	mem, err = m.DB.GetMemory(owner, id)
	if err != nil {
		return nil, storageErr("get promoted memory", err)
	}
	if mem == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return mem, nil
}

// SweepStats reports what one sweep pass did.
type SweepStats struct {
	Expired  int `json:"expired"`
	Promoted int `json:"promoted"`
}

// Sweep expires every memory whose expiry has elapsed at now, then promotes
// remaining short_term memories at or above the importance threshold.
// Idempotent: a second run with the same now reports zero counts.
func (m *Manager) Sweep(now time.Time) (SweepStats, error) {
	ms := now.UnixMilli()

	expired, err := m.DB.ExpireMemories(ms)
	if err != nil {
		return SweepStats{}, storageErr("expire memories", err)
	}

	promoted, err := m.DB.PromoteEligible(m.cfg.PromotionThreshold, ms)
	if err != nil {
		return SweepStats{Expired: expired}, storageErr("promote eligible", err)
	}

	return SweepStats{Expired: expired, Promoted: promoted}, nil
}

// StartSweepTimer runs a sweep immediately and then on the configured
// interval until Stop is called.
func (m *Manager) StartSweepTimer() {
	if stats, err := m.Sweep(time.Now()); err != nil {
		log.Printf("sweep error: %v", err)
	} else if stats.Expired > 0 || stats.Promoted > 0 {
		log.Printf("sweep: expired %d, promoted %d", stats.Expired, stats.Promoted)
	}

	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if stats, err := m.Sweep(time.Now()); err != nil {
					log.Printf("sweep error: %v", err)
				} else if stats.Expired > 0 || stats.Promoted > 0 {
					log.Printf("sweep: expired %d, promoted %d", stats.Expired, stats.Promoted)
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the manager's background goroutines.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// embedMemory stores a vector for the memory when an embedder is configured.
// Failures degrade search to lexical ranking, never the write itself.
func (m *Manager) embedMemory(ctx context.Context, mem *store.Memory) {
	if m.Embedder == nil {
		return
	}
	vec, err := m.Embedder.Embed(ctx, mem.Content)
	if err != nil {
		log.Printf("embed memory %s: %v", mem.ID, err)
		return
	}
	if err := m.DB.SaveVector(mem.ID, vec, m.Embedder.Model()); err != nil {
		log.Printf("save vector %s: %v", mem.ID, err)
	}
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if len(title) > 50 {
		title = title[:50] + "..."
	}
	return title
}

// storageErr tags a store failure with ErrStorageUnavailable while keeping
// the underlying detail in the message.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
}

package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/store"
)

func TestStoreShortTerm(t *testing.T) {
	m := testManager(t)

	mem, err := m.StoreShortTerm(context.Background(), "alice", "", "i live in portland and i work from home")
	if err != nil {
		t.Fatalf("StoreShortTerm: %v", err)
	}

	if mem.Kind != store.KindShortTerm {
		t.Errorf("kind = %q, want short_term", mem.Kind)
	}
	if mem.ExpiresAt == nil {
		t.Fatal("expected an expiry on short-term memory")
	}
	wantExpiry := time.Now().Add(m.Config().ShortTermRetention).UnixMilli()
	if diff := wantExpiry - *mem.ExpiresAt; diff < 0 || diff > 5000 {
		t.Errorf("expires_at off by %dms from retention window", diff)
	}
	if mem.Importance < 0 || mem.Importance > 1 {
		t.Errorf("importance = %v, want [0,1]", mem.Importance)
	}
	if mem.Title == "" {
		t.Error("expected a derived title")
	}
}

func TestStoreShortTermValidation(t *testing.T) {
	m := testManager(t)

	_, err := m.StoreShortTerm(context.Background(), "", "t", "some content here")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing owner: err = %v, want ErrInvalidInput", err)
	}

	_, err = m.StoreShortTerm(context.Background(), "alice", "t", "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank content: err = %v, want ErrInvalidInput", err)
	}
}

func TestStoreLongTermClampsImportance(t *testing.T) {
	m := testManager(t)

	mem, err := m.StoreLongTerm(context.Background(), "alice", "", "alice plays the saxophone", 1.5)
	if err != nil {
		t.Fatalf("StoreLongTerm: %v", err)
	}
	if mem.Importance != 1.0 {
		t.Errorf("importance = %v, want clamped to 1", mem.Importance)
	}
	if mem.ExpiresAt != nil {
		t.Error("long_term memories must not expire")
	}

	mem, _ = m.StoreLongTerm(context.Background(), "alice", "", "another durable fact", -0.2)
	if mem.Importance != 0.0 {
		t.Errorf("importance = %v, want clamped to 0", mem.Importance)
	}
}

func TestStoreEpisodic(t *testing.T) {
	m := testManager(t)

	mem, err := m.StoreEpisodic(context.Background(), "alice", "", "went to the jazz festival downtown", 0.6)
	if err != nil {
		t.Fatalf("StoreEpisodic: %v", err)
	}

	if mem.Kind != store.KindEpisodic {
		t.Errorf("kind = %q, want episodic", mem.Kind)
	}
	if mem.ExpiresAt == nil {
		t.Fatal("expected an expiry on episodic memory")
	}
	wantExpiry := time.Now().Add(m.Config().EpisodicRetention).UnixMilli()
	if diff := wantExpiry - *mem.ExpiresAt; diff < 0 || diff > 5000 {
		t.Errorf("expires_at off by %dms from the episodic retention window", diff)
	}
	if mem.Importance != 0.6 {
		t.Errorf("importance = %v, want 0.6", mem.Importance)
	}
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("x", 80)
	title := deriveTitle(long)
	if len(title) != 53 || !strings.HasSuffix(title, "...") {
		t.Errorf("title = %q, want 50 chars plus ellipsis", title)
	}
	if deriveTitle("short note") != "short note" {
		t.Error("short content is its own title")
	}
}

func newShortTerm(t *testing.T, m *Manager, owner string, importance float64, expiresIn time.Duration) *store.Memory {
	t.Helper()
	expiry := time.Now().Add(expiresIn).UnixMilli()
	mem := &store.Memory{
		Owner:      owner,
		Kind:       store.KindShortTerm,
		Content:    "content for lifecycle tests",
		Importance: importance,
		ExpiresAt:  &expiry,
	}
	if err := m.DB.CreateMemory(mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return mem
}

func TestPromote(t *testing.T) {
	m := testManager(t)
	mem := newShortTerm(t, m, "alice", 0.9, time.Hour)

	promoted, err := m.Promote("alice", mem.ID, false)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promoted.Kind != store.KindLongTerm {
		t.Errorf("kind = %q, want long_term", promoted.Kind)
	}
	if promoted.ExpiresAt != nil {
		t.Error("expected expiry cleared")
	}
	if promoted.ID != mem.ID {
		t.Error("promotion must preserve the id")
	}

	// Promoting again is an idempotent no-op.
	again, err := m.Promote("alice", mem.ID, false)
	if err != nil {
		t.Fatalf("second Promote: %v", err)
	}
	if again.Kind != store.KindLongTerm {
		t.Errorf("second promote kind = %q", again.Kind)
	}
}

func TestPromoteBelowThreshold(t *testing.T) {
	m := testManager(t)
	mem := newShortTerm(t, m, "alice", 0.3, time.Hour)

	_, err := m.Promote("alice", mem.ID, false)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}

	// Force overrides the threshold.
	promoted, err := m.Promote("alice", mem.ID, true)
	if err != nil {
		t.Fatalf("forced Promote: %v", err)
	}
	if promoted.Kind != store.KindLongTerm {
		t.Errorf("kind = %q, want long_term", promoted.Kind)
	}
}

func TestPromoteUnknownID(t *testing.T) {
	m := testManager(t)

	_, err := m.Promote("alice", "no-such-id", false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPromoteExpired(t *testing.T) {
	m := testManager(t)
	mem := newShortTerm(t, m, "alice", 0.9, -time.Minute)

	_, err := m.Promote("alice", mem.ID, false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for expired memory", err)
	}
}

func TestPromoteWrongKind(t *testing.T) {
	m := testManager(t)
	mem := &store.Memory{Owner: "alice", Kind: store.KindEpisodic, Content: "a trip to the coast", Importance: 0.9}
	m.DB.CreateMemory(mem)

	_, err := m.Promote("alice", mem.ID, false)
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("err = %v, want ErrPrecondition for episodic", err)
	}
}

func TestSweep(t *testing.T) {
	m := testManager(t)

	// Salient and still active: promoted.
	newShortTerm(t, m, "alice", 0.9, time.Hour)
	// Trivial and stale: expired.
	stale := newShortTerm(t, m, "alice", 0.1, -time.Minute)

	stats, err := m.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.Expired != 1 || stats.Promoted != 1 {
		t.Errorf("stats = %+v, want 1 expired / 1 promoted", stats)
	}

	gone, _ := m.DB.GetMemory("alice", stale.ID)
	if gone != nil {
		t.Error("expected the stale memory deleted")
	}

	// Same instant again: nothing left to do.
	stats, err = m.Sweep(time.Now())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if stats.Expired != 0 || stats.Promoted != 0 {
		t.Errorf("second sweep stats = %+v, want zeros", stats)
	}
}

func TestSweepExpiryBeatsPromotion(t *testing.T) {
	m := testManager(t)

	// High importance but already past expiry: the sweep expires it, never
	// promotes it.
	mem := newShortTerm(t, m, "alice", 0.95, -time.Minute)

	stats, err := m.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.Expired != 1 || stats.Promoted != 0 {
		t.Errorf("stats = %+v, want 1 expired / 0 promoted", stats)
	}

	gone, _ := m.DB.GetMemory("alice", mem.ID)
	if gone != nil {
		t.Error("expected the expired memory deleted, not promoted")
	}
}

func TestShortTermTrimOnStore(t *testing.T) {
	db := testDB(t)
	cfg := testManagerConfig()
	cfg.ShortTermLimit = 3
	m := NewManager(db, cfg)

	for i := 0; i < 5; i++ {
		if _, err := m.StoreShortTerm(context.Background(), "alice", "", "i prefer tea over coffee in the morning"); err != nil {
			t.Fatalf("StoreShortTerm: %v", err)
		}
	}

	now := time.Now().UnixMilli()
	remaining, err := db.ListMemories("alice", []string{store.KindShortTerm}, now, 0)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(remaining) > 3 {
		t.Errorf("short-term count = %d, want at most 3", len(remaining))
	}
}

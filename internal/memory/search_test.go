package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/store"
)

func seedLongTerm(t *testing.T, m *Manager, owner, content string, importance float64) *store.Memory {
	t.Helper()
	mem := &store.Memory{Owner: owner, Kind: store.KindLongTerm, Content: content, Importance: importance}
	if err := m.DB.CreateMemory(mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return mem
}

func TestSearchRanking(t *testing.T) {
	m := testManager(t)

	high := seedLongTerm(t, m, "alice", "enjoys jazz music on weekends", 0.9)
	low := seedLongTerm(t, m, "alice", "went to a jazz concert last week", 0.2)
	seedLongTerm(t, m, "alice", "favorite pasta recipe uses basil", 0.9)

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (non-matching excluded)", len(results))
	}
	if results[0].Memory.ID != high.ID || results[1].Memory.ID != low.ID {
		t.Error("expected the higher-importance match ranked first")
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestSearchLimit(t *testing.T) {
	m := testManager(t)

	for i := 0; i < 5; i++ {
		seedLongTerm(t, m, "alice", "jazz fact number whatever", 0.5)
	}

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearchTieBreakRecency(t *testing.T) {
	m := testManager(t)
	now := time.Now().UnixMilli()

	older := &store.Memory{
		Owner: "alice", Kind: store.KindLongTerm,
		Content: "jazz brunch downtown", Importance: 0.5,
		LastAccessed: now - 60_000,
	}
	newer := &store.Memory{
		Owner: "alice", Kind: store.KindLongTerm,
		Content: "jazz brunch downtown", Importance: 0.5,
		LastAccessed: now - 1000,
	}
	m.DB.CreateMemory(older)
	m.DB.CreateMemory(newer)

	results, err := m.Search(context.Background(), "alice", "jazz brunch", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Memory.ID != newer.ID {
		t.Error("tie must break toward the most recently accessed")
	}
}

func TestSearchBumpsAccess(t *testing.T) {
	m := testManager(t)
	mem := seedLongTerm(t, m, "alice", "jazz standards playlist", 0.5)

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Memory.AccessCount != 1 {
		t.Errorf("returned access_count = %d, want 1", results[0].Memory.AccessCount)
	}

	stored, _ := m.DB.GetMemory("alice", mem.ID)
	if stored.AccessCount != 1 {
		t.Errorf("stored access_count = %d, want 1", stored.AccessCount)
	}
	if stored.Version != 1 {
		t.Errorf("version = %d, want bumped", stored.Version)
	}
}

func TestSearchExcludesExpired(t *testing.T) {
	m := testManager(t)
	past := time.Now().Add(-time.Minute).UnixMilli()

	expired := &store.Memory{
		Owner: "alice", Kind: store.KindShortTerm,
		Content: "jazz show tonight", Importance: 0.9, ExpiresAt: &past,
	}
	m.DB.CreateMemory(expired)

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, expired memories must never surface", len(results))
	}
}

func TestSearchOwnerScoped(t *testing.T) {
	m := testManager(t)
	seedLongTerm(t, m, "bob", "jazz trivia", 0.9)

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Error("alice must not see bob's memories")
	}
}

func TestSearchEmptyQueryRanksByImportance(t *testing.T) {
	m := testManager(t)

	low := seedLongTerm(t, m, "alice", "minor detail", 0.2)
	high := seedLongTerm(t, m, "alice", "major life event", 0.9)

	results, err := m.Search(context.Background(), "alice", "", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want all active with empty query", len(results))
	}
	if results[0].Memory.ID != high.ID || results[1].Memory.ID != low.ID {
		t.Error("empty query must rank by importance alone")
	}
}

func TestSearchKindFilter(t *testing.T) {
	m := testManager(t)

	seedLongTerm(t, m, "alice", "jazz fact", 0.5)
	episodic := &store.Memory{Owner: "alice", Kind: store.KindEpisodic, Content: "jazz festival trip", Importance: 0.5}
	m.DB.CreateMemory(episodic)

	results, err := m.Search(context.Background(), "alice", "jazz", []string{store.KindEpisodic}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != episodic.ID {
		t.Errorf("kind filter returned %d results", len(results))
	}
}

func TestSearchRequiresOwner(t *testing.T) {
	m := testManager(t)

	_, err := m.Search(context.Background(), "", "jazz", nil, 10)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchSimilarityUpgradesRelevance(t *testing.T) {
	m := testManager(t)
	m.SetEmbedder(&stubEmbedder{vec: []float64{1, 0}})

	// No lexical overlap with the query, but a perfectly aligned vector.
	mem := seedLongTerm(t, m, "alice", "plays tenor saxophone", 0.5)
	if err := m.DB.SaveVector(mem.ID, []float64{1, 0}, "stub"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	results, err := m.Search(context.Background(), "alice", "woodwind instruments", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want the vector match", len(results))
	}
	if results[0].Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1", results[0].Similarity)
	}
}

func TestSearchEmbedderFailureFallsBackToLexical(t *testing.T) {
	m := testManager(t)
	m.SetEmbedder(&stubEmbedder{err: errors.New("embedder offline")})

	seedLongTerm(t, m, "alice", "jazz standards playlist", 0.5)

	results, err := m.Search(context.Background(), "alice", "jazz", nil, 10)
	if err != nil {
		t.Fatalf("Search must degrade, not fail: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want lexical fallback hit", len(results))
	}
	if results[0].Similarity != 0 {
		t.Errorf("similarity = %v, want 0 on lexical fallback", results[0].Similarity)
	}
}

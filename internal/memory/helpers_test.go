package memory

import (
	"context"
	"testing"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/store"
)

// testDB is a helper that creates an in-memory DB for testing.
func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testManager wires a manager over an in-memory store with default policy.
func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(testDB(t), testManagerConfig())
}

func testManagerConfig() config.MemoryConfig {
	return config.DefaultMemory()
}

// stubEmbedder is a canned Embedder for exercising similarity paths and
// degradation without a live model.
type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return s.vec, s.err
}
func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return len(s.vec) }

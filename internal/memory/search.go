package memory

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/store"
)

// SearchResult is a ranked memory hit.
type SearchResult struct {
	Memory     store.Memory `json:"memory"`
	Score      float64      `json:"score"`
	Relevance  float64      `json:"relevance"`
	Similarity float64      `json:"similarity"` // 0 when ranking was lexical-only
}

// Relevance-weighted combined score: textual relevance dominates,
// importance breaks in.
const (
	relevanceWeight  = 0.6
	importanceWeight = 0.4
)

// Search ranks the owner's active memories against the query, optionally
// filtered by kind. Each returned memory has its access_count bumped and
// last_accessed refreshed as an observable side effect.
//
// Ranking combines textual relevance with importance; when an embedder is
// configured, cosine similarity upgrades the relevance signal, and any
// embedder failure degrades back to lexical matching without failing the
// call.
func (m *Manager) Search(ctx context.Context, owner, query string, kinds []string, limit int) ([]SearchResult, error) {
	if owner == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = 10
	}

	now := time.Now().UnixMilli()
	candidates, err := m.DB.ListMemories(owner, kinds, now, 0)
	if err != nil {
		return nil, storageErr("list memories", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	similarities := m.similarities(ctx, owner, query)
	queryTokens := tokenize(query)

	var results []SearchResult
	for _, mem := range candidates {
		relevance := lexicalRelevance(queryTokens, query, &mem)
		similarity := similarities[mem.ID]
		if similarity > relevance {
			relevance = similarity
		}

		// With no query, rank purely by importance.
		score := importanceWeight * mem.Importance
		if strings.TrimSpace(query) != "" {
			if relevance == 0 {
				continue
			}
			score = relevanceWeight*relevance + importanceWeight*mem.Importance
		}

		results = append(results, SearchResult{
			Memory:     mem,
			Score:      score,
			Relevance:  relevance,
			Similarity: similarity,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Ties broken by most-recent access.
		return results[i].Memory.LastAccessed > results[j].Memory.LastAccessed
	})

	if len(results) > limit {
		results = results[:limit]
	}

	ids := make([]string, len(results))
	for i := range results {
		ids[i] = results[i].Memory.ID
	}
	if err := m.DB.TouchMemories(owner, ids, now); err != nil {
		return nil, storageErr("touch memories", err)
	}
	for i := range results {
		results[i].Memory.AccessCount++
		results[i].Memory.LastAccessed = now
	}

	return results, nil
}

// similarities embeds the query and returns per-memory cosine similarity.
// Returns nil (lexical-only ranking) when no embedder is configured or any
// step fails.
func (m *Manager) similarities(ctx context.Context, owner, query string) map[string]float64 {
	if m.Embedder == nil || strings.TrimSpace(query) == "" {
		return nil
	}

	queryVec, err := m.Embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("search: embed query failed, falling back to lexical: %v", err)
		return nil
	}

	vectors, err := m.DB.VectorsForOwner(owner)
	if err != nil {
		log.Printf("search: load vectors failed, falling back to lexical: %v", err)
		return nil
	}

	sims := make(map[string]float64, len(vectors))
	for _, v := range vectors {
		if sim := CosineSimilarity(queryVec, v.Embedding); sim > 0 {
			sims[v.MemoryID] = sim
		}
	}
	return sims
}

// lexicalRelevance scores token overlap between the query and the memory's
// title and content, with a bonus when the whole query appears verbatim.
func lexicalRelevance(queryTokens []string, query string, mem *store.Memory) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	memTokens := make(map[string]bool)
	for _, t := range tokenize(mem.Title) {
		memTokens[t] = true
	}
	for _, t := range tokenize(mem.Content) {
		memTokens[t] = true
	}

	matched := 0
	for _, t := range queryTokens {
		if memTokens[t] {
			matched++
		}
	}
	relevance := float64(matched) / float64(len(queryTokens))

	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" && (strings.Contains(strings.ToLower(mem.Content), q) || strings.Contains(strings.ToLower(mem.Title), q)) {
		relevance += 0.3
	}
	if relevance > 1 {
		relevance = 1
	}
	return relevance
}

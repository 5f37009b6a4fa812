package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/lazypower/recall/internal/llm"
)

// importanceKeywords each add 0.1 to the score when present.
var importanceKeywords = []string{
	"remember", "important", "never forget", "always", "prefer",
	"like", "dislike", "love", "hate", "birthday", "anniversary",
	"work", "job", "family", "hobby", "goal", "dream", "address",
	"phone", "email", "name", "age", "location", "schedule",
}

// firstPersonMarkers signal factual statements about the user.
var firstPersonMarkers = []string{
	"i live", "i prefer", "i like", "i am", "i'm", "my name", "i work",
	"i have", "i was born", "my favorite", "my favourite",
}

var requestMarkers = []string{"please", "can you", "could you", "would you"}

// fillerPhrases score exactly zero regardless of length.
var fillerPhrases = map[string]bool{
	"hi": true, "hello": true, "hey": true, "thanks": true, "thank you": true,
	"ok": true, "okay": true, "yes": true, "no": true, "sure": true,
	"good morning": true, "good night": true, "bye": true, "goodbye": true,
	"got it": true, "sounds good": true,
}

// Scorer computes a [0,1] importance estimate for conversational content.
// Pure: the same text and existing-memory snapshot always yield the same
// score. An optional LLM assist sits behind a hash-keyed cache so retries
// never produce a different score for identical content.
type Scorer struct {
	MinLength int

	// Optional model assist. When set, the model score is averaged with the
	// heuristic score; model failures fall back to heuristics alone.
	Client llm.Client

	mu    sync.Mutex
	cache map[string]float64 // sha256(text) -> model score
}

// NewScorer creates a Scorer with the given minimum content length.
func NewScorer(minLength int) *Scorer {
	return &Scorer{
		MinLength: minLength,
		cache:     make(map[string]float64),
	}
}

// Score rates text against the owner's existing memory contents.
// Returns 0.0 for content below the minimum length or pure filler.
func (s *Scorer) Score(ctx context.Context, text string, existing []string) float64 {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < s.MinLength {
		return 0.0
	}

	lower := strings.ToLower(trimmed)
	if fillerPhrases[strings.Trim(lower, ".!? ")] {
		return 0.0
	}

	score := 0.0
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
		}
	}
	for _, marker := range firstPersonMarkers {
		if strings.Contains(lower, marker) {
			score += 0.2
			break
		}
	}
	for _, marker := range requestMarkers {
		if strings.Contains(lower, marker) {
			score += 0.1
			break
		}
	}
	if len(strings.Fields(trimmed)) > 20 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}

	// Novelty: near-duplicates of what the owner already remembers are
	// worth half as much.
	for _, prior := range existing {
		if textNearIdentical(trimmed, prior) {
			score *= 0.5
			break
		}
	}

	if s.Client != nil {
		if model, ok := s.modelScore(ctx, trimmed); ok {
			score = (score + model) / 2
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}

// modelScore asks the LLM for a rating, caching by content hash so a score
// is computed at most once per distinct input.
func (s *Scorer) modelScore(ctx context.Context, text string) (float64, bool) {
	key := hashContent(text)

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, true
	}
	s.mu.Unlock()

	resp, err := s.Client.Complete(ctx, llm.ImportancePrompt(text))
	if err != nil {
		log.Printf("scorer: model assist failed, using heuristics: %v", err)
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(resp.Content), 64)
	if err != nil || value < 0 || value > 1 {
		log.Printf("scorer: unusable model score %q", resp.Content)
		return 0, false
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return value, true
}

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// textNearIdentical returns true if two strings are near-duplicates by
// shared-bigram Jaccard similarity. Cheap enough to run against every
// existing memory without embeddings.
func textNearIdentical(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}

	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return a == b
	}

	shared := 0
	for bg := range bigramsA {
		if bigramsB[bg] {
			shared++
		}
	}

	union := len(bigramsA) + len(bigramsB) - shared
	if union == 0 {
		return true
	}

	similarity := float64(shared) / float64(union) // Jaccard index
	return similarity > 0.95
}

func bigrams(s string) map[string]bool {
	if len(s) < 2 {
		return nil
	}
	m := make(map[string]bool, len(s)-1)
	for i := 0; i < len(s)-1; i++ {
		m[s[i:i+2]] = true
	}
	return m
}

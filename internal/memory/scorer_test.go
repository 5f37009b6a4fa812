package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/lazypower/recall/internal/llm"
)

func scoreNear(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScoreBelowMinLength(t *testing.T) {
	s := NewScorer(10)
	scoreNear(t, s.Score(context.Background(), "hi", nil), 0.0)
	scoreNear(t, s.Score(context.Background(), "   ok   ", nil), 0.0)
}

func TestScoreFiller(t *testing.T) {
	s := NewScorer(10)
	// Long enough to clear the minimum, still pure filler.
	scoreNear(t, s.Score(context.Background(), "good morning", nil), 0.0)
	scoreNear(t, s.Score(context.Background(), "Sounds good!", nil), 0.0)
}

func TestScoreKeywords(t *testing.T) {
	s := NewScorer(10)
	// "remember" and "birthday" each contribute.
	scoreNear(t, s.Score(context.Background(), "remember that her birthday is in June", nil), 0.2)
}

func TestScoreFirstPerson(t *testing.T) {
	s := NewScorer(10)
	// "work" keyword plus one first-person bonus (counted once).
	scoreNear(t, s.Score(context.Background(), "i live in portland and i work from home", nil), 0.3)
}

func TestScoreRequest(t *testing.T) {
	s := NewScorer(10)
	scoreNear(t, s.Score(context.Background(), "can you water the plants tomorrow evening", nil), 0.1)
}

func TestScoreLongContent(t *testing.T) {
	s := NewScorer(10)
	short := "can you check on the garden for me today"
	long := short + " because the tomatoes and the peppers and the herbs all need a careful look before the frost arrives"
	if s.Score(context.Background(), long, nil) <= s.Score(context.Background(), short, nil) {
		t.Error("expected the >20 word bonus to raise the score")
	}
}

func TestScoreCapped(t *testing.T) {
	s := NewScorer(10)
	loaded := "remember this important fact: i love my work, my job, my family, my hobby, my goal, my dream, my address, my phone, my email, my name, my age, my location and my schedule, always"
	scoreNear(t, s.Score(context.Background(), loaded, nil), 1.0)
}

func TestScoreNoveltyHalvesDuplicates(t *testing.T) {
	s := NewScorer(10)
	text := "i live in portland and i work from home"

	fresh := s.Score(context.Background(), text, nil)
	dup := s.Score(context.Background(), text, []string{text})

	scoreNear(t, dup, fresh/2)
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer(10)
	text := "i prefer tea over coffee in the morning"
	existing := []string{"some unrelated prior memory about travel"}

	a := s.Score(context.Background(), text, existing)
	b := s.Score(context.Background(), text, existing)
	if a != b {
		t.Errorf("scores differ across identical calls: %v vs %v", a, b)
	}
}

func TestScoreModelAssist(t *testing.T) {
	mock := &llm.MockClient{Response: &llm.Response{Content: "0.8"}}
	s := NewScorer(10)
	s.Client = mock

	text := "i live in portland and i work from home"
	got := s.Score(context.Background(), text, nil)

	// Heuristic 0.3 averaged with the model's 0.8.
	scoreNear(t, got, 0.55)

	// Second call on the same content hits the cache.
	s.Score(context.Background(), text, nil)
	if len(mock.Calls) != 1 {
		t.Errorf("model calls = %d, want 1 (cached)", len(mock.Calls))
	}
}

func TestScoreModelFailureFallsBack(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("model offline")}
	s := NewScorer(10)
	s.Client = mock

	scoreNear(t, s.Score(context.Background(), "i live in portland and i work from home", nil), 0.3)
}

func TestScoreUnusableModelOutput(t *testing.T) {
	mock := &llm.MockClient{Response: &llm.Response{Content: "very important!"}}
	s := NewScorer(10)
	s.Client = mock

	scoreNear(t, s.Score(context.Background(), "i live in portland and i work from home", nil), 0.3)
}

func TestTextNearIdentical(t *testing.T) {
	if !textNearIdentical("I like jazz music", "I like jazz music") {
		t.Error("identical strings must match")
	}
	if !textNearIdentical("I like jazz music", "I like jazz music ") {
		t.Error("trailing whitespace must not defeat the match")
	}
	if textNearIdentical("I like jazz music", "We should plan a trip to the coast") {
		t.Error("unrelated strings must not match")
	}
	if textNearIdentical("", "something") {
		t.Error("empty string matches nothing")
	}
}

package overlap

import (
	"context"
	"testing"
)

func TestScorePrefersFullMatch(t *testing.T) {
	scores, err := New().Score(context.Background(), "white cotton shirt", []string{
		"Black leather jacket",
		"Cotton shirt in white",
		"White cotton shirt with pocket",
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	if scores[0] != 0 {
		t.Fatalf("expected zero score for unrelated text, got %f", scores[0])
	}
	if !(scores[2] > scores[1] && scores[1] > scores[0]) {
		t.Fatalf("unexpected order: %v", scores)
	}
	if scores[2] != 1 {
		t.Fatalf("expected perfect score, got %f", scores[2])
	}
}

func TestScoreEmptyQuery(t *testing.T) {
	scores, err := New().Score(context.Background(), "  ", []string{"anything"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(scores) != 1 || scores[0] != 0 {
		t.Fatalf("unexpected scores %v", scores)
	}
}

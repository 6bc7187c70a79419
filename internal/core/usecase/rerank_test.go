package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

type pairScorerFake struct {
	scores []float64
	err    error
	calls  int
	texts  []string
}

func (f *pairScorerFake) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func fusedFixture() []domain.Candidate {
	return []domain.Candidate{
		{DocumentID: "doc-1", FusedScore: 0.9},
		{DocumentID: "doc-2", FusedScore: 0.7},
		{DocumentID: "doc-3", FusedScore: 0.5},
		{DocumentID: "doc-4", FusedScore: 0.3},
	}
}

func lookupFixture(id string) (domain.Document, bool) {
	return domain.Document{ID: id, Text: "text of " + id}, true
}

func TestRerankReordersByRerankScore(t *testing.T) {
	scorer := &pairScorerFake{scores: []float64{0.1, 0.2, 0.9, 0.4}}
	out, degraded := NewCrossEncoderReranker(3, nil).Rerank(context.Background(), "white shirt", fusedFixture(), scorer, lookupFixture)
	if degraded {
		t.Fatalf("expected rerank to succeed")
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 reranked candidates, got %d", len(out))
	}
	want := []string{"doc-3", "doc-4", "doc-2"}
	for i, id := range want {
		if out[i].DocumentID != id {
			t.Fatalf("position %d: expected %s, got %v", i, id, domain.CandidateIDs(out))
		}
		if out[i].RerankScore == nil {
			t.Fatalf("expected rerank score on %s", out[i].DocumentID)
		}
	}
	if scorer.texts[0] != "text of doc-1" {
		t.Fatalf("expected document text passed to scorer, got %q", scorer.texts[0])
	}
}

func TestRerankTieBreaksOnFusedScore(t *testing.T) {
	scorer := &pairScorerFake{scores: []float64{0.5, 0.5, 0.5, 0.5}}
	out, _ := NewCrossEncoderReranker(4, nil).Rerank(context.Background(), "q", fusedFixture(), scorer, lookupFixture)
	for i, c := range fusedFixture() {
		if out[i].DocumentID != c.DocumentID {
			t.Fatalf("expected fused order on equal rerank scores, got %v", domain.CandidateIDs(out))
		}
	}
}

func TestRerankDegradesToFusionOrder(t *testing.T) {
	cases := map[string]*pairScorerFake{
		"scorer error":    {err: errors.New("connection refused")},
		"length mismatch": {scores: []float64{1}},
	}
	for name, scorer := range cases {
		t.Run(name, func(t *testing.T) {
			out, degraded := NewCrossEncoderReranker(3, nil).Rerank(context.Background(), "q", fusedFixture(), scorer, lookupFixture)
			if !degraded {
				t.Fatalf("expected degraded rerank")
			}
			want := domain.CandidateIDs(fusedFixture())[:3]
			got := domain.CandidateIDs(out)
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected fusion order %v, got %v", want, got)
				}
			}
			for _, c := range out {
				if c.RerankScore != nil {
					t.Fatalf("expected no rerank scores on pass-through")
				}
			}
		})
	}
}

func TestRerankWithoutScorerPassesThrough(t *testing.T) {
	out, degraded := NewCrossEncoderReranker(10, nil).Rerank(context.Background(), "q", fusedFixture(), nil, lookupFixture)
	if !degraded || len(out) != 4 {
		t.Fatalf("expected all 4 candidates passed through, got degraded=%v len=%d", degraded, len(out))
	}
}

func TestRerankHandlesEmptyInput(t *testing.T) {
	scorer := &pairScorerFake{}
	out, degraded := NewCrossEncoderReranker(3, nil).Rerank(context.Background(), "q", nil, scorer, lookupFixture)
	if len(out) != 0 || degraded {
		t.Fatalf("expected empty, non-degraded output, got %d degraded=%v", len(out), degraded)
	}
	if scorer.calls != 0 {
		t.Fatalf("scorer must not be called on empty input")
	}
}

func TestWithTopNOverridesCutoff(t *testing.T) {
	base := NewCrossEncoderReranker(3, nil)
	if base.WithTopN(0) != base || base.WithTopN(3) != base {
		t.Fatalf("non-positive or equal cutoff must return the same reranker")
	}

	out, degraded := base.WithTopN(1).Rerank(context.Background(), "q", fusedFixture(), nil, lookupFixture)
	if !degraded || len(out) != 1 {
		t.Fatalf("expected one degraded candidate, got %d (degraded=%v)", len(out), degraded)
	}
	if base.TopN() != 3 {
		t.Fatalf("base reranker mutated: top n = %d", base.TopN())
	}
}

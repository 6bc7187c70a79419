package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

const defaultRerankTopN = 3

// CrossEncoderReranker re-scores fused candidates with a pairwise relevance
// model and keeps the best TopN. A missing or failing model leaves the
// fusion order in place.
type CrossEncoderReranker struct {
	topN   int
	logger *zap.Logger
}

func NewCrossEncoderReranker(topN int, logger *zap.Logger) *CrossEncoderReranker {
	if topN <= 0 {
		topN = defaultRerankTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossEncoderReranker{topN: topN, logger: logger}
}

func (r *CrossEncoderReranker) TopN() int {
	return r.topN
}

// WithTopN returns a reranker keeping n candidates, or r itself when n <= 0.
func (r *CrossEncoderReranker) WithTopN(n int) *CrossEncoderReranker {
	if n <= 0 || n == r.topN {
		return r
	}
	return &CrossEncoderReranker{topN: n, logger: r.logger}
}

// Rerank returns at most TopN candidates. degraded is true when the scorer
// could not be used and fusion order was passed through.
func (r *CrossEncoderReranker) Rerank(
	ctx context.Context,
	query string,
	fused []domain.Candidate,
	scorer ports.PairScorer,
	lookup func(id string) (domain.Document, bool),
) (out []domain.Candidate, degraded bool) {
	if len(fused) == 0 {
		return []domain.Candidate{}, false
	}

	passThrough := func(err error) ([]domain.Candidate, bool) {
		r.logger.Warn("rerank_degraded",
			zap.Int("candidates", len(fused)),
			zap.Error(domain.WrapError(domain.ErrRerankerUnavailable, "rerank", err)),
		)
		head := make([]domain.Candidate, len(trimCandidates(fused, r.topN)))
		copy(head, fused)
		return head, true
	}

	if scorer == nil {
		return passThrough(errors.New("no reranking model loaded"))
	}

	texts := make([]string, len(fused))
	for i, c := range fused {
		if lookup == nil {
			continue
		}
		if doc, ok := lookup(c.DocumentID); ok {
			texts[i] = doc.Text
		}
	}

	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		return passThrough(err)
	}
	if len(scores) != len(fused) {
		return passThrough(fmt.Errorf("scorer returned %d scores for %d candidates", len(scores), len(fused)))
	}

	scored := make([]domain.Candidate, len(fused))
	copy(scored, fused)
	for i := range scored {
		s := scores[i]
		scored[i].RerankScore = &s
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := *scored[i].RerankScore, *scored[j].RerankScore
		if a != b {
			return a > b
		}
		if scored[i].FusedScore != scored[j].FusedScore {
			return scored[i].FusedScore > scored[j].FusedScore
		}
		return scored[i].DocumentID < scored[j].DocumentID
	})

	return trimCandidates(scored, r.topN), false
}

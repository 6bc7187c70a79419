package rerank

import (
	"fmt"
	"time"

	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/index"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/rerank/overlap"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

// NewScorerFactory resolves the reranker handle stored with an index into a
// pair scorer.
func NewScorerFactory(apiKey string, executor *resilience.Executor) func(index.RerankerHandle) (ports.PairScorer, error) {
	return func(handle index.RerankerHandle) (ports.PairScorer, error) {
		switch handle.Kind {
		case index.RerankerCrossEncoderHTTP:
			return crossencoder.New(handle.Endpoint, crossencoder.Options{
				Model:              handle.Model,
				APIKey:             apiKey,
				Timeout:            time.Duration(handle.TimeoutSeconds) * time.Second,
				ResilienceExecutor: executor,
			}), nil
		case index.RerankerTokenOverlap:
			return overlap.New(), nil
		default:
			return nil, fmt.Errorf("unsupported reranker kind %q", handle.Kind)
		}
	}
}

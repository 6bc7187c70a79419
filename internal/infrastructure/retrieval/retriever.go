package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/index"
)

const defaultMaxPoolDoublings = 3

type documentLookup interface {
	Document(id string) (domain.Document, bool)
}

// SparseRetriever runs BM25 over the lexical artifact and applies predicates
// by post-filtering document metadata.
type SparseRetriever struct {
	lexical      *index.LexicalIndex
	metadata     documentLookup
	maxDoublings int
}

func NewSparseRetriever(lexical *index.LexicalIndex, metadata documentLookup, maxDoublings int) *SparseRetriever {
	if maxDoublings < 0 {
		maxDoublings = defaultMaxPoolDoublings
	}
	return &SparseRetriever{lexical: lexical, metadata: metadata, maxDoublings: maxDoublings}
}

func (r *SparseRetriever) Retrieve(ctx context.Context, query string, predicate domain.FilterPredicate, topK int) ([]domain.Candidate, error) {
	if r == nil || r.lexical == nil || r.metadata == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "sparse retrieve", errors.New("lexical index not loaded"))
	}
	if topK <= 0 {
		return []domain.Candidate{}, nil
	}
	hits, err := postFilter(ctx, r.lexical.Len(), r.metadata, predicate, topK, r.maxDoublings, func(limit int) ([]index.Hit, error) {
		return r.lexical.Search(query, limit), nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.SparseCandidate(h.DocumentID, h.Score))
	}
	return out, nil
}

// DenseRetriever embeds the query once and searches the local flat vector
// index, post-filtering like SparseRetriever.
type DenseRetriever struct {
	vectors      *index.VectorIndex
	metadata     documentLookup
	embedder     ports.Embedder
	maxDoublings int
}

func NewDenseRetriever(vectors *index.VectorIndex, metadata documentLookup, embedder ports.Embedder, maxDoublings int) *DenseRetriever {
	if maxDoublings < 0 {
		maxDoublings = defaultMaxPoolDoublings
	}
	return &DenseRetriever{vectors: vectors, metadata: metadata, embedder: embedder, maxDoublings: maxDoublings}
}

func (r *DenseRetriever) Retrieve(ctx context.Context, query string, predicate domain.FilterPredicate, topK int) ([]domain.Candidate, error) {
	if r == nil || r.vectors == nil || r.metadata == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "dense retrieve", errors.New("vector index not loaded"))
	}
	if r.embedder == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "dense retrieve", errors.New("query embedder not configured"))
	}
	if topK <= 0 || r.vectors.Len() == 0 {
		return []domain.Candidate{}, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := postFilter(ctx, r.vectors.Len(), r.metadata, predicate, topK, r.maxDoublings, func(limit int) ([]index.Hit, error) {
		return r.vectors.Search(vec, limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.DenseCandidate(h.DocumentID, h.Score))
	}
	return out, nil
}

// postFilter searches with a pool of topK, keeps hits whose metadata satisfies
// the predicate and doubles the pool while fewer than topK survive and the
// index may still hold more. The smaller result is accepted once maxDoublings
// is reached.
func postFilter(
	ctx context.Context,
	total int,
	metadata documentLookup,
	predicate domain.FilterPredicate,
	topK int,
	maxDoublings int,
	search func(limit int) ([]index.Hit, error),
) ([]index.Hit, error) {
	if predicate.IsEmpty() {
		return search(topK)
	}

	pool := topK
	for doublings := 0; ; doublings++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := search(pool)
		if err != nil {
			return nil, err
		}
		survivors := make([]index.Hit, 0, topK)
		for _, h := range hits {
			doc, ok := metadata.Document(h.DocumentID)
			if !ok || !predicate.Matches(doc.Metadata) {
				continue
			}
			survivors = append(survivors, h)
			if len(survivors) == topK {
				break
			}
		}

		exhausted := len(hits) < pool || pool >= total
		if len(survivors) >= topK || exhausted || doublings >= maxDoublings {
			return survivors, nil
		}
		pool *= 2
	}
}

// Package overlap scores (query, text) pairs by lexical overlap. It is the
// offline stand-in for a cross-encoder.
package overlap

import (
	"context"

	"github.com/kirillkom/fashion-recommender/internal/index"
)

const (
	unigramWeight = 0.8
	bigramWeight  = 0.2
)

type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score returns, per text, the share of query tokens it contains blended with
// the share of adjacent query token pairs it contains in order.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTokens := index.Tokenize(query)
	queryBigrams := bigrams(queryTokens)
	querySet := toSet(queryTokens)

	out := make([]float64, len(texts))
	if len(querySet) == 0 {
		return out, nil
	}
	for i, text := range texts {
		tokens := index.Tokenize(text)
		out[i] = unigramWeight * overlap(querySet, toSet(tokens))
		if len(queryBigrams) > 0 {
			out[i] += bigramWeight * overlap(queryBigrams, bigrams(tokens))
		}
	}
	return out, nil
}

func overlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func bigrams(tokens []string) map[string]struct{} {
	if len(tokens) < 2 {
		return nil
	}
	out := make(map[string]struct{}, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out[tokens[i]+" "+tokens[i+1]] = struct{}{}
	}
	return out
}

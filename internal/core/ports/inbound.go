package ports

import (
	"context"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// Recommender answers one free-text shopping question.
type Recommender interface {
	Recommend(ctx context.Context, question string) (*domain.Recommendation, error)
}

// IndexReloader loads a new artifact directory and swaps it in.
type IndexReloader interface {
	Reload(ctx context.Context, directory string) (string, error)
}

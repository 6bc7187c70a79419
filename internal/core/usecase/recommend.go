package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

// RecommendUseCase binds one request to the currently installed index
// snapshot and runs the workflow over it.
type RecommendUseCase struct {
	provider     ports.IndexProvider
	orchestrator *Orchestrator
}

func NewRecommendUseCase(provider ports.IndexProvider, orchestrator *Orchestrator) *RecommendUseCase {
	return &RecommendUseCase{provider: provider, orchestrator: orchestrator}
}

func (uc *RecommendUseCase) Recommend(ctx context.Context, question string) (*domain.Recommendation, error) {
	query := domain.NewQuery(question)
	if query.Text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recommend", errors.New("question is empty"))
	}

	snapshot, err := uc.provider.Snapshot()
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index snapshot", err)
	}

	run, err := uc.orchestrator.Execute(ctx, snapshot, query)
	if err != nil {
		return nil, err
	}

	indexes := make([]string, 0, len(run.Documents))
	for _, doc := range run.Documents {
		indexes = append(indexes, doc.ID)
	}
	return &domain.Recommendation{
		Answer:    run.Answer,
		Indexes:   indexes,
		Documents: run.Documents,
		Trace:     run.Trace,
	}, nil
}

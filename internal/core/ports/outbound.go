package ports

import (
	"context"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// Retriever returns candidates ranked by one relevance signal. Predicates are
// applied natively or by post-filtering, depending on the backend.
type Retriever interface {
	Retrieve(ctx context.Context, query string, predicate domain.FilterPredicate, topK int) ([]domain.Candidate, error)
}

// Embedder builds vectors for documents and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PairScorer is a cross-encoder: one relevance score per (query, text) pair,
// in input order.
type PairScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// TopicClassifier decides whether a query belongs to the shopping domain.
type TopicClassifier interface {
	IsInDomain(ctx context.Context, query domain.Query) (bool, error)
}

// FilterExtractor returns raw structured-intent output for a query. The
// output is validated against the schema by the caller.
type FilterExtractor interface {
	Extract(ctx context.Context, query domain.Query, schema domain.Schema) (string, error)
}

// Generator creates the final user-facing answer.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Completer is a raw text completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// IndexSnapshot is a read-only view over one loaded index bundle.
type IndexSnapshot interface {
	Version() string
	Sparse() Retriever
	Dense() Retriever
	Scorer() PairScorer
	// RerankTopN is the index's own reranker cutoff; 0 keeps the configured one.
	RerankTopN() int
	Schema() domain.Schema
	Document(id string) (domain.Document, bool)
	Len() int
}

// IndexProvider hands out the currently installed snapshot.
type IndexProvider interface {
	Snapshot() (IndexSnapshot, error)
}

// CatalogSource reads the corpus an index is built from.
type CatalogSource interface {
	Load(ctx context.Context) ([]domain.Document, error)
}

// IndexEvents publishes/consumes index rebuild notifications.
type IndexEvents interface {
	PublishIndexRebuilt(ctx context.Context, event domain.IndexRebuilt) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, domain.IndexRebuilt) error) error
}

// WorkflowObserver receives the trace of every finished workflow run.
type WorkflowObserver interface {
	ObserveRun(trace domain.RunTrace)
}

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/index"
)

// ScorerFactory builds the pair scorer named by a bundle's reranker handle.
type ScorerFactory func(handle index.RerankerHandle) (ports.PairScorer, error)

// DenseFactory builds an external dense retriever bound to a bundle. A nil
// retriever with a nil error keeps the local flat-vector retriever.
type DenseFactory func(bundle *index.Bundle) (ports.Retriever, error)

type Options struct {
	Embedder         ports.Embedder
	MaxPoolDoublings int
	// Dense replaces the local flat-vector retriever when set (Qdrant).
	Dense   DenseFactory
	Scorers ScorerFactory
	OnSwap  func(version string, documents int)
	Logger  *zap.Logger
}

// Snapshot is the read-only view over one installed bundle.
type Snapshot struct {
	bundle *index.Bundle
	sparse ports.Retriever
	dense  ports.Retriever
	scorer ports.PairScorer
}

func (s *Snapshot) Version() string { return s.bundle.Version }
func (s *Snapshot) Sparse() ports.Retriever { return s.sparse }
func (s *Snapshot) Dense() ports.Retriever { return s.dense }
func (s *Snapshot) Scorer() ports.PairScorer { return s.scorer }
func (s *Snapshot) RerankTopN() int { return s.bundle.Reranker.TopN }
func (s *Snapshot) Schema() domain.Schema { return s.bundle.Metadata.Schema() }
func (s *Snapshot) Len() int { return s.bundle.Metadata.Len() }
func (s *Snapshot) Bundle() *index.Bundle { return s.bundle }
func (s *Snapshot) Document(id string) (domain.Document, bool) {
	return s.bundle.Metadata.Document(id)
}

// Provider holds the current snapshot behind an atomic pointer. Readers take
// the pointer once per request; reloads build a full snapshot before the swap.
type Provider struct {
	current *atomic.Pointer[Snapshot]
	opts    Options
	logger  *zap.Logger

	reloadMu sync.Mutex
}

func NewProvider(opts Options) *Provider {
	if opts.MaxPoolDoublings < 0 {
		opts.MaxPoolDoublings = defaultMaxPoolDoublings
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		current: atomic.NewPointer[Snapshot](nil),
		opts:    opts,
		logger:  logger,
	}
}

func (p *Provider) Snapshot() (ports.IndexSnapshot, error) {
	snap := p.current.Load()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "get snapshot", errors.New("no index installed"))
	}
	return snap, nil
}

// Loaded reports whether a snapshot is installed and its version.
func (p *Provider) Loaded() (bool, string) {
	snap := p.current.Load()
	if snap == nil {
		return false, ""
	}
	return true, snap.Version()
}

// Install builds a snapshot over bundle and swaps it in.
func (p *Provider) Install(bundle *index.Bundle) (*Snapshot, error) {
	if bundle == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "install index", errors.New("bundle is nil"))
	}
	snap, err := p.newSnapshot(bundle)
	if err != nil {
		return nil, err
	}

	prev := p.current.Swap(snap)
	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version()
	}
	p.logger.Info("index_swapped",
		zap.String("version", bundle.Version),
		zap.String("previous_version", prevVersion),
		zap.String("dir", bundle.Directory),
		zap.Int("documents", bundle.Metadata.Len()),
	)
	if p.opts.OnSwap != nil {
		p.opts.OnSwap(bundle.Version, bundle.Metadata.Len())
	}
	return snap, nil
}

// Reload loads the bundle in directory and installs it. A failed load keeps
// the current snapshot.
func (p *Provider) Reload(ctx context.Context, directory string) (string, error) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	bundle, err := index.Load(ctx, directory)
	if err != nil {
		return "", err
	}
	snap, err := p.Install(bundle)
	if err != nil {
		return "", err
	}
	return snap.Version(), nil
}

func (p *Provider) newSnapshot(bundle *index.Bundle) (*Snapshot, error) {
	snap := &Snapshot{
		bundle: bundle,
		sparse: NewSparseRetriever(bundle.Lexical, bundle.Metadata, p.opts.MaxPoolDoublings),
	}
	if p.opts.Dense != nil {
		dense, err := p.opts.Dense(bundle)
		if err != nil {
			return nil, domain.WrapError(domain.ErrIndexUnavailable, "build dense retriever", err)
		}
		if dense != nil {
			snap.dense = &knownDocuments{
				next:     dense,
				metadata: bundle.Metadata,
				version:  bundle.Version,
				logger:   p.logger,
			}
		}
	}
	if snap.dense == nil {
		snap.dense = NewDenseRetriever(bundle.Vectors, bundle.Metadata, p.opts.Embedder, p.opts.MaxPoolDoublings)
	}
	if p.opts.Scorers != nil {
		scorer, err := p.opts.Scorers(bundle.Reranker)
		if err != nil {
			return nil, fmt.Errorf("build reranker %s: %w", bundle.Reranker.Kind, err)
		}
		snap.scorer = scorer
	}
	return snap, nil
}

// knownDocuments drops candidates the bundle's metadata store does not hold.
// External stores may carry points from other index versions.
type knownDocuments struct {
	next     ports.Retriever
	metadata *index.MetadataStore
	version  string
	logger   *zap.Logger
}

func (k *knownDocuments) Retrieve(
	ctx context.Context,
	query string,
	predicate domain.FilterPredicate,
	topK int,
) ([]domain.Candidate, error) {
	candidates, err := k.next.Retrieve(ctx, query, predicate, topK)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := k.metadata.Document(c.DocumentID); !ok {
			k.logger.Warn("dense_candidate_unknown",
				zap.String("version", k.version),
				zap.String("document_id", c.DocumentID),
			)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

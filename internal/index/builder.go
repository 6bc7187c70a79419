package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

const (
	defaultEmbedBatchSize   = 32
	defaultEmbedConcurrency = 4
)

// DenseSync copies one index version into an external vector store. Each
// version gets its own collection so a rebuild never touches the points a
// running snapshot searches.
type DenseSync interface {
	SyncCollection(ctx context.Context, collection string, docs []domain.Document, vectors [][]float32) error
}

type BuilderOptions struct {
	Schema           domain.Schema
	EmbeddingModel   string
	Reranker         RerankerHandle
	EmbedBatchSize   int
	EmbedConcurrency int
	// DenseSync, when set, receives the corpus before the version directory
	// is published; CollectionPrefix is prepended to the version.
	DenseSync        DenseSync
	CollectionPrefix string
	Logger           *zap.Logger
}

// Builder turns a catalog into a versioned artifact directory.
type Builder struct {
	embedder ports.Embedder
	opts     BuilderOptions
	logger   *zap.Logger
}

type BuildResult struct {
	Version   string
	Directory string
	Documents int
	Schema    domain.Schema

	// Collection is the synced external collection, if any.
	Collection string
}

func NewBuilder(embedder ports.Embedder, opts BuilderOptions) *Builder {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatchSize
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = defaultEmbedConcurrency
	}
	if opts.Schema.IsEmpty() {
		opts.Schema = domain.DefaultSchema()
	}
	if opts.Reranker.Kind == "" {
		opts.Reranker = RerankerHandle{Kind: RerankerTokenOverlap, TopN: 3}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{embedder: embedder, opts: opts, logger: logger}
}

// Build writes all artifacts into a staging directory under root and renames
// it to root/<version> once every artifact is on disk.
func (b *Builder) Build(ctx context.Context, root string, docs []domain.Document) (*BuildResult, error) {
	if b.embedder == nil {
		return nil, fmt.Errorf("build index: embedder is required")
	}
	docs = b.dedupe(docs)
	version := newVersion()

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}
	staging, err := os.MkdirTemp(root, ".staging-"+version+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	vectors, err := b.embedAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	vectorIndex, err := NewVectorIndex(version, b.opts.EmbeddingModel, ids, vectors)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	if b.opts.DenseSync != nil && len(docs) > 0 {
		collection := CollectionName(b.opts.CollectionPrefix, version)
		if err := b.opts.DenseSync.SyncCollection(ctx, collection, docs, vectors); err != nil {
			return nil, fmt.Errorf("sync collection %s: %w", collection, err)
		}
		vectorIndex.manifest.Collection = collection
	}

	schema := b.opts.Schema.Merge(observedValues(b.opts.Schema, docs))
	store := NewMetadataStore(docs, schema)

	if err := WriteLexical(filepath.Join(staging, LexicalFile), BuildLexical(docs)); err != nil {
		return nil, err
	}
	if err := WriteVectors(staging, vectorIndex); err != nil {
		return nil, err
	}
	if err := WriteMetadata(ctx, filepath.Join(staging, MetadataFile), store); err != nil {
		return nil, err
	}
	if err := WriteRerankerHandle(filepath.Join(staging, RerankerFile), b.opts.Reranker); err != nil {
		return nil, err
	}

	target := filepath.Join(root, version)
	if err := os.Rename(staging, target); err != nil {
		return nil, fmt.Errorf("publish index dir: %w", err)
	}
	b.logger.Info("index_built",
		zap.String("version", version),
		zap.String("dir", target),
		zap.Int("documents", len(docs)),
		zap.Int("dimension", vectorIndex.Dimension()),
		zap.String("collection", vectorIndex.manifest.Collection),
	)
	return &BuildResult{
		Version:    version,
		Directory:  target,
		Documents:  len(docs),
		Schema:     schema,
		Collection: vectorIndex.manifest.Collection,
	}, nil
}

// CollectionName derives the per-version collection name. Characters outside
// [a-z0-9_-] become underscores.
func CollectionName(prefix, version string) string {
	name := strings.ToLower(strings.Trim(prefix+"_"+version, "_"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

func (b *Builder) dedupe(docs []domain.Document) []domain.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			b.logger.Warn("catalog_row_skipped", zap.String("reason", "empty id"))
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			b.logger.Warn("catalog_row_skipped", zap.String("reason", "duplicate id"), zap.String("id", doc.ID))
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out
}

func (b *Builder) embedAll(ctx context.Context, docs []domain.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.EmbedConcurrency)

	for start := 0; start < len(docs); start += b.opts.EmbedBatchSize {
		end := min(start+b.opts.EmbedBatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, doc := range docs[start:end] {
				texts = append(texts, doc.Text)
			}
			out, err := b.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed documents %d-%d: %w", start, end, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embed documents %d-%d: got %d vectors", start, end, len(out))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// observedValues collects string metadata values for enumerated attributes so
// the stored schema covers the whole catalog.
func observedValues(schema domain.Schema, docs []domain.Document) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, attr := range schema.Attributes {
		if attr.Type != domain.AttributeString || len(attr.Values) == 0 {
			continue
		}
		for _, doc := range docs {
			v := strings.ToLower(doc.MetadataString(attr.Name))
			if v == "" {
				continue
			}
			key := attr.Name + "\x00" + v
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out[attr.Name] = append(out[attr.Name], v)
		}
	}
	return out
}

func newVersion() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

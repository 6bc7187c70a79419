package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

func catalog() []domain.Document {
	return []domain.Document{
		{ID: "1", Text: "White cotton T-shirt with crew neck", Metadata: map[string]any{"category": "shirt", "color": "white", "price": 19.9}},
		{ID: "2", Text: "Black leather jacket", Metadata: map[string]any{"category": "jacket", "color": "black", "price": 129.0}},
		{ID: "3", Text: "红色连衣裙 summer dress", Metadata: map[string]any{"category": "dress", "color": "red", "price": 59.0}},
		{ID: "4", Text: "Striped linen shirt", Metadata: map[string]any{"category": "shirt", "color": "teal", "price": 39.0}},
	}
}

func TestTokenizeMixesWordsAndCJKBigrams(t *testing.T) {
	got := Tokenize("Red 连衣裙, size-M")
	assert.Equal(t, []string{"red", "连", "连衣", "衣", "衣裙", "裙", "size", "m"}, got)
	assert.Nil(t, Tokenize(""))
}

func TestLexicalSearchReturnsOnlyMatches(t *testing.T) {
	idx := BuildLexical(catalog())

	hits := idx.Search("white shirt", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, "1", hits[0].DocumentID)
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
		assert.NotEqual(t, "2", h.DocumentID)
	}

	assert.Empty(t, idx.Search("umbrella", 10))
	assert.Len(t, idx.Search("shirt", 1), 1)

	cjk := idx.Search("连衣裙", 5)
	require.Len(t, cjk, 1)
	assert.Equal(t, "3", cjk[0].DocumentID)
}

func TestLexicalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), LexicalFile)
	idx := BuildLexical(catalog())
	require.NoError(t, WriteLexical(path, idx))

	loaded, err := ReadLexical(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Search("leather jacket", 3), loaded.Search("leather jacket", 3))
}

func TestReadLexicalRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), LexicalFile)
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	_, err := ReadLexical(path)
	assert.Error(t, err)
}

func TestVectorSearchCosine(t *testing.T) {
	v, err := NewVectorIndex("v1", "test", []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0},
		{0, 2, 0},
		{1, 1, 0},
	})
	require.NoError(t, err)

	hits, err := v.Search([]float32{0, 5, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "c", hits[1].DocumentID)

	_, err = v.Search([]float32{1, 0}, 2)
	assert.Error(t, err)
}

func TestVectorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v, err := NewVectorIndex("v1", "test", []string{"a", "b"}, [][]float32{{0.5, 0.5}, {1, -1}})
	require.NoError(t, err)
	require.NoError(t, WriteVectors(dir, v))

	loaded, err := ReadVectors(dir)
	require.NoError(t, err)
	assert.Equal(t, "v1", loaded.Manifest().Version)
	assert.Equal(t, 2, loaded.Dimension())

	want, _ := v.Search([]float32{1, 0}, 2)
	got, err := loaded.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewVectorIndexRejectsRaggedRows(t *testing.T) {
	_, err := NewVectorIndex("v1", "test", []string{"a", "b"}, [][]float32{{1, 0}, {1}})
	assert.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	store := NewMetadataStore(catalog(), domain.DefaultSchema())
	require.NoError(t, WriteMetadata(context.Background(), path, store))

	loaded, err := ReadMetadata(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Len())

	doc, ok := loaded.Document("3")
	require.True(t, ok)
	assert.Equal(t, "red", doc.MetadataString("color"))
	assert.Equal(t, 59.0, doc.Metadata["price"])

	_, ok = loaded.Schema().Lookup("product price")
	assert.True(t, ok)
	assert.Equal(t, []string{"1", "2", "3", "4"}, idsOf(loaded.Documents()))
}

func TestRerankerHandleValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, RerankerFile)

	assert.Error(t, WriteRerankerHandle(path, RerankerHandle{Kind: RerankerCrossEncoderHTTP}))
	assert.Error(t, WriteRerankerHandle(path, RerankerHandle{Kind: "magic"}))

	handle := RerankerHandle{Kind: RerankerCrossEncoderHTTP, Endpoint: "http://reranker:8080/rerank", TopN: 3, TimeoutSeconds: 5}
	require.NoError(t, WriteRerankerHandle(path, handle))
	loaded, err := ReadRerankerHandle(path)
	require.NoError(t, err)
	assert.Equal(t, handle, loaded)
}

type embedderFake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, float32(i % 3)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func TestBuildThenLoad(t *testing.T) {
	root := t.TempDir()
	docs := append(catalog(), domain.Document{ID: "1", Text: "duplicate"}, domain.Document{ID: " ", Text: "no id"})
	embedder := &embedderFake{}

	result, err := NewBuilder(embedder, BuilderOptions{EmbeddingModel: "test", EmbedBatchSize: 2}).
		Build(context.Background(), root, docs)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Documents)
	assert.Equal(t, 2, embedder.calls)

	color, ok := result.Schema.Lookup("color")
	require.True(t, ok)
	assert.Contains(t, color.Values, "teal")

	bundle, err := Load(context.Background(), result.Directory)
	require.NoError(t, err)
	assert.Equal(t, result.Version, bundle.Version)
	assert.Equal(t, 4, bundle.Metadata.Len())
	assert.Equal(t, RerankerTokenOverlap, bundle.Reranker.Kind)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging dir is removed")
}

func TestBuildEmptyCatalog(t *testing.T) {
	result, err := NewBuilder(&embedderFake{}, BuilderOptions{}).Build(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)

	bundle, err := Load(context.Background(), result.Directory)
	require.NoError(t, err)
	assert.Zero(t, bundle.Metadata.Len())
	assert.Empty(t, bundle.Lexical.Search("dress", 5))
}

func TestBuildFailsOnEmbedderError(t *testing.T) {
	root := t.TempDir()
	_, err := NewBuilder(&embedderFake{err: errors.New("model offline")}, BuilderOptions{}).
		Build(context.Background(), root, catalog())
	require.Error(t, err)

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestLoadAggregatesMissingArtifacts(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrIndexUnavailable))
	for _, name := range []string{LexicalFile, VectorsDir, MetadataFile, RerankerFile} {
		assert.Contains(t, err.Error(), name)
	}
}

func idsOf(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

type denseSyncFake struct {
	err         error
	collections []string
	ids         [][]string
}

func (f *denseSyncFake) SyncCollection(_ context.Context, collection string, docs []domain.Document, vectors [][]float32) error {
	f.collections = append(f.collections, collection)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	f.ids = append(f.ids, ids)
	if len(docs) != len(vectors) {
		return errors.New("documents/vectors mismatch")
	}
	return f.err
}

func TestBuildSyncsVersionedCollection(t *testing.T) {
	syncer := &denseSyncFake{}
	builder := NewBuilder(&embedderFake{}, BuilderOptions{DenseSync: syncer, CollectionPrefix: "Products"})

	first, err := builder.Build(context.Background(), t.TempDir(), catalog())
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), t.TempDir(), catalog()[:2])
	require.NoError(t, err)

	require.Len(t, syncer.collections, 2)
	assert.NotEqual(t, syncer.collections[0], syncer.collections[1])
	assert.Equal(t, CollectionName("Products", first.Version), first.Collection)
	assert.Equal(t, []string{first.Collection, second.Collection}, syncer.collections)
	assert.Equal(t, []string{"1", "2"}, syncer.ids[1])

	bundle, err := Load(context.Background(), second.Directory)
	require.NoError(t, err)
	assert.Equal(t, second.Collection, bundle.DenseCollection())
}

func TestBuildWithoutSyncHasNoCollection(t *testing.T) {
	result, err := NewBuilder(&embedderFake{}, BuilderOptions{}).Build(context.Background(), t.TempDir(), catalog())
	require.NoError(t, err)
	assert.Empty(t, result.Collection)

	bundle, err := Load(context.Background(), result.Directory)
	require.NoError(t, err)
	assert.Empty(t, bundle.DenseCollection())
}

func TestBuildSyncFailureLeavesNothingPublished(t *testing.T) {
	root := t.TempDir()
	_, err := NewBuilder(&embedderFake{}, BuilderOptions{DenseSync: &denseSyncFake{err: errors.New("qdrant down")}}).
		Build(context.Background(), root, catalog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant down")

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "products_20260101t000000z-ab12cd34", CollectionName("products", "20260101T000000Z-ab12cd34"))
	assert.Equal(t, "fashion_catalog_v1", CollectionName("fashion catalog", "v1"))
	assert.Equal(t, "v1", CollectionName("", "v1"))
}

package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// Bundle is one immutable, fully loaded index version.
type Bundle struct {
	Version   string
	Directory string
	Lexical   *LexicalIndex
	Vectors   *VectorIndex
	Metadata  *MetadataStore
	Reranker  RerankerHandle
}

// DenseCollection is the external collection synced for this version, or "".
func (b *Bundle) DenseCollection() string {
	return b.Vectors.Manifest().Collection
}

// Load reads all four artifacts from dir. Every failure is reported, not just
// the first one.
func Load(ctx context.Context, dir string) (*Bundle, error) {
	var (
		result *multierror.Error
		bundle = &Bundle{Directory: dir}
		err    error
	)

	if bundle.Lexical, err = ReadLexical(filepath.Join(dir, LexicalFile)); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", LexicalFile, err))
	}
	if bundle.Vectors, err = ReadVectors(dir); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", VectorsDir, err))
	}
	if bundle.Metadata, err = ReadMetadata(ctx, filepath.Join(dir, MetadataFile)); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", MetadataFile, err))
	}
	if bundle.Reranker, err = ReadRerankerHandle(filepath.Join(dir, RerankerFile)); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", RerankerFile, err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index "+dir, err)
	}

	if err := bundle.verify(); err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index "+dir, err)
	}
	bundle.Version = bundle.Vectors.Manifest().Version
	if bundle.Version == "" {
		bundle.Version = filepath.Base(dir)
	}
	return bundle, nil
}

// verify checks that both search indexes only reference stored documents.
func (b *Bundle) verify() error {
	var result *multierror.Error
	for _, id := range b.Lexical.docIDs {
		if _, ok := b.Metadata.Document(id); !ok {
			result = multierror.Append(result, fmt.Errorf("lexical index references unknown document %q", id))
			break
		}
	}
	for _, id := range b.Vectors.Manifest().IDs {
		if _, ok := b.Metadata.Document(id); !ok {
			result = multierror.Append(result, fmt.Errorf("vector index references unknown document %q", id))
			break
		}
	}
	if b.Lexical.Len() != b.Metadata.Len() || b.Vectors.Len() != b.Metadata.Len() {
		result = multierror.Append(result, errors.New("artifact document counts differ"))
	}
	return result.ErrorOrNil()
}

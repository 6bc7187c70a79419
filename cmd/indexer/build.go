package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/bootstrap"
	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/index"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/catalog"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/vector/qdrant"
)

type buildOptions struct {
	source      string
	input       string
	sheet       string
	dsn         string
	table       string
	out         string
	publish     bool
	qdrantSync  bool
	reranker    string
	rerankerURL string
	rerankModel string
}

func newBuildCmd(e *env) *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a new index version from a catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd, e, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.source, "source", "csv", "catalog source: csv, xlsx or postgres")
	flags.StringVar(&opts.input, "input", "", "catalog file path (csv, xlsx)")
	flags.StringVar(&opts.sheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	flags.StringVar(&opts.dsn, "dsn", "", "postgres DSN (default: POSTGRES_DSN)")
	flags.StringVar(&opts.table, "table", "", "postgres catalog table (default: POSTGRES_TABLE)")
	flags.StringVar(&opts.out, "out", "", "index root directory (default: INDEX_DIR)")
	flags.BoolVar(&opts.publish, "publish", false, "announce the new index over NATS")
	flags.BoolVar(&opts.qdrantSync, "qdrant-sync", false, "upsert vectors into a per-version Qdrant collection")
	flags.StringVar(&opts.reranker, "reranker", index.RerankerTokenOverlap, "reranker kind: token-overlap or cross-encoder-http")
	flags.StringVar(&opts.rerankerURL, "reranker-endpoint", "", "cross-encoder scoring endpoint")
	flags.StringVar(&opts.rerankModel, "reranker-model", "", "cross-encoder model name")
	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, e *env, opts buildOptions) error {
	cfg, logger := e.cfg, e.logger

	schema, err := cfg.LoadSchema()
	if err != nil {
		return err
	}
	handle := index.RerankerHandle{
		Kind:     opts.reranker,
		Endpoint: opts.rerankerURL,
		Model:    opts.rerankModel,
		TopN:     cfg.RerankTopN,
	}
	if err := handle.Validate(); err != nil {
		return err
	}

	source, closeSource, err := newCatalogSource(e, opts, schema)
	if err != nil {
		return err
	}
	defer closeSource()

	docs, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog_loaded", zap.String("source", opts.source), zap.Int("documents", len(docs)))

	executor := bootstrap.NewExecutor(cfg, nil, logger)
	embedder, model := bootstrap.NewEmbedder(cfg, executor, logger)

	root := opts.out
	if strings.TrimSpace(root) == "" {
		root = cfg.IndexDir
	}
	builderOpts := index.BuilderOptions{
		Schema:         schema,
		EmbeddingModel: model,
		Reranker:       handle,
		Logger:         logger,
	}
	if opts.qdrantSync {
		builderOpts.DenseSync = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		builderOpts.CollectionPrefix = cfg.QdrantCollection
	}
	result, err := index.NewBuilder(embedder, builderOpts).Build(ctx, root, docs)
	if err != nil {
		return err
	}

	directory, err := filepath.Abs(result.Directory)
	if err != nil {
		return err
	}
	if opts.publish {
		event := domain.IndexRebuilt{Version: result.Version, Directory: directory, Documents: result.Documents}
		if err := publishEvent(ctx, e, event); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %s (%d documents) in %s\n", result.Version, result.Documents, directory)
	if result.Collection != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "synced qdrant collection %s\n", result.Collection)
	}
	return nil
}

func newCatalogSource(e *env, opts buildOptions, schema domain.Schema) (ports.CatalogSource, func(), error) {
	noop := func() {}
	switch opts.source {
	case "csv":
		if opts.input == "" {
			return nil, noop, fmt.Errorf("--input is required for csv")
		}
		return catalog.NewCSVSource(opts.input, schema), noop, nil
	case "xlsx":
		if opts.input == "" {
			return nil, noop, fmt.Errorf("--input is required for xlsx")
		}
		return catalog.NewXLSXSource(opts.input, opts.sheet, schema), noop, nil
	case "postgres":
		dsn := opts.dsn
		if dsn == "" {
			dsn = e.cfg.PostgresDSN
		}
		if dsn == "" {
			return nil, noop, fmt.Errorf("--dsn or POSTGRES_DSN is required for postgres")
		}
		table := opts.table
		if table == "" {
			table = e.cfg.PostgresTable
		}
		db, err := catalog.OpenDB(dsn)
		if err != nil {
			return nil, noop, err
		}
		return catalog.NewPostgresSource(db, table, schema), func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown --source %q (want csv, xlsx or postgres)", opts.source)
	}
}

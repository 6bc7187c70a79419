package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	httpadapter "github.com/kirillkom/fashion-recommender/internal/adapters/http"
	"github.com/kirillkom/fashion-recommender/internal/config"
	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/core/usecase"
	"github.com/kirillkom/fashion-recommender/internal/index"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/cache/embcache"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/llm"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/llm/openai"
	natsevents "github.com/kirillkom/fashion-recommender/internal/infrastructure/queue/nats"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/rerank"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/retrieval"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/selfquery/lexicon"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/fashion-recommender/internal/observability/metrics"
)

// App is the wired API process. The index is not loaded here; the caller
// installs it through Provider before serving.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Metrics   *metrics.HTTPServerMetrics
	Provider  *retrieval.Provider
	Recommend *usecase.RecommendUseCase
	Router    *httpadapter.Router
	// Events is nil when NATS_URL is empty.
	Events *natsevents.Events

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app.Metrics = httpMetrics
	executor := NewExecutor(cfg, httpMetrics.ObserveBreakerState, logger)

	completer := NewCompleter(cfg, executor, logger)
	embedder, embedModel := NewEmbedder(cfg, executor, logger)

	if cfg.RedisAddr != "" {
		store, err := embcache.NewRedisStore(ctx, embcache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      time.Duration(cfg.RedisTTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = store.Close() })
		embedder = embcache.New(embedder, store, embedModel, httpMetrics.EmbeddingCacheCounter(), logger)
		logger.Info("embedding_cache_enabled", zap.String("addr", cfg.RedisAddr))
	}

	var dense retrieval.DenseFactory
	if cfg.DenseBackend == "qdrant" {
		dense = NewQdrantDenseFactory(qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		}))
		logger.Info("dense_backend_qdrant",
			zap.String("url", cfg.QdrantURL),
			zap.String("collection_prefix", cfg.QdrantCollection),
		)
	}

	app.Provider = retrieval.NewProvider(retrieval.Options{
		Embedder:         embedder,
		MaxPoolDoublings: cfg.RetrievalMaxPoolDoublings,
		Dense:            dense,
		Scorers:          rerank.NewScorerFactory(cfg.RerankerAPIKey, executor),
		OnSwap: func(_ string, documents int) {
			httpMetrics.RecordIndexSwap(documents)
		},
		Logger: logger,
	})

	assistant := llm.NewAssistant(completer, logger)
	var extractor ports.FilterExtractor = assistant
	if cfg.SelfQueryMode == "lexicon" {
		extractor = lexicon.New()
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Classifier:    assistant,
		Parser:        usecase.NewSelfQueryParser(extractor, logger),
		Fusion:        usecase.NewHybridFusion(cfg.FusionAlpha, cfg.FusionPoolSize),
		Reranker:      usecase.NewCrossEncoderReranker(cfg.RerankTopN, logger),
		Generator:     assistant,
		Observer:      httpMetrics,
		Logger:        logger,
		RetrieverTopK: cfg.RetrieverTopK,
	})
	app.Recommend = usecase.NewRecommendUseCase(app.Provider, orchestrator)
	app.Router = httpadapter.NewRouter(cfg, app.Recommend, app.Provider, httpMetrics, logger)

	if cfg.NATSURL != "" {
		events, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject, natsevents.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init index events: %w", err)
		}
		app.Events = events
		app.closeFns = append(app.closeFns, events.Close)
	}

	logger.Info("app_wired",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("embedding_provider", cfg.EmbeddingProvider),
		zap.String("embedding_model", embedModel),
		zap.String("self_query_mode", cfg.SelfQueryMode),
		zap.String("dense_backend", cfg.DenseBackend),
	)
	return app, nil
}

// WatchIndexEvents reloads the index whenever a rebuild is announced. It
// blocks until ctx ends; without NATS it returns immediately.
func (a *App) WatchIndexEvents(ctx context.Context) error {
	if a.Events == nil {
		return nil
	}
	return a.Events.SubscribeIndexRebuilt(ctx, func(ctx context.Context, event domain.IndexRebuilt) error {
		version, err := a.Provider.Reload(ctx, event.Directory)
		if err != nil {
			return fmt.Errorf("reload index %s: %w", event.Directory, err)
		}
		a.Logger.Info("index_reloaded_from_event",
			zap.String("version", version),
			zap.String("announced_version", event.Version),
			zap.String("dir", event.Directory),
		)
		return nil
	})
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// NewQdrantDenseFactory binds base to the collection each bundle was synced
// into. Empty catalogs are never synced and keep the local retriever.
func NewQdrantDenseFactory(base *qdrant.Client) retrieval.DenseFactory {
	return func(bundle *index.Bundle) (ports.Retriever, error) {
		if bundle.Metadata.Len() == 0 {
			return nil, nil
		}
		collection := bundle.DenseCollection()
		if collection == "" {
			return nil, fmt.Errorf("index %s has no qdrant collection; rebuild with --qdrant-sync", bundle.Version)
		}
		return base.WithCollection(collection), nil
	}
}

// NewExecutor builds the shared resilience executor. onStateChange may be nil.
func NewExecutor(cfg config.Config, onStateChange func(operation, state string), logger *zap.Logger) *resilience.Executor {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	// reranking sits on the request path and degrades to lexical order
	rc.Operations = map[string]resilience.OperationPolicy{
		"crossencoder.": {RetryMaxAttempts: 1},
	}
	rc.OnStateChange = onStateChange
	return resilience.NewExecutor(rc, logger)
}

// NewCompleter picks the text completion backend for LLM_PROVIDER. auto tries
// OpenRouter first (when a key is set) and falls back to Ollama.
func NewCompleter(cfg config.Config, executor *resilience.Executor, logger *zap.Logger) ports.Completer {
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout:        time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		Temperature:        cfg.OpenRouterTemperature,
		ResilienceExecutor: executor,
	})

	switch cfg.LLMProvider {
	case "ollama":
		return ollamaClient
	case "openrouter":
		return newOpenRouter(cfg, executor, logger)
	default:
		if cfg.OpenRouterAPIKey == "" {
			return ollamaClient
		}
		return llm.NewFallbackCompleter(logger, newOpenRouter(cfg, executor, logger), ollamaClient)
	}
}

func newOpenRouter(cfg config.Config, executor *resilience.Executor, logger *zap.Logger) *openai.Client {
	return openai.NewClient(openai.Config{
		APIKey:      cfg.OpenRouterAPIKey,
		BaseURL:     cfg.OpenRouterBaseURL,
		ChatModel:   cfg.OpenRouterModel,
		Temperature: float32(cfg.OpenRouterTemperature),
		MaxTokens:   cfg.OpenRouterMaxTokens,
		Timeout:     time.Duration(cfg.OpenRouterTimeoutSeconds) * time.Second,
		Executor:    executor,
		Logger:      logger,
	})
}

// NewEmbedder returns the embedding backend and the model name used in cache
// keys and the vector manifest.
func NewEmbedder(cfg config.Config, executor *resilience.Executor, logger *zap.Logger) (ports.Embedder, string) {
	if cfg.EmbeddingProvider == "openai" {
		return openai.NewClient(openai.Config{
			APIKey:         cfg.EmbeddingAPIKey,
			BaseURL:        cfg.EmbeddingBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			Executor:       executor,
			Logger:         logger,
		}), cfg.EmbeddingModel
	}
	return ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout:        time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	}), cfg.OllamaEmbedModel
}

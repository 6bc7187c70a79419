package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

type Config struct {
	APIPort  string
	AppEnv   string
	LogLevel string

	IndexDir   string
	SchemaPath string

	RetrieverTopK             int
	RetrievalMaxPoolDoublings int
	FusionAlpha               float64
	FusionPoolSize            int
	RerankTopN                int
	DenseBackend              string
	SelfQueryMode             string

	LLMProvider              string
	OpenRouterAPIKey         string
	OpenRouterBaseURL        string
	OpenRouterModel          string
	OpenRouterTemperature    float64
	OpenRouterMaxTokens      int
	OpenRouterTimeoutSeconds int

	EmbeddingProvider string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string
	EmbeddingModel    string

	OllamaURL            string
	OllamaGenModel       string
	OllamaEmbedModel     string
	OllamaTimeoutSeconds int

	RerankerAPIKey string

	QdrantURL        string
	QdrantCollection string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisTTLSeconds int

	NATSURL     string
	NATSSubject string

	PostgresDSN   string
	PostgresTable string

	OTelEnabled    bool
	OTelEndpoint   string
	OTelInsecure   bool
	OTelSampleRate float64

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int
	RequestTimeoutSeconds int

	ResilienceRetryMaxAttempts int
	ResilienceBreakerEnabled   bool
}

var defaults = map[string]any{
	"API_PORT":  "8080",
	"APP_ENV":   "prod",
	"LOG_LEVEL": "info",

	"INDEX_DIR":   "./data/index",
	"SCHEMA_PATH": "",

	"RETRIEVER_TOP_K":              20,
	"RETRIEVAL_MAX_POOL_DOUBLINGS": 3,
	"FUSION_ALPHA":                 0.5,
	"FUSION_POOL_SIZE":             10,
	"RERANK_TOP_N":                 3,
	"DENSE_BACKEND":                "local",
	"SELF_QUERY_MODE":              "llm",

	"LLM_PROVIDER":               "auto",
	"OPENROUTER_API_KEY":         "",
	"OPENROUTER_BASE_URL":        "https://openrouter.ai/api/v1",
	"OPENROUTER_MODEL":           "openai/gpt-4o-mini",
	"OPENROUTER_TEMPERATURE":     0.1,
	"OPENROUTER_MAX_TOKENS":      2048,
	"OPENROUTER_TIMEOUT_SECONDS": 60,

	"EMBEDDING_PROVIDER": "ollama",
	"EMBEDDING_API_KEY":  "",
	"EMBEDDING_BASE_URL": "https://api.openai.com/v1",
	"EMBEDDING_MODEL":    "text-embedding-3-small",

	"OLLAMA_URL":             "http://localhost:11434",
	"OLLAMA_GEN_MODEL":       "qwen2.5:7b",
	"OLLAMA_EMBED_MODEL":     "nomic-embed-text",
	"OLLAMA_TIMEOUT_SECONDS": 120,

	"RERANKER_API_KEY": "",

	"QDRANT_URL":        "http://localhost:6333",
	"QDRANT_COLLECTION": "products",

	"REDIS_ADDR":        "",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"REDIS_TTL_SECONDS": 86400,

	"NATS_URL":     "",
	"NATS_SUBJECT": "index.rebuilt",

	"POSTGRES_DSN":   "",
	"POSTGRES_TABLE": "products",

	"OTEL_ENABLED":     false,
	"OTEL_ENDPOINT":    "localhost:4317",
	"OTEL_INSECURE":    true,
	"OTEL_SAMPLE_RATE": 1.0,

	"API_RATE_LIMIT_RPS":       20.0,
	"API_RATE_LIMIT_BURST":     40,
	"API_MAX_INFLIGHT":         64,
	"API_BACKPRESSURE_WAIT_MS": 250,
	"REQUEST_TIMEOUT_SECONDS":  90,

	"RESILIENCE_RETRY_MAX_ATTEMPTS": 3,
	"RESILIENCE_BREAKER_ENABLED":    true,
}

// Load reads defaults, then the optional YAML file named by CONFIG_FILE,
// then environment variables. Later sources win.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	return Config{
		APIPort:  v.GetString("API_PORT"),
		AppEnv:   v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),

		IndexDir:   v.GetString("INDEX_DIR"),
		SchemaPath: v.GetString("SCHEMA_PATH"),

		RetrieverTopK:             v.GetInt("RETRIEVER_TOP_K"),
		RetrievalMaxPoolDoublings: v.GetInt("RETRIEVAL_MAX_POOL_DOUBLINGS"),
		FusionAlpha:               v.GetFloat64("FUSION_ALPHA"),
		FusionPoolSize:            v.GetInt("FUSION_POOL_SIZE"),
		RerankTopN:                v.GetInt("RERANK_TOP_N"),
		DenseBackend:              strings.ToLower(v.GetString("DENSE_BACKEND")),
		SelfQueryMode:             strings.ToLower(v.GetString("SELF_QUERY_MODE")),

		LLMProvider:              strings.ToLower(v.GetString("LLM_PROVIDER")),
		OpenRouterAPIKey:         v.GetString("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:        v.GetString("OPENROUTER_BASE_URL"),
		OpenRouterModel:          v.GetString("OPENROUTER_MODEL"),
		OpenRouterTemperature:    v.GetFloat64("OPENROUTER_TEMPERATURE"),
		OpenRouterMaxTokens:      v.GetInt("OPENROUTER_MAX_TOKENS"),
		OpenRouterTimeoutSeconds: v.GetInt("OPENROUTER_TIMEOUT_SECONDS"),

		EmbeddingProvider: strings.ToLower(v.GetString("EMBEDDING_PROVIDER")),
		EmbeddingAPIKey:   v.GetString("EMBEDDING_API_KEY"),
		EmbeddingBaseURL:  v.GetString("EMBEDDING_BASE_URL"),
		EmbeddingModel:    v.GetString("EMBEDDING_MODEL"),

		OllamaURL:            v.GetString("OLLAMA_URL"),
		OllamaGenModel:       v.GetString("OLLAMA_GEN_MODEL"),
		OllamaEmbedModel:     v.GetString("OLLAMA_EMBED_MODEL"),
		OllamaTimeoutSeconds: v.GetInt("OLLAMA_TIMEOUT_SECONDS"),

		RerankerAPIKey: v.GetString("RERANKER_API_KEY"),

		QdrantURL:        v.GetString("QDRANT_URL"),
		QdrantCollection: v.GetString("QDRANT_COLLECTION"),

		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
		RedisTTLSeconds: v.GetInt("REDIS_TTL_SECONDS"),

		NATSURL:     v.GetString("NATS_URL"),
		NATSSubject: v.GetString("NATS_SUBJECT"),

		PostgresDSN:   v.GetString("POSTGRES_DSN"),
		PostgresTable: v.GetString("POSTGRES_TABLE"),

		OTelEnabled:    v.GetBool("OTEL_ENABLED"),
		OTelEndpoint:   v.GetString("OTEL_ENDPOINT"),
		OTelInsecure:   v.GetBool("OTEL_INSECURE"),
		OTelSampleRate: v.GetFloat64("OTEL_SAMPLE_RATE"),

		APIRateLimitRPS:       v.GetFloat64("API_RATE_LIMIT_RPS"),
		APIRateLimitBurst:     v.GetInt("API_RATE_LIMIT_BURST"),
		APIMaxInFlight:        v.GetInt("API_MAX_INFLIGHT"),
		APIBackpressureWaitMS: v.GetInt("API_BACKPRESSURE_WAIT_MS"),
		RequestTimeoutSeconds: v.GetInt("REQUEST_TIMEOUT_SECONDS"),

		ResilienceRetryMaxAttempts: v.GetInt("RESILIENCE_RETRY_MAX_ATTEMPTS"),
		ResilienceBreakerEnabled:   v.GetBool("RESILIENCE_BREAKER_ENABLED"),
	}, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.RetrieverTopK <= 0 {
		result = multierror.Append(result, fmt.Errorf("RETRIEVER_TOP_K must be positive, got %d", c.RetrieverTopK))
	}
	if c.RetrievalMaxPoolDoublings < 0 {
		result = multierror.Append(result, fmt.Errorf("RETRIEVAL_MAX_POOL_DOUBLINGS must not be negative, got %d", c.RetrievalMaxPoolDoublings))
	}
	if c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		result = multierror.Append(result, fmt.Errorf("FUSION_ALPHA must be within [0,1], got %v", c.FusionAlpha))
	}
	if c.FusionPoolSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("FUSION_POOL_SIZE must be positive, got %d", c.FusionPoolSize))
	}
	if c.RerankTopN <= 0 {
		result = multierror.Append(result, fmt.Errorf("RERANK_TOP_N must be positive, got %d", c.RerankTopN))
	}
	if !oneOf(c.DenseBackend, "local", "qdrant") {
		result = multierror.Append(result, fmt.Errorf("DENSE_BACKEND must be local or qdrant, got %q", c.DenseBackend))
	}
	if !oneOf(c.SelfQueryMode, "llm", "lexicon") {
		result = multierror.Append(result, fmt.Errorf("SELF_QUERY_MODE must be llm or lexicon, got %q", c.SelfQueryMode))
	}
	if !oneOf(c.LLMProvider, "openrouter", "ollama", "auto") {
		result = multierror.Append(result, fmt.Errorf("LLM_PROVIDER must be openrouter, ollama or auto, got %q", c.LLMProvider))
	}
	if c.LLMProvider == "openrouter" && strings.TrimSpace(c.OpenRouterAPIKey) == "" {
		result = multierror.Append(result, errors.New("OPENROUTER_API_KEY is required when LLM_PROVIDER=openrouter"))
	}
	if !oneOf(c.EmbeddingProvider, "openai", "ollama") {
		result = multierror.Append(result, fmt.Errorf("EMBEDDING_PROVIDER must be openai or ollama, got %q", c.EmbeddingProvider))
	}
	if strings.TrimSpace(c.IndexDir) == "" {
		result = multierror.Append(result, errors.New("INDEX_DIR is required"))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		result = multierror.Append(result, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.OTelSampleRate))
	}
	return result.ErrorOrNil()
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) BackpressureWait() time.Duration {
	return time.Duration(c.APIBackpressureWaitMS) * time.Millisecond
}

// LoadSchema reads the attribute schema YAML at SCHEMA_PATH, or returns the
// built-in fashion schema when no path is configured.
func (c Config) LoadSchema() (domain.Schema, error) {
	path := strings.TrimSpace(c.SchemaPath)
	if path == "" {
		return domain.DefaultSchema(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var schema domain.Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return domain.Schema{}, fmt.Errorf("parse schema file: %w", err)
	}
	if schema.IsEmpty() {
		return domain.Schema{}, fmt.Errorf("schema file %s declares no attributes", path)
	}
	return schema, nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

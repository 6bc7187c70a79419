package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

const upsertBatchSize = 256

// pointNamespace scopes deterministic point ids so re-syncing a catalog
// overwrites points instead of duplicating them.
var pointNamespace = uuid.MustParse("6f1d3c52-8a43-4c1e-9a57-2b1f0e6d4a11")

// Client is a dense retriever over a Qdrant collection. Filters are applied
// by Qdrant itself, before similarity ranking.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	executor   *resilience.Executor
	logger     *zap.Logger

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *zap.Logger
}

func New(baseURL, collection string, embedder ports.Embedder, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		embedder:   embedder,
		executor:   opts.ResilienceExecutor,
		logger:     logger,
	}
}

// WithCollection returns a client bound to another collection. Transport,
// embedder and resilience settings are shared.
func (c *Client) WithCollection(collection string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		collection: collection,
		httpClient: c.httpClient,
		embedder:   c.embedder,
		executor:   c.executor,
		logger:     c.logger,
	}
}

func (c *Client) Collection() string {
	return c.collection
}

// SyncCollection upserts docs into collection, creating it when missing.
func (c *Client) SyncCollection(ctx context.Context, collection string, docs []domain.Document, vectors [][]float32) error {
	return c.WithCollection(collection).Sync(ctx, docs, vectors)
}

// PointID maps a catalog document id to its stable Qdrant point id.
func PointID(documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID)).String()
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Sync upserts every document with its vector. Points are keyed by
// PointID, so repeated syncs of the same catalog are idempotent.
func (c *Client) Sync(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents/vectors mismatch: %d != %d", len(docs), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	for start := 0; start < len(docs); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(docs))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, point{
				ID:      PointID(docs[i].ID),
				Vector:  vectors[i],
				Payload: payloadFor(docs[i]),
			})
		}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
		err := c.executor.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
			return c.send(ctx, http.MethodPut, url, map[string]any{"points": points}, "upsert", nil)
		}, resilience.ClassifyHTTPError)
		if err != nil {
			return resilience.WrapTemporaryIfNeeded("qdrant upsert", err)
		}
	}
	c.logger.Info("qdrant_synced", zap.String("collection", c.collection), zap.Int("points", len(docs)))
	return nil
}

// Retrieve embeds the query and runs a filtered similarity search.
func (c *Client) Retrieve(
	ctx context.Context,
	query string,
	predicate domain.FilterPredicate,
	topK int,
) ([]domain.Candidate, error) {
	if c.embedder == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "qdrant retrieve", fmt.Errorf("embedder is not configured"))
	}
	if topK <= 0 {
		return []domain.Candidate{}, nil
	}
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": []string{"doc_id"},
	}
	if filter := buildFilter(predicate); filter != nil {
		reqBody["filter"] = filter
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err = c.executor.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPost, url, reqBody, "search", &searchResp)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("qdrant search", err)
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "doc_id")
		if id == "" {
			continue
		}
		out = append(out, domain.DenseCandidate(id, r.Score))
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(ctx context.Context) error {
		err := c.send(ctx, http.MethodPut, url, reqBody, "ensure collection", nil)
		// 409 when the collection already exists (depends on version/config).
		var statusErr *resilience.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return nil
		}
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("qdrant ensure collection", err)
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) send(ctx context.Context, method, url string, payload any, operation string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

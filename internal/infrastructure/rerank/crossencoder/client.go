package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

// Client calls a cross-encoder served over HTTP using the common rerank
// request shape ({"query", "documents"} -> {"results": [{"index", "relevance_score"}]}).
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Model              string
	APIKey             string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(endpoint string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		model:      opts.Model,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score returns one relevance score per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	payload := rerankRequest{Model: c.model, Query: query, Documents: texts, TopN: len(texts)}

	resp, err := resilience.Do(ctx, c.executor, "crossencoder.rerank", func(ctx context.Context) (rerankResponse, error) {
		return c.post(ctx, payload)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("cross-encoder rerank", err)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("cross-encoder returned index %d for %d documents", r.Index, len(texts))
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("cross-encoder returned no score for document %d", i)
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, payload rerankRequest) (rerankResponse, error) {
	var out rerankResponse
	body, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("cross-encoder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return out, resilience.NewHTTPStatusError("cross-encoder", "rerank", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode rerank response: %w", err)
	}
	return out, nil
}

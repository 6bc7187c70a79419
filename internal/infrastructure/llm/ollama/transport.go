package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

// Embedding batches are the largest answers; 64MiB leaves room for a few
// thousand 1024-dim vectors.
const maxResponseBytes = 64 << 20

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// exchange posts req to path under the client's resilience policy and decodes
// the answer into Resp. Retryable failures come back as domain.ErrTemporary.
func exchange[Resp any](ctx context.Context, c *Client, operation, path string, req any) (Resp, error) {
	body, err := json.Marshal(req)
	if err != nil {
		var zero Resp
		return zero, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	out, err := resilience.Do(ctx, c.executor, "ollama."+operation, func(ctx context.Context) (Resp, error) {
		return send[Resp](ctx, c.httpClient, c.baseURL+path, operation, body)
	}, resilience.ClassifyHTTPError)
	return out, resilience.WrapTemporaryIfNeeded("ollama "+operation, err)
}

func send[Resp any](ctx context.Context, client *http.Client, url, operation string, body []byte) (Resp, error) {
	var out Resp
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return out, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, resilience.NewHTTPStatusError("ollama", operation, resp)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, fmt.Errorf("read %s response: %w", operation, err)
	}
	// a model that is still loading answers 200 with only an error field
	if msg := gjson.GetBytes(raw, "error"); msg.Exists() && msg.String() != "" {
		return out, errors.New("ollama " + operation + ": " + msg.String())
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return out, nil
}

package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

type Options struct {
	HTTPTimeout        time.Duration
	Temperature        float64
	ResilienceExecutor *resilience.Executor
}

// Client talks to a local Ollama server. It serves both text completion and
// embeddings.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	opts       Options
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, opts Options) *Client {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return "ollama"
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, false)
}

// CompleteJSON asks the model for a JSON object.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, true)
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	response, err := exchange[embedResponse](ctx, c, "embed", "/api/embed", embedRequest{
		Model: c.embedModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := generateRequest{
		Model:   c.genModel,
		Prompt:  prompt,
		Options: generateOptions{Temperature: c.opts.Temperature},
	}
	if jsonMode {
		req.Format = "json"
	}
	response, err := exchange[generateResponse](ctx, c, "generate", "/api/generate", req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

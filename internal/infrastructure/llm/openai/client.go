package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds the OpenAI-compatible provider settings (OpenRouter by default).
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	Executor       *resilience.Executor
	Logger         *zap.Logger
}

// Client implements chat completion and embeddings over the OpenAI API shape.
type Client struct {
	client      *openai.Client
	chatModel   string
	embedModel  openai.EmbeddingModel
	dimensions  int
	temperature float32
	maxTokens   int
	executor    *resilience.Executor
	logger      *zap.Logger
}

func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		chatModel:   cfg.ChatModel,
		embedModel:  openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:  cfg.Dimensions,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		executor:    cfg.Executor,
		logger:      logger,
	}
}

func (c *Client) Name() string {
	return "openrouter"
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, false)
}

func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, true)
}

func (c *Client) chat(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := resilience.Do(ctx, c.executor, "openrouter.chat", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return resp, parseAPIError("chat", err)
		}
		return resp, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("openrouter chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter chat returned no choices")
	}
	c.logger.Debug("chat_completed",
		zap.String("model", c.chatModel),
		zap.Bool("json", jsonMode),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := resilience.Do(ctx, c.executor, "openrouter.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return resp, parseAPIError("embed", err)
		}
		return resp, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("openrouter embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		out[i] = item.Embedding
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vecs[0], nil
}

// parseAPIError turns SDK errors carrying an HTTP status into
// resilience.HTTPStatusError so they classify like every other upstream.
func parseAPIError(operation string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := extractDetail(reqErr.Body)
		if body == "" {
			body = string(reqErr.Body)
		}
		return &resilience.HTTPStatusError{
			Service:    "openrouter",
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       body,
		}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &resilience.HTTPStatusError{
			Service:    "openrouter",
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		}
	}
	return fmt.Errorf("openrouter %s request: %w", operation, err)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error.Message
}

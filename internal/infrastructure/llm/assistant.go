package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

// Assistant implements the model-backed workflow steps over one Completer:
// topic classification, filter extraction and answer generation.
type Assistant struct {
	completer ports.Completer
	logger    *zap.Logger
}

func NewAssistant(completer ports.Completer, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{completer: completer, logger: logger}
}

func (a *Assistant) IsInDomain(ctx context.Context, query domain.Query) (bool, error) {
	raw, err := a.completer.CompleteJSON(ctx, buildTopicPrompt(query))
	if err != nil {
		return false, fmt.Errorf("classify topic: %w", err)
	}
	inDomain, ok := parseYesNo(raw)
	if !ok {
		return false, fmt.Errorf("classify topic: unrecognized answer %q", truncate(raw, 80))
	}
	return inDomain, nil
}

func (a *Assistant) Extract(ctx context.Context, query domain.Query, schema domain.Schema) (string, error) {
	raw, err := a.completer.CompleteJSON(ctx, buildFilterPrompt(query, schema))
	if err != nil {
		return "", fmt.Errorf("extract filters: %w", err)
	}
	return raw, nil
}

func (a *Assistant) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	answer, err := a.completer.Complete(ctx, buildAnswerPrompt(req))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// parseYesNo accepts {"score": "Yes"}, a bare Yes/No or the Chinese
// equivalents.
func parseYesNo(raw string) (bool, bool) {
	text := strings.TrimSpace(raw)
	if gjson.Valid(text) {
		for _, key := range []string{"score", "answer", "on_topic"} {
			v := gjson.Get(text, key)
			if !v.Exists() {
				continue
			}
			if v.Type == gjson.True || v.Type == gjson.False {
				return v.Bool(), true
			}
			text = v.String()
			break
		}
	}

	text = strings.ToLower(strings.Trim(text, " \t\r\n\"'.。!"))
	switch {
	case strings.HasPrefix(text, "yes"), strings.HasPrefix(text, "是"):
		return true, true
	case strings.HasPrefix(text, "no"), strings.HasPrefix(text, "否"), strings.HasPrefix(text, "不"):
		return false, true
	default:
		return false, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

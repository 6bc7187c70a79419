package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

// NamedCompleter is a Completer that can report which provider it is.
type NamedCompleter interface {
	ports.Completer
	Name() string
}

// FallbackCompleter tries each provider in order and returns the first
// success. It stops early when the context ends.
type FallbackCompleter struct {
	providers []NamedCompleter
	logger    *zap.Logger
}

func NewFallbackCompleter(logger *zap.Logger, providers ...NamedCompleter) *FallbackCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackCompleter{providers: providers, logger: logger}
}

func (f *FallbackCompleter) Name() string {
	return "auto"
}

func (f *FallbackCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.try(ctx, func(c NamedCompleter) (string, error) { return c.Complete(ctx, prompt) })
}

func (f *FallbackCompleter) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return f.try(ctx, func(c NamedCompleter) (string, error) { return c.CompleteJSON(ctx, prompt) })
}

func (f *FallbackCompleter) try(ctx context.Context, call func(NamedCompleter) (string, error)) (string, error) {
	if len(f.providers) == 0 {
		return "", errors.New("no llm provider configured")
	}

	var result *multierror.Error
	for i, provider := range f.providers {
		out, err := call(provider)
		if err == nil {
			return out, nil
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", provider.Name(), err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if i+1 < len(f.providers) {
			f.logger.Warn("llm_provider_fallback",
				zap.String("failed", provider.Name()),
				zap.String("next", f.providers[i+1].Name()),
				zap.Error(err),
			)
		}
	}
	return "", result.ErrorOrNil()
}

package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs backend calls with retries inside a per-operation circuit
// breaker. A nil *Executor calls the operation once.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	breakers *breakerSet
}

func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:      cfg,
		logger:   logger,
		breakers: newBreakerSet(cfg, logger),
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	}, classifier)
	return out, err
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	if e == nil {
		return fn(ctx)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = recordOnly
	}
	policy := e.cfg.retryFor(op)

	if !e.cfg.breakerFor(op) {
		return e.retry(ctx, op, policy, fn, classifier)
	}
	_, err := e.breakers.get(op, classifier).Execute(func() (any, error) {
		return nil, e.retry(ctx, op, policy, fn, classifier)
	})
	return err
}

// retry runs fn until it succeeds, fails permanently, or the attempts run
// out. The last error is returned unchanged.
func (e *Executor) retry(
	ctx context.Context,
	operation string,
	policy retryPolicy,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	var err error
	for attempt := 1; attempt <= policy.attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == policy.attempts || !classifier(err).Retryable {
			return err
		}

		wait := policy.backoff(attempt)
		e.logger.Warn("retry_attempt",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func recordOnly(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

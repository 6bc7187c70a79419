package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	// ErrIndexUnavailable means an index handle was never loaded or failed to load.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrFilterParseDegraded marks extraction output that could not be turned into a predicate.
	ErrFilterParseDegraded = errors.New("filter parse degraded")
	// ErrRerankerUnavailable marks a missing or unreachable reranking model.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
	// ErrGenerationFailure marks an answer generation backend error or timeout.
	ErrGenerationFailure = errors.New("generation failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StageError records which workflow stage failed and why.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "workflow stage error"
	}
	return fmt.Sprintf("workflow stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailedStage returns the stage name carried by err, if any.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

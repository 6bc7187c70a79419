package resilience

import (
	"errors"
	"sync"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// breakerSet lazily creates one circuit breaker per operation name.
type breakerSet struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	byOp map[string]*gobreaker.CircuitBreaker[any]
}

func newBreakerSet(cfg Config, logger *zap.Logger) *breakerSet {
	return &breakerSet{cfg: cfg, logger: logger, byOp: make(map[string]*gobreaker.CircuitBreaker[any])}
}

// get returns the breaker for operation. The classifier of the first call
// decides which errors count as failures for the breaker's lifetime.
func (s *breakerSet) get(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.byOp[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: s.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     s.cfg.BreakerOpenTimeout,
		ReadyToTrip: s.readyToTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: s.stateChanged,
	})
	s.byOp[operation] = cb
	return cb
}

func (s *breakerSet) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < s.cfg.BreakerMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= s.cfg.BreakerFailureRatio
}

func (s *breakerSet) stateChanged(operation string, from, to gobreaker.State) {
	s.logger.Warn("circuit_breaker_state_change",
		zap.String("operation", operation),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(operation, to.String())
	}
}

// IsCircuitOpen reports whether err was produced by an open or saturated
// half-open breaker rather than by the backend.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

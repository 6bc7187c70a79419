package resilience

import (
	"strings"
	"time"
)

// Config tunes retries and circuit breaking for backend calls. Zero fields
// take the DefaultConfig value.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Operations overrides retry settings for operation names starting with
	// the key ("crossencoder." covers every reranker call). The longest
	// matching prefix wins.
	Operations map[string]OperationPolicy

	// OnStateChange is called after a breaker changes state.
	OnStateChange func(operation, state string)
}

type OperationPolicy struct {
	RetryMaxAttempts int
	DisableBreaker   bool
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         400 * time.Millisecond,
		RetryMultiplier:         2.0,
		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// withDefaults fills unset or out-of-range values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	pick := func(v, fallback time.Duration) time.Duration {
		if v <= 0 {
			return fallback
		}
		return v
	}

	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	c.RetryInitialBackoff = pick(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(pick(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = pick(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}

// retryPolicy is the resolved retry schedule of one operation.
type retryPolicy struct {
	attempts   int
	initial    time.Duration
	ceiling    time.Duration
	multiplier float64
}

// backoff returns the wait after the given failed attempt (1-based).
func (p retryPolicy) backoff(attempt int) time.Duration {
	wait := float64(p.initial)
	for i := 1; i < attempt; i++ {
		wait *= p.multiplier
		if wait >= float64(p.ceiling) {
			return p.ceiling
		}
	}
	return min(time.Duration(wait), p.ceiling)
}

func (c Config) override(operation string) (OperationPolicy, bool) {
	var (
		best    OperationPolicy
		bestLen = -1
	)
	for prefix, policy := range c.Operations {
		if strings.HasPrefix(operation, prefix) && len(prefix) > bestLen {
			best, bestLen = policy, len(prefix)
		}
	}
	return best, bestLen >= 0
}

func (c Config) retryFor(operation string) retryPolicy {
	p := retryPolicy{
		attempts:   c.RetryMaxAttempts,
		initial:    c.RetryInitialBackoff,
		ceiling:    c.RetryMaxBackoff,
		multiplier: c.RetryMultiplier,
	}
	if o, ok := c.override(operation); ok && o.RetryMaxAttempts > 0 {
		p.attempts = o.RetryMaxAttempts
	}
	return p
}

func (c Config) breakerFor(operation string) bool {
	if !c.BreakerEnabled {
		return false
	}
	o, ok := c.override(operation)
	return !ok || !o.DisableBreaker
}

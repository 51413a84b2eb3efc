package planner

import (
	"time"

	"ai-trip-planner/internal/llm"
)

// RetryPolicy decides how provider failures are retried.
//
// MaxAttempts caps the provider calls of one run, whatever mix of failures
// they hit. Quota failures are retried within that cap, waiting
// Backoff(attempt) after the failed attempt. Other unclassified failures get
// at most one extra attempt after GenericRetryDelay, and none when the cap is
// already reached, in which case the run fails with ErrGenerationFailed. Auth
// and not-found failures are never retried.
type RetryPolicy struct {
	MaxAttempts       int
	Backoff           func(attempt int) time.Duration
	GenericRetryDelay time.Duration
	Classify          func(error) llm.FailureKind
}

// DefaultRetryPolicy waits 2s then 4s between quota retries, three calls at most.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		Backoff:           ExponentialBackoff(time.Second),
		GenericRetryDelay: time.Second,
		Classify:          llm.Classify,
	}
}

// ExponentialBackoff returns base * 2^attempt.
func ExponentialBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		return base << uint(attempt)
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.GenericRetryDelay < 0 {
		p.GenericRetryDelay = 0
	}
	if p.Classify == nil {
		p.Classify = def.Classify
	}
	return p
}

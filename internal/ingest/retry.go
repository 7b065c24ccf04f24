package ingest

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries transient failures with deterministic exponential
// backoff: the n-th retry waits InitialInterval * Multiplier^(n-1). No wait
// follows the final attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64

	// Timer replaces the wall-clock timer, mainly for tests.
	Timer backoff.Timer
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Second,
	Multiplier:      2,
}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(float64(p.InitialInterval) * math.Pow(p.multiplier(), float64(n-1)))
}

func (p RetryPolicy) multiplier() float64 {
	if p.Multiplier < 1 {
		return 1
	}
	return p.Multiplier
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(p.multiplier()),
		backoff.WithMaxInterval(p.Delay(p.attempts())),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}

// Do runs op until it succeeds, returns a backoff.Permanent error, the
// attempts run out or ctx is done. notify, when set, is called before each
// wait with the failure and the delay.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	var n backoff.Notify
	if notify != nil {
		n = notify
	}
	return backoff.RetryNotifyWithTimer(op, p.backOff(ctx), n, p.Timer)
}

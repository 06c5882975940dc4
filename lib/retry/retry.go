// Package retry is the single retry policy shared by every outbound request.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation may be attempted and how long to
// wait between attempts. The zero value attempts exactly once.
type Policy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Multiplier defaults to 2, so each wait doubles the previous one.
	Multiplier float64
	// Retryable decides if an error is transient, a nil Retryable retries every error.
	Retryable func(error) bool
	// Timer is swapped out in tests.
	Timer backoff.Timer
}

// Notify is called before each wait, `attempt` is the attempt that just failed (starting at 1).
type Notify func(err error, attempt int, wait time.Duration)

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of attempts
// or ctx is done. The error of the last attempt is returned as-is.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) (attempts int, err error) {
	wrapped := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempts, wait)
		}
	}

	err = backoff.RetryNotifyWithTimer(wrapped, p.newBackOff(ctx), onRetry, p.Timer)
	return attempts, err
}

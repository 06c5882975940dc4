package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

// instantTimer fires immediately so tests do not sleep.
type instantTimer struct {
	c chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestDoubling(t *testing.T) {
	policy := Policy{
		MaxAttempts:     4,
		InitialInterval: 100 * time.Millisecond,
		Timer:           newInstantTimer(),
	}

	var waits []time.Duration
	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		require.ErrorIs(t, err, errTransient)
		require.Equal(t, len(waits)+1, attempt)
		waits = append(waits, wait)
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, waits)
}

func TestExhausted(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		Timer:           newInstantTimer(),
	}
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return errTransient
	}, nil)
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, attempts)
}

func TestNonRetryable(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, errFatal)
		},
		Timer: newInstantTimer(),
	}
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return errFatal
	}, func(error, int, time.Duration) {
		t.Fatal("non-retryable errors should not be retried")
	})
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, attempts)
}

func TestMaxInterval(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     25 * time.Millisecond,
		Timer:           newInstantTimer(),
	}
	var waits []time.Duration
	policy.Do(context.Background(), func(context.Context) error {
		return errTransient
	}, func(_ error, _ int, wait time.Duration) {
		waits = append(waits, wait)
	})
	require.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		25 * time.Millisecond,
		25 * time.Millisecond,
	}, waits)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 10, InitialInterval: time.Hour}

	attempts, err := policy.Do(ctx, func(context.Context) error {
		cancel()
		return errTransient
	}, nil)
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

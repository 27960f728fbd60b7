/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

type hintedErr struct {
	delay time.Duration
}

func (e *hintedErr) Error() string {
	return fmt.Sprintf("retry after %s", e.delay)
}

func (e *hintedErr) RetryDelay() time.Duration {
	return e.delay
}

func TestDoWithRetry(t *testing.T) {
	errTemporary := errors.New("temporary")
	errPersistent := errors.New("persistent")

	t.Run("succeeds after temporary errors", func(t *testing.T) {
		calls := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), nil, nil,
			func(ctx context.Context) error {
				calls++
				if calls < 3 {
					return errTemporary
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		calls := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 2), nil, nil,
			func(ctx context.Context) error {
				calls++
				return errTemporary
			})
		require.ErrorIs(t, err, errTemporary)
		require.Equal(t, 3, calls)
	})

	t.Run("does not retry persistent errors", func(t *testing.T) {
		calls := 0
		isRetryable := func(err error) bool { return !errors.Is(err, errPersistent) }
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), isRetryable, nil,
			func(ctx context.Context) error {
				calls++
				return errPersistent
			})
		require.ErrorIs(t, err, errPersistent)
		require.Equal(t, 1, calls)
	})

	t.Run("delay hint is not shorter than backoff", func(t *testing.T) {
		var delays []time.Duration
		notify := func(err error, d time.Duration) { delays = append(delays, d) }
		calls := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), nil, notify,
			func(ctx context.Context) error {
				calls++
				switch calls {
				case 1:
					return fmt.Errorf("wrapped: %w", &hintedErr{delay: 30 * time.Millisecond})
				case 2:
					return errTemporary
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, []time.Duration{30 * time.Millisecond, time.Millisecond}, delays)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Millisecond, 0), nil, nil,
			func(ctx context.Context) error {
				calls++
				if calls == 2 {
					cancel()
				}
				return errTemporary
			})
		require.Error(t, err)
		require.Equal(t, 2, calls)
	})
}

func TestGetDelayHint(t *testing.T) {
	_, ok := GetDelayHint(errors.New("plain"))
	require.False(t, ok)

	delay, ok := GetDelayHint(fmt.Errorf("wrapped: %w", &hintedErr{delay: time.Second}))
	require.True(t, ok)
	require.Equal(t, time.Second, delay)
}

func TestExponentialBackoffPolicy(t *testing.T) {
	bf := NewExponentialBackoffPolicy(100*time.Millisecond, 2).WithMultiplier(2).NewBackOff()
	first := bf.NextBackOff()
	require.InDelta(t, float64(100*time.Millisecond), float64(first), float64(50*time.Millisecond))
	second := bf.NextBackOff()
	require.InDelta(t, float64(200*time.Millisecond), float64(second), float64(100*time.Millisecond))
	require.Equal(t, backoff.Stop, bf.NextBackOff())
}

func TestConstantBackoffPolicy(t *testing.T) {
	bf := NewConstantBackoffPolicy(time.Second, 1).NewBackOff()
	require.Equal(t, time.Second, bf.NextBackOff())
	require.Equal(t, backoff.Stop, bf.NextBackOff())

	bf = NewConstantBackoffPolicy(time.Second, 0).NewBackOff()
	for i := 0; i < 10; i++ {
		require.Equal(t, time.Second, bf.NextBackOff())
	}
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func() backoff.BackOff { return &backoff.StopBackOff{} })
	require.Equal(t, backoff.Stop, p.NewBackOff().NextBackOff())
}

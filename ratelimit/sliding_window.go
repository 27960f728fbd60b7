/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter implements the approximate sliding window rate limiting algorithm.
// The number of requests in the window is estimated from the counters of the current and the previous fixed windows,
// so memory per key is constant.
type SlidingWindowLimiter struct {
	maxRate Rate
	now     func() time.Time
	metrics MetricsCollector

	mu       sync.Mutex
	limiters keyStore[*slidingwindow.Limiter]
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(maxRate Rate, opts ...Option) (*SlidingWindowLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	o := makeOptions(opts)
	limiters, err := newKeyStore[*slidingwindow.Limiter](o.maxKeys)
	if err != nil {
		return nil, err
	}
	return &SlidingWindowLimiter{maxRate: maxRate, now: o.now, metrics: o.metrics, limiters: limiters}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	now := l.now()
	if l.getLimiter(key).AllowN(now, 1) {
		l.metrics.IncAdmitted()
		return true, 0, nil
	}
	l.metrics.IncRejected()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}

// Reset forgets the counters of the key.
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters.remove(key)
	l.metrics.SetTrackedKeys(l.limiters.len())
}

func (l *SlidingWindowLimiter) getLimiter(key string) *slidingwindow.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters.get(key); ok {
		return lim
	}
	lim, _ := slidingwindow.NewLimiter(
		l.maxRate.Duration, int64(l.maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	l.limiters.set(key, lim)
	l.metrics.SetTrackedKeys(l.limiters.len())
	return lim
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SlidingLogLimiter implements the exact sliding window rate limiting algorithm.
// For every identifier it keeps timestamps of the admitted events that happened within the window.
// Timestamps are purged lazily when the identifier is accessed.
// All methods are safe for concurrent use.
type SlidingLogLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time
	metrics     MetricsCollector

	mu       sync.Mutex
	requests keyStore[[]time.Time]
}

// NewSlidingLogLimiter creates a new limiter that admits at most maxRequests events per window for every identifier.
// Both maxRequests and window must be positive, otherwise an error matching ErrInvalidConfiguration is returned.
func NewSlidingLogLimiter(maxRequests int, window time.Duration, opts ...Option) (*SlidingLogLimiter, error) {
	if err := (Rate{Count: maxRequests, Duration: window}).Validate(); err != nil {
		return nil, err
	}
	o := makeOptions(opts)
	requests, err := newKeyStore[[]time.Time](o.maxKeys)
	if err != nil {
		return nil, err
	}
	return &SlidingLogLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         o.now,
		metrics:     o.metrics,
		requests:    requests,
	}, nil
}

// MaxRequests returns the maximum number of events admitted per window.
func (l *SlidingLogLimiter) MaxRequests() int {
	return l.maxRequests
}

// Window returns the length of the sliding window.
func (l *SlidingLogLimiter) Window() time.Duration {
	return l.window
}

// IsAllowed reports whether one more event for the identifier is admitted now.
// The event is recorded only if it's admitted.
func (l *SlidingLogLimiter) IsAllowed(id string) bool {
	allow, _ := l.admit(id)
	return allow
}

// Allow implements Limiter interface.
// When the key is rejected, retryAfter is the time left until the oldest recorded event leaves the window.
func (l *SlidingLogLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	allow, retryAfter = l.admit(key)
	return allow, retryAfter, nil
}

func (l *SlidingLogLimiter) admit(id string) (allow bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps, _ := l.requests.get(id)
	recent := purgeExpired(timestamps, now.Add(-l.window))

	if len(recent) >= l.maxRequests {
		l.requests.set(id, recent)
		l.metrics.IncRejected()
		return false, recent[0].Add(l.window).Sub(now)
	}

	// Keep the sequence non-decreasing even if the clock goes backwards.
	if n := len(recent); n > 0 && now.Before(recent[n-1]) {
		now = recent[n-1]
	}
	l.requests.set(id, append(recent, now))
	l.metrics.IncAdmitted()
	l.metrics.SetTrackedKeys(l.requests.len())
	return true, 0
}

// RemainingRequests returns how many events the identifier may still do within the current window.
// It never records an event.
func (l *SlidingLogLimiter) RemainingRequests(id string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps, ok := l.requests.get(id)
	if !ok {
		return l.maxRequests
	}
	recent := purgeExpired(timestamps, now.Add(-l.window))
	if len(recent) == 0 {
		l.requests.remove(id)
		l.metrics.SetTrackedKeys(l.requests.len())
		return l.maxRequests
	}
	l.requests.set(id, recent)
	if remaining := l.maxRequests - len(recent); remaining > 0 {
		return remaining
	}
	return 0
}

// Reset forgets all events of the identifier. It's a no-op for unknown identifiers.
func (l *SlidingLogLimiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests.remove(id)
	l.metrics.SetTrackedKeys(l.requests.len())
}

// Prune drops identifiers whose events have all left the window and returns how many were dropped.
func (l *SlidingLogLimiter) Prune() int {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for _, id := range l.requests.keys() {
		timestamps, ok := l.requests.peek(id)
		if !ok {
			continue
		}
		if len(purgeExpired(timestamps, windowStart)) == 0 {
			l.requests.remove(id)
			pruned++
		}
	}
	l.metrics.SetTrackedKeys(l.requests.len())
	return pruned
}

// Len returns the number of tracked identifiers.
func (l *SlidingLogLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests.len()
}

// String implements fmt.Stringer interface.
func (l *SlidingLogLimiter) String() string {
	return fmt.Sprintf("sliding log limiter (%s)", Rate{Count: l.maxRequests, Duration: l.window})
}

// purgeExpired returns the suffix of non-decreasing timestamps that are strictly after windowStart.
func purgeExpired(timestamps []time.Time, windowStart time.Time) []time.Time {
	i := sort.Search(len(timestamps), func(i int) bool {
		return timestamps[i].After(windowStart)
	})
	return timestamps[i:]
}

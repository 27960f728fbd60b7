/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter implements the token bucket rate limiting algorithm.
// Every key owns a bucket of burst tokens refilled at the configured rate.
type TokenBucketLimiter struct {
	limit   rate.Limit
	burst   int
	now     func() time.Time
	metrics MetricsCollector

	mu      sync.Mutex
	buckets keyStore[*rate.Limiter]
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
// If burst is 0, the bucket holds maxRate.Count tokens.
func NewTokenBucketLimiter(maxRate Rate, burst int, opts ...Option) (*TokenBucketLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	if burst < 0 {
		return nil, fmt.Errorf("%w: burst should not be negative, got %d", ErrInvalidConfiguration, burst)
	}
	if burst == 0 {
		burst = maxRate.Count
	}
	o := makeOptions(opts)
	buckets, err := newKeyStore[*rate.Limiter](o.maxKeys)
	if err != nil {
		return nil, err
	}
	return &TokenBucketLimiter{
		limit:   rate.Every(maxRate.Duration / time.Duration(maxRate.Count)),
		burst:   burst,
		now:     o.now,
		metrics: o.metrics,
		buckets: buckets,
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// When the bucket is empty, retryAfter is the time until the next token is available.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	now := l.now()
	r := l.getBucket(key).ReserveN(now, 1)
	if !r.OK() {
		l.metrics.IncRejected()
		return false, 0, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		l.metrics.IncRejected()
		return false, delay, nil
	}
	l.metrics.IncAdmitted()
	return true, 0, nil
}

// RemainingRequests returns the number of whole tokens left in the bucket of the key.
func (l *TokenBucketLimiter) RemainingRequests(key string) int {
	now := l.now()
	l.mu.Lock()
	bucket, ok := l.buckets.get(key)
	l.mu.Unlock()
	if !ok {
		return l.burst
	}
	if tokens := int(math.Floor(bucket.TokensAt(now))); tokens > 0 {
		return tokens
	}
	return 0
}

// Reset refills the bucket of the key.
func (l *TokenBucketLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.remove(key)
	l.metrics.SetTrackedKeys(l.buckets.len())
}

// Prune drops the keys whose buckets are full again and returns how many were dropped.
func (l *TokenBucketLimiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for _, key := range l.buckets.keys() {
		bucket, ok := l.buckets.peek(key)
		if !ok {
			continue
		}
		if bucket.TokensAt(now) >= float64(l.burst) {
			l.buckets.remove(key)
			pruned++
		}
	}
	l.metrics.SetTrackedKeys(l.buckets.len())
	return pruned
}

func (l *TokenBucketLimiter) getBucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, ok := l.buckets.get(key); ok {
		return bucket
	}
	bucket := rate.NewLimiter(l.limit, l.burst)
	l.buckets.set(key, bucket)
	l.metrics.SetTrackedKeys(l.buckets.len())
	return bucket
}

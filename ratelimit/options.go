/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "time"

// Option configures a limiter.
type Option func(*options)

type options struct {
	now     func() time.Time
	maxKeys int
	metrics MetricsCollector
}

// WithClock sets the function used to read the current time. Useful for tests.
// It's ignored by LeakyBucketLimiter, which always uses the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxKeys bounds the number of tracked keys.
// When the limit is reached, the least recently used key is forgotten as if it was reset.
// Zero (default) means no limit.
func WithMaxKeys(maxKeys int) Option {
	return func(o *options) {
		o.maxKeys = maxKeys
	}
}

// WithMetrics sets the collector of admission decisions.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

func makeOptions(opts []Option) options {
	o := options{now: time.Now, metrics: disabledMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

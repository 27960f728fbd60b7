/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfiguration is matched (errors.Is) by every error caused by invalid limiter parameters.
var ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")

// ErrRateLimitExceeded is matched (errors.Is) by RejectedError.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ConfigurationError describes an invalid limiter parameter.
type ConfigurationError struct {
	Param string
	Value interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s must be positive, got %v", ErrInvalidConfiguration, e.Param, e.Value)
}

// Is makes errors.Is(err, ErrInvalidConfiguration) work.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// RejectedError is returned by RequestProcessor when the request was not admitted.
type RejectedError struct {
	Key        string
	RetryAfter time.Duration
	Backlogged bool
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s for key %q, retry after %s", ErrRateLimitExceeded, e.Key, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimitExceeded) work.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryDelay returns the time after which the key may be admitted.
func (e *RejectedError) RetryDelay() time.Duration {
	return e.RetryAfter
}

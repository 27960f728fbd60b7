/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/ratelimit"
)

// ErrRateLimited is matched (errors.Is) by RateLimitedError.
var ErrRateLimited = errors.New("request is rate limited on the client side")

// RateLimitedError is returned by RateLimitingRoundTripper when the request was not admitted.
// The request is not sent to the backend in this case.
type RateLimitedError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: category %q, retry after %s", ErrRateLimited, e.Category, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) work.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryDelay returns the time after which the request of the same category may be admitted.
func (e *RateLimitedError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	// Categorizer determines the category (rate limiting key) of the request.
	// By default, all requests fall into DefaultCategory unless the category is set in the context.
	Categorizer *Categorizer

	// Backlog allows requests to wait for admission instead of failing immediately.
	Backlog ratelimit.BacklogParams

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// RateLimitingRoundTripper wraps implementing http.RoundTripper interface object
// and admits outgoing requests per category with a ratelimit.Limiter.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	Limiter ratelimit.Limiter

	categorizer    *Categorizer
	processor      *ratelimit.RequestProcessor
	logger         log.FieldLogger
	loggerProvider func(ctx context.Context) log.FieldLogger
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified limiter.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, limiter ratelimit.Limiter) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, limiter, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified limiter and options.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, limiter ratelimit.Limiter, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	categorizer := opts.Categorizer
	if categorizer == nil {
		var err error
		if categorizer, err = NewCategorizer(nil, DefaultCategory); err != nil {
			return nil, err
		}
	}
	processor, err := ratelimit.NewRequestProcessor(limiter, opts.Backlog)
	if err != nil {
		return nil, fmt.Errorf("create request processor: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &RateLimitingRoundTripper{
		Delegate:       delegate,
		Limiter:        limiter,
		categorizer:    categorizer,
		processor:      processor,
		logger:         logger,
		loggerProvider: opts.LoggerProvider,
	}, nil
}

// RoundTrip sends the request only if its category is admitted by the limiter.
// Otherwise, *RateLimitedError is returned without contacting the backend.
func (rt *RateLimitingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	category := rt.categorizer.Categorize(req)

	var resp *http.Response
	sent := false
	err := rt.processor.Process(req.Context(), category, func(ctx context.Context) error {
		sent = true
		var rtErr error
		resp, rtErr = rt.Delegate.RoundTrip(req)
		return rtErr
	})
	if sent {
		return resp, err
	}

	if req.Body != nil {
		_ = req.Body.Close() // Per RoundTripper contract.
	}
	var rejErr *ratelimit.RejectedError
	if errors.As(err, &rejErr) {
		rt.getLogger(req.Context()).Warn("outgoing request rate limited",
			log.String("category", category),
			log.String("method", req.Method),
			log.String("path", req.URL.Path),
			log.Duration("retry_after", rejErr.RetryAfter),
		)
		return nil, &RateLimitedError{Category: category, RetryAfter: rejErr.RetryAfter}
	}
	return nil, err
}

func (rt *RateLimitingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.loggerProvider != nil {
		return rt.loggerProvider(ctx)
	}
	return rt.logger
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an HTTP client for the fleet backend API.
// Outgoing requests are categorized and admitted by a client-side rate limiter before they are sent.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/ratelimit"
)

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// Delegate is the RoundTripper that sends requests, http.DefaultTransport clone by default.
	Delegate http.RoundTripper

	// Limiter admits requests per category. Rate limiting is disabled if it's nil.
	Limiter ratelimit.Limiter

	// Backlog allows rate limited requests to wait for admission.
	Backlog ratelimit.BacklogParams

	// Logger is used for logging.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Collector is a metrics collector. Metrics are not collected if it's nil.
	Collector MetricsCollector

	// GenerateRequestID generates X-Request-ID for requests without one.
	GenerateRequestID func() string
}

// New creates an HTTP client configured by cfg without rate limiting and metrics.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates an HTTP client with the following chain of round trippers:
// request ID -> logging -> metrics -> rate limiting -> retries -> delegate.
// Requests rejected by the limiter fail with *RateLimitedError and are never sent.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	categorizer, err := NewCategorizer(cfg.Categories.Rules, cfg.Categories.Default)
	if err != nil {
		return nil, fmt.Errorf("create categorizer: %w", err)
	}

	if cfg.Retries.Enabled {
		retryOpts := cfg.Retries.TransportOpts()
		retryOpts.Logger = opts.Logger
		retryOpts.LoggerProvider = opts.LoggerProvider
		if delegate, err = NewRetryableRoundTripperWithOpts(delegate, retryOpts); err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	if opts.Limiter != nil {
		if delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, opts.Limiter, RateLimitingRoundTripperOpts{
			Categorizer:    categorizer,
			Backlog:        opts.Backlog,
			Logger:         opts.Logger,
			LoggerProvider: opts.LoggerProvider,
		}); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, opts.Collector, MetricsRoundTripperOpts{
			Categorize: categorizer.Categorize,
		})
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.Logger = opts.Logger
		logOpts.LoggerProvider = opts.LoggerProvider
		logOpts.Categorize = categorizer.Categorize
		delegate = NewLoggingRoundTripperWithOpts(delegate, logOpts)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{GenerateID: opts.GenerateRequestID})

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// MustWithOpts creates an HTTP client like NewWithOpts and panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}

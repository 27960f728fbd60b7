/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-fleetguard/internal/libinfo"
)

// Status label values for requests that got no HTTP response.
const (
	MetricsStatusError       = "0"
	MetricsStatusRateLimited = "rate_limited"
)

// DefaultRequestDurationBuckets are the buckets of the request duration histogram.
var DefaultRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// MetricsCollector is an interface for collecting metrics for client requests.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request.
	RequestDuration(category, method, status string, duration time.Duration)
}

// PrometheusMetricsCollectorOpts represents options for PrometheusMetricsCollector.
type PrometheusMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the request duration histogram.
	// By default, DefaultRequestDurationBuckets is used.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetricsCollector is a Prometheus metrics collector.
type PrometheusMetricsCollector struct {
	// Durations is a histogram of the http client requests durations.
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsCollectorOpts{Namespace: namespace})
}

// NewPrometheusMetricsCollectorWithOpts creates a new Prometheus metrics collector with the provided options.
func NewPrometheusMetricsCollectorWithOpts(opts PrometheusMetricsCollectorOpts) *PrometheusMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultRequestDurationBuckets
	}
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the http client requests durations.",
			Buckets:     buckets,
			ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
		}, []string{"category", "method", "status"}),
	}
}

// MustRegister registers the Prometheus metrics.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister the Prometheus metrics.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration observes the duration of the request.
func (p *PrometheusMetricsCollector) RequestDuration(category, method, status string, duration time.Duration) {
	p.Durations.WithLabelValues(category, method, status).Observe(duration.Seconds())
}

// MetricsRoundTripperOpts represents an options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// Categorize returns the category label of the request.
	// By default, all requests are labeled with DefaultCategory.
	Categorize CategorizeFunc
}

// MetricsRoundTripper is an HTTP transport that measures requests done.
type MetricsRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// Collector is a metrics collector.
	Collector MetricsCollector

	categorize CategorizeFunc
}

// NewMetricsRoundTripper creates an HTTP transport that measures requests done.
func NewMetricsRoundTripper(delegate http.RoundTripper, collector MetricsCollector) *MetricsRoundTripper {
	return NewMetricsRoundTripperWithOpts(delegate, collector, MetricsRoundTripperOpts{})
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport that measures requests done with options.
func NewMetricsRoundTripperWithOpts(
	delegate http.RoundTripper, collector MetricsCollector, opts MetricsRoundTripperOpts,
) *MetricsRoundTripper {
	categorize := opts.Categorize
	if categorize == nil {
		categorize = func(*http.Request) string { return DefaultCategory }
	}
	return &MetricsRoundTripper{Delegate: delegate, Collector: collector, categorize: categorize}
}

// RoundTrip measures external requests done.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	status := MetricsStatusError
	switch {
	case errors.Is(err, ErrRateLimited):
		status = MetricsStatusRateLimited
	case err == nil && resp != nil:
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.RequestDuration(rt.categorize(r), r.Method, status, elapsed)
	return resp, err
}

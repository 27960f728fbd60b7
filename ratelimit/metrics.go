/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-fleetguard/internal/libinfo"
)

// Decision label values.
const (
	DecisionAdmitted = "admitted"
	DecisionRejected = "rejected"
)

// MetricsCollector represents a collector of metrics for rate limiting decisions.
type MetricsCollector interface {
	// IncAdmitted increments the total number of admitted requests.
	IncAdmitted()

	// IncRejected increments the total number of rejected requests.
	IncRejected()

	// SetTrackedKeys sets the number of keys the limiter keeps state for.
	SetTrackedKeys(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for rate limiters.
// Every limiter gets its own collector via ForLimiter.
type PrometheusMetrics struct {
	DecisionsTotal *prometheus.CounterVec
	TrackedKeys    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_decisions_total",
			Help:        "Number of rate limiting decisions.",
			ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
		},
		[]string{"limiter", "decision"},
	)
	trackedKeys := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_tracked_keys",
			Help:        "Number of keys the rate limiter keeps state for.",
			ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
		},
		[]string{"limiter"},
	)
	return &PrometheusMetrics{DecisionsTotal: decisionsTotal, TrackedKeys: trackedKeys}
}

// ForLimiter returns a collector that reports metrics of the named limiter.
func (pm *PrometheusMetrics) ForLimiter(name string) MetricsCollector {
	return &limiterPrometheusMetrics{
		admitted:    pm.DecisionsTotal.WithLabelValues(name, DecisionAdmitted),
		rejected:    pm.DecisionsTotal.WithLabelValues(name, DecisionRejected),
		trackedKeys: pm.TrackedKeys.WithLabelValues(name),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.DecisionsTotal, pm.TrackedKeys)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.DecisionsTotal)
	prometheus.Unregister(pm.TrackedKeys)
}

type limiterPrometheusMetrics struct {
	admitted    prometheus.Counter
	rejected    prometheus.Counter
	trackedKeys prometheus.Gauge
}

func (m *limiterPrometheusMetrics) IncAdmitted() {
	m.admitted.Inc()
}

func (m *limiterPrometheusMetrics) IncRejected() {
	m.rejected.Inc()
}

func (m *limiterPrometheusMetrics) SetTrackedKeys(n int) {
	m.trackedKeys.Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmitted()       {}
func (disabledMetrics) IncRejected()       {}
func (disabledMetrics) SetTrackedKeys(int) {}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-fleetguard/internal/libinfo"
	"github.com/acronis/go-fleetguard/testutil"
)

func TestPrometheusMetrics(t *testing.T) {
	promMetrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
		Namespace:   "fleet",
		ConstLabels: prometheus.Labels{"app": "dispatcher"},
	})
	clock := testutil.NewManualClock(clockStart)
	limiter, err := NewSlidingLogLimiter(2, time.Minute, WithClock(clock.Now), WithMetrics(promMetrics.ForLimiter("auth")))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		limiter.IsAllowed("driver@fleet.io")
	}
	limiter.IsAllowed("dispatcher@fleet.io")

	testutil.RequireCounterValue(t, promMetrics.DecisionsTotal.WithLabelValues("auth", DecisionAdmitted), 3)
	testutil.RequireCounterValue(t, promMetrics.DecisionsTotal.WithLabelValues("auth", DecisionRejected), 3)
	testutil.RequireGaugeValue(t, promMetrics.TrackedKeys.WithLabelValues("auth"), 2)

	limiter.Reset("driver@fleet.io")
	testutil.RequireGaugeValue(t, promMetrics.TrackedKeys.WithLabelValues("auth"), 1)

	clock.Advance(time.Hour)
	require.Equal(t, 1, limiter.Prune())
	testutil.RequireGaugeValue(t, promMetrics.TrackedKeys.WithLabelValues("auth"), 0)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(promMetrics.DecisionsTotal))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "fleet_rate_limit_decisions_total", families[0].GetName())
	labels := map[string]string{}
	for _, lp := range families[0].GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	require.Equal(t, "dispatcher", labels["app"])
	require.Equal(t, libinfo.GetLibVersion(), labels[libinfo.PrometheusLibVersionLabel])
}

func TestMetricsOfOtherAlgorithms(t *testing.T) {
	promMetrics := NewPrometheusMetrics()
	rate := Rate{Count: 1, Duration: time.Minute}

	slidingWindow, err := NewSlidingWindowLimiter(rate, WithMetrics(promMetrics.ForLimiter("sliding_window")))
	require.NoError(t, err)
	leakyBucket, err := NewLeakyBucketLimiter(rate, 0, WithMetrics(promMetrics.ForLimiter("leaky_bucket")))
	require.NoError(t, err)
	tokenBucket, err := NewTokenBucketLimiter(rate, 0, WithMetrics(promMetrics.ForLimiter("token_bucket")))
	require.NoError(t, err)

	for name, limiter := range map[string]Limiter{
		"sliding_window": slidingWindow,
		"leaky_bucket":   leakyBucket,
		"token_bucket":   tokenBucket,
	} {
		for i := 0; i < 3; i++ {
			_, _, err = limiter.Allow(context.Background(), "k")
			require.NoError(t, err)
		}
		testutil.RequireCounterValue(t, promMetrics.DecisionsTotal.WithLabelValues(name, DecisionAdmitted), 1)
		testutil.RequireCounterValue(t, promMetrics.DecisionsTotal.WithLabelValues(name, DecisionRejected), 2)
	}
}

func TestPrometheusMetricsRegistration(t *testing.T) {
	promMetrics := NewPrometheusMetrics()
	require.NotPanics(t, promMetrics.MustRegister)
	promMetrics.Unregister()
	require.NotPanics(t, promMetrics.MustRegister)
	promMetrics.Unregister()
}

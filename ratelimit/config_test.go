/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-fleetguard/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		apiCfg, authCfg := NewAPIConfig(), NewAuthConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{}`), config.DataTypeJSON, apiCfg, authCfg)
		require.NoError(t, err)

		require.Equal(t, AlgorithmSlidingLog, apiCfg.Algorithm)
		require.Equal(t, Rate{Count: 100, Duration: time.Minute}, apiCfg.Rate)
		require.Equal(t, Rate{Count: 5, Duration: 15 * time.Minute}, authCfg.Rate)
		require.Equal(t, 0, authCfg.MaxKeys)
		require.Equal(t, time.Duration(0), authCfg.PruneInterval)
		require.Equal(t, BacklogConfig{Timeout: DefaultBacklogTimeout}, authCfg.Backlog)
		require.Equal(t, CfgKeyPrefixAuth, authCfg.KeyPrefix())
	})

	t.Run("custom values", func(t *testing.T) {
		yamlData := `
throttle:
  api:
    algorithm: TOKEN_BUCKET
    rate: 20/s
    burst: 40
    maxKeys: 1000
    pruneInterval: 30s
    backlog:
      limit: 10
      maxKeys: 50
      timeout: 2s
  auth:
    rate: 3/10m
`
		apiCfg, authCfg := NewAPIConfig(), NewAuthConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(yamlData), config.DataTypeYAML, apiCfg, authCfg)
		require.NoError(t, err)

		require.Equal(t, AlgorithmTokenBucket, apiCfg.Algorithm)
		require.Equal(t, Rate{Count: 20, Duration: time.Second}, apiCfg.Rate)
		require.Equal(t, 40, apiCfg.Burst)
		require.Equal(t, 1000, apiCfg.MaxKeys)
		require.Equal(t, 30*time.Second, apiCfg.PruneInterval)
		require.Equal(t, BacklogConfig{Limit: 10, MaxKeys: 50, Timeout: 2 * time.Second}, apiCfg.Backlog)
		require.Equal(t, Rate{Count: 3, Duration: 10 * time.Minute}, authCfg.Rate)
		require.Equal(t, AlgorithmSlidingLog, authCfg.Algorithm)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			yaml    string
			wantErr string
		}{
			{
				name:    "unknown algorithm",
				yaml:    "throttle: {auth: {algorithm: fixed_window}}",
				wantErr: `throttle.auth.algorithm: unknown value "fixed_window"`,
			},
			{
				name:    "malformed rate",
				yaml:    "throttle: {auth: {rate: five}}",
				wantErr: `throttle.auth.rate: incorrect format for rate "five"`,
			},
			{
				name:    "zero rate",
				yaml:    "throttle: {auth: {rate: 0/m}}",
				wantErr: "throttle.auth.rate: invalid rate limiter configuration: max requests must be positive, got 0",
			},
			{
				name:    "negative max keys",
				yaml:    "throttle: {auth: {maxKeys: -1}}",
				wantErr: "throttle.auth.maxKeys: should be >= 0",
			},
			{
				name:    "negative backlog timeout",
				yaml:    "throttle: {auth: {backlog: {timeout: -1s}}}",
				wantErr: "throttle.auth.backlog.timeout: should be >= 0",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewBufferString(tt.yaml), config.DataTypeYAML, NewAuthConfig())
				require.ErrorContains(t, err, tt.wantErr)
			})
		}
	})
}

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		algorithm string
		wantType  Limiter
	}{
		{algorithm: "", wantType: &SlidingLogLimiter{}},
		{algorithm: AlgorithmSlidingLog, wantType: &SlidingLogLimiter{}},
		{algorithm: AlgorithmSlidingWindow, wantType: &SlidingWindowLimiter{}},
		{algorithm: AlgorithmLeakyBucket, wantType: &LeakyBucketLimiter{}},
		{algorithm: AlgorithmTokenBucket, wantType: &TokenBucketLimiter{}},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			cfg := NewAuthConfig()
			cfg.Algorithm = tt.algorithm
			cfg.Rate = Rate{Count: 1, Duration: time.Minute}
			limiter, err := NewLimiter(cfg)
			require.NoError(t, err)
			require.IsType(t, tt.wantType, limiter)

			allow, _, err := limiter.Allow(context.Background(), "driver@fleet.io")
			require.NoError(t, err)
			require.True(t, allow)
			allow, retryAfter, err := limiter.Allow(context.Background(), "driver@fleet.io")
			require.NoError(t, err)
			require.False(t, allow)
			require.Greater(t, retryAfter, time.Duration(0))
		})
	}

	t.Run("invalid", func(t *testing.T) {
		cfg := NewAuthConfig()
		cfg.Algorithm = "fixed_window"
		cfg.Rate = Rate{Count: 1, Duration: time.Minute}
		_, err := NewLimiter(cfg)
		require.ErrorIs(t, err, ErrInvalidConfiguration)

		cfg.Algorithm = AlgorithmSlidingLog
		cfg.Rate = Rate{}
		limiter, err := NewLimiter(cfg)
		require.ErrorIs(t, err, ErrInvalidConfiguration)
		require.Nil(t, limiter)
	})

	t.Run("processor from config", func(t *testing.T) {
		cfg := NewAPIConfig()
		cfg.Rate = Rate{Count: 1, Duration: time.Minute}
		cfg.Backlog = BacklogConfig{Limit: 2, Timeout: time.Second}
		limiter, err := NewLimiter(cfg)
		require.NoError(t, err)
		processor, err := NewRequestProcessorFromConfig(limiter, cfg)
		require.NoError(t, err)
		require.NotNil(t, processor.getBacklogSlots)
		require.Equal(t, time.Second, processor.backlogTimeout)
	})
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-fleetguard/log/logtest"
)

func TestPruneWorker(t *testing.T) {
	limiter, err := NewSlidingLogLimiter(1, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, limiter.IsAllowed("driver@fleet.io"))
	require.True(t, limiter.IsAllowed("dispatcher@fleet.io"))

	logRecorder := logtest.NewRecorder()
	worker := NewPruneWorker("auth", limiter, 30*time.Millisecond, logRecorder)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	entry, found := logRecorder.FindEntry("pruned idle rate limiting keys")
	require.True(t, found)
	limiterName, _ := entry.StringField("limiter")
	require.Equal(t, "auth", limiterName)
}

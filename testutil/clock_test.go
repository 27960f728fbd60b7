/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	require.Equal(t, start, clock.Now())

	clock.Advance(500 * time.Millisecond)
	require.Equal(t, start.Add(500*time.Millisecond), clock.Now())

	clock.Set(1001 * time.Millisecond)
	require.Equal(t, start.Add(1001*time.Millisecond), clock.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()
	require.Equal(t, start.Add(1011*time.Millisecond), clock.Now())
}

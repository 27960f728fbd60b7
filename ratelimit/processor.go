/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultBacklogTimeout determines the default timeout for backlog processing.
const DefaultBacklogTimeout = time.Second * 5

// backlogSlotsProvider provides backlog slots for rate limiting.
type backlogSlotsProvider func(key string) chan struct{}

// BacklogParams defines parameters for the backlog processing.
// Limit is the number of requests that may wait for admission, 0 disables backlogging.
// MaxKeys is the number of keys with their own backlog, 0 means all keys share one backlog.
type BacklogParams struct {
	Limit   int
	MaxKeys int
	Timeout time.Duration
}

// RequestProcessor runs actions under a Limiter.
// A rejected action either fails immediately with *RejectedError
// or waits in the backlog until it's admitted, the backlog timeout expires, or the context is canceled.
type RequestProcessor struct {
	limiter         Limiter
	getBacklogSlots backlogSlotsProvider
	backlogTimeout  time.Duration
}

// NewRequestProcessor creates a new request processor.
func NewRequestProcessor(limiter Limiter, backlogParams BacklogParams) (*RequestProcessor, error) {
	if backlogParams.Limit < 0 {
		return nil, fmt.Errorf("backlog limit should not be negative, got %d", backlogParams.Limit)
	}
	if backlogParams.MaxKeys < 0 {
		return nil, fmt.Errorf("max keys for backlog should not be negative, got %d", backlogParams.MaxKeys)
	}
	var getBacklogSlots backlogSlotsProvider
	if backlogParams.Limit > 0 {
		var err error
		if getBacklogSlots, err = newBacklogSlotsProvider(backlogParams.Limit, backlogParams.MaxKeys); err != nil {
			return nil, err
		}
	}
	if backlogParams.Timeout == 0 {
		backlogParams.Timeout = DefaultBacklogTimeout
	}
	return &RequestProcessor{
		limiter:         limiter,
		getBacklogSlots: getBacklogSlots,
		backlogTimeout:  backlogParams.Timeout,
	}, nil
}

// Process calls fn if the key is admitted by the limiter.
func (p *RequestProcessor) Process(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	allow, retryAfter, err := p.limiter.Allow(ctx, key)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if allow {
		return fn(ctx)
	}
	if p.getBacklogSlots == nil { // Backlogging is disabled.
		return &RejectedError{Key: key, RetryAfter: retryAfter}
	}
	return p.processBacklog(ctx, key, retryAfter, fn)
}

func (p *RequestProcessor) processBacklog(
	ctx context.Context, key string, retryAfter time.Duration, fn func(ctx context.Context) error,
) error {
	backlogSlots := p.getBacklogSlots(key)
	select {
	case backlogSlots <- struct{}{}:
	default:
		// There are no free slots in the backlog, reject the request immediately.
		return &RejectedError{Key: key, RetryAfter: retryAfter}
	}

	backlogged := true
	freeBacklogSlotIfNeeded := func() {
		if backlogged {
			<-backlogSlots
			backlogged = false
		}
	}
	defer freeBacklogSlotIfNeeded()

	backlogTimeoutTimer := time.NewTimer(p.backlogTimeout)
	defer backlogTimeoutTimer.Stop()

	retryTimer := time.NewTimer(retryAfter)
	defer retryTimer.Stop()

	for {
		select {
		case <-retryTimer.C:
			// Will do another check of the rate limit.
		case <-backlogTimeoutTimer.C:
			return &RejectedError{Key: key, RetryAfter: retryAfter, Backlogged: true}
		case <-ctx.Done():
			return ctx.Err()
		}

		allow, nextRetryAfter, err := p.limiter.Allow(ctx, key)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		if allow {
			freeBacklogSlotIfNeeded()
			return fn(ctx)
		}
		retryAfter = nextRetryAfter
		retryTimer.Reset(retryAfter)
	}
}

func newBacklogSlotsProvider(backlogLimit, maxKeys int) (backlogSlotsProvider, error) {
	if maxKeys == 0 {
		backlogSlots := make(chan struct{}, backlogLimit)
		return func(string) chan struct{} {
			return backlogSlots
		}, nil
	}
	keysZone, err := lru.New(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for backlog keys: %w", err)
	}
	return func(key string) chan struct{} {
		backlogSlots := make(chan struct{}, backlogLimit)
		if prev, found, _ := keysZone.PeekOrAdd(key, backlogSlots); found {
			return prev.(chan struct{})
		}
		return backlogSlots
	}, nil
}

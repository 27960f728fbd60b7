/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/service"
)

// DefaultPruneInterval is the default interval between two prunes of a limiter.
const DefaultPruneInterval = time.Minute

// NewPruneWorker returns a worker that periodically drops the keys of the limiter that no longer carry any state.
func NewPruneWorker(name string, pruner Pruner, interval time.Duration, logger log.FieldLogger) *service.PeriodicWorker {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	logger = logger.With(log.String("limiter", name))
	return service.NewPeriodicWorkerWithOpts(service.WorkerFunc(func(_ context.Context) error {
		if n := pruner.Prune(); n > 0 {
			logger.Debug("pruned idle rate limiting keys", log.Int("pruned", n))
		}
		return nil
	}), interval, logger, service.PeriodicWorkerOpts{InitialDelay: interval})
}

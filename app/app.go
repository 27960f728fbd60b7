/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package app wires the throttling components of the fleet application together:
// independent API and sign-in limiters, the rate limited API client, the sign-in guard,
// housekeeping workers and the metrics server.
package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-fleetguard/authguard"
	"github.com/acronis/go-fleetguard/httpclient"
	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/metricsserver"
	"github.com/acronis/go-fleetguard/ratelimit"
	"github.com/acronis/go-fleetguard/service"
)

// Names of the limiters, used in logs and metric labels.
const (
	APILimiterName  = "api"
	AuthLimiterName = "auth"
)

// WorkerStopTimeout bounds the graceful stop of housekeeping workers.
const WorkerStopTimeout = 5 * time.Second

// Opts contains optional parameters for constructing App.
type Opts struct {
	// Logger is used by all components. If it's nil, a logger is created from Config.Log
	// and closed on App.Close.
	Logger log.FieldLogger

	// Clock is the time source of the limiters. Useful for tests.
	Clock func() time.Time

	// Transport sends the requests of the API client, http.DefaultTransport clone by default.
	Transport http.RoundTripper

	// MetricsNamespace is prepended to the names of all metrics.
	MetricsNamespace string

	// Gatherer is exposed by the metrics server, prometheus.DefaultGatherer by default.
	Gatherer prometheus.Gatherer
}

// App holds the throttling components of the application.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type App struct {
	Logger        log.FieldLogger
	APILimiter    ratelimit.Limiter
	AuthLimiter   ratelimit.Limiter
	AuthGuard     *authguard.Guard
	APIClient     *http.Client
	MetricsServer *metricsserver.MetricsServer

	unit           *service.CompositeUnit
	limiterMetrics *ratelimit.PrometheusMetrics
	clientMetrics  *httpclient.PrometheusMetricsCollector
	closeLogger    log.CloseFunc
}

var _ service.Unit = (*App)(nil)
var _ service.MetricsRegisterer = (*App)(nil)

// New creates App with default options.
func New(cfg *Config, auth authguard.Authenticator) (*App, error) {
	return NewWithOpts(cfg, auth, Opts{})
}

// NewWithOpts creates App. The API and sign-in limiters are separate instances and share no state.
func NewWithOpts(cfg *Config, auth authguard.Authenticator, opts Opts) (*App, error) {
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}

	a := &App{Logger: opts.Logger}
	if a.Logger == nil {
		a.Logger, a.closeLogger = log.NewLogger(cfg.Log)
	}

	a.limiterMetrics = ratelimit.NewPrometheusMetricsWithOpts(ratelimit.PrometheusMetricsOpts{Namespace: opts.MetricsNamespace})
	a.clientMetrics = httpclient.NewPrometheusMetricsCollector(opts.MetricsNamespace)

	var units []service.Unit
	var err error
	if a.APILimiter, units, err = a.newLimiter(APILimiterName, cfg.APIThrottle, opts, units); err != nil {
		a.Close()
		return nil, err
	}
	if a.AuthLimiter, units, err = a.newLimiter(AuthLimiterName, cfg.AuthThrottle, opts, units); err != nil {
		a.Close()
		return nil, err
	}

	a.AuthGuard = authguard.NewWithOpts(a.AuthLimiter, auth, cfg.Auth.Opts(a.Logger))

	if a.APIClient, err = httpclient.NewWithOpts(cfg.APIClient, httpclient.Opts{
		Delegate: opts.Transport,
		Limiter:  a.APILimiter,
		Backlog: ratelimit.BacklogParams{
			Limit:   cfg.APIThrottle.Backlog.Limit,
			MaxKeys: cfg.APIThrottle.Backlog.MaxKeys,
			Timeout: cfg.APIThrottle.Backlog.Timeout,
		},
		Logger:    a.Logger,
		Collector: a.clientMetrics,
	}); err != nil {
		a.Close()
		return nil, fmt.Errorf("create API client: %w", err)
	}

	if cfg.MetricsServer.Enabled {
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		a.MetricsServer = metricsserver.NewWithGatherer(cfg.MetricsServer, a.Logger, gatherer)
		units = append(units, a.MetricsServer)
	}

	a.unit = service.NewCompositeUnit(units...)
	return a, nil
}

func (a *App) newLimiter(
	name string, cfg *ratelimit.Config, opts Opts, units []service.Unit,
) (ratelimit.Limiter, []service.Unit, error) {
	limOpts := []ratelimit.Option{ratelimit.WithMetrics(a.limiterMetrics.ForLimiter(name))}
	if opts.Clock != nil {
		limOpts = append(limOpts, ratelimit.WithClock(opts.Clock))
	}
	lim, err := ratelimit.NewLimiter(cfg, limOpts...)
	if err != nil {
		return nil, units, fmt.Errorf("create %s limiter: %w", name, err)
	}
	if cfg.PruneInterval > 0 {
		if pruner, ok := lim.(ratelimit.Pruner); ok {
			worker := ratelimit.NewPruneWorker(name, pruner, cfg.PruneInterval, a.Logger)
			units = append(units, service.NewWorkerUnitWithOpts(worker, service.WorkerUnitOpts{
				GracefulStopTimeout: WorkerStopTimeout,
			}))
		} else {
			a.Logger.Warn("limiter doesn't support pruning, prune interval is ignored",
				log.String("limiter", name), log.String("algorithm", cfg.Algorithm))
		}
	}
	return lim, units, nil
}

// Units returns the units run by App.
func (a *App) Units() []service.Unit {
	return a.unit.Units
}

// Start runs housekeeping workers and the metrics server. It blocks until all of them return.
func (a *App) Start(fatalErr chan<- error) {
	a.Logger.Info("starting throttling components...", log.Int("units", len(a.unit.Units)))
	a.unit.Start(fatalErr)
}

// Stop stops all units of App.
func (a *App) Stop(gracefully bool) error {
	return a.unit.Stop(gracefully)
}

// MustRegisterMetrics registers metrics of the limiters and the API client in the default Prometheus registry.
func (a *App) MustRegisterMetrics() {
	a.limiterMetrics.MustRegister()
	a.clientMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics of the limiters and the API client from the default Prometheus registry.
func (a *App) UnregisterMetrics() {
	a.limiterMetrics.Unregister()
	a.clientMetrics.Unregister()
}

// Close flushes and closes the logger created by App. It's a no-op if the logger was passed in Opts.
func (a *App) Close() {
	if a.closeLogger != nil {
		a.closeLogger()
		a.closeLogger = nil
	}
}

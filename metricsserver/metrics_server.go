/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package metricsserver provides an HTTP server that exposes Prometheus metrics of the rate limiters and the API client.
package metricsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/service"
)

// ShutdownTimeout is the maximum time of the graceful stop.
const ShutdownTimeout = 5 * time.Second

// MetricsServer represents HTTP server that exposes Prometheus metrics.
// It implements service.Unit interface.
type MetricsServer struct {
	URL            string
	HTTPServer     *http.Server
	httpServerDone chan struct{}
	started        atomic.Bool
	Logger         log.FieldLogger
}

var _ service.Unit = (*MetricsServer)(nil)

// New creates a new HTTP server that exposes metrics from the default Prometheus registry.
func New(cfg *Config, logger log.FieldLogger) *MetricsServer {
	return NewWithGatherer(cfg, logger, prometheus.DefaultGatherer)
}

// NewWithGatherer creates a new HTTP server that exposes metrics from the given gatherer.
func NewWithGatherer(cfg *Config, logger log.FieldLogger, gatherer prometheus.Gatherer) *MetricsServer {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Method(http.MethodGet, path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 5,
	}

	return &MetricsServer{
		URL:            "http://" + httpServer.Addr,
		HTTPServer:     httpServer,
		httpServerDone: make(chan struct{}),
		Logger:         logger,
	}
}

// Start starts metrics HTTP server in a blocking way. Supposed this methods will be called in a separate goroutine.
// If a fatal error occurs, it's sent into passed fatalError channel and should be processed outside.
func (s *MetricsServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))

	logger.Info("starting metrics HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("metrics HTTP server closed")
			return
		}
		logger.Error("metrics HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops metrics HTTP server.
func (s *MetricsServer) Stop(gracefully bool) error {
	s.Logger.Info("closing metrics HTTP server...", log.Bool("gracefully", gracefully))
	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("metrics HTTP server closing error", log.Error(err))
		return err
	}
	if s.started.Load() {
		<-s.httpServerDone // Wait closing of listener.
	}
	return nil
}

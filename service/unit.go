/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides the lifecycle primitives the throttling components are run with:
// units that are started and stopped together and workers that do periodic housekeeping.
package service

// Unit represents a component with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return immediately or block for the whole lifetime of the unit.
	// A failure is reported by writing exactly one error to fatalErr. The channel must not be used
	// after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}

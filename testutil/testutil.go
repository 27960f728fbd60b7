/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers for testing rate limiters and their metrics.
package testutil

type tHelper interface {
	Helper()
}

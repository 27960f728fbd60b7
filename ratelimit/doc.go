/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides client-side admission control for named callers.
//
// The central type is SlidingLogLimiter: for every identifier (an e-mail address of a user
// signing in, a category of API calls, etc.) it keeps the timestamps of admitted events and
// admits a new event only if fewer than maxRequests events happened within the trailing window.
// Rejected attempts are never recorded, so hammering a throttled identifier does not push
// its recovery time further out.
//
// Every limiter of the package implements the Limiter interface, so the callers (auth guard,
// API client round tripper, RequestProcessor) can be configured with any of the algorithms:
//   - sliding_log: exact sliding window (default)
//   - sliding_window: approximate sliding window over two fixed buckets
//   - leaky_bucket: GCRA
//   - token_bucket: classic token bucket
//
// Limiters are plain values owned by the composition layer. Two instances never share state.
package ratelimit

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/rs/xid"
)

// RequestIDHeader is an HTTP header name that contains the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// GenerateID generates a new request ID when there is no one in the request context.
	// By default, xid is used.
	GenerateID func() string
}

// RequestIDRoundTripper sets X-Request-ID header in all outgoing requests.
// The ID is taken from the request context (see NewContextWithRequestID) or generated.
type RequestIDRoundTripper struct {
	Delegate   http.RoundTripper
	generateID func() string
}

func newRequestID() string {
	return xid.New().String()
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) *RequestIDRoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support with options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) *RequestIDRoundTripper {
	if opts.GenerateID == nil {
		opts.GenerateID = newRequestID
	}
	return &RequestIDRoundTripper{Delegate: delegate, generateID: opts.GenerateID}
}

// RoundTrip adds X-Request-ID header to the request if it's missing.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := GetRequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = rt.generateID()
	}
	r = r.Clone(r.Context()) // Per RoundTripper contract.
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}

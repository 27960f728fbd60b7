/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTripper(t *testing.T) {
	var gotRequestID string
	delegate := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		gotRequestID = r.Header.Get(RequestIDHeader)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	roundTrip := func(t *testing.T, rt http.RoundTripper, req *http.Request) {
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	t.Run("from context", func(t *testing.T) {
		ctx := NewContextWithRequestID(context.Background(), "12345")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://fleet.local", nil)
		require.NoError(t, err)
		roundTrip(t, NewRequestIDRoundTripper(delegate), req)
		require.Equal(t, "12345", gotRequestID)
		require.Empty(t, req.Header.Get(RequestIDHeader), "original request must not be modified")
	})

	t.Run("generated", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://fleet.local", nil)
		require.NoError(t, err)
		roundTrip(t, NewRequestIDRoundTripper(delegate), req)
		_, err = xid.FromString(gotRequestID)
		require.NoError(t, err)
	})

	t.Run("custom generator", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://fleet.local", nil)
		require.NoError(t, err)
		rt := NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
			GenerateID: func() string { return "generated-id" },
		})
		roundTrip(t, rt, req)
		require.Equal(t, "generated-id", gotRequestID)
	})

	t.Run("header is kept", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://fleet.local", nil)
		require.NoError(t, err)
		req.Header.Set(RequestIDHeader, "from-caller")
		roundTrip(t, NewRequestIDRoundTripper(delegate), req)
		require.Equal(t, "from-caller", gotRequestID)
	})
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/log/logtest"
)

func TestLoggingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/missing" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	doGet := func(t *testing.T, rt http.RoundTripper, path string) {
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set(RequestIDHeader, "req-42")
		resp, err := (&http.Client{Transport: rt}).Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	t.Run("all mode", func(t *testing.T) {
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			Logger:     logger,
			Categorize: func(*http.Request) string { return "vehicles" },
		})
		doGet(t, rt, "/rest/v1/vehicles")

		entry, found := logger.FindEntry("client http request done")
		require.True(t, found)
		require.Equal(t, log.LevelInfo, entry.Level)
		method, _ := entry.StringField("method")
		require.Equal(t, http.MethodGet, method)
		category, _ := entry.StringField("category")
		require.Equal(t, "vehicles", category)
		requestID, _ := entry.StringField("request_id")
		require.Equal(t, "req-42", requestID)
		statusField, found := entry.FindField("status")
		require.True(t, found)
		require.EqualValues(t, http.StatusOK, statusField.Int)
	})

	t.Run("fast successful requests at debug level", func(t *testing.T) {
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			Logger:               logger,
			SlowRequestThreshold: time.Hour,
		})
		doGet(t, rt, "/rest/v1/vehicles")

		entry, found := logger.FindEntry("client http request done")
		require.True(t, found)
		require.Equal(t, log.LevelDebug, entry.Level)
	})

	t.Run("failed mode", func(t *testing.T) {
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			Logger: logger,
			Mode:   LoggingModeFailed,
		})
		doGet(t, rt, "/rest/v1/vehicles")
		require.Empty(t, logger.Entries())

		doGet(t, rt, "/rest/v1/missing")
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, log.LevelInfo, logger.Entries()[0].Level)
	})

	t.Run("none mode", func(t *testing.T) {
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			Logger: logger,
			Mode:   LoggingModeNone,
		})
		doGet(t, rt, "/rest/v1/missing")
		require.Empty(t, logger.Entries())
	})

	t.Run("logger from context", func(t *testing.T) {
		type ctxKey struct{}
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			LoggerProvider: func(ctx context.Context) log.FieldLogger {
				return ctx.Value(ctxKey{}).(log.FieldLogger)
			},
		})
		req, err := http.NewRequestWithContext(
			context.WithValue(context.Background(), ctxKey{}, logger), http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Len(t, logger.Entries(), 1)
	})
}

func TestLoggingRoundTripper_Errors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serverURL := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	logger := logtest.NewRecorder()
	rt := NewLoggingRoundTripper(http.DefaultTransport, logger)
	req, err := http.NewRequest(http.MethodPost, serverURL+"/rest/v1/trips", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req) //nolint:bodyclose
	require.Error(t, err)
	require.Nil(t, resp)

	entry, found := logger.FindEntry("client http request failed")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	_, found = entry.FindField("status")
	require.False(t, found)

	logger.Reset()
	rateLimitedRT := NewLoggingRoundTripper(roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, &RateLimitedError{Category: DefaultCategory, RetryAfter: time.Second}
	}), logger)
	_, err = rateLimitedRT.RoundTrip(req) //nolint:bodyclose
	require.ErrorIs(t, err, ErrRateLimited)
	entry, found = logger.FindEntry("client http request rejected by rate limiter")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
}

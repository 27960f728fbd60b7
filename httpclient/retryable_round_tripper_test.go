/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/log/logtest"
	"github.com/acronis/go-fleetguard/retry"
)

type reqInfo struct {
	method             string
	body               []byte
	retryAttemptHeader string
}

// fleetBackendStub responds with queued status codes and records received requests.
type fleetBackendStub struct {
	*httptest.Server
	mu         sync.Mutex
	reqInfos   []reqInfo
	respCodes  []int
	retryAfter string
}

func newFleetBackendStub() *fleetBackendStub {
	stub := &fleetBackendStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var reqBody []byte
		if r.Method != http.MethodGet {
			reqBody, _ = io.ReadAll(r.Body)
		}
		stub.mu.Lock()
		stub.reqInfos = append(stub.reqInfos, reqInfo{
			method:             r.Method,
			body:               reqBody,
			retryAttemptHeader: r.Header.Get(RetryAttemptNumberHeader),
		})
		respCode := http.StatusOK
		if len(stub.respCodes) > 0 {
			respCode = stub.respCodes[0]
			stub.respCodes = stub.respCodes[1:]
		}
		retryAfter := stub.retryAfter
		stub.mu.Unlock()

		if retryAfter != "" && respCode == http.StatusTooManyRequests {
			rw.Header().Set("Retry-After", retryAfter)
		}
		rw.WriteHeader(respCode)
		_, _ = rw.Write([]byte(`{"id":1}`))
	}))
	return stub
}

func (s *fleetBackendStub) Reset(respCodes []int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqInfos = nil
	s.respCodes = respCodes
	s.retryAfter = retryAfter
}

func (s *fleetBackendStub) ReqInfos() []reqInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]reqInfo, len(s.reqInfos))
	copy(res, s.reqInfos)
	return res
}

type countingRoundTripper struct {
	delegate http.RoundTripper
	mu       sync.Mutex
	reqsNum  int
}

func (rt *countingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.reqsNum++
	rt.mu.Unlock()
	return rt.delegate.RoundTrip(r)
}

type seekOp struct {
	offset int64
	whence int
}

type countableReadSeekCloser struct {
	io.ReadSeeker
	seekOps map[seekOp]int
}

func newCountableReadSeekCloser(rs io.ReadSeeker) *countableReadSeekCloser {
	return &countableReadSeekCloser{rs, make(map[seekOp]int)}
}

func (r *countableReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	r.seekOps[seekOp{offset, whence}]++
	return r.ReadSeeker.Seek(offset, whence)
}

func (r *countableReadSeekCloser) Close() error {
	if closer, ok := r.ReadSeeker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func repeatInt(val, n int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = val
	}
	return res
}

func makeReqInfos(method string, body []byte, n int) []reqInfo {
	res := make([]reqInfo, n)
	for i := range res {
		res[i] = reqInfo{method: method, body: body}
		if i > 0 {
			res[i].retryAttemptHeader = strconv.Itoa(i)
		}
	}
	return res
}

func TestRetryableRoundTripper_RoundTrip(t *testing.T) {
	backend := newFleetBackendStub()
	defer backend.Close()

	vehicleJSON := []byte(`{"plate":"AB-123","driver_id":42}`)
	fastPolicy := retry.NewConstantBackoffPolicy(10*time.Millisecond, 0)

	tests := []struct {
		name            string
		opts            RetryableRoundTripperOpts
		method          string
		ctx             context.Context
		bodyProvider    func() io.Reader
		respCodes       []int
		retryAfter      string
		wantReqsNum     int
		wantRespCode    int
		wantReqInfos    []reqInfo
		wantSeekOps     map[seekOp]int
		wantCloseErrMsg string
	}{
		{
			name:         "GET, retry on 503",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 5, BackoffPolicy: fastPolicy},
			method:       http.MethodGet,
			bodyProvider: func() io.Reader { return nil },
			respCodes:    repeatInt(http.StatusServiceUnavailable, 5),
			wantReqsNum:  6,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodGet, nil, 6),
		},
		{
			name: "PUT, unlimited attempts stopped by backoff policy",
			opts: RetryableRoundTripperOpts{
				MaxRetryAttempts: UnlimitedRetryAttempts,
				BackoffPolicy:    retry.NewExponentialBackoffPolicy(10*time.Millisecond, 2),
			},
			method:       http.MethodPut,
			bodyProvider: func() io.Reader { return bytes.NewReader(vehicleJSON) },
			respCodes:    repeatInt(http.StatusTooManyRequests, 3),
			wantReqsNum:  3,
			wantRespCode: http.StatusTooManyRequests,
			wantReqInfos: makeReqInfos(http.MethodPut, vehicleJSON, 3),
		},
		{
			name:         "POST, 429 is retried",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method:       http.MethodPost,
			bodyProvider: func() io.Reader { return bytes.NewReader(vehicleJSON) },
			respCodes:    repeatInt(http.StatusTooManyRequests, 2),
			wantReqsNum:  3,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodPost, vehicleJSON, 3),
		},
		{
			name:         "POST, 5xx is not retried",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method:       http.MethodPost,
			bodyProvider: func() io.Reader { return bytes.NewReader(vehicleJSON) },
			respCodes:    repeatInt(http.StatusBadGateway, 2),
			wantReqsNum:  1,
			wantRespCode: http.StatusBadGateway,
			wantReqInfos: makeReqInfos(http.MethodPost, vehicleJSON, 1),
		},
		{
			name:         "POST with idempotent hint, 5xx is retried",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method:       http.MethodPost,
			ctx:          NewContextWithIdempotentHint(context.Background(), true),
			bodyProvider: func() io.Reader { return bytes.NewReader(vehicleJSON) },
			respCodes:    repeatInt(http.StatusBadGateway, 2),
			wantReqsNum:  3,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodPost, vehicleJSON, 3),
		},
		{
			name:         "PATCH, max attempts exceeded",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 2, BackoffPolicy: fastPolicy},
			method:       http.MethodPatch,
			bodyProvider: func() io.Reader { return bytes.NewReader(vehicleJSON) },
			respCodes:    repeatInt(http.StatusTooManyRequests, 5),
			wantReqsNum:  3,
			wantRespCode: http.StatusTooManyRequests,
			wantReqInfos: makeReqInfos(http.MethodPatch, vehicleJSON, 3),
		},
		{
			name:         "POST, seekable body",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method:       http.MethodPost,
			bodyProvider: func() io.Reader { return newCountableReadSeekCloser(bytes.NewReader(vehicleJSON)) },
			respCodes:    repeatInt(http.StatusTooManyRequests, 3),
			wantReqsNum:  4,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodPost, vehicleJSON, 4),
			wantSeekOps:  map[seekOp]int{{0, io.SeekCurrent}: 1, {0, io.SeekStart}: 3},
		},
		{
			name:   "POST, seekable body with non-zero initial offset",
			opts:   RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method: http.MethodPost,
			bodyProvider: func() io.Reader {
				r := bytes.NewReader(vehicleJSON)
				_, _ = r.Seek(10, io.SeekStart)
				return newCountableReadSeekCloser(r)
			},
			respCodes:    repeatInt(http.StatusTooManyRequests, 2),
			wantReqsNum:  3,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodPost, vehicleJSON[10:], 3),
			wantSeekOps:  map[seekOp]int{{0, io.SeekCurrent}: 1, {10, io.SeekStart}: 2},
		},
		{
			name:   "POST, upload from file",
			opts:   RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method: http.MethodPost,
			bodyProvider: func() io.Reader {
				filePath := filepath.Join(t.TempDir(), "vehicles.json")
				require.NoError(t, os.WriteFile(filePath, vehicleJSON, 0o600))
				f, err := os.Open(filePath)
				require.NoError(t, err)
				return newCountableReadSeekCloser(f)
			},
			respCodes:       repeatInt(http.StatusTooManyRequests, 1),
			wantReqsNum:     2,
			wantRespCode:    http.StatusOK,
			wantReqInfos:    makeReqInfos(http.MethodPost, vehicleJSON, 2),
			wantSeekOps:     map[seekOp]int{{0, io.SeekCurrent}: 1, {0, io.SeekStart}: 1},
			wantCloseErrMsg: "file already closed",
		},
		{
			name:         "Retry-After is honored",
			opts:         RetryableRoundTripperOpts{MaxRetryAttempts: 3, BackoffPolicy: fastPolicy},
			method:       http.MethodGet,
			bodyProvider: func() io.Reader { return nil },
			respCodes:    repeatInt(http.StatusTooManyRequests, 1),
			retryAfter:   "0",
			wantReqsNum:  2,
			wantRespCode: http.StatusOK,
			wantReqInfos: makeReqInfos(http.MethodGet, nil, 2),
		},
		{
			name: "Retry-After exceeds the limit",
			opts: RetryableRoundTripperOpts{
				MaxRetryAttempts: 3,
				BackoffPolicy:    fastPolicy,
				MaxRetryAfter:    time.Minute,
			},
			method:       http.MethodGet,
			bodyProvider: func() io.Reader { return nil },
			respCodes:    repeatInt(http.StatusTooManyRequests, 1),
			retryAfter:   "3600",
			wantReqsNum:  1,
			wantRespCode: http.StatusTooManyRequests,
			wantReqInfos: makeReqInfos(http.MethodGet, nil, 1),
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			backend.Reset(tt.respCodes, tt.retryAfter)

			countingRT := &countingRoundTripper{delegate: http.DefaultTransport}
			retryableRT, err := NewRetryableRoundTripperWithOpts(countingRT, tt.opts)
			require.NoError(t, err)
			client := &http.Client{Transport: retryableRT, Timeout: 30 * time.Second}

			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			reqBody := tt.bodyProvider()
			req, err := http.NewRequestWithContext(ctx, tt.method, backend.URL+"/rest/v1/vehicles", reqBody)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			require.Equal(t, tt.wantRespCode, resp.StatusCode)
			require.NoError(t, resp.Body.Close())
			require.Equal(t, tt.wantReqsNum, countingRT.reqsNum)
			require.Equal(t, tt.wantReqInfos, backend.ReqInfos())

			if len(tt.wantSeekOps) > 0 {
				csr, ok := reqBody.(*countableReadSeekCloser)
				require.True(t, ok)
				require.Equal(t, tt.wantSeekOps, csr.seekOps)
			}
			if closer, ok := reqBody.(io.Closer); ok {
				closeErr := closer.Close()
				if tt.wantCloseErrMsg == "" {
					require.NoError(t, closeErr)
				} else {
					require.ErrorContains(t, closeErr, tt.wantCloseErrMsg)
				}
			}
		})
	}
}

func TestRetryableRoundTripper_DoesNotRetryLocalRateLimiting(t *testing.T) {
	calls := 0
	delegate := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, &RateLimitedError{Category: "api", RetryAfter: time.Second}
	})
	rt, err := NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
		BackoffPolicy: retry.NewConstantBackoffPolicy(time.Millisecond, 0),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://fleet.local/rest/v1/vehicles", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req) //nolint:bodyclose
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 1, calls)
}

func TestNewRetryableRoundTripper_Errors(t *testing.T) {
	_, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{MaxRetryAttempts: -2})
	require.EqualError(t, err, "incorrect max retry attempts")

	_, err = NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{MaxRetryAfter: -1})
	require.EqualError(t, err, "max retry after should not be negative")
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantOK     bool
		wantExact  time.Duration
		wantApprox bool
	}{
		{name: "empty value", header: ""},
		{name: "number of seconds", header: "600", wantOK: true, wantExact: 600 * time.Second},
		{name: "zero seconds", header: "0", wantOK: true},
		{name: "negative number of seconds", header: "-1"},
		{name: "malformed date", header: "Fri, 17 Some Malformed Date GMT"},
		{name: "date in the past", header: "Fri, 17 May 2013 23:00:00 GMT", wantOK: true},
		{name: "date in the future", header: "Fri, 17 May 2030 23:00:00 GMT", wantOK: true, wantApprox: true},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: make(http.Header)}
			resp.Header.Set("Retry-After", tt.header)
			retryAfter, ok := parseRetryAfterFromResponse(resp)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantApprox {
				at, err := http.ParseTime(tt.header)
				require.NoError(t, err)
				require.InDelta(t, float64(time.Until(at)), float64(retryAfter), float64(time.Second))
				return
			}
			require.Equal(t, tt.wantExact, retryAfter)
		})
	}
}

func TestCheckErrorIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(nil))
	srv.Config.Handler = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			srv.CloseClientConnections()
			return
		}
		time.Sleep(time.Second)
		_, _ = rw.Write([]byte("ok"))
	})
	defer srv.Close()

	tests := []struct {
		name          string
		method        string
		url           string
		timeout       time.Duration
		wantTempError bool
		wantErr       string
	}{
		{name: "invalid url", method: http.MethodGet, url: "invalid url", timeout: 3 * time.Second,
			wantErr: "unsupported protocol scheme"},
		{name: "request timeout", method: http.MethodGet, url: srv.URL, timeout: 100 * time.Millisecond,
			wantTempError: true, wantErr: "Client.Timeout exceeded"},
		{name: "EOF", method: http.MethodPost, url: srv.URL, timeout: 2 * time.Second,
			wantTempError: true, wantErr: "EOF"},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.url, nil)
			require.NoError(t, err)
			_, err = (&http.Client{Timeout: tt.timeout}).Do(req) //nolint:bodyclose
			require.ErrorContains(t, err, tt.wantErr)
			require.Equal(t, tt.wantTempError, CheckErrorIsTemporary(err))
		})
	}
}

func TestRetryableRoundTripper_RoundTrip_Logging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	type ctxKey string
	const ctxKeyLogger ctxKey = "logger"

	internalErr := errors.New("internal error")
	failingCheck := func(context.Context, *http.Request, *http.Response, error) (bool, error) {
		return false, internalErr
	}

	doRequestAndCheckLogs := func(t *testing.T, rt http.RoundTripper, req *http.Request, logRecorder *logtest.Recorder) {
		resp, err := (&http.Client{Transport: rt}).Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.NoError(t, resp.Body.Close())

		require.Len(t, logRecorder.Entries(), 1)
		require.Equal(t, "failed to check if retry is needed, 1 request(s) done", logRecorder.Entries()[0].Text)
		logField, found := logRecorder.Entries()[0].FindField("error")
		require.True(t, found)
		require.Equal(t, internalErr, logField.Any)
	}

	t.Run("logger", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			Logger:         logRecorder,
			CheckRetryFunc: failingCheck,
		})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		doRequestAndCheckLogs(t, rt, req, logRecorder)
	})

	t.Run("logger from context", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			LoggerProvider: func(ctx context.Context) log.FieldLogger {
				return ctx.Value(ctxKeyLogger).(log.FieldLogger)
			},
			CheckRetryFunc: failingCheck,
		})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		req = req.WithContext(context.WithValue(req.Context(), ctxKeyLogger, logRecorder))
		doRequestAndCheckLogs(t, rt, req, logRecorder)
	})
}

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

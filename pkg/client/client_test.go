package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pessolato/randmicroservice/pkg/logging"
	"github.com/pessolato/randmicroservice/pkg/server"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		body    string
		want    byte
		wantErr bool
	}{
		{body: "0", want: 0},
		{body: "7", want: 7},
		{body: "255", want: 255},
		{body: "256", wantErr: true},
		{body: "-1", wantErr: true},
		{body: "", wantErr: true},
		{body: "12\n", wantErr: true},
		{body: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got, err := ParseValue([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewHTTPClientInvalidVersion(t *testing.T) {
	_, err := NewHTTPClient(HttpVersion(9), 0)
	require.Error(t, err)

	for _, v := range []HttpVersion{HTTP1, HTTP2} {
		c, err := NewHTTPClient(v, time.Second)
		require.NoError(t, err)
		assert.NotNil(t, c)
	}
}

func newRandServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(server.NewRandHandler(logging.New(io.Discard, logging.DefaultLevel)))
	t.Cleanup(srv.Close)
	return srv
}

func TestSamplingClientRun(t *testing.T) {
	srv := newRandServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c, err := NewSamplingClient(req, logger, HTTP1, 5*time.Second)
	require.NoError(t, err)

	const n = 200
	require.NoError(t, c.Run(context.Background(), n, 4, c.LogErr))

	completions := 0
	scn := bufio.NewScanner(&buf)
	for scn.Scan() {
		var e struct {
			Msg     string `json:"msg"`
			Value   *int   `json:"value"`
			ReqUUID string `json:"req_uuid"`
		}
		require.NoError(t, json.Unmarshal(scn.Bytes(), &e))
		if e.Msg != "req completion" {
			continue
		}
		completions++
		require.NotNil(t, e.Value)
		assert.GreaterOrEqual(t, *e.Value, 0)
		assert.LessOrEqual(t, *e.Value, 255)
		assert.NotEmpty(t, e.ReqUUID)
	}
	require.NoError(t, scn.Err())
	assert.Equal(t, n, completions)
}

func TestSamplingClientRejectsBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		io.WriteString(w, "not a byte")
	}))
	defer srv.Close()

	for _, path := range []string{"/status", "/body"} {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		c, err := NewSamplingClient(req, slog.New(slog.NewJSONHandler(io.Discard, nil)), HTTP1, 5*time.Second)
		require.NoError(t, err)

		_, err = c.Sample(context.Background(), "uuid")
		require.Error(t, err, path)
	}
}

func TestSamplingClientAborts(t *testing.T) {
	srv := newRandServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	c, err := NewSamplingClient(req, slog.New(slog.NewJSONHandler(io.Discard, nil)), HTTP1, 5*time.Second)
	require.NoError(t, err)

	errAbort := errors.New("abort")
	var calls atomic.Int64
	err = c.Run(context.Background(), 1000, 2, func(reqUuid string, err error) error {
		if calls.Add(1) == 10 {
			return errAbort
		}
		return nil
	})
	require.ErrorIs(t, err, errAbort)
	assert.Less(t, calls.Load(), int64(1000))
}

func TestSamplingClientWaitReady(t *testing.T) {
	var calls atomic.Int64
	randHandler := server.NewRandHandler(logging.New(io.Discard, logging.DefaultLevel))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		randHandler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	c, err := NewSamplingClient(req, slog.New(slog.NewJSONHandler(&buf, nil)), HTTP1, time.Second)
	require.NoError(t, err)

	require.NoError(t, c.WaitReady(context.Background(), 10*time.Millisecond, 5*time.Second))
	assert.EqualValues(t, 4, calls.Load())
	assert.NotContains(t, buf.String(), "req completion")
	assert.NotContains(t, buf.String(), "req failed")
}

func TestSamplingClientWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	c, err := NewSamplingClient(req, slog.New(slog.NewJSONHandler(io.Discard, nil)), HTTP1, time.Second)
	require.NoError(t, err)

	err = c.WaitReady(context.Background(), 10*time.Millisecond, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target not ready")
}

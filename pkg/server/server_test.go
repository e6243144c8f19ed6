package server

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pessolato/randmicroservice/pkg/logging"
	"github.com/pessolato/randmicroservice/pkg/stats"
)

var byteBody = regexp.MustCompile(`^([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])$`)

func TestRandHandlerAnyRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   io.Reader
		header http.Header
	}{
		{name: "Root GET", method: http.MethodGet, target: "/"},
		{name: "Nested Path", method: http.MethodGet, target: "/a/b/c?x=1"},
		{name: "POST With Body", method: http.MethodPost, target: "/upload", body: strings.NewReader("payload")},
		{name: "DELETE", method: http.MethodDelete, target: "/thing/42"},
		{name: "Custom Headers", method: http.MethodPut, target: "/", header: http.Header{"X-Test": {"1"}, "Accept": {"application/json"}}},
		{name: "HEAD", method: http.MethodHead, target: "/"},
	}

	h := NewRandHandler(logging.New(io.Discard, logging.LevelTrace))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, tt.body)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Regexp(t, byteBody, rec.Body.String())
		})
	}
}

func TestRandHandlerLogsValue(t *testing.T) {
	var buf bytes.Buffer
	h := NewRandHandler(logging.New(&buf, logging.LevelTrace))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, `msg="incoming request"`)
	assert.Contains(t, out, "value="+rec.Body.String())
}

func TestRandHandlerUniform(t *testing.T) {
	h := NewRandHandler(logging.New(io.Discard, logging.DefaultLevel))

	var hist stats.Histogram
	for range 10000 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		v, err := strconv.ParseUint(rec.Body.String(), 10, 8)
		require.NoError(t, err)
		hist.Add(byte(v))
	}

	assert.True(t, hist.IsUniform(stats.Z9999), "chi-square %.2f", hist.ChiSquare())
}

func TestRandHandlerConcurrent(t *testing.T) {
	srv := httptest.NewServer(NewRandHandler(logging.New(io.Discard, logging.DefaultLevel)))
	defer srv.Close()

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				resp, err := srv.Client().Get(srv.URL + "/anything")
				if err != nil {
					errs <- err
					continue
				}
				b, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				if err != nil {
					errs <- err
					continue
				}
				if resp.StatusCode != http.StatusOK || !byteBody.Match(b) {
					errs <- &unexpectedResponse{status: resp.StatusCode, body: string(b)}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

type unexpectedResponse struct {
	status int
	body   string
}

func (e *unexpectedResponse) Error() string {
	return "unexpected response " + strconv.Itoa(e.status) + ": " + e.body
}

func TestListenAndServeRandBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := netip.MustParseAddrPort(ln.Addr().String())
	err = ListenAndServeRand(addr, logging.New(io.Discard, logging.DefaultLevel))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

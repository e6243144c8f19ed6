package client

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"sync"
	"time"
)

// HttpVersion represents the HTTP protocol version to use in the client.
type HttpVersion uint8

const (
	// HTTP1 represents HTTP/1.x protocol.
	HTTP1 HttpVersion = iota + 1
	// HTTP2 represents HTTP/2 protocol.
	HTTP2 HttpVersion = iota + 1

	UuidLogField  = "req_uuid"
	ValueLogField = "value"

	// maxBodySize bounds how much of a response is read; a decimal byte
	// takes at most 3 characters.
	maxBodySize = 16
)

// ErrorHandler defines a function type to handle errors.
//
// Returning a non-nil error aborts the sampling run.
type ErrorHandler func(reqUuid string, err error) error

// Sample is the outcome of a single request.
type Sample struct {
	Value      byte
	StatusCode int
	Elapsed    time.Duration
}

// SamplingClient is an HTTP client that repeatedly requests random bytes
// and logs each value together with timing information.
type SamplingClient struct {
	c      *http.Client  // underlying HTTP client
	req    *http.Request // base HTTP request to clone and send
	logger *slog.Logger  // logger for request tracing, values and timing
}

// NewSamplingClient creates a new SamplingClient with the given request, logger, and HTTP version.
//
//	req: base HTTP request to use for each repeated request
//	logger: logger for tracing, values and timing
//	httpV: HTTP protocol version to use
//	timeout: limit for each request, zero means no limit
func NewSamplingClient(req *http.Request, logger *slog.Logger, httpV HttpVersion, timeout time.Duration) (*SamplingClient, error) {
	c, err := NewHTTPClient(httpV, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create underlying HTTP client: %w", err)
	}
	return &SamplingClient{c, req, logger}, nil
}

// Run sends the request n times spread over the given number of
// concurrent workers and logs one "req completion" entry per successful
// sample.
//
// Use the [ErrorHandler] parameter to define what errors should cause it to abort.
// The first aborting error is returned.
func (c *SamplingClient) Run(ctx context.Context, n, concurrency int, eh ErrorHandler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan struct{})
	var (
		wg       sync.WaitGroup
		once     sync.Once
		abortErr error
	)
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				reqUuid := rand.Text()
				s, err := c.Sample(ctx, reqUuid)
				if err := eh(reqUuid, err); err != nil {
					once.Do(func() {
						abortErr = err
						cancel()
					})
					continue
				}
				if err != nil {
					continue
				}
				c.logger.Info("req completion",
					ValueLogField, s.Value,
					"status_code", s.StatusCode,
					"max_time_nano", s.Elapsed.Nanoseconds(),
					UuidLogField, reqUuid,
				)
			}
		}()
	}

feed:
	for range n {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- struct{}{}:
		}
	}
	close(jobs)
	wg.Wait()

	if abortErr != nil {
		return abortErr
	}
	return context.Cause(ctx)
}

// WaitReady polls the target every interval until one request yields a
// sample or timeout elapses. Polling requests are not logged as samples.
func (c *SamplingClient) WaitReady(ctx context.Context, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		_, err := c.Sample(ctx, "ready-"+rand.Text())
		if err == nil {
			return nil
		}
		c.logger.Debug("target not ready", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("target not ready after %s: %w", timeout, err)
		case <-tick.C:
		}
	}
}

// Sample performs one request and parses the returned byte.
func (c *SamplingClient) Sample(ctx context.Context, reqUuid string) (Sample, error) {
	req := AddTraceToRequest(reqUuid, c.req.Clone(ctx), c.logger)

	t1 := time.Now()
	resp, err := c.c.Do(req)
	if err != nil {
		return Sample{}, err
	}
	body, err := ReadCloseBody(resp)
	elapsed := time.Since(t1)
	if err != nil {
		return Sample{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Sample{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	v, err := ParseValue(body)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Value: v, StatusCode: resp.StatusCode, Elapsed: elapsed}, nil
}

// LogErr logs the error with the logger set at the client adding the request UUID information.
func (c *SamplingClient) LogErr(reqUuid string, err error) error {
	if err != nil {
		c.logger.Error("req failed", "error", err, UuidLogField, reqUuid)
	}
	return nil
}

// ParseValue parses a response body holding a decimal byte.
func ParseValue(body []byte) (byte, error) {
	v, err := strconv.ParseUint(string(body), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("body %q is not a byte value: %w", body, err)
	}
	return byte(v), nil
}

// NewHTTPClient creates a new *http.Client configured for the specified HTTP version.
//
//	httpV: HTTP protocol version to use
//	timeout: limit for each request, zero means no limit
//
// Returns a pointer to http.Client or an error if the version is invalid.
func NewHTTPClient(httpV HttpVersion, timeout time.Duration) (*http.Client, error) {
	protos := &http.Protocols{}
	switch httpV {
	case HTTP1:
		protos.SetHTTP1(true)
	case HTTP2:
		// The server speaks cleartext HTTP/2 only with prior knowledge.
		protos.SetUnencryptedHTTP2(true)
	default:
		return nil, fmt.Errorf("invalid HTTP version: %d", httpV)
	}

	transp := &http.Transport{
		Protocols: protos,
	}

	client := http.Client{
		Transport: transp,
		Timeout:   timeout,
	}

	return &client, nil
}

// AddTraceToRequest adds HTTP tracing to the given request for logging connection events.
//
//	reqUuid: unique identifier for the request
//	req: HTTP request to add tracing to
//	logger: logger for trace events
//
// Returns a new *http.Request with tracing enabled.
func AddTraceToRequest(reqUuid string, req *http.Request, logger *slog.Logger) *http.Request {
	return req.WithContext(httptrace.WithClientTrace(req.Context(), &httptrace.ClientTrace{
		GotConn: func(gci httptrace.GotConnInfo) {
			logger.Debug("got conn", "reused", gci.Reused, UuidLogField, reqUuid)
		},
		GotFirstResponseByte: func() {
			logger.Debug("ttfb", UuidLogField, reqUuid)
		},
		ConnectDone: func(network, addr string, err error) {
			if err != nil {
				logger.Error("connect done", "network", network, "addr", addr, "error", err, UuidLogField, reqUuid)
				return
			}
			logger.Debug("connect done", "network", network, "addr", addr, UuidLogField, reqUuid)
		},
		TLSHandshakeDone: func(cs tls.ConnectionState, err error) {
			if err != nil {
				logger.Error("tls handshake done", "error", err, "server", cs.ServerName, UuidLogField, reqUuid)
			}
		},
	}))
}

// ReadCloseBody reads a bounded amount of the response body, discards
// the rest and closes it.
func ReadCloseBody(resp *http.Response) ([]byte, error) {
	if resp == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	_, drainErr := io.Copy(io.Discard, resp.Body)
	return b, errors.Join(err, drainErr, resp.Body.Close())
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. Each call is attempted exactly once.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// NewHTTPClient builds a client whose transport emits OpenTelemetry spans.
func NewHTTPClient(timeout time.Duration, breaker *Breaker) HTTPClient {
	return HTTPClient{
		Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker: breaker,
		Timeout: timeout,
	}
}

// Do sends req once. ErrOpenCircuit is returned without a network call while
// the breaker is open. Responses with status >= 500 count as breaker failures
// but are still returned to the caller.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		return nil, ErrOpenCircuit
	}
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		cl.report(ctx, false)
		return nil, fmt.Errorf("http %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	cl.report(ctx, resp.StatusCode < 500)
	// the deadline must outlive Do so the caller can read the body
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) report(ctx context.Context, success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, success)
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

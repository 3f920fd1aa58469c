package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps an http.Client with retry, per-attempt timeout and
// circuit-breaker logic. Request bodies are buffered so attempts can be
// replayed.
type Client struct {
	HTTP        *http.Client
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Timeout     time.Duration
}

// Do executes the request applying retry semantics. A response with a 5xx
// status counts as a failed attempt; 4xx responses are returned to the caller
// unretried since they signal a request problem, not a downstream outage.
func (cl Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.HTTP == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow() {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.doOnce(ctx, req, body)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			cl.report(true)
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("resilience: upstream returned %s", resp.Status)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		cl.report(false)
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl Client) doOnce(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if cl.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	attempt := req.Clone(attemptCtx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
		attempt.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	resp, err := cl.HTTP.Do(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	// the cancel func must outlive the body read
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl Client) report(success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(success)
	}
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
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

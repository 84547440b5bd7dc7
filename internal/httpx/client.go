// Package httpx wraps net/http with the retry policy spec §5 and §7 assign
// to "the HTTP layer": exponential backoff with jitter, retrying 429/503
// and connection-level errors, never retrying any other 4xx. Grounded on
// the teacher's plain http.Client-with-timeout adapters (internal/jira,
// internal/gitlab), with cenkalti/backoff/v4 added for the retry loop the
// teacher's adapters never needed at beads' scale but this spec requires.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client issues authenticated, retried HTTP requests. Adapters build one
// per platform with the appropriate AuthFunc.
type Client struct {
	HTTP      *http.Client
	AuthFunc  func(*http.Request)
	UserAgent string
	MaxElapsed time.Duration
}

// New returns a Client with spec §5's default timeout and retry budget.
func New(authFunc func(*http.Request), userAgent string) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		AuthFunc:   authFunc,
		UserAgent:  userAgent,
		MaxElapsed: 2 * time.Minute,
	}
}

// RetryableStatus reports whether a response status should be retried.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// permanentHTTPError wraps a non-retryable HTTP response so backoff.Permanent
// stops the retry loop immediately instead of burning the elapsed budget.
type permanentHTTPError struct {
	StatusCode int
	Body       string
}

func (e *permanentHTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status code from an error returned by Do for
// a non-retryable response, or 0 for any other error (including a 429/503
// that exhausted its retries).
func StatusCode(err error) int {
	var perm *permanentHTTPError
	if asPermanent(err, &perm) {
		return perm.StatusCode
	}
	return 0
}

func asPermanent(err error, target **permanentHTTPError) bool {
	for err != nil {
		if p, ok := err.(*permanentHTTPError); ok {
			*target = p
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Do executes method/url with body (nil for none), retrying transient
// failures (429, 503, network errors) with exponential backoff and jitter
// up to MaxElapsed. It returns the response body for a 2xx; any other
// status ends with a nil body and an error carrying that status.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var respBody []byte
	var statusCode int

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		if c.AuthFunc != nil {
			c.AuthFunc(req)
		}
		req.Header.Set("Accept", "application/json")
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err // network error: retryable
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		statusCode = resp.StatusCode

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			respBody = data
			return nil
		}
		if RetryableStatus(resp.StatusCode) {
			return fmt.Errorf("retryable status %d", resp.StatusCode)
		}
		return backoff.Permanent(&permanentHTTPError{StatusCode: resp.StatusCode, Body: string(data)})
	}

	bo := backoff.WithContext(backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), c.MaxElapsed), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, statusCode, err
	}
	return respBody, statusCode, nil
}

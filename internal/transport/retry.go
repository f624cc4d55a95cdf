// Package transport provides the shared outbound HTTP client used by the
// time oracle, the quote source, and the publish verifier.
package transport

import (
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DefaultRetryStatuses are the transient statuses retried by every policy.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy configures status-based retries.
//
// Connection-level errors are never retried here; only responses whose
// status is listed in Statuses are.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; it doubles per attempt
	InitialDelay time.Duration

	// MaxDelay caps a single wait, including waits requested via Retry-After
	MaxDelay time.Duration

	// Statuses lists retryable response codes
	Statuses []int
}

// OraclePolicy is the policy used for time and quote sources.
func OraclePolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Statuses:     DefaultRetryStatuses,
	}
}

// PublishPolicy is the lighter policy used for operator-supplied URLs.
func PublishPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Statuses:     DefaultRetryStatuses,
	}
}

func (p RetryPolicy) retryable(status int) bool {
	return slices.Contains(p.Statuses, status)
}

// RetryObserver is notified before each retry.
type RetryObserver func(req *http.Request, status int)

// RetryTransport wraps a RoundTripper with status-based exponential backoff.
//
// When every attempt returns a retryable status, the final response is
// handed back to the caller unchanged so it can record the status.
type RetryTransport struct {
	Base    http.RoundTripper
	Policy  RetryPolicy
	Logger  *zap.Logger
	OnRetry RetryObserver
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Bodies that cannot be replayed get exactly one attempt.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return base.RoundTrip(req)
	}

	attempts := t.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.Policy.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if t.Policy.MaxDelay > 0 {
		b.MaxInterval = t.Policy.MaxDelay
	}

	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		resp, err := base.RoundTrip(r)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !t.Policy.retryable(resp.StatusCode) || attempt >= attempts {
			return resp, nil
		}

		status := resp.StatusCode
		wait := t.retryAfter(resp)
		drain(resp)

		if t.Logger != nil {
			t.Logger.Debug("retrying request",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("status", status),
				zap.Int("attempt", attempt))
		}
		if t.OnRetry != nil {
			t.OnRetry(req, status)
		}
		if wait > 0 {
			return nil, backoff.RetryAfter(wait)
		}
		return nil, &StatusError{Code: status}
	}

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	)
}

// retryAfter returns the server-requested wait in whole seconds when it is
// present and within MaxDelay, else 0.
func (t *RetryTransport) retryAfter(resp *http.Response) int {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	if t.Policy.MaxDelay > 0 && time.Duration(secs)*time.Second > t.Policy.MaxDelay {
		return 0
	}
	return secs
}

// StatusError reports a retryable status seen between attempts.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "retryable status " + strconv.Itoa(e.Code)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

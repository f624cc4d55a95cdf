package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoDateHeader indicates neither probe step returned a Date header.
var ErrNoDateHeader = errors.New("response has no Date header")

// ProbeOptions bounds the two steps of a header probe.
type ProbeOptions struct {
	HeadTimeout time.Duration
	GetTimeout  time.Duration

	// GetOnHeadError makes a transport error on HEAD fall through to GET
	// instead of ending the probe.
	GetOnHeadError bool
}

// ProbeResult is what a header probe observed at its final step.
type ProbeResult struct {
	// Method is the method of the request that produced this result
	Method string

	// StatusCode is the final status after redirects
	StatusCode int

	// FinalURL is the URL after redirects
	FinalURL string

	// Header is the final response's header set
	Header http.Header

	// HeadOutcome records why HEAD was not accepted, empty if it was
	HeadOutcome string
}

// Date returns the raw Date header, or "".
func (r *ProbeResult) Date() string {
	return r.Header.Get("Date")
}

type probeState int

const (
	stateHead probeState = iota
	stateInspect
	stateGet
	stateDone
)

// Probe fetches response headers for url.
//
// It runs a fixed state machine: HEAD, then inspect; when HEAD returned an
// error status (>= 400) or no Date header, a GET is issued and its headers
// are kept without reading the body. Redirects are followed by the client.
func Probe(ctx context.Context, client *http.Client, url string, opts ProbeOptions) (*ProbeResult, error) {
	var (
		result  *ProbeResult
		headErr error
	)

	state := stateHead
	for state != stateDone {
		switch state {
		case stateHead:
			result, headErr = fetchHeaders(ctx, client, http.MethodHead, url, opts.HeadTimeout)
			state = stateInspect

		case stateInspect:
			switch {
			case headErr != nil && !opts.GetOnHeadError:
				return nil, headErr
			case headErr != nil:
				result = &ProbeResult{HeadOutcome: "HEAD failed: " + headErr.Error()}
				state = stateGet
			case result.StatusCode >= 400:
				result.HeadOutcome = fmt.Sprintf("HEAD returned status %d", result.StatusCode)
				state = stateGet
			case result.Date() == "":
				result.HeadOutcome = "HEAD returned no Date header"
				state = stateGet
			default:
				state = stateDone
			}

		case stateGet:
			outcome := result.HeadOutcome
			got, err := fetchHeaders(ctx, client, http.MethodGet, url, opts.GetTimeout)
			if err != nil {
				return nil, err
			}
			got.HeadOutcome = outcome
			result = got
			state = stateDone
		}
	}

	return result, nil
}

// fetchHeaders issues one request and closes the body unread.
func fetchHeaders(ctx context.Context, client *http.Client, method, url string, timeout time.Duration) (*ProbeResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	return &ProbeResult{
		Method:     method,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
	}, nil
}

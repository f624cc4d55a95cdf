// Package publish probes operator-supplied publication URLs for HTTP
// metadata that corroborates when an artifact was made public.
package publish

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/open-verix/timeproof/internal/fanout"
	"github.com/open-verix/timeproof/internal/transport"
)

const (
	// DefaultHeadTimeout bounds the HEAD step of one probe.
	DefaultHeadTimeout = 8 * time.Second

	// DefaultGetTimeout bounds the GET fallback of one probe.
	DefaultGetTimeout = 10 * time.Second
)

// Check is the outcome of probing one URL. Every field is always present in
// the serialized form; absent values are null.
type Check struct {
	URL           string  `json:"url"`
	StatusCode    *int    `json:"status_code"`
	FinalURL      *string `json:"final_url"`
	HTTPDate      *string `json:"http_date"`
	ContentType   *string `json:"content_type"`
	ContentLength *int64  `json:"content_length"`

	// Method is the request method whose response was recorded
	Method *string `json:"method"`

	// HeadOutcome explains why the HEAD response was not used
	HeadOutcome *string `json:"head_outcome"`

	Error *string `json:"error"`
}

// OK reports whether the probe produced a response.
func (c Check) OK() bool {
	return c.Error == nil && c.StatusCode != nil
}

// Options configures a Verifier.
type Options struct {
	HeadTimeout time.Duration
	GetTimeout  time.Duration

	// Concurrency is the number of URLs probed at once; <= 1 is sequential
	Concurrency int

	Logger *zap.Logger
}

// Verifier probes publish URLs with an injected client.
type Verifier struct {
	client *http.Client
	opts   Options
}

// NewVerifier creates a Verifier. client should carry the lighter publish
// retry policy.
func NewVerifier(client *http.Client, opts Options) *Verifier {
	if opts.HeadTimeout <= 0 {
		opts.HeadTimeout = DefaultHeadTimeout
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = DefaultGetTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Verifier{client: client, opts: opts}
}

// Check probes one URL. Failures are captured in the returned Check.
func (v *Verifier) Check(ctx context.Context, url string) Check {
	check := Check{URL: url}

	res, err := transport.Probe(ctx, v.client, url, transport.ProbeOptions{
		HeadTimeout:    v.opts.HeadTimeout,
		GetTimeout:     v.opts.GetTimeout,
		GetOnHeadError: true,
	})
	if err != nil {
		msg := err.Error()
		check.Error = &msg
		v.opts.Logger.Warn("publish probe failed", zap.String("url", url), zap.Error(err))
		return check
	}

	status := res.StatusCode
	check.StatusCode = &status
	check.FinalURL = &res.FinalURL
	check.Method = &res.Method
	check.HTTPDate = header(res.Header, "Date")
	check.ContentType = header(res.Header, "Content-Type")
	if cl := res.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			check.ContentLength = &n
		}
	}
	if res.HeadOutcome != "" {
		outcome := res.HeadOutcome
		check.HeadOutcome = &outcome
	}

	v.opts.Logger.Debug("publish probe complete",
		zap.String("url", url),
		zap.Int("status", status),
		zap.String("method", res.Method))
	return check
}

// CheckAll probes every URL and returns one Check per URL in input order.
// An empty list yields an empty, non-nil slice without any network calls.
func (v *Verifier) CheckAll(ctx context.Context, urls []string) []Check {
	if len(urls) == 0 {
		return []Check{}
	}
	return fanout.Map(ctx, v.opts.Concurrency, urls, v.Check)
}

func header(h http.Header, key string) *string {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// Package oracle implements ordered fallback chains over external data
// sources.
//
// A Chain tries its endpoints in order and returns the first structurally
// valid answer. Every failure along the way is kept, in order, so callers
// can persist the full provenance of an attestation whether or not any
// source answered. Chains never return Go errors for source failures.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/open-verix/timeproof/internal/transport"
)

// Kind tags how a source's reply is fetched and interpreted.
type Kind string

const (
	// KindJSON is a GET returning a JSON object
	KindJSON Kind = "json"

	// KindCSV is a GET returning a small CSV document
	KindCSV Kind = "csv"

	// KindHTTPDate derives the answer from the Date response header
	KindHTTPDate Kind = "http-date"
)

const (
	// DefaultTimeout bounds one source call, all retries included.
	DefaultTimeout = 8 * time.Second

	// DefaultHeadTimeout bounds the HEAD step of an http-date probe.
	DefaultHeadTimeout = 6 * time.Second

	maxJSONBody = 1 << 20
	maxCSVBody  = 64 << 10
)

// Source is one endpoint in a chain.
type Source struct {
	// Name identifies the source in failure lists and metrics
	Name string `json:"name"`

	// URL is the endpoint to call
	URL string `json:"url"`

	// Kind selects the fetch strategy
	Kind Kind `json:"kind"`

	// Adapter names the provider-specific mapping for structured kinds
	Adapter string `json:"adapter,omitempty"`

	// Timeout bounds the call; DefaultTimeout when zero
	Timeout time.Duration `json:"timeout,omitempty"`
}

func (s Source) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// Response is the raw reply of one source. Which fields are set depends on
// Kind: Fields for KindJSON, Body for KindCSV, Date for KindHTTPDate.
type Response struct {
	Kind       Kind
	URL        string
	StatusCode int
	Fields     map[string]any
	Body       []byte
	Date       string
}

// Adapter maps a raw Response to a canonical attestation.
type Adapter[T any] func(src Source, resp *Response) (T, error)

// Endpoint pairs a Source with the adapter that reads its replies.
type Endpoint[T any] struct {
	Source
	Adapt Adapter[T]
}

// Failure records why one source did not answer.
type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

func (f Failure) String() string {
	return f.Source + ": " + f.Error
}

// Result is the outcome of resolving a chain.
type Result[T any] struct {
	// Value is the first successful answer; zero when OK is false
	Value T

	// Source names the endpoint that answered
	Source string

	// OK reports whether any endpoint answered
	OK bool

	// Failures lists every failed endpoint in chain order
	Failures []Failure
}

// Err returns nil on success, otherwise an error listing every failure.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = f.String()
	}
	return fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(parts, "; "))
}

// Observer is told the outcome of every endpoint attempt; err is nil on success.
type Observer func(chain, source string, err error)

// Option configures a chain.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	observer Observer
}

// WithLogger logs per-source failures at warn level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver reports every attempt, e.g. to metrics.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Chain is an ordered list of endpoints resolved first-success-wins.
type Chain[T any] struct {
	name      string
	client    *http.Client
	endpoints []Endpoint[T]
	opts      options
}

// NewChain creates a chain named name over endpoints, in order.
func NewChain[T any](name string, client *http.Client, endpoints []Endpoint[T], opts ...Option) *Chain[T] {
	return &Chain[T]{
		name:      name,
		client:    client,
		endpoints: endpoints,
		opts:      buildOptions(opts),
	}
}

// Resolve calls each endpoint in order until one yields a valid value.
func (c *Chain[T]) Resolve(ctx context.Context) Result[T] {
	var failures []Failure

	for _, ep := range c.endpoints {
		value, err := c.attempt(ctx, ep)
		if c.opts.observer != nil {
			c.opts.observer(c.name, ep.Name, err)
		}
		if err != nil {
			failures = append(failures, Failure{Source: ep.Name, Error: err.Error()})
			c.opts.logger.Warn("source failed",
				zap.String("chain", c.name),
				zap.String("source", ep.Name),
				zap.Error(err))
			continue
		}
		return Result[T]{Value: value, Source: ep.Name, OK: true, Failures: failures}
	}

	return Result[T]{Failures: failures}
}

func (c *Chain[T]) attempt(ctx context.Context, ep Endpoint[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if ep.Adapt == nil {
		return zero, fmt.Errorf("source %s has no adapter", ep.Name)
	}
	resp, err := Fetch(ctx, c.client, ep.Source)
	if err != nil {
		return zero, err
	}
	return ep.Adapt(ep.Source, resp)
}

// Fetch performs the kind-specific call for src and returns its raw reply.
func Fetch(ctx context.Context, client *http.Client, src Source) (*Response, error) {
	switch src.Kind {
	case KindJSON:
		body, resp, err := get(ctx, client, src, maxJSONBody)
		if err != nil {
			return nil, err
		}
		fields := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedResponse, err)
		}
		resp.Fields = fields
		return resp, nil

	case KindCSV:
		body, resp, err := get(ctx, client, src, maxCSVBody)
		if err != nil {
			return nil, err
		}
		resp.Body = body
		return resp, nil

	case KindHTTPDate:
		res, err := transport.Probe(ctx, client, src.URL, transport.ProbeOptions{
			HeadTimeout: min(src.timeout(), DefaultHeadTimeout),
			GetTimeout:  src.timeout(),
		})
		if err != nil {
			return nil, err
		}
		if res.Date() == "" {
			return nil, transport.ErrNoDateHeader
		}
		return &Response{
			Kind:       KindHTTPDate,
			URL:        res.FinalURL,
			StatusCode: res.StatusCode,
			Date:       res.Date(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, src.Kind)
	}
}

// get issues a GET bounded by the source timeout, requires a 2xx status,
// and reads at most limit bytes of body.
func get(ctx context.Context, client *http.Client, src Source, limit int64) ([]byte, *Response, error) {
	ctx, cancel := context.WithTimeout(ctx, src.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &StatusError{URL: src.URL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, &Response{
		Kind:       src.Kind,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

// StatusError reports a non-2xx reply from a structured source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

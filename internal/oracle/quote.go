package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultQuoteEndpoint is the stooq light CSV quote endpoint. {symbol} is
// replaced by the lower-cased, escaped ticker.
const DefaultQuoteEndpoint = "https://stooq.com/q/l/?s={symbol}&f=sd2t2ohlcv&h&e=csv"

// noData is what stooq puts in every value column for unknown tickers.
const noData = "N/D"

// QuoteAttestation is one market snapshot for one requested symbol.
type QuoteAttestation struct {
	// Symbol is the ticker as entered, upper-cased
	Symbol string `json:"symbol"`

	Open   *string `json:"open"`
	High   *string `json:"high"`
	Low    *string `json:"low"`
	Close  *string `json:"close"`
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Volume *string `json:"volume"`

	// Fields holds every column of the data row keyed by lower-cased header
	Fields map[string]string `json:"fields"`

	// Source is the URL queried; set even on failure
	Source *string `json:"source"`

	// Error describes why no snapshot was obtained
	Error *string `json:"error"`
}

// OK reports whether a snapshot was obtained.
func (q QuoteAttestation) OK() bool {
	return q.Error == nil && q.Close != nil
}

// QuoteSource fetches one quote per symbol from a single CSV endpoint.
type QuoteSource struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	opts     []Option
}

// NewQuoteSource creates a quote source. An empty endpoint selects
// DefaultQuoteEndpoint; a non-positive timeout selects DefaultTimeout.
func NewQuoteSource(client *http.Client, endpoint string, timeout time.Duration, opts ...Option) *QuoteSource {
	if endpoint == "" {
		endpoint = DefaultQuoteEndpoint
	}
	return &QuoteSource{client: client, endpoint: endpoint, timeout: timeout, opts: opts}
}

// URL returns the request URL for symbol.
func (s *QuoteSource) URL(symbol string) string {
	sym := url.QueryEscape(strings.ToLower(strings.TrimSpace(symbol)))
	return strings.ReplaceAll(s.endpoint, "{symbol}", sym)
}

// Quote fetches symbol. It never fails; failures are encoded in the result.
func (s *QuoteSource) Quote(ctx context.Context, symbol string) QuoteAttestation {
	display := strings.ToUpper(strings.TrimSpace(symbol))
	if display == "" {
		msg := ErrEmptySymbol.Error()
		return QuoteAttestation{Symbol: display, Fields: map[string]string{}, Error: &msg}
	}

	src := Source{
		Name:    "stooq:" + display,
		URL:     s.URL(symbol),
		Kind:    KindCSV,
		Timeout: s.timeout,
	}
	adapt := func(src Source, resp *Response) (QuoteAttestation, error) {
		return adaptStooqCSV(display, src, resp)
	}

	res := NewChain("quote", s.client, []Endpoint[QuoteAttestation]{{Source: src, Adapt: adapt}}, s.opts...).Resolve(ctx)
	if res.OK {
		return res.Value
	}

	source := src.URL
	msg := fmt.Sprintf("quote %s failed", display)
	if len(res.Failures) > 0 {
		msg = res.Failures[len(res.Failures)-1].Error
	}
	return QuoteAttestation{
		Symbol: display,
		Fields: map[string]string{},
		Source: &source,
		Error:  &msg,
	}
}

// adaptStooqCSV reads a header row and a data row, associating columns by
// position.
func adaptStooqCSV(symbol string, src Source, resp *Response) (QuoteAttestation, error) {
	text := strings.TrimSpace(strings.ReplaceAll(string(resp.Body), "\r\n", "\n"))
	lines := strings.Split(text, "\n")
	if text == "" || len(lines) < 2 {
		return QuoteAttestation{}, fmt.Errorf("%w: expected header and data rows, got %d line(s)", ErrMalformedResponse, len(lines))
	}

	header := strings.Split(lines[0], ",")
	values := strings.Split(lines[1], ",")

	fields := make(map[string]string, len(header))
	for i, h := range header {
		if i >= len(values) {
			break
		}
		fields[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(values[i])
	}

	closeValue, ok := fields["close"]
	if !ok || closeValue == "" {
		return QuoteAttestation{}, fmt.Errorf("%w: close", ErrMissingField)
	}
	if closeValue == noData {
		return QuoteAttestation{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	source := src.URL
	return QuoteAttestation{
		Symbol: symbol,
		Open:   field(fields, "open"),
		High:   field(fields, "high"),
		Low:    field(fields, "low"),
		Close:  &closeValue,
		Date:   field(fields, "date"),
		Time:   field(fields, "time"),
		Volume: field(fields, "volume"),
		Fields: fields,
		Source: &source,
	}, nil
}

func field(fields map[string]string, key string) *string {
	v, ok := fields[key]
	if !ok || v == "" || v == noData {
		return nil
	}
	return &v
}

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// isoLayout renders instants with a fully-qualified offset ("+00:00").
const isoLayout = "2006-01-02T15:04:05.999999999-07:00"

// Time adapter names usable in Source.Adapter.
const (
	AdapterWorldTimeAPI = "worldtimeapi"
	AdapterTimeAPI      = "timeapi"
	AdapterHTTPDate     = "http-date"
)

// TimeAttestation records one UTC instant and where it came from.
//
// On success Source, UTCInstant and UnixSeconds are set; on total failure
// only Error is. Failures lists every source that failed before the answer
// (or all of them), in chain order.
type TimeAttestation struct {
	Source      *string   `json:"source"`
	UTCInstant  *string   `json:"utc_instant"`
	UnixSeconds *int64    `json:"unix_seconds"`
	Raw         *string   `json:"raw"`
	Error       *string   `json:"error"`
	Failures    []Failure `json:"failures"`
}

// OK reports whether an instant was obtained.
func (a TimeAttestation) OK() bool {
	return a.Error == nil && a.UTCInstant != nil
}

// Time parses UTCInstant.
func (a TimeAttestation) Time() (time.Time, error) {
	if a.UTCInstant == nil {
		return time.Time{}, fmt.Errorf("no instant recorded")
	}
	return time.Parse(time.RFC3339Nano, *a.UTCInstant)
}

// DefaultTimeSources is the production chain: two purpose-built time APIs,
// then the Date headers of three independently operated sites.
func DefaultTimeSources() []Source {
	return []Source{
		{Name: "json_wta", URL: "https://worldtimeapi.org/api/timezone/Etc/UTC", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
		{Name: "json_timeapi", URL: "https://timeapi.io/api/Time/current/zone?timeZone=UTC", Kind: KindJSON, Adapter: AdapterTimeAPI},
		{Name: "http_date_google", URL: "https://www.google.com", Kind: KindHTTPDate},
		{Name: "http_date_ms", URL: "https://www.microsoft.com", Kind: KindHTTPDate},
		{Name: "http_date_baidu", URL: "https://www.baidu.com", Kind: KindHTTPDate},
	}
}

// TimeAdapter returns the adapter for src.
func TimeAdapter(src Source) (Adapter[TimeAttestation], error) {
	switch src.Kind {
	case KindHTTPDate:
		return adaptHTTPDate, nil
	case KindJSON:
		switch src.Adapter {
		case AdapterWorldTimeAPI:
			return adaptWorldTimeAPI, nil
		case AdapterTimeAPI:
			return adaptTimeAPI, nil
		}
		return nil, fmt.Errorf("%w: no time adapter %q for json source %s", ErrUnknownKind, src.Adapter, src.Name)
	}
	return nil, fmt.Errorf("%w: %q cannot provide time", ErrUnknownKind, src.Kind)
}

// TimeOracle acquires a UTC instant through a fallback chain.
type TimeOracle struct {
	chain *Chain[TimeAttestation]
}

// NewTimeOracle builds the chain for sources, in order.
func NewTimeOracle(client *http.Client, sources []Source, opts ...Option) (*TimeOracle, error) {
	endpoints := make([]Endpoint[TimeAttestation], 0, len(sources))
	for _, src := range sources {
		adapt, err := TimeAdapter(src)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, Endpoint[TimeAttestation]{Source: src, Adapt: adapt})
	}
	return &TimeOracle{chain: NewChain("time", client, endpoints, opts...)}, nil
}

// Now resolves the chain. It never fails; total failure is encoded in the
// returned attestation.
func (o *TimeOracle) Now(ctx context.Context) TimeAttestation {
	res := o.chain.Resolve(ctx)
	failures := res.Failures
	if failures == nil {
		failures = []Failure{}
	}

	if !res.OK {
		msg := res.Err().Error()
		return TimeAttestation{Error: &msg, Failures: failures}
	}

	att := res.Value
	att.Failures = failures
	return att
}

func adaptWorldTimeAPI(src Source, resp *Response) (TimeAttestation, error) {
	raw, _ := resp.Fields["utc_datetime"].(string)
	if raw == "" {
		return TimeAttestation{}, fmt.Errorf("%w: utc_datetime", ErrMissingField)
	}
	t, err := parseISO(raw)
	if err != nil {
		return TimeAttestation{}, err
	}

	unix := t.Unix()
	if n, ok := resp.Fields["unixtime"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			unix = v
		}
	}
	return newTimeAttestation(src.URL, t, unix, raw), nil
}

func adaptTimeAPI(src Source, resp *Response) (TimeAttestation, error) {
	raw, _ := resp.Fields["dateTime"].(string)
	if raw == "" {
		raw, _ = resp.Fields["time"].(string)
	}
	if raw == "" {
		return TimeAttestation{}, fmt.Errorf("%w: dateTime", ErrMissingField)
	}
	t, err := parseISO(raw)
	if err != nil {
		return TimeAttestation{}, err
	}
	return newTimeAttestation(src.URL, t, t.Unix(), raw), nil
}

func adaptHTTPDate(src Source, resp *Response) (TimeAttestation, error) {
	t, err := http.ParseTime(resp.Date)
	if err != nil {
		// Some servers send a numeric zone instead of GMT.
		t, err = mail.ParseDate(resp.Date)
	}
	if err != nil {
		return TimeAttestation{}, fmt.Errorf("%w: unparseable Date header %q", ErrMalformedResponse, resp.Date)
	}
	return newTimeAttestation(src.URL+" (HTTP Date)", t, t.Unix(), resp.Date), nil
}

func newTimeAttestation(source string, t time.Time, unix int64, raw string) TimeAttestation {
	instant := t.UTC().Format(isoLayout)
	return TimeAttestation{
		Source:      &source,
		UTCInstant:  &instant,
		UnixSeconds: &unix,
		Raw:         &raw,
	}
}

// parseISO accepts ISO-8601 timestamps with "Z", a numeric offset, or no
// zone at all; zoneless values are taken as UTC.
func parseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrMalformedResponse, s)
}

// FormatUnix renders unix seconds for display.
func FormatUnix(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

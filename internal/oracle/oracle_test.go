package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const (
	fixedDate    = "Mon, 19 Oct 2026 08:00:00 GMT"
	numericDate  = "Mon, 19 Oct 2026 08:00:00 +0000"
	fixedInstant = "2026-10-19T08:00:00+00:00"
)

func timeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/not-json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timezone":"Etc/UTC"}`))
	})
	mux.HandleFunc("/wta", func(w http.ResponseWriter, r *http.Request) {
		unix := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC).Unix()
		fmt.Fprintf(w, `{"utc_datetime":"2026-10-19T08:00:00.5Z","unixtime":%d}`, unix)
	})
	mux.HandleFunc("/timeapi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dateTime":"2026-10-19T08:00:00","timeZone":"UTC"}`))
	})
	mux.HandleFunc("/dated", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", fixedDate)
	})
	mux.HandleFunc("/dated-numeric", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", numericDate)
	})
	mux.HandleFunc("/undated", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = nil
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTimeOracleFirstSuccessWins(t *testing.T) {
	srv := timeServer(t)

	var observed []string
	o, err := NewTimeOracle(srv.Client(), []Source{
		{Name: "down", URL: srv.URL + "/down", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
		{Name: "timeapi", URL: srv.URL + "/timeapi", Kind: KindJSON, Adapter: AdapterTimeAPI},
		{Name: "dated", URL: srv.URL + "/dated", Kind: KindHTTPDate},
	}, WithObserver(func(chain, source string, err error) {
		observed = append(observed, fmt.Sprintf("%s/%s/%v", chain, source, err == nil))
	}))
	if err != nil {
		t.Fatalf("NewTimeOracle() error = %v", err)
	}

	att := o.Now(context.Background())
	if !att.OK() {
		t.Fatalf("expected success, got error %v", *att.Error)
	}
	if *att.Source != srv.URL+"/timeapi" {
		t.Errorf("Source = %s, want the second source", *att.Source)
	}
	if *att.UTCInstant != fixedInstant {
		t.Errorf("UTCInstant = %s, want %s", *att.UTCInstant, fixedInstant)
	}
	if len(att.Failures) != 1 || att.Failures[0].Source != "down" {
		t.Errorf("Failures = %v, want one entry for the first source", att.Failures)
	}

	want := []string{"time/down/false", "time/timeapi/true"}
	if diff := cmp.Diff(want, observed); diff != "" {
		t.Errorf("observer calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeOracleAggregatesEveryFailure(t *testing.T) {
	srv := timeServer(t)

	o, err := NewTimeOracle(srv.Client(), []Source{
		{Name: "down", URL: srv.URL + "/down", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
		{Name: "not-json", URL: srv.URL + "/not-json", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
		{Name: "empty", URL: srv.URL + "/empty", Kind: KindJSON, Adapter: AdapterTimeAPI},
		{Name: "undated", URL: srv.URL + "/undated", Kind: KindHTTPDate},
	})
	if err != nil {
		t.Fatalf("NewTimeOracle() error = %v", err)
	}

	att := o.Now(context.Background())
	if att.OK() {
		t.Fatal("expected total failure")
	}
	if att.UTCInstant != nil || att.Source != nil {
		t.Error("failed attestation must not carry an instant or source")
	}
	if !strings.Contains(*att.Error, ErrAllSourcesFailed.Error()) {
		t.Errorf("Error = %q", *att.Error)
	}

	var names []string
	for _, f := range att.Failures {
		names = append(names, f.Source)
	}
	if diff := cmp.Diff([]string{"down", "not-json", "empty", "undated"}, names); diff != "" {
		t.Errorf("failure order mismatch (-want +got):\n%s", diff)
	}

	wantErrs := []string{"status 503", ErrMalformedResponse.Error(), ErrMissingField.Error(), "no Date header"}
	for i, want := range wantErrs {
		if !strings.Contains(att.Failures[i].Error, want) {
			t.Errorf("failure[%d] = %q, want it to mention %q", i, att.Failures[i].Error, want)
		}
	}
}

func TestTimeOracleAdapters(t *testing.T) {
	srv := timeServer(t)

	tests := []struct {
		name        string
		source      Source
		wantSource  string
		wantInstant string
		wantRaw     string
	}{
		{
			name:        "worldtimeapi Z suffix is normalized",
			source:      Source{Name: "wta", URL: srv.URL + "/wta", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
			wantSource:  srv.URL + "/wta",
			wantInstant: "2026-10-19T08:00:00.5+00:00",
			wantRaw:     "2026-10-19T08:00:00.5Z",
		},
		{
			name:        "zoneless timeapi value is UTC",
			source:      Source{Name: "timeapi", URL: srv.URL + "/timeapi", Kind: KindJSON, Adapter: AdapterTimeAPI},
			wantSource:  srv.URL + "/timeapi",
			wantInstant: fixedInstant,
			wantRaw:     "2026-10-19T08:00:00",
		},
		{
			name:        "http date header",
			source:      Source{Name: "dated", URL: srv.URL + "/dated", Kind: KindHTTPDate},
			wantSource:  srv.URL + "/dated (HTTP Date)",
			wantInstant: fixedInstant,
			wantRaw:     fixedDate,
		},
		{
			name:        "http date header with numeric zone",
			source:      Source{Name: "dated-numeric", URL: srv.URL + "/dated-numeric", Kind: KindHTTPDate},
			wantSource:  srv.URL + "/dated-numeric (HTTP Date)",
			wantInstant: fixedInstant,
			wantRaw:     numericDate,
		},
	}

	wantUnix := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC).Unix()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewTimeOracle(srv.Client(), []Source{tt.source})
			if err != nil {
				t.Fatalf("NewTimeOracle() error = %v", err)
			}
			att := o.Now(context.Background())
			if !att.OK() {
				t.Fatalf("expected success, got %v", *att.Error)
			}
			if *att.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", *att.Source, tt.wantSource)
			}
			if *att.UTCInstant != tt.wantInstant {
				t.Errorf("UTCInstant = %s, want %s", *att.UTCInstant, tt.wantInstant)
			}
			if *att.UnixSeconds != wantUnix {
				t.Errorf("UnixSeconds = %d, want %d", *att.UnixSeconds, wantUnix)
			}
			if *att.Raw != tt.wantRaw {
				t.Errorf("Raw = %s, want %s", *att.Raw, tt.wantRaw)
			}
			if att.Failures == nil {
				t.Error("Failures must be an empty list, not nil")
			}
		})
	}
}

func TestTimeOracleHonorsCancellation(t *testing.T) {
	srv := timeServer(t)
	o, err := NewTimeOracle(srv.Client(), []Source{
		{Name: "a", URL: srv.URL + "/wta", Kind: KindJSON, Adapter: AdapterWorldTimeAPI},
		{Name: "b", URL: srv.URL + "/dated", Kind: KindHTTPDate},
	})
	if err != nil {
		t.Fatalf("NewTimeOracle() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	att := o.Now(ctx)
	if att.OK() {
		t.Fatal("expected failure on cancelled context")
	}
	if len(att.Failures) != 2 {
		t.Errorf("Failures = %v, want one per source", att.Failures)
	}
}

func TestNewTimeOracleRejectsUnknownAdapter(t *testing.T) {
	_, err := NewTimeOracle(http.DefaultClient, []Source{
		{Name: "x", URL: "https://example.test", Kind: KindJSON, Adapter: "nope"},
	})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}

	_, err = NewTimeOracle(http.DefaultClient, []Source{
		{Name: "x", URL: "https://example.test", Kind: KindCSV},
	})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind for csv time source", err)
	}
}

func TestParseISO(t *testing.T) {
	want := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "2026-10-19T08:00:00Z"},
		{in: "2026-10-19T08:00:00+00:00"},
		{in: "2026-10-19T10:00:00+02:00"},
		{in: "2026-10-19T08:00:00"},
		{in: " 2026-10-19T08:00:00.000000Z "},
		{in: "19/10/2026 08:00", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseISO(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("parseISO(%q) error = %v, want ErrMalformedResponse", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseISO(%q) error = %v", tt.in, err)
			}
			if !got.Equal(want) {
				t.Errorf("parseISO(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

const stooqHeader = "Symbol,Date,Time,Open,High,Low,Close,Volume"

func quoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("s") {
		case "aapl.us":
			fmt.Fprint(w, stooqHeader+"\r\nAAPL.US,2026-10-16,22:00:07,247.2,249.0,245.1,247.45,39698000\r\n")
		case "bogus.zz":
			fmt.Fprint(w, stooqHeader+"\r\n")
		case "unknown.zz":
			fmt.Fprint(w, stooqHeader+"\nUNKNOWN.ZZ,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuoteSource(t *testing.T) {
	srv := quoteServer(t)
	qs := NewQuoteSource(srv.Client(), srv.URL+"/q/l/?s={symbol}&f=sd2t2ohlcv&h&e=csv", time.Second)

	q := qs.Quote(context.Background(), " aapl.us ")
	if !q.OK() {
		t.Fatalf("expected success, got %v", *q.Error)
	}
	if q.Symbol != "AAPL.US" {
		t.Errorf("Symbol = %s, want AAPL.US", q.Symbol)
	}
	if *q.Close != "247.45" || *q.Date != "2026-10-16" || *q.Time != "22:00:07" || *q.Volume != "39698000" {
		t.Errorf("unexpected quote values: %+v", q.Fields)
	}
	if !strings.Contains(*q.Source, "s=aapl.us") {
		t.Errorf("Source = %s, want lower-cased symbol in query", *q.Source)
	}
	if q.Fields["symbol"] != "AAPL.US" {
		t.Errorf("Fields[symbol] = %q", q.Fields["symbol"])
	}
}

func TestQuoteSourceFailures(t *testing.T) {
	srv := quoteServer(t)
	qs := NewQuoteSource(srv.Client(), srv.URL+"/q/l/?s={symbol}&f=sd2t2ohlcv&h&e=csv", time.Second)

	tests := []struct {
		symbol  string
		wantErr string
	}{
		{symbol: "BOGUS.ZZ", wantErr: ErrMalformedResponse.Error()},
		{symbol: "unknown.zz", wantErr: ErrNoData.Error()},
		{symbol: "gone.xx", wantErr: "status 404"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			q := qs.Quote(context.Background(), tt.symbol)
			if q.OK() {
				t.Fatal("expected failure")
			}
			if !strings.Contains(*q.Error, tt.wantErr) {
				t.Errorf("Error = %q, want it to mention %q", *q.Error, tt.wantErr)
			}
			if q.Source == nil || !strings.Contains(*q.Source, strings.ToLower(tt.symbol)) {
				t.Error("failed quote must still record the queried source")
			}
			if q.Close != nil {
				t.Error("failed quote must not carry a close price")
			}
			if q.Symbol != strings.ToUpper(tt.symbol) {
				t.Errorf("Symbol = %s", q.Symbol)
			}
		})
	}
}

func TestQuoteSourceEmptySymbol(t *testing.T) {
	qs := NewQuoteSource(http.DefaultClient, "", 0)
	q := qs.Quote(context.Background(), "   ")
	if q.OK() || q.Error == nil || *q.Error != ErrEmptySymbol.Error() {
		t.Errorf("unexpected result for blank symbol: %+v", q)
	}
}

func TestQuoteSourceURL(t *testing.T) {
	qs := NewQuoteSource(http.DefaultClient, "", 0)
	want := "https://stooq.com/q/l/?s=000001.ss&f=sd2t2ohlcv&h&e=csv"
	if got := qs.URL("000001.SS"); got != want {
		t.Errorf("URL() = %s, want %s", got, want)
	}
}

func TestResultErr(t *testing.T) {
	ok := Result[int]{OK: true, Value: 1}
	if ok.Err() != nil {
		t.Error("successful result must have nil Err")
	}

	failed := Result[int]{Failures: []Failure{
		{Source: "a", Error: "timeout"},
		{Source: "b", Error: "returned status 502"},
	}}
	err := failed.Err()
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("Err() = %v, want ErrAllSourcesFailed", err)
	}
	if !strings.Contains(err.Error(), "a: timeout; b: returned status 502") {
		t.Errorf("Err() = %q, want every failure listed in order", err)
	}
}

func TestIsStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &StatusError{URL: "https://example.test", Code: 429})
	if !IsStatus(err, 429) {
		t.Error("IsStatus should see through wrapping")
	}
	if IsStatus(err, 500) {
		t.Error("IsStatus matched the wrong code")
	}
}

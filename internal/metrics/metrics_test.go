package metrics

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/publish"
	"github.com/open-verix/timeproof/internal/transport"
)

var (
	_ oracle.Observer         = (*Metrics)(nil).ObserveSource
	_ transport.RetryObserver = (*Metrics)(nil).ObserveRetry
)

func TestObserveSource(t *testing.T) {
	m := New()
	m.ObserveSource("time", "json_wta", errors.New("down"))
	m.ObserveSource("time", "json_timeapi", nil)
	m.ObserveSource("time", "json_timeapi", nil)

	if got := testutil.ToFloat64(m.sourceAttempts.WithLabelValues("time", "json_wta", OutcomeFailure)); got != 1 {
		t.Errorf("json_wta failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sourceAttempts.WithLabelValues("time", "json_timeapi", OutcomeSuccess)); got != 2 {
		t.Errorf("json_timeapi successes = %v, want 2", got)
	}
}

func TestObserveRetry(t *testing.T) {
	m := New()
	req, _ := http.NewRequest(http.MethodGet, "https://stooq.com/q/l/?s=aapl.us", nil)
	m.ObserveRetry(req, http.StatusServiceUnavailable)
	m.ObserveRetry(nil, http.StatusTooManyRequests)

	if got := testutil.ToFloat64(m.retries.WithLabelValues("stooq.com", "503")); got != 1 {
		t.Errorf("stooq retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues("", "429")); got != 1 {
		t.Errorf("hostless retries = %v, want 1", got)
	}
}

func TestObservePackage(t *testing.T) {
	m := New()
	status := 200
	errMsg := "dial tcp: refused"
	copied := "photo.jpg"
	match := true
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	rec := &evidence.Record{
		CreatedAt:  created,
		CopiedPath: &copied,
		PublishChecks: []publish.Check{
			{URL: "https://a.example", StatusCode: &status},
			{URL: "https://b.example", Error: &errMsg},
		},
	}
	rec.Verification.Match = &match

	m.ObservePackage(rec)
	m.ObservePackage(nil)

	if got := testutil.ToFloat64(m.packages.WithLabelValues(OutcomePartial)); got != 1 {
		t.Errorf("partial packages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishChecks.WithLabelValues(OutcomeFailure)); got != 1 {
		t.Errorf("failed checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastPackage); got != float64(created.Unix()) {
		t.Errorf("last package = %v, want %d", got, created.Unix())
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveSource("quote", "stooq:AAPL.US", nil)

	path := filepath.Join(t.TempDir(), "timeproof.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `timeproof_source_attempts_total{chain="quote",outcome="success",source="stooq:AAPL.US"} 1`
	if !strings.Contains(string(data), want) {
		t.Errorf("textfile missing %q:\n%s", want, data)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	m := New()
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("WriteTextfile() into a missing directory should fail")
	}
}

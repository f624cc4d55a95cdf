package markdown

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/integrity"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/publish"
)

func ptr[T any](v T) *T { return &v }

func sampleRecord() *evidence.Record {
	return &evidence.Record{
		Format:           evidence.FormatVersion,
		GeneratorVersion: "1.2.3",
		RunID:            "run-1",
		CreatedAt:        time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		OriginalPath:     "/photos/a.jpg",
		CopiedPath:       ptr("/out/evidence_20261019_080000/a.jpg"),
		SHA256:           strings.Repeat("ab", 32),
		HashAlgorithm:    "sha256",
		Metadata:         map[string]string{"Make": "Cam|Corp"},
		Time: oracle.TimeAttestation{
			Source:      ptr("https://worldtimeapi.org/api/timezone/Etc/UTC"),
			UTCInstant:  ptr("2026-10-19T08:00:00+00:00"),
			UnixSeconds: ptr(int64(1792396800)),
			Failures:    []oracle.Failure{},
		},
		Quotes: []oracle.QuoteAttestation{
			{Symbol: "AAPL.US", Close: ptr("247.45"), Date: ptr("2026-10-16"), Source: ptr("https://stooq.com/q/l/?s=aapl.us")},
			{Symbol: "BOGUS.ZZ", Source: ptr("https://stooq.com/q/l/?s=bogus.zz"), Error: ptr("malformed response")},
		},
		PublishURLs:   []string{"https://blog.test/p/1"},
		PublishChecks: []publish.Check{{URL: "https://blog.test/p/1", StatusCode: ptr(200), HTTPDate: ptr("Mon, 19 Oct 2026 08:00:00 GMT")}},
		Verification:  integrity.Verification{Expected: strings.Repeat("ab", 32), Recomputed: ptr(strings.Repeat("ab", 32)), Match: ptr(true)},
	}
}

func TestRender(t *testing.T) {
	p, err := NewProvider()
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	var buf bytes.Buffer
	if err := p.Render(sampleRecord(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Photo Evidence Report",
		"SHA256 digest: `" + strings.Repeat("ab", 32) + "`",
		"| Make | Cam\\|Corp |",
		"Network UTC time: 2026-10-19T08:00:00+00:00 (unix 1792396800",
		"| AAPL.US | 247.45 | 2026-10-16 |",
		"| BOGUS.ZZ |",
		"- Published at: https://blog.test/p/1",
		"- Match: yes",
		"| https://blog.test/p/1 | 200 |",
		"quote BOGUS.ZZ: malformed response",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q\n---\n%s", want, out)
		}
	}
}

func TestRenderDegradedRecord(t *testing.T) {
	p, err := NewProvider()
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	rec := sampleRecord()
	rec.CopiedPath = nil
	rec.Metadata = map[string]string{}
	rec.MetadataError = ptr("corrupt")
	rec.Time = oracle.TimeAttestation{Error: ptr("all sources failed")}
	rec.Quotes = nil
	rec.PublishURLs = nil
	rec.PublishChecks = nil
	rec.Verification = integrity.Verification{Expected: rec.SHA256, Error: ptr("packaged copy missing")}

	var buf bytes.Buffer
	if err := p.Render(rec, &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"- Packaged copy: missing",
		"- Unavailable: corrupt",
		"Network UTC time: unavailable (all sources failed)",
		"- None recorded yet",
		"- Error: packaged copy missing",
		"## Gaps",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q\n---\n%s", want, out)
		}
	}
}

func TestProviderInfo(t *testing.T) {
	p, _ := NewProvider()
	if p.Filename() != "report.md" || p.Name() != "markdown" {
		t.Errorf("unexpected provider info %s/%s", p.Name(), p.Filename())
	}
}

// Package renderer holds the report renderer interface and the flattened
// view of a record shared by all report templates.
package renderer

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/oracle"
)

// Title heads every report.
const Title = "Photo Evidence Report"

// View is a record flattened to display strings. Empty strings mean the
// value is absent.
type View struct {
	Title            string
	GeneratorVersion string
	RunID            string
	CreatedAt        string
	OriginalPath     string
	CopiedPath       string
	CopiedName       string
	SHA256           string
	HashAlgorithm    string

	Metadata      []KV
	MetadataError string

	Time   TimeView
	Quotes []QuoteView

	PublishURLs []string
	Checks      []CheckView

	Verification VerificationView

	Gaps []string
}

// KV is one metadata row.
type KV struct {
	Key   string
	Value string
}

// TimeView is the display form of a time attestation.
type TimeView struct {
	Instant  string
	Unix     string
	Source   string
	Error    string
	Failures []oracle.Failure
}

// QuoteView is the display form of a quote attestation.
type QuoteView struct {
	Symbol string
	Close  string
	Date   string
	Time   string
	Volume string
	Source string
	Error  string
}

// CheckView is the display form of a publish check.
type CheckView struct {
	URL           string
	Status        string
	FinalURL      string
	HTTPDate      string
	ContentType   string
	ContentLength string
	Note          string
}

// VerificationView is the display form of the copy re-verification.
type VerificationView struct {
	Checked    bool
	Intact     bool
	Recomputed string
	Expected   string
	Error      string
}

// NewView flattens rec.
func NewView(rec *evidence.Record) View {
	v := View{
		Title:            Title,
		GeneratorVersion: rec.GeneratorVersion,
		RunID:            rec.RunID,
		CreatedAt:        rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		OriginalPath:     rec.OriginalPath,
		CopiedPath:       deref(rec.CopiedPath),
		SHA256:           rec.SHA256,
		HashAlgorithm:    rec.HashAlgorithm,
		MetadataError:    deref(rec.MetadataError),
		PublishURLs:      rec.PublishURLs,
		Gaps:             rec.Gaps(),
	}
	if rec.CopiedPath != nil {
		v.CopiedName = filepath.Base(*rec.CopiedPath)
	}

	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Metadata = append(v.Metadata, KV{Key: k, Value: rec.Metadata[k]})
	}

	v.Time = TimeView{
		Instant:  deref(rec.Time.UTCInstant),
		Unix:     oracle.FormatUnix(rec.Time.UnixSeconds),
		Source:   deref(rec.Time.Source),
		Error:    deref(rec.Time.Error),
		Failures: rec.Time.Failures,
	}

	for _, q := range rec.Quotes {
		v.Quotes = append(v.Quotes, QuoteView{
			Symbol: q.Symbol,
			Close:  deref(q.Close),
			Date:   deref(q.Date),
			Time:   deref(q.Time),
			Volume: deref(q.Volume),
			Source: deref(q.Source),
			Error:  deref(q.Error),
		})
	}

	for _, c := range rec.PublishChecks {
		cv := CheckView{
			URL:         c.URL,
			FinalURL:    deref(c.FinalURL),
			HTTPDate:    deref(c.HTTPDate),
			ContentType: deref(c.ContentType),
			Note:        deref(c.Error),
		}
		if c.StatusCode != nil {
			cv.Status = strconv.Itoa(*c.StatusCode)
		}
		if c.ContentLength != nil {
			cv.ContentLength = strconv.FormatInt(*c.ContentLength, 10)
		}
		if cv.Note == "" && c.HeadOutcome != nil {
			cv.Note = *c.HeadOutcome
		}
		v.Checks = append(v.Checks, cv)
	}

	ver := rec.Verification
	v.Verification = VerificationView{
		Checked:    ver.Match != nil,
		Intact:     ver.Intact(),
		Recomputed: deref(ver.Recomputed),
		Expected:   ver.Expected,
		Error:      deref(ver.Error),
	}

	return v
}

// EscapeCell makes s safe inside a Markdown table cell.
func EscapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

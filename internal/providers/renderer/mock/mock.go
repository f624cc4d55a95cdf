package mock

import (
	"io"

	"github.com/open-verix/timeproof/internal/evidence"
)

// Provider is a mock report renderer for testing.
type Provider struct {
	// RenderFunc allows tests to customize the Render behavior
	RenderFunc func(rec *evidence.Record, w io.Writer) error

	// FilenameValue is returned by Filename()
	FilenameValue string

	// Rendered records the run id of every rendered record
	Rendered []string
}

// NewProvider creates a new mock renderer writing report.txt.
func NewProvider() *Provider {
	return &Provider{FilenameValue: "report.txt"}
}

// Render writes the run id and digest, or delegates to RenderFunc.
func (p *Provider) Render(rec *evidence.Record, w io.Writer) error {
	p.Rendered = append(p.Rendered, rec.RunID)
	if p.RenderFunc != nil {
		return p.RenderFunc(rec, w)
	}
	_, err := io.WriteString(w, rec.RunID+" "+rec.SHA256+"\n")
	return err
}

// Filename returns the report name.
func (p *Provider) Filename() string {
	if p.FilenameValue != "" {
		return p.FilenameValue
	}
	return "report.txt"
}

// Name returns the provider name.
func (p *Provider) Name() string { return "mock" }

// Version returns the provider version.
func (p *Provider) Version() string { return "1.0.0" }

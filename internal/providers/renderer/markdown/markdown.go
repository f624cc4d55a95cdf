// Package markdown renders evidence records as Markdown reports.
package markdown

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/providers/renderer"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const templateName = "report.md.tmpl"

// Provider renders report.md.
type Provider struct {
	tmpl *template.Template
}

// NewProvider parses the embedded template.
func NewProvider() (*Provider, error) {
	t, err := template.New("markdown").Funcs(template.FuncMap{
		"cell":  renderer.EscapeCell,
		"upper": strings.ToUpper,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Provider{tmpl: t}, nil
}

// Render writes the Markdown report for rec.
func (p *Provider) Render(rec *evidence.Record, w io.Writer) error {
	return p.tmpl.ExecuteTemplate(w, templateName, renderer.NewView(rec))
}

// Filename returns the report name.
func (p *Provider) Filename() string { return "report.md" }

// Name returns the provider name.
func (p *Provider) Name() string { return "markdown" }

// Version returns the provider version.
func (p *Provider) Version() string { return "1.0.0" }

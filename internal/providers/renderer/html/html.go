// Package html renders evidence records as self-contained HTML reports.
package html

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/providers/renderer"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const templateName = "report.html.tmpl"

// Provider renders report.html. All record values are escaped by
// html/template.
type Provider struct {
	tmpl *template.Template
}

// NewProvider parses the embedded template.
func NewProvider() (*Provider, error) {
	t, err := template.New("html").Funcs(template.FuncMap{
		"sourceURL": sourceURL,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Provider{tmpl: t}, nil
}

// Render writes the HTML report for rec.
func (p *Provider) Render(rec *evidence.Record, w io.Writer) error {
	return p.tmpl.ExecuteTemplate(w, templateName, renderer.NewView(rec))
}

// Filename returns the report name.
func (p *Provider) Filename() string { return "report.html" }

// Name returns the provider name.
func (p *Provider) Name() string { return "html" }

// Version returns the provider version.
func (p *Provider) Version() string { return "1.0.0" }

// sourceURL strips the " (HTTP Date)" annotation from header-derived time
// sources so the link points at the site itself.
func sourceURL(source string) string {
	if i := strings.Index(source, " "); i > 0 {
		return source[:i]
	}
	return source
}

package renderer

import (
	"io"

	"github.com/open-verix/timeproof/internal/evidence"
)

// Provider defines the interface for report renderers.
//
// Renderers run only after evidence.json is persisted and receive the
// finished record. They must not modify it.
type Provider interface {
	// Render writes the report for rec to w.
	Render(rec *evidence.Record, w io.Writer) error

	// Filename is the report's name inside the package directory (e.g., "report.md")
	Filename() string

	// Name returns the provider name (e.g., "markdown")
	Name() string

	// Version returns the provider version
	Version() string
}

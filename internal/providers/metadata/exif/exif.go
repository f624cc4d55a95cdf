// Package exif reads EXIF tags embedded in JPEG and TIFF photos.
package exif

import (
	"context"
	"fmt"
	"os"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/open-verix/timeproof/internal/providers/metadata"
)

// Provider implements metadata.Provider using goexif.
type Provider struct{}

// NewProvider creates a new EXIF metadata provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "exif"
}

// Version returns the provider version.
func (p *Provider) Version() string {
	return "goexif"
}

// Read decodes the EXIF block of path into a tag-name to value map.
//
// Files without an EXIF block fail with metadata.ErrNoMetadata. Non-critical
// decode errors (a broken sub-IFD, for instance) keep whatever tags were
// recovered.
func (p *Provider) Read(ctx context.Context, path string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnreadable, err)
	}
	defer f.Close()

	x, err := goexif.Decode(f)
	if x == nil || (err != nil && goexif.IsCriticalError(err)) {
		return nil, fmt.Errorf("%w: %v", metadata.ErrNoMetadata, err)
	}

	w := walker{}
	if err := x.Walk(w); err != nil {
		return nil, fmt.Errorf("failed to walk EXIF tags: %w", err)
	}
	return w, nil
}

type walker map[string]string

func (w walker) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			w[string(name)] = s
			return nil
		}
	}
	w[string(name)] = tag.String()
	return nil
}

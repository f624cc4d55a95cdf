package metadata

import (
	"context"
)

// Provider defines the interface for embedded-metadata readers.
//
// Implementations must:
// - Treat the artifact as read-only
// - Return every tag they understand as a flat string map
// - Return an error (never a partial map) when the file cannot be parsed
//
// An artifact that parses but carries no metadata yields an empty map and a
// nil error.
type Provider interface {
	// Read extracts embedded metadata from the file at path.
	Read(ctx context.Context, path string) (map[string]string, error)

	// Name returns the provider name (e.g., "exif")
	Name() string

	// Version returns the provider version
	Version() string
}

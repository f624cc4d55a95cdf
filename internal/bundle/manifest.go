package bundle

import (
	"time"
)

const (
	// ManifestFilename is the first entry of every bundle
	ManifestFilename = "manifest.yaml"

	// ManifestVersion tags the manifest schema
	ManifestVersion = "1"
)

// Manifest lists every file of an exported package with its digest.
type Manifest struct {
	Version   string         `yaml:"version"`
	CreatedAt time.Time      `yaml:"created_at"`
	RunID     string         `yaml:"run_id"`
	Artifact  string         `yaml:"artifact_sha256"`
	Package   string         `yaml:"package"`
	Files     []ManifestFile `yaml:"files"`
}

// ManifestFile describes a single file within the bundle. Path is relative
// to the package directory, slash-separated.
type ManifestFile struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

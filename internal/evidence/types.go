// Package evidence assembles and persists evidence packages for photos.
//
// A package binds the SHA-256 digest of an artifact to externally
// verifiable data points (a network UTC instant, market quote snapshots,
// publication URL headers) and to a re-verification of the packaged copy.
// Every data point records its own success or failure, so a package with
// gaps is still produced and describes exactly what it lacks.
package evidence

import (
	"fmt"
	"time"

	"github.com/open-verix/timeproof/internal/integrity"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/publish"
)

const (
	// FormatVersion tags the record schema
	FormatVersion = "timeproof.evidence/v1"

	// RecordFilename is the record's name inside a package directory
	RecordFilename = "evidence.json"
)

// Record is the persisted evidence of one generation run.
//
// Every field is always serialized; missing data is an explicit null or a
// populated error field, never an absent key. A Record is written once and
// never updated.
type Record struct {
	// Format is the schema tag, FormatVersion
	Format string `json:"format"`

	// GeneratorVersion is the timeproof version that produced the record
	GeneratorVersion string `json:"generator_version"`

	// RunID uniquely identifies the generation run
	RunID string `json:"run_id"`

	// CreatedAt is the local clock at assembly, UTC
	CreatedAt time.Time `json:"created_at"`

	// OriginalPath is the artifact path as supplied
	OriginalPath string `json:"original_path"`

	// CopiedPath is the packaged copy, null if the copy failed
	CopiedPath *string `json:"copied_path"`

	// SHA256 is the hex digest of the original artifact
	SHA256 string `json:"sha256"`

	// HashAlgorithm names the digest algorithm
	HashAlgorithm string `json:"hash_algorithm"`

	// Metadata is the embedded metadata as read, empty when unavailable
	Metadata map[string]string `json:"metadata"`

	// MetadataError explains why Metadata is empty, if it failed
	MetadataError *string `json:"metadata_error"`

	// Time is the network time attestation
	Time oracle.TimeAttestation `json:"time"`

	// Quotes holds one attestation per requested symbol, in request order
	Quotes []oracle.QuoteAttestation `json:"quotes"`

	// Stock is the first successful quote, kept for older readers
	Stock *oracle.QuoteAttestation `json:"stock"`

	// PublishURLs are the operator-supplied publication URLs
	PublishURLs []string `json:"publish_urls"`

	// PublishChecks holds one probe result per URL, in input order
	PublishChecks []publish.Check `json:"publish_checks"`

	// Verification is the recomputation of the packaged copy's digest
	Verification integrity.Verification `json:"verification"`
}

// Hash returns the original artifact digest.
func (r *Record) Hash() integrity.ArtifactHash {
	return integrity.ArtifactHash{Algorithm: r.HashAlgorithm, Value: r.SHA256}
}

// Validate checks the fields every record must carry.
func (r *Record) Validate() error {
	switch {
	case r.Format != FormatVersion:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidRecord, r.Format)
	case r.RunID == "":
		return fmt.Errorf("%w: run_id is required", ErrInvalidRecord)
	case r.SHA256 == "":
		return fmt.Errorf("%w: sha256 is required", ErrInvalidRecord)
	case r.HashAlgorithm != integrity.Algorithm:
		return fmt.Errorf("%w: unsupported hash algorithm %q", ErrInvalidRecord, r.HashAlgorithm)
	case r.OriginalPath == "":
		return fmt.Errorf("%w: original_path is required", ErrInvalidRecord)
	case r.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at is required", ErrInvalidRecord)
	}
	return nil
}

// Gaps lists every data point that failed, in record order.
func (r *Record) Gaps() []string {
	var gaps []string

	if r.MetadataError != nil {
		gaps = append(gaps, "metadata: "+*r.MetadataError)
	}
	if r.Time.Error != nil {
		gaps = append(gaps, "time: "+*r.Time.Error)
	}
	for _, q := range r.Quotes {
		if q.Error != nil {
			gaps = append(gaps, fmt.Sprintf("quote %s: %s", q.Symbol, *q.Error))
		}
	}
	if r.CopiedPath == nil {
		gaps = append(gaps, "copy: artifact was not copied into the package")
	}
	switch v := r.Verification; {
	case v.Error != nil:
		gaps = append(gaps, "verification: "+*v.Error)
	case v.Match != nil && !*v.Match:
		gaps = append(gaps, "verification: packaged copy does not match the original digest")
	}
	for _, c := range r.PublishChecks {
		if c.Error != nil {
			gaps = append(gaps, fmt.Sprintf("publish %s: %s", c.URL, *c.Error))
		}
	}

	return gaps
}

// Complete reports whether the record has no gaps.
func (r *Record) Complete() bool {
	return len(r.Gaps()) == 0
}

// Request is the input of one generation run.
type Request struct {
	// Path is the artifact to package
	Path string

	// Symbols are the tickers to snapshot; blanks are skipped
	Symbols []string

	// PublishURLs are probed for corroborating headers; blanks are skipped
	PublishURLs []string
}

// Package is a persisted evidence package.
type Package struct {
	// Dir is the package directory
	Dir string

	// RecordPath is the path of evidence.json
	RecordPath string

	// Record is the persisted record
	Record *Record

	// Reports lists rendered report files, in renderer order
	Reports []string

	// Duration is the wall time of the run
	Duration time.Duration
}

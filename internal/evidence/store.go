package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	// DirPrefix starts every package directory name
	DirPrefix = "evidence_"

	// dirTimeLayout is fixed width so names sort lexically by time
	dirTimeLayout = "20060102_150405"

	maxDirAttempts = 1000
)

// CreatePackageDir creates a new package directory under root named after
// now at second granularity. A second run in the same second gets a "-2",
// "-3", ... suffix; an existing directory is never reused.
func CreatePackageDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackageDir, err)
	}

	base := DirPrefix + now.Format(dirTimeLayout)
	for i := 1; i <= maxDirAttempts; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		dir := filepath.Join(root, name)

		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %v", ErrPackageDir, err)
		}
	}
	return "", fmt.Errorf("%w: %s has %d packages in one second", ErrPackageDir, root, maxDirAttempts)
}

// SanitizeFilename keeps letters, digits, '-', '_' and '.' from the base
// name of path and drops everything else.
func SanitizeFilename(path string) string {
	name := filepath.Base(path)

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(b.String())
	if strings.Trim(clean, ".") == "" {
		return "artifact"
	}
	return clean
}

// chtimes is swapped in tests.
var chtimes = os.Chtimes

// CopyArtifact copies src into dir under its sanitized name, preserving the
// modification time. It returns the destination path. When only the
// modification time could not be set, the complete copy's path is returned
// together with an ErrModTime error.
func CopyArtifact(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}

	name := SanitizeFilename(src)
	if name == RecordFilename {
		name = "artifact_" + name
	}
	dst := filepath.Join(dir, name)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to flush copy: %w", err)
	}

	if err := chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return dst, fmt.Errorf("%w: %w", ErrModTime, err)
	}
	return dst, nil
}

// WriteRecord writes rec to dir/evidence.json. It refuses to overwrite an
// existing record.
func WriteRecord(dir string, rec *Record) (string, error) {
	path := filepath.Join(dir, RecordFilename)

	data, err := MarshalRecord(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrRecordExists, path)
		}
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return path, nil
}

// MarshalRecord encodes rec as indented JSON without HTML escaping.
func MarshalRecord(rec *Record) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return []byte(b.String()), nil
}

// LoadRecord reads and validates the record of a package. path may be the
// package directory or the evidence.json file itself.
func LoadRecord(path string) (*Record, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, RecordFilename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PackageDir returns the package directory for a path that is either the
// directory or its evidence.json.
func PackageDir(path string) string {
	if filepath.Base(path) == RecordFilename {
		return filepath.Dir(path)
	}
	return path
}

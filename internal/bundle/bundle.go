// Package bundle exports an evidence package directory as a single
// zstd-compressed tar archive carrying a sha256 manifest, and uploads
// exported bundles to S3-compatible storage.
package bundle

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/integrity"
)

// Extension is appended to the package directory name for default outputs.
const Extension = ".tar.zst"

var (
	// ErrOutputInPackage indicates the archive would be written into the package it exports
	ErrOutputInPackage = errors.New("bundle output must not be inside the package directory")

	// ErrManifestMissing indicates an archive without a leading manifest
	ErrManifestMissing = errors.New("bundle missing manifest.yaml")

	// ErrChecksumMismatch indicates an archived file does not match its manifest entry
	ErrChecksumMismatch = errors.New("bundle checksum mismatch")
)

// DefaultOutput returns the sibling archive path for a package directory.
func DefaultOutput(dir string) string {
	return filepath.Clean(dir) + Extension
}

// Export writes the package at dir to output. The package is validated by
// loading its record first and is never modified.
func Export(ctx context.Context, dir, output string, now time.Time) (*Manifest, error) {
	if output == "" {
		output = DefaultOutput(dir)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := evidence.LoadRecord(dir)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve package dir: %w", err)
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return nil, fmt.Errorf("resolve output: %w", err)
	}
	if rel, err := filepath.Rel(absDir, absOut); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: %s", ErrOutputInPackage, output)
	}

	files, err := collectFiles(ctx, absDir)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:   ManifestVersion,
		CreatedAt: now.UTC().Truncate(time.Second),
		RunID:     rec.RunID,
		Artifact:  rec.SHA256,
		Package:   filepath.Base(absDir),
		Files:     files,
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeArchive(output, manifestBytes, absDir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func collectFiles(ctx context.Context, root string) ([]ManifestFile, error) {
	var files []ManifestFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", p, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", p, err)
		}
		h, err := integrity.Compute(ctx, p)
		if err != nil {
			return fmt.Errorf("hash %q: %w", rel, err)
		}

		files = append(files, ManifestFile{
			Path:   filepath.ToSlash(rel),
			Size:   info.Size(),
			SHA256: h.Value,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func writeArchive(output string, manifestBytes []byte, root string, manifest *Manifest) (err error) {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)

	if err := tw.WriteHeader(&tar.Header{
		Name:     ManifestFilename,
		Mode:     0o644,
		Size:     int64(len(manifestBytes)),
		ModTime:  manifest.CreatedAt,
		Typeflag: tar.TypeReg,
	}); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for _, f := range manifest.Files {
		if err := addFile(tw, root, manifest.Package, f); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, root, prefix string, f ManifestFile) error {
	fullPath := filepath.Join(root, filepath.FromSlash(f.Path))
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", f.Path, err)
	}
	src, err := os.Open(fullPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", f.Path, err)
	}
	defer src.Close()

	if err := tw.WriteHeader(&tar.Header{
		Name:     path.Join(prefix, f.Path),
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Typeflag: tar.TypeReg,
	}); err != nil {
		return fmt.Errorf("write header for %q: %w", f.Path, err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("copy %q: %w", f.Path, err)
	}
	return nil
}

// Verify reads the bundle at bundlePath and checks every archived file
// against the manifest. Nothing is extracted to disk.
func Verify(ctx context.Context, bundlePath string) (*Manifest, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tr := tar.NewReader(decoder)

	header, err := tr.Next()
	if err != nil || header.Name != ManifestFilename {
		return nil, ErrManifestMissing
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}

	expected := make(map[string]ManifestFile, len(manifest.Files))
	for _, mf := range manifest.Files {
		expected[path.Join(manifest.Package, mf.Path)] = mf
	}

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		mf, ok := expected[header.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not listed in the manifest", ErrChecksumMismatch, header.Name)
		}
		delete(expected, header.Name)

		h, err := integrity.ComputeReader(ctx, tr, 0)
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", header.Name, err)
		}
		if header.Size != mf.Size || !strings.EqualFold(h.Value, mf.SHA256) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, mf.Path)
		}
	}

	if len(expected) > 0 {
		missing := make([]string, 0, len(expected))
		for _, mf := range expected {
			missing = append(missing, mf.Path)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing %s", ErrChecksumMismatch, strings.Join(missing, ", "))
	}

	return &manifest, nil
}

package bundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/integrity"
	"github.com/open-verix/timeproof/internal/oracle"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// newPackage writes a minimal valid package and returns its directory.
func newPackage(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "evidence_20260314_092653")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	photo := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(photo, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := integrity.Compute(context.Background(), photo)
	if err != nil {
		t.Fatal(err)
	}

	rec := &evidence.Record{
		Format:        evidence.FormatVersion,
		RunID:         "run-1",
		CreatedAt:     testNow,
		OriginalPath:  "/photos/photo.jpg",
		CopiedPath:    &photo,
		SHA256:        h.Value,
		HashAlgorithm: integrity.Algorithm,
		Metadata:      map[string]string{},
		Time:          oracle.TimeAttestation{Failures: []oracle.Failure{}},
		Verification:  integrity.Verify(context.Background(), photo, h),
	}
	if _, err := evidence.WriteRecord(dir, rec); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestExportVerify(t *testing.T) {
	dir := newPackage(t)
	out := filepath.Join(t.TempDir(), "out", "pkg.tar.zst")

	manifest, err := Export(context.Background(), dir, out, testNow)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if manifest.RunID != "run-1" {
		t.Errorf("RunID = %s, want run-1", manifest.RunID)
	}
	if manifest.Package != "evidence_20260314_092653" {
		t.Errorf("Package = %s", manifest.Package)
	}
	if len(manifest.Files) != 2 || manifest.Files[0].Path != evidence.RecordFilename || manifest.Files[1].Path != "photo.jpg" {
		t.Fatalf("Files = %+v, want evidence.json and photo.jpg", manifest.Files)
	}
	if manifest.Files[1].SHA256 != manifest.Artifact {
		t.Errorf("photo digest %s != artifact digest %s", manifest.Files[1].SHA256, manifest.Artifact)
	}

	verified, err := Verify(context.Background(), out)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.RunID != manifest.RunID || len(verified.Files) != len(manifest.Files) {
		t.Errorf("Verify() manifest = %+v, want %+v", verified, manifest)
	}
	if !verified.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %s, want %s", verified.CreatedAt, testNow)
	}
}

func TestExport_DefaultOutput(t *testing.T) {
	dir := newPackage(t)

	if _, err := Export(context.Background(), dir, "", testNow); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if _, err := os.Stat(dir + Extension); err != nil {
		t.Errorf("default output not written: %v", err)
	}
}

func TestExport_Refusals(t *testing.T) {
	dir := newPackage(t)

	t.Run("output inside package", func(t *testing.T) {
		_, err := Export(context.Background(), dir, filepath.Join(dir, "x.tar.zst"), testNow)
		if !errors.Is(err, ErrOutputInPackage) {
			t.Errorf("error = %v, want ErrOutputInPackage", err)
		}
	})

	t.Run("not a package", func(t *testing.T) {
		_, err := Export(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "x.tar.zst"), testNow)
		if err == nil {
			t.Error("Export() of a directory without evidence.json should fail")
		}
	})

	t.Run("existing output", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "x.tar.zst")
		if err := os.WriteFile(out, []byte("keep"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Export(context.Background(), dir, out, testNow); err == nil {
			t.Error("Export() overwrote an existing file")
		}
		data, _ := os.ReadFile(out)
		if string(data) != "keep" {
			t.Errorf("existing output modified: %q", data)
		}
	})
}

func TestVerify_Tampered(t *testing.T) {
	dir := newPackage(t)
	ctx := context.Background()

	files, err := collectFiles(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	manifest := &Manifest{
		Version:   ManifestVersion,
		CreatedAt: testNow,
		Package:   filepath.Base(dir),
		Files:     files,
	}
	manifest.Files[1].SHA256 = strings.Repeat("0", 64)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "tampered.tar.zst")
	if err := writeArchive(out, data, dir, manifest); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(ctx, out); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Verify() error = %v, want ErrChecksumMismatch", err)
	}
}

func TestVerify_NotABundle(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.tar.zst")
	if err := os.WriteFile(p, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(context.Background(), p); err == nil {
		t.Error("Verify() of junk should fail")
	}
}

type fakePutter struct {
	bucket, key, sha string
	size             int64
	body             []byte
	err              error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error {
	if f.err != nil {
		return f.err
	}
	f.bucket, f.key, f.size, f.sha = bucket, key, size, sha256
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.body = buf.Bytes()
	return nil
}

func TestUpload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pkg.tar.zst")
	if err := os.WriteFile(p, []byte("bundle"), 0o644); err != nil {
		t.Fatal(err)
	}

	putter := &fakePutter{}
	loc, err := Upload(context.Background(), putter, "evidence", "/photos/2026/", p)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if loc != "s3://evidence/photos/2026/pkg.tar.zst" {
		t.Errorf("location = %s", loc)
	}
	if putter.key != "photos/2026/pkg.tar.zst" || putter.size != 6 || string(putter.body) != "bundle" {
		t.Errorf("putter got key=%s size=%d body=%q", putter.key, putter.size, putter.body)
	}
	// sha256("bundle")
	if len(putter.sha) != 64 {
		t.Errorf("sha = %q, want hex digest", putter.sha)
	}
}

func TestUpload_Errors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pkg.tar.zst")
	if err := os.WriteFile(p, []byte("bundle"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Upload(context.Background(), &fakePutter{}, "", "", p); err == nil {
		t.Error("Upload() without bucket should fail")
	}

	boom := errors.New("boom")
	if _, err := Upload(context.Background(), &fakePutter{err: boom}, "b", "", p); !errors.Is(err, boom) {
		t.Errorf("Upload() error = %v, want wrapped boom", err)
	}
}

func TestEncodeSHA256(t *testing.T) {
	got, err := encodeSHA256("00ff")
	if err != nil {
		t.Fatalf("encodeSHA256() error = %v", err)
	}
	if got != "AP8=" {
		t.Errorf("encodeSHA256() = %s, want AP8=", got)
	}

	if _, err := encodeSHA256(""); err == nil {
		t.Error("encodeSHA256(\"\") should fail")
	}
	if _, err := encodeSHA256("zz"); err == nil {
		t.Error("encodeSHA256(\"zz\") should fail")
	}
}

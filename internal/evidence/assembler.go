package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-verix/timeproof/internal/fanout"
	"github.com/open-verix/timeproof/internal/integrity"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/providers/metadata"
	"github.com/open-verix/timeproof/internal/publish"
)

// TimeSource acquires a network UTC instant.
type TimeSource interface {
	Now(ctx context.Context) oracle.TimeAttestation
}

// QuoteSource acquires one market snapshot per symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) oracle.QuoteAttestation
}

// PublishChecker probes publication URLs.
type PublishChecker interface {
	CheckAll(ctx context.Context, urls []string) []publish.Check
}

// Renderer produces one human-readable report from a persisted record.
type Renderer interface {
	Name() string

	// Filename is the report's name inside the package directory
	Filename() string

	Render(rec *Record, w io.Writer) error
}

// Indexer records finished packages, e.g. in a history database.
type Indexer interface {
	Add(ctx context.Context, dir string, rec *Record) error
}

// Options configures an Assembler.
type Options struct {
	// OutputDir is the root under which package directories are created
	OutputDir string

	// GeneratorVersion is stamped into every record
	GeneratorVersion string

	// Concurrency bounds parallel quote fetches; <= 1 is sequential
	Concurrency int

	Time     TimeSource
	Quotes   QuoteSource
	Publish  PublishChecker
	Metadata metadata.Provider

	// Renderers run after the record is persisted, in order
	Renderers []Renderer

	// Index is optional
	Index Indexer

	Logger *zap.Logger

	// Now and NewID default to the wall clock and random UUIDs
	Now   func() time.Time
	NewID func() string
}

// Assembler builds evidence packages.
//
// Each run owns its Record until it is written; an Assembler holds no
// per-run state and may be reused.
type Assembler struct {
	opts Options
}

// NewAssembler creates an assembler. Time, Quotes and Publish are required.
func NewAssembler(opts Options) (*Assembler, error) {
	switch {
	case opts.OutputDir == "":
		return nil, fmt.Errorf("%w: output directory", ErrMissingDependency)
	case opts.Time == nil:
		return nil, fmt.Errorf("%w: time source", ErrMissingDependency)
	case opts.Quotes == nil:
		return nil, fmt.Errorf("%w: quote source", ErrMissingDependency)
	case opts.Publish == nil:
		return nil, fmt.Errorf("%w: publish checker", ErrMissingDependency)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Assembler{opts: opts}, nil
}

// Assemble runs one generation:
//  1. Hash the source (the only fatal step)
//  2. Read embedded metadata
//  3. Acquire network time
//  4. Acquire quotes per symbol
//  5. Allocate a package directory
//  6. Copy the artifact into it
//  7. Re-verify the copy
//  8. Probe publish URLs
//  9. Persist the record, then render reports and index it
//
// Failures in steps 2-4 and 6-8 are recorded in the returned Record.
// A Go error means no package was produced, or (for ErrPackageDir and
// ErrPersist) the disk refused the package.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Package, error) {
	start := time.Now()
	log := a.opts.Logger.With(zap.String("artifact", req.Path))

	if strings.TrimSpace(req.Path) == "" {
		return nil, ErrInvalidArtifact
	}

	// Step 1: hash
	hash, err := integrity.Compute(ctx, req.Path)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	log.Debug("artifact hashed", zap.String("sha256", hash.Value))

	rec := &Record{
		Format:           FormatVersion,
		GeneratorVersion: a.opts.GeneratorVersion,
		RunID:            a.opts.NewID(),
		CreatedAt:        a.opts.Now().UTC(),
		OriginalPath:     req.Path,
		SHA256:           hash.Value,
		HashAlgorithm:    hash.Algorithm,
		PublishURLs:      cleanList(req.PublishURLs),
	}

	// Step 2: metadata
	rec.Metadata, rec.MetadataError = a.readMetadata(ctx, req.Path)
	if rec.MetadataError != nil {
		log.Warn("metadata unavailable", zap.String("reason", *rec.MetadataError))
	}

	// Step 3: time
	rec.Time = a.opts.Time.Now(ctx)
	if rec.Time.Error != nil {
		log.Warn("network time unavailable", zap.String("reason", *rec.Time.Error))
	} else {
		log.Debug("network time acquired", zap.String("source", *rec.Time.Source))
	}

	// Step 4: quotes
	rec.Quotes = fanout.Map(ctx, a.opts.Concurrency, cleanList(req.Symbols), a.opts.Quotes.Quote)
	for i := range rec.Quotes {
		q := &rec.Quotes[i]
		if q.Error != nil {
			log.Warn("quote unavailable", zap.String("symbol", q.Symbol), zap.String("reason", *q.Error))
			continue
		}
		if rec.Stock == nil {
			stock := *q
			rec.Stock = &stock
		}
	}

	// Step 5: package directory
	dir, err := CreatePackageDir(a.opts.OutputDir, rec.CreatedAt.Local())
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("package", dir))

	// Steps 6 and 7: copy and re-verify
	copied, err := CopyArtifact(req.Path, dir)
	if errors.Is(err, ErrModTime) {
		log.Warn("packaged copy keeps the copy time", zap.Error(err))
		err = nil
	}
	if err != nil {
		log.Warn("artifact copy failed", zap.Error(err))
		rec.Verification = integrity.Missing(hash, err.Error())
	} else {
		rec.CopiedPath = &copied
		rec.Verification = integrity.Verify(ctx, copied, hash)
		if !rec.Verification.Intact() {
			log.Warn("packaged copy failed verification")
		}
	}

	// Step 8: publish URLs
	if len(rec.PublishURLs) == 0 {
		rec.PublishChecks = []publish.Check{}
	} else {
		rec.PublishChecks = a.opts.Publish.CheckAll(ctx, rec.PublishURLs)
	}

	// Step 9: persist, then hand off
	recordPath, err := WriteRecord(dir, rec)
	if err != nil {
		return nil, err
	}

	pkg := &Package{
		Dir:        dir,
		RecordPath: recordPath,
		Record:     rec,
		Reports:    a.render(dir, rec, log),
	}

	if a.opts.Index != nil {
		if err := a.opts.Index.Add(ctx, dir, rec); err != nil {
			log.Warn("failed to index package", zap.Error(err))
		}
	}

	pkg.Duration = time.Since(start)
	log.Info("evidence package written",
		zap.String("run_id", rec.RunID),
		zap.Int("gaps", len(rec.Gaps())),
		zap.Duration("duration", pkg.Duration))

	return pkg, nil
}

func (a *Assembler) readMetadata(ctx context.Context, path string) (map[string]string, *string) {
	if a.opts.Metadata == nil {
		return map[string]string{}, nil
	}

	tags, err := a.opts.Metadata.Read(ctx, path)
	switch {
	case errors.Is(err, metadata.ErrNoMetadata):
		return map[string]string{}, nil
	case err != nil:
		msg := err.Error()
		return map[string]string{}, &msg
	case tags == nil:
		return map[string]string{}, nil
	}
	return tags, nil
}

// render runs every renderer; a failing renderer is logged and skipped.
func (a *Assembler) render(dir string, rec *Record, log *zap.Logger) []string {
	reports := []string{}
	for _, r := range a.opts.Renderers {
		path := filepath.Join(dir, r.Filename())
		if err := renderFile(path, r, rec); err != nil {
			log.Warn("report rendering failed", zap.String("renderer", r.Name()), zap.Error(err))
			continue
		}
		reports = append(reports, path)
	}
	return reports
}

func renderFile(path string, r Renderer, rec *Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := r.Render(rec, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// cleanList trims entries and drops blanks, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Package index keeps a SQLite history of generated evidence packages so
// earlier runs can be found by artifact digest.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/open-verix/timeproof/internal/evidence"
)

// ErrClosed indicates the index was used after Close.
var ErrClosed = errors.New("index is closed")

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one indexed package.
type Entry struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	SHA256       string    `json:"sha256" yaml:"sha256"`
	OriginalPath string    `json:"original_path" yaml:"original_path"`
	PackageDir   string    `json:"package_dir" yaml:"package_dir"`
	TimeSource   string    `json:"time_source,omitempty" yaml:"time_source,omitempty"`
	TimeInstant  string    `json:"time_instant,omitempty" yaml:"time_instant,omitempty"`
	QuotesOK     int       `json:"quotes_ok" yaml:"quotes_ok"`
	PublishOK    int       `json:"publish_ok" yaml:"publish_ok"`
	Gaps         int       `json:"gaps" yaml:"gaps"`
	Intact       bool      `json:"intact" yaml:"intact"`
}

// Index is a package history database.
type Index struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates or opens the index at path.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

// Close closes the database connection.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.db == nil {
		return nil
	}
	err := i.db.Close()
	i.db = nil
	return err
}

// Path returns the database file path.
func (i *Index) Path() string {
	return i.path
}

func (i *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS packages (
		run_id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		original_path TEXT NOT NULL,
		package_dir TEXT NOT NULL,
		time_source TEXT,
		time_instant TEXT,
		quotes_ok INTEGER NOT NULL DEFAULT 0,
		publish_ok INTEGER NOT NULL DEFAULT 0,
		gaps INTEGER NOT NULL DEFAULT 0,
		intact INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_packages_sha256 ON packages(sha256);
	CREATE INDEX IF NOT EXISTS idx_packages_created ON packages(created_at);
	`
	_, err := i.db.Exec(schema)
	return err
}

// Add records the package at dir. It satisfies evidence.Indexer.
func (i *Index) Add(ctx context.Context, dir string, rec *evidence.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.db == nil {
		return ErrClosed
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	quotesOK := 0
	for _, q := range rec.Quotes {
		if q.OK() {
			quotesOK++
		}
	}
	publishOK := 0
	for _, c := range rec.PublishChecks {
		if c.OK() {
			publishOK++
		}
	}

	_, err = i.db.ExecContext(ctx, `
		INSERT INTO packages (run_id, created_at, sha256, original_path, package_dir,
			time_source, time_instant, quotes_ok, publish_ok, gaps, intact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.CreatedAt.UTC().Format(timeLayout),
		rec.SHA256,
		rec.OriginalPath,
		abs,
		nullString(rec.Time.Source),
		nullString(rec.Time.UTCInstant),
		quotesOK,
		publishOK,
		len(rec.Gaps()),
		boolInt(rec.Verification.Intact()),
	)
	if err != nil {
		return fmt.Errorf("failed to index package %s: %w", rec.RunID, err)
	}
	return nil
}

// List returns the most recent packages first. A non-positive limit
// returns every package.
func (i *Index) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return i.query(ctx, `SELECT `+columns+` FROM packages ORDER BY created_at DESC, run_id LIMIT ?`, limit)
}

// Find returns every package of the artifact with the given digest, most
// recent first.
func (i *Index) Find(ctx context.Context, sha256 string) ([]Entry, error) {
	return i.query(ctx, `SELECT `+columns+` FROM packages WHERE sha256 = ? ORDER BY created_at DESC, run_id`, sha256)
}

const columns = `run_id, created_at, sha256, original_path, package_dir,
	time_source, time_instant, quotes_ok, publish_ok, gaps, intact`

func (i *Index) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.db == nil {
		return nil, ErrClosed
	}

	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			created    string
			timeSource sql.NullString
			instant    sql.NullString
			intact     int
		)
		if err := rows.Scan(&e.RunID, &created, &e.SHA256, &e.OriginalPath, &e.PackageDir,
			&timeSource, &instant, &e.QuotesOK, &e.PublishOK, &e.Gaps, &intact); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q in index: %w", created, err)
		}
		e.TimeSource = timeSource.String
		e.TimeInstant = instant.String
		e.Intact = intact != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	return entries, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

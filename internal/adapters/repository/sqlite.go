package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	_ "modernc.org/sqlite"

	"github.com/okian/botpulse/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS ranges (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ranges_fetched_at ON ranges(fetched_at);
`

// SQLiteStore persists entries in a SQLite file. Payloads are snappy
// compressed; fetched_at is unix milliseconds.
type SQLiteStore struct {
	settings
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the cache database at path.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	s := &SQLiteStore{settings: defaultSettings(), db: db}
	for _, opt := range opts {
		opt(&s.settings)
	}
	if n, err := s.Count(context.Background()); err == nil {
		metrics.UpdateCacheEntries(n)
	}
	return s, nil
}

// Get returns the entry for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		blob []byte
		ms   int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT payload, fetched_at FROM ranges WHERE key = ?", key).Scan(&blob, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	payload, err := snappy.Decode(nil, blob)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: %w", ErrCorrupt, key, err)
	}
	return Entry{Key: key, Payload: payload, FetchedAt: time.UnixMilli(ms)}, nil
}

// Put upserts payload under key.
func (s *SQLiteStore) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ranges (key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, snappy.Encode(nil, payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite put %q: %w", key, err)
	}
	if n, err := s.Count(ctx); err == nil {
		metrics.UpdateCacheEntries(n)
	}
	return nil
}

// Purge removes entries fetched before olderThan.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ranges WHERE fetched_at < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	n, _ := res.RowsAffected()
	if c, err := s.Count(ctx); err == nil {
		metrics.UpdateCacheEntries(c)
	}
	return int(n), nil
}

// Count returns the number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ranges").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cache entries in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// cache table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps concurrent reads cheap while the manager writes through.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get implements Store. Expired rows are deleted inline.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var expiresMs int64
	row := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key)
	if err := row.Scan(&value, &expiresMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var expiresAt time.Time
	if expiresMs > 0 {
		expiresAt = time.UnixMilli(expiresMs)
		if time.Now().After(expiresAt) {
			_, _ = s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
			return nil, time.Time{}, false, nil
		}
	}
	return value, expiresAt, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var expiresMs int64
	if !expiresAt.IsZero() {
		expiresMs = expiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresMs)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

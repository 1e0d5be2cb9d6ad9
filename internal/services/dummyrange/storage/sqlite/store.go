// Package sqlite provides a SQLite-backed dummyrange storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/dummyrange/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/storage"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists profile-cache entries and range snapshots in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.CacheStore    = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store, creating its directory when needed, and applies
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutCacheEntry upserts one cache value keyed by kind and argument.
func (s *Store) PutCacheEntry(ctx context.Context, entry storage.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.Kind) == "" {
		return fmt.Errorf("cache kind is required")
	}
	if entry.Value == nil {
		return fmt.Errorf("cache value is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profile_cache (kind, arg, value, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, arg) DO UPDATE SET
		   value = excluded.value,
		   created_at = excluded.created_at`,
		entry.Kind,
		entry.Arg,
		entry.Value,
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// ListCacheEntries returns every persisted cache value, oldest first.
func (s *Store) ListCacheEntries(ctx context.Context) ([]storage.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT kind, arg, value, created_at
		 FROM profile_cache
		 ORDER BY created_at, kind, arg`,
	)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.CacheEntry
	for rows.Next() {
		var (
			entry     storage.CacheEntry
			createdAt int64
		)
		if err := rows.Scan(&entry.Kind, &entry.Arg, &entry.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

// ClearCacheEntries deletes every persisted cache value.
func (s *Store) ClearCacheEntries(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM profile_cache`); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	return nil
}

// PutSnapshot upserts a named range snapshot.
func (s *Store) PutSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(snapshot.Name)
	if name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	if len(snapshot.Payload) == 0 {
		return fmt.Errorf("snapshot payload is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO range_snapshots (name, payload, saved_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   payload = excluded.payload,
		   saved_at = excluded.saved_at`,
		name,
		snapshot.Payload,
		toMillis(snapshot.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a named range snapshot or storage.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, name string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Snapshot{}, fmt.Errorf("snapshot name is required")
	}

	var (
		snapshot storage.Snapshot
		savedAt  int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT name, payload, saved_at FROM range_snapshots WHERE name = ?`,
		name,
	).Scan(&snapshot.Name, &snapshot.Payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	snapshot.SavedAt = fromMillis(savedAt)
	return snapshot, nil
}

// DeleteSnapshot removes a named range snapshot; missing names are ignored.
func (s *Store) DeleteSnapshot(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM range_snapshots WHERE name = ?`, strings.TrimSpace(name)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

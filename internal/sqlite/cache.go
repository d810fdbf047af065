package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/twtxt/internal/domain"
	_ "modernc.org/sqlite"
)

const lastUpdateKey = "last_update"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		url           TEXT PRIMARY KEY,
		last_modified TEXT NOT NULL,
		body          TEXT NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Cache implements domain.CacheRepository on a SQLite file.
type Cache struct {
	db *sql.DB
}

var _ domain.CacheRepository = (*Cache)(nil)

// NewCache opens (creating if needed) the cache database at path and
// applies the schema. The caller should call Close when done.
func NewCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cache entry for url, or nil if there is none.
func (c *Cache) Get(ctx context.Context, url string) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{URL: url}
	err := c.db.QueryRowContext(ctx,
		`SELECT last_modified, body FROM cache_entries WHERE url = ?`, url,
	).Scan(&entry.LastModified, &entry.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry %s: %w", url, err)
	}
	return entry, nil
}

// Set upserts the entry for entry.URL.
func (c *Cache) Set(ctx context.Context, entry *domain.CacheEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (url, last_modified, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			last_modified = excluded.last_modified,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		entry.URL, entry.LastModified, entry.Body, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set cache entry %s: %w", entry.URL, err)
	}
	return nil
}

// Delete removes the entry for url.
func (c *Cache) Delete(ctx context.Context, url string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE url = ?`, url)
	return err
}

// Clean removes every entry whose URL is not in keep and returns the number
// of rows deleted.
func (c *Cache) Clean(ctx context.Context, keep []string) (int64, error) {
	query := `DELETE FROM cache_entries`
	args := make([]any, len(keep))
	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, url := range keep {
			placeholders[i] = "?"
			args[i] = url
		}
		query += ` WHERE url NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale entries: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// LastUpdate returns the time recorded by MarkUpdated, or the zero time.
func (c *Cache) LastUpdate(ctx context.Context) (time.Time, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE name = ?`, lastUpdateKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last update: %w", err)
	}

	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last update %q: %w", value, err)
	}
	return time.Unix(0, nanos), nil
}

// MarkUpdated records t as the time of the last network refresh.
func (c *Cache) MarkUpdated(ctx context.Context, t time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO meta (name, value)
		VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		lastUpdateKey, strconv.FormatInt(t.UnixNano(), 10),
	)
	return err
}

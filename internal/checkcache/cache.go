// Package checkcache persists per-record "last checked" timestamps in
// SQLite so the full-cycle throttle survives daemon restarts.
package checkcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the durable last-checked store.
type Cache struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS checked (
    record       TEXT PRIMARY KEY,
    last_checked TEXT NOT NULL
);
`

// Open initializes or connects to the cache database.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// LastChecked returns when the record was last checked, and whether any
// entry exists for it.
func (c *Cache) LastChecked(ctx context.Context, record string) (time.Time, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT last_checked FROM checked WHERE record = ?`, record)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("query last checked: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last checked for %q: %w", record, err)
	}
	return at, true, nil
}

// MarkChecked records when the record's out-of-band checks were started.
func (c *Cache) MarkChecked(ctx context.Context, record string, at time.Time) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO checked (record, last_checked) VALUES (?, ?)
         ON CONFLICT(record) DO UPDATE SET last_checked = excluded.last_checked`,
		record,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// Forget drops the entry for a record, forcing the next full cycle to
// check it regardless of the throttle window.
func (c *Cache) Forget(ctx context.Context, record string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM checked WHERE record = ?`, record); err != nil {
		return fmt.Errorf("forget record: %w", err)
	}
	return nil
}

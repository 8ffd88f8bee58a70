// Package journal persists delivered file events to SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filemonitor/internal/event"
	"filemonitor/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor     TEXT    NOT NULL,
	path        TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_monitor_id ON events (monitor, id);
`

const defaultRecentLimit = 100

var ErrPathRequired = errors.New("journal path is required")

// Journal appends events to an SQLite table.
type Journal struct {
	conn *sql.DB
}

// Open creates or opens the journal at path. ":memory:" keeps the journal
// in memory for the lifetime of the Journal.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// An in-memory database lives only as long as its connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, entry event.FileEvent) error {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := j.conn.ExecContext(ctx,
		`INSERT INTO events (monitor, path, kind, occurred_at) VALUES (?, ?, ?, ?)`,
		entry.Monitor, entry.Path, entry.Kind, occurredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. An empty monitor matches
// every monitor.
func (j *Journal) Recent(ctx context.Context, monitor string, limit int) ([]event.FileEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := `SELECT monitor, path, kind, occurred_at FROM events`
	args := []any{}
	if monitor != "" {
		query += ` WHERE monitor = ?`
		args = append(args, monitor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.FileEvent
	for rows.Next() {
		var entry event.FileEvent
		var occurredAt int64
		if err := rows.Scan(&entry.Monitor, &entry.Path, &entry.Kind, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entry.OccurredAt = time.Unix(0, occurredAt).UTC()
		events = append(events, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

func (j *Journal) Count(ctx context.Context) (int, error) {
	var count int
	if err := j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (j *Journal) Close() error {
	if j == nil || j.conn == nil {
		return nil
	}
	return j.conn.Close()
}

// Consume records events until the channel closes or ctx is done. Failed
// writes are logged and skipped.
func (j *Journal) Consume(ctx context.Context, events <-chan event.FileEvent, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-events:
			if !ok {
				return
			}
			if err := j.Record(ctx, entry); err != nil && logger != nil && ctx.Err() == nil {
				logger.Warn("journal write failed", map[string]string{
					"filemonitor.category": "journal",
					"path":                 entry.Path,
					"error":                err.Error(),
				})
			}
		}
	}
}

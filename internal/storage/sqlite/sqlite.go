// Package sqlite stores snapshots and the event log in a local SQLite file.
// It serves single-user setups and the novelctl tool.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	applog "github.com/xchatlife/novelgraph/internal/log"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

const (
	opTimeout  = 5 * time.Second
	// fixed width so that text timestamps sort chronologically
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store is a SQLite-backed snapshot repository and event sink.
type Store struct {
	db      *sql.DB
	path    string
	novelID string
	logger  *slog.Logger
}

// Open creates or opens the database at path. novelID tags appended events.
func Open(ctx context.Context, path, novelID string) (*Store, error) {
	l := applog.WithComponent("sqlite").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS novels (
			novel_id   TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			snapshot   TEXT NOT NULL,
			revision   INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts       TEXT NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   TEXT,
			novel_id TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_novel_id ON events(novel_id);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}

	l.Debug("sqlite store ready")
	return &Store{db: db, path: path, novelID: novelID, logger: l}, nil
}

// Save upserts a snapshot document and returns its new revision.
func (s *Store) Save(ctx context.Context, novelID, title string, data []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC().Format(timeFormat)
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO novels (novel_id, title, snapshot, revision, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(novel_id) DO UPDATE
		SET title = excluded.title,
		    snapshot = excluded.snapshot,
		    revision = novels.revision + 1,
		    updated_at = excluded.updated_at
		RETURNING revision`, novelID, title, string(data), now).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("save novel %s: %w", novelID, err)
	}
	return rev, nil
}

// Load returns the stored snapshot document of a novel.
func (s *Store) Load(ctx context.Context, novelID string) (snapshot.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		r       snapshot.Record
		data    string
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT novel_id, title, snapshot, revision, updated_at
		FROM novels WHERE novel_id = ?`, novelID).Scan(&r.NovelID, &r.Title, &data, &r.Revision, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Record{}, fmt.Errorf("%w: %s", snapshot.ErrNotFound, novelID)
	}
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("load novel %s: %w", novelID, err)
	}
	r.Data = []byte(data)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

// List returns every stored novel, most recently updated first.
func (s *Store) List(ctx context.Context) ([]snapshot.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT novel_id, title, revision, updated_at
		FROM novels ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []snapshot.Summary
	for rows.Next() {
		var sum snapshot.Summary
		var updated string
		if err := rows.Scan(&sum.NovelID, &sum.Title, &sum.Revision, &updated); err != nil {
			return nil, err
		}
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AppendEvent inserts an event row.
func (s *Store) AppendEvent(ts time.Time, level, name, msg string, fields map[string]interface{}) error {
	var fieldsJSON sql.NullString
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		fieldsJSON = sql.NullString{String: string(b), Valid: true}
	}
	msgVal := sql.NullString{String: msg, Valid: msg != ""}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (ts, level, event, msg, fields, novel_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(timeFormat), level, name, msgVal, fieldsJSON, s.novelID)
	return err
}

// EventCount returns the number of stored events of the store's novel.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE novel_id = ?`, s.novelID).Scan(&n)
	return n, err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Package postgres stores snapshots and the event log in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/xchatlife/novelgraph/internal/config"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

const queryTimeout = 5 * time.Second

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	NovelID   string                 `json:"novel_id"`
}

// Client manages the Postgres connection for snapshots and events.
type Client struct {
	db      *sql.DB
	novelID string

	mu          sync.Mutex
	errorLogged bool
}

// DSNFromEnv builds a connection string from PGHOST, PGPORT, PGUSER,
// PGDATABASE and PGPASSWORD (or PGPASSWORD_FILE).
func DSNFromEnv() (string, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "novelgraph")
	dbname := getEnv("PGDATABASE", "novelgraph")
	sslmode := getEnv("PGSSLMODE", "disable")
	password, err := config.ResolveSecret(config.EnvPGPassword)
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode), nil
}

// New connects using environment variables. novelID tags appended events.
func New(ctx context.Context, novelID string) (*Client, error) {
	dsn, err := DSNFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(ctx, dsn, novelID)
}

// Open connects to dsn and creates the tables if needed.
func Open(ctx context.Context, dsn, novelID string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:      db,
		novelID: novelID,
	}

	if err := client.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS novels (
			novel_id   TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			snapshot   JSONB NOT NULL,
			revision   BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			novel_id   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_novel_id ON events(novel_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Save upserts a snapshot document and returns its new revision.
func (c *Client) Save(ctx context.Context, novelID, title string, data []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO novels (novel_id, title, snapshot, revision, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (novel_id) DO UPDATE
		SET title = EXCLUDED.title,
		    snapshot = EXCLUDED.snapshot,
		    revision = novels.revision + 1,
		    updated_at = EXCLUDED.updated_at
		RETURNING revision
	`
	var rev int64
	err := c.db.QueryRowContext(ctx, query, novelID, title, string(data), time.Now().UTC()).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("save novel %s: %w", novelID, err)
	}
	return rev, nil
}

// Load returns the stored snapshot document of a novel.
func (c *Client) Load(ctx context.Context, novelID string) (snapshot.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT novel_id, title, snapshot, revision, updated_at
		FROM novels
		WHERE novel_id = $1
	`
	var r snapshot.Record
	err := c.db.QueryRowContext(ctx, query, novelID).Scan(&r.NovelID, &r.Title, &r.Data, &r.Revision, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Record{}, fmt.Errorf("%w: %s", snapshot.ErrNotFound, novelID)
	}
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("load novel %s: %w", novelID, err)
	}
	return r, nil
}

// List returns every stored novel, most recently updated first.
func (c *Client) List(ctx context.Context) ([]snapshot.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `
		SELECT novel_id, title, revision, updated_at
		FROM novels
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []snapshot.Summary
	for rows.Next() {
		var s snapshot.Summary
		if err := rows.Scan(&s.NovelID, &s.Title, &s.Revision, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendEvent inserts an event into the database.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
		INSERT INTO events (ts, level, event, msg, fields, novel_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = c.db.ExecContext(ctx, query, ts, level, event, msgPtr, fieldsJSON, c.novelID)
	return err
}

// Query returns the last N events of the client's novel, newest first.
func (c *Client) Query(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, novel_id
		FROM events
		WHERE novel_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.novelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.NovelID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Ping checks the connection. Used by readiness.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged marks that an error has been logged (to avoid spam).
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError returns true if an error has been logged.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}

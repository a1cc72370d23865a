package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

var (
	_ snapshot.Repository = (*Client)(nil)
	_ events.Sink         = (*Client)(nil)
)

func TestDSNFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGUSER", "writer")
	t.Setenv("PGDATABASE", "stories")
	t.Setenv("PGSSLMODE", "")
	t.Setenv("PGPASSWORD", "")
	secret := filepath.Join(t.TempDir(), "pgpass")
	if err := os.WriteFile(secret, []byte("hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGPASSWORD_FILE", secret)

	dsn, err := DSNFromEnv()
	if err != nil {
		t.Fatalf("DSNFromEnv failed: %v", err)
	}
	for _, want := range []string{"host=db.internal", "port=6543", "user=writer", "dbname=stories", "password=hunter2", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestDSNWithoutPassword(t *testing.T) {
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGPASSWORD_FILE", "")

	dsn, err := DSNFromEnv()
	if err != nil {
		t.Fatalf("DSNFromEnv failed: %v", err)
	}
	if strings.Contains(dsn, "password=") {
		t.Errorf("expected no password in %q", dsn)
	}
}

// TestRoundTrip runs against a live database when NOVELGRAPH_TEST_PG is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("NOVELGRAPH_TEST_PG")
	if dsn == "" {
		t.Skip("NOVELGRAPH_TEST_PG not set")
	}
	ctx := context.Background()
	c, err := Open(ctx, dsn, "pg-test")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	id := "pg-test-" + time.Now().Format("150405.000000")
	if _, err := c.Load(ctx, id); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rev1, err := c.Save(ctx, id, "first", []byte(`{"version":1,"nodes":[],"edges":[]}`))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rev2, err := c.Save(ctx, id, "second", []byte(`{"version":1,"nodes":[],"edges":[]}`))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rev2 != rev1+1 {
		t.Errorf("expected revision %d, got %d", rev1+1, rev2)
	}
	r, err := c.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Title != "second" || r.Revision != rev2 {
		t.Errorf("unexpected record %+v", r)
	}

	if err := c.AppendEvent(time.Now(), "info", "graph.saved", "", map[string]interface{}{"novel_id": id}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	rows, err := c.Query(ctx, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) == 0 {
		t.Error("expected at least one event row")
	}
}

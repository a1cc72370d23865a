package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSink) AppendEvent(ts time.Time, level, name, msg string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.err
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "puzzle.solved", "", nil); err == nil {
		t.Error("expected unknown event to be rejected")
	}
}

func TestEmitPersistsToSink(t *testing.T) {
	rec := &recordingSink{}
	SetSink(rec)
	defer SetSink(nil)

	if _, err := Emit("info", "graph.saved", "saved", map[string]interface{}{"novel_id": "n1"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if len(rec.names) != 1 || rec.names[0] != "graph.saved" {
		t.Errorf("expected graph.saved to be persisted, got %v", rec.names)
	}
	if GetSink() != Sink(rec) {
		t.Error("expected GetSink to return the configured sink")
	}
}

func TestSinkFailureReportedOnce(t *testing.T) {
	Clear()
	SetSink(&recordingSink{err: errors.New("connection refused")})
	defer SetSink(nil)

	for i := 0; i < 3; i++ {
		if _, err := Emit("info", "node.added", "", nil); err != nil {
			t.Fatalf("Emit must not fail when the sink does: %v", err)
		}
	}

	errorsSeen := 0
	for _, e := range RecentEvents(0, Filter{}) {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly one system.error, got %d", errorsSeen)
	}
}

func TestTotalCountSurvivesClear(t *testing.T) {
	before := TotalCount()
	Emit("info", "layout.computed", "", nil)
	Clear()
	if TotalCount() != before+1 {
		t.Errorf("expected total %d, got %d", before+1, TotalCount())
	}
	if len(RecentEvents(0, Filter{})) != 0 {
		t.Error("expected empty buffer after Clear")
	}
}

package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xchatlife/novelgraph/internal/log"
)

var buffer = NewRingBuffer(256)

// Sink persists emitted events. The Postgres and SQLite stores implement it.
type Sink interface {
	AppendEvent(ts time.Time, level, name, msg string, fields map[string]interface{}) error
}

var (
	sink            Sink
	sinkMu          sync.RWMutex
	sinkErrorLogged bool
)

// SetSink sets the store used for event persistence. A nil sink disables it.
func SetSink(s Sink) {
	sinkMu.Lock()
	sink = s
	sinkErrorLogged = false
	sinkMu.Unlock()
}

// GetSink returns the current event sink (for API queries).
func GetSink() Sink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sink
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	sinkMu.RLock()
	s := sink
	sinkMu.RUnlock()

	if s != nil {
		if err := s.AppendEvent(ts, level, name, msg, fields); err != nil {
			reportSinkError(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// reportSinkError records the first persistence failure only. It writes to
// the buffer directly; going through Emit would recurse while the store
// keeps failing.
func reportSinkError(err error) {
	sinkMu.Lock()
	if sinkErrorLogged {
		sinkMu.Unlock()
		return
	}
	sinkErrorLogged = true
	sinkMu.Unlock()

	log.WithComponent("events").Error("event append failed", "error", err)
	errEvent := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	}
	buffer.Add(errEvent)
	broadcast(errEvent)
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return buffer.Total()
}

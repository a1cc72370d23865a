// Package session ties one novel's canvas controller to its snapshot
// repository and save notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xchatlife/novelgraph/internal/canvas"
	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/layout"
	"github.com/xchatlife/novelgraph/internal/log"
	"github.com/xchatlife/novelgraph/internal/mqtt"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

// Status is the persistence state of a session.
type Status string

const (
	StatusNew        Status = "new"
	StatusLoaded     Status = "loaded"
	StatusSaved      Status = "saved"
	StatusSaveFailed Status = "save_failed"
)

// Notifier announces completed saves. *mqtt.Publisher implements it.
type Notifier interface {
	NotifySaved(ctx context.Context, n mqtt.SavedNotice) error
}

// Info is a point-in-time view of the session for status endpoints.
type Info struct {
	NovelID   string    `json:"novel_id"`
	Title     string    `json:"title,omitempty"`
	Status    Status    `json:"status"`
	Revision  int64     `json:"revision"`
	SavedAt   time.Time `json:"saved_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	Dirty     bool      `json:"layout_dirty"`
	Direction string    `json:"direction"`
	Mode      string    `json:"mode"`
}

// Session is one novel being edited. All access to the controller goes
// through Do so that the session has a single mutator.
type Session struct {
	mu sync.Mutex

	novelID  string
	title    string
	ctl      *canvas.Controller
	repo     snapshot.Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	status   Status
	revision int64
	savedAt  time.Time
	lastErr  error
}

type options struct {
	engine    layout.Engine
	dir       layout.Direction
	notifier  Notifier
	now       func() time.Time
	storeOpts []graph.Option
	title     string
}

// Option configures Open.
type Option func(*options)

// WithEngine sets the layout engine.
func WithEngine(e layout.Engine) Option { return func(o *options) { o.engine = e } }

// WithDirection sets the layout direction.
func WithDirection(d layout.Direction) Option { return func(o *options) { o.dir = d } }

// WithNotifier publishes a notice after every successful save.
func WithNotifier(n Notifier) Option { return func(o *options) { o.notifier = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithGraphOptions passes options to the store of a new novel.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithTitle sets the title used when the novel does not exist yet.
func WithTitle(title string) Option { return func(o *options) { o.title = title } }

// Open loads novelID from repo. A novel that was never saved starts from a
// graph holding only its start node. A stored document that fails
// validation is an error; nothing is opened.
func Open(ctx context.Context, repo snapshot.Repository, novelID string, opts ...Option) (*Session, error) {
	if novelID == "" {
		return nil, errors.New("session: novel id is required")
	}
	o := options{dir: layout.TopToBottom, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		novelID:  novelID,
		title:    o.title,
		repo:     repo,
		notifier: o.notifier,
		logger:   log.WithNovel(log.WithComponent("session"), novelID),
		now:      o.now,
	}

	var store *graph.Store
	rec, err := repo.Load(ctx, novelID)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		store = graph.NewStore(o.storeOpts...)
		s.status = StatusNew
	case err != nil:
		return nil, fmt.Errorf("load novel %s: %w", novelID, err)
	default:
		doc, err := snapshot.Decode(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("decode novel %s: %w", novelID, err)
		}
		store, err = graph.FromSnapshot(doc.Snapshot(), o.storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("restore novel %s: %w", novelID, err)
		}
		if rec.Title != "" {
			s.title = rec.Title
		}
		s.status = StatusLoaded
		s.revision = rec.Revision
		s.savedAt = rec.UpdatedAt
	}

	s.ctl = canvas.New(store, o.engine,
		canvas.WithDirection(o.dir),
		canvas.WithLogger(log.WithNovel(log.WithComponent("canvas"), novelID)),
	)
	if store.LayoutDirty() {
		if _, err := s.ctl.Relayout(); err != nil {
			return nil, fmt.Errorf("layout novel %s: %w", novelID, err)
		}
	}

	s.emit("info", "graph.loaded", "graph loaded", map[string]interface{}{
		"novel_id": novelID,
		"status":   string(s.status),
		"revision": s.revision,
		"nodes":    store.NodeCount(),
		"edges":    store.EdgeCount(),
	})
	s.logger.Info("session opened", "status", s.status, "revision", s.revision)
	return s, nil
}

// NovelID returns the novel being edited.
func (s *Session) NovelID() string { return s.novelID }

// Do runs fn with exclusive access to the controller.
func (s *Session) Do(fn func(c *canvas.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ctl)
}

// Info returns the session status.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ctl.Store()
	info := Info{
		NovelID:   s.novelID,
		Title:     s.title,
		Status:    s.status,
		Revision:  s.revision,
		SavedAt:   s.savedAt,
		Nodes:     st.NodeCount(),
		Edges:     st.EdgeCount(),
		Dirty:     st.LayoutDirty(),
		Direction: string(s.ctl.Direction()),
		Mode:      s.ctl.Mode().String(),
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

// SetTitle renames the novel. It takes effect on the next save.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

// Save persists the current graph. On failure the in-memory graph is kept
// as is and the session is marked save_failed until the next successful
// save. A failed notification does not fail the save.
func (s *Session) Save(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ctl.Store()
	now := s.now()
	data, err := snapshot.Encode(s.novelID, s.title, st.Serialize(), now)
	if err != nil {
		return 0, s.saveFailed(fmt.Errorf("encode novel %s: %w", s.novelID, err))
	}
	rev, err := s.repo.Save(ctx, s.novelID, s.title, data)
	if err != nil {
		return 0, s.saveFailed(fmt.Errorf("save novel %s: %w", s.novelID, err))
	}

	s.status = StatusSaved
	s.revision = rev
	s.savedAt = now.UTC()
	s.lastErr = nil

	fields := map[string]interface{}{
		"novel_id": s.novelID,
		"revision": rev,
		"nodes":    st.NodeCount(),
		"edges":    st.EdgeCount(),
		"bytes":    len(data),
	}
	s.emit("info", "graph.saved", "graph saved", fields)
	s.logger.Info("novel saved", "revision", rev, "bytes", len(data))

	if s.notifier != nil {
		notice := mqtt.SavedNotice{
			NovelID:  s.novelID,
			Title:    s.title,
			Revision: rev,
			Nodes:    st.NodeCount(),
			Edges:    st.EdgeCount(),
			SavedAt:  s.savedAt,
		}
		if err := s.notifier.NotifySaved(ctx, notice); err != nil {
			s.logger.Warn("save notice not sent", "error", err)
		}
	}
	return rev, nil
}

func (s *Session) saveFailed(err error) error {
	s.status = StatusSaveFailed
	s.lastErr = err
	s.emit("error", "graph.save_failed", "graph save failed", map[string]interface{}{
		"novel_id": s.novelID,
		"error":    err.Error(),
	})
	s.logger.Error("save failed", "error", err)
	return err
}

// Check runs the well-formedness check and records a graph.checked event.
func (s *Session) Check() []graph.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	issues := s.ctl.Store().Check()
	s.emit("info", "graph.checked", "graph checked", map[string]interface{}{
		"novel_id": s.novelID,
		"issues":   len(issues),
	})
	return issues
}

// Import replaces the graph with an encoded snapshot document. A document
// that fails validation is rejected and the current graph is kept.
func (s *Session) Import(data []byte) error {
	doc, err := snapshot.Decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ctl.Store()
	if err := st.Load(doc.Snapshot()); err != nil {
		return err
	}
	s.ctl.Cancel()
	s.ctl.Select()
	s.ctl.CloseContextMenu()
	s.emit("info", "graph.loaded", "graph imported", map[string]interface{}{
		"novel_id": s.novelID,
		"nodes":    st.NodeCount(),
		"edges":    st.EdgeCount(),
	})
	return nil
}

// Snapshot returns a copy of the current graph.
func (s *Session) Snapshot() graph.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctl.Store().Serialize()
}

func (s *Session) emit(level, name, msg string, fields map[string]interface{}) {
	if _, err := events.Emit(level, name, msg, fields); err != nil {
		s.logger.Error("emit failed", "event", name, "error", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/xchatlife/novelgraph/internal/canvas"
	"github.com/xchatlife/novelgraph/internal/editor"
	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/layout"
	"github.com/xchatlife/novelgraph/internal/log"
	"github.com/xchatlife/novelgraph/internal/playback"
	"github.com/xchatlife/novelgraph/internal/session"
)

// maxBodyBytes caps request bodies, including imported snapshots.
const maxBodyBytes = 4 << 20

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "editor",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Response is the envelope of every /api endpoint.
type Response struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{OK: false, Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, graph.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrInvalidConnection),
		errors.Is(err, graph.ErrCannotDeleteStart),
		errors.Is(err, canvas.ErrBusy),
		errors.Is(err, playback.ErrNotWaiting):
		return http.StatusConflict
	case errors.Is(err, graph.ErrPayloadMismatch),
		errors.Is(err, graph.ErrInvalidVariant),
		errors.Is(err, graph.ErrInvalidSnapshot),
		errors.Is(err, layout.ErrInvalidDirection),
		errors.Is(err, playback.ErrInvalidChoice),
		errors.Is(err, playback.ErrUnwiredChoice),
		errors.Is(err, playback.ErrChoicesMissing):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// Server exposes one editing session over HTTP.
type Server struct {
	sess   *session.Session
	logger *slog.Logger
}

// NewServer creates a server for sess.
func NewServer(sess *session.Session) *Server {
	return &Server{
		sess:   sess,
		logger: log.WithNovel(log.WithComponent("api"), sess.NovelID()),
	}
}

// Handler returns the routes of the server. Reads require any account,
// edits require the editor or admin role and importing a whole graph
// requires admin.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /ws/events", RequireAnyRole(wsEventsHandler))

	mux.HandleFunc("GET /api/session", RequireAnyRole(s.handleSession))
	mux.HandleFunc("GET /api/graph", RequireAnyRole(s.handleGraph))
	mux.HandleFunc("PUT /api/graph", RequireAdmin(s.handleImport))
	mux.HandleFunc("GET /api/check", RequireAnyRole(s.handleCheck))
	mux.HandleFunc("GET /api/forms", RequireAnyRole(handleForms))
	mux.HandleFunc("GET /api/forms/{variant}", RequireAnyRole(handleForm))
	mux.HandleFunc("POST /api/playback", RequireAnyRole(s.handlePlayback))

	mux.HandleFunc("POST /api/nodes", RequireEditor(s.handleAddNode))
	mux.HandleFunc("PATCH /api/nodes/{id}", RequireEditor(s.handleUpdateNode))
	mux.HandleFunc("PUT /api/nodes/{id}/position", RequireEditor(s.handleMoveNode))
	mux.HandleFunc("DELETE /api/nodes/{id}", RequireEditor(s.handleDeleteNode))
	mux.HandleFunc("POST /api/nodes/{id}/menu", RequireEditor(s.handleMenu))
	mux.HandleFunc("POST /api/selection/delete", RequireEditor(s.handleDeleteSelection))
	mux.HandleFunc("POST /api/edges", RequireEditor(s.handleConnect))
	mux.HandleFunc("DELETE /api/edges/{id}", RequireEditor(s.handleDisconnect))
	mux.HandleFunc("POST /api/palette", RequireEditor(s.handlePalette))
	mux.HandleFunc("POST /api/layout", RequireEditor(s.handleLayout))
	mux.HandleFunc("POST /api/save", RequireEditor(s.handleSave))
	return mux
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Info())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}
	if err := s.sess.Import(data); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Info())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	issues := s.sess.Check()
	if issues == nil {
		issues = []graph.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func handleForms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, editor.Forms())
}

func handleForm(w http.ResponseWriter, r *http.Request) {
	v, err := graph.ParseVariant(r.PathValue("variant"))
	if err != nil {
		writeErr(w, err)
		return
	}
	f, err := editor.FormFor(v)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type playbackRequest struct {
	Choices []int `json:"choices"`
}

type playbackResponse struct {
	Frames  []playback.Frame `json:"frames"`
	History []string         `json:"history"`
	Waiting bool             `json:"waiting,omitempty"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := playback.New(s.sess.Snapshot())
	if err != nil {
		writeErr(w, err)
		return
	}
	frames, err := p.Play(req.Choices)
	waiting := errors.Is(err, playback.ErrChoicesMissing)
	if err != nil && !waiting {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackResponse{Frames: frames, History: p.History(), Waiting: waiting})
}

type addNodeRequest struct {
	Variant  string          `json:"variant"`
	Position *graph.Position `json:"position,omitempty"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := graph.ParseVariant(req.Variant)
	if err != nil {
		writeErr(w, err)
		return
	}
	var n graph.Node
	err = s.sess.Do(func(c *canvas.Controller) error {
		n, err = c.OnAddNode(v, req.Position)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

type updateNodeRequest struct {
	Label *string         `json:"label,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// handleUpdateNode validates the whole submission before touching the
// graph, so a rejected payload never leaves a half-applied rename.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var n graph.Node
	err := s.sess.Do(func(c *canvas.Controller) error {
		cur, ok := c.Store().Node(id)
		if !ok {
			return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		}
		var patch graph.Patch
		if len(req.Data) > 0 {
			p, err := editor.Decode(cur.Variant, req.Data)
			if err != nil {
				return err
			}
			patch = p
		}
		if patch != nil {
			if _, err := c.OnUpdateNode(id, patch); err != nil {
				return err
			}
		}
		if req.Label != nil {
			if err := c.OnRenameNode(id, *req.Label); err != nil {
				return err
			}
		}
		n, _ = c.Store().Node(id)
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var pos graph.Position
	if !decodeBody(w, r, &pos) {
		return
	}
	err := s.sess.Do(func(c *canvas.Controller) error {
		return c.OnNodeDragEnd(id, pos)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var failures []canvas.DeleteFailure
	_ = s.sess.Do(func(c *canvas.Controller) error {
		failures = c.OnDeleteSelection([]string{id})
		return nil
	})
	if len(failures) > 0 {
		writeErr(w, failures[0].Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type deleteSelectionRequest struct {
	NodeIDs []string `json:"node_ids"`
}

type deleteFailure struct {
	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

type deleteSelectionResponse struct {
	Deleted []string        `json:"deleted"`
	Failed  []deleteFailure `json:"failed"`
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	var req deleteSelectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var failures []canvas.DeleteFailure
	_ = s.sess.Do(func(c *canvas.Controller) error {
		failures = c.OnDeleteSelection(req.NodeIDs)
		return nil
	})

	failed := make(map[string]bool, len(failures))
	resp := deleteSelectionResponse{Deleted: []string{}, Failed: []deleteFailure{}}
	for _, f := range failures {
		failed[f.NodeID] = true
		resp.Failed = append(resp.Failed, deleteFailure{NodeID: f.NodeID, Error: f.Err.Error()})
	}
	for _, id := range req.NodeIDs {
		if !failed[id] {
			resp.Deleted = append(resp.Deleted, id)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type menuRequest struct {
	Position graph.Position `json:"position"`
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req menuRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var m canvas.Menu
	err := s.sess.Do(func(c *canvas.Controller) (err error) {
		m, err = c.OpenContextMenu(id, req.Position)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type connectRequest struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var e graph.Edge
	err := s.sess.Do(func(c *canvas.Controller) (err error) {
		e, err = c.OnConnectEdge(req.Source, req.SourceHandle, req.Target)
		// The rejection is reported in the response; the canvas is ready
		// for the next gesture.
		c.DismissRejection()
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.sess.Do(func(c *canvas.Controller) error {
		return c.OnDisconnect(id)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type paletteRequest struct {
	ParentID string `json:"parent_id"`
	Variant  string `json:"variant"`
}

type paletteResponse struct {
	Node graph.Node `json:"node"`
	Edge graph.Edge `json:"edge"`
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	var req paletteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := graph.ParseVariant(req.Variant)
	if err != nil {
		writeErr(w, err)
		return
	}
	var resp paletteResponse
	err = s.sess.Do(func(c *canvas.Controller) (err error) {
		resp.Node, resp.Edge, err = c.OnAddFromPalette(req.ParentID, v)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type layoutRequest struct {
	Direction string `json:"direction,omitempty"`
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var positions map[string]graph.Position
	err := s.sess.Do(func(c *canvas.Controller) error {
		if req.Direction != "" {
			d, err := layout.ParseDirection(req.Direction)
			if err != nil {
				return err
			}
			if err := c.SetDirection(d); err != nil {
				return err
			}
			positions = make(map[string]graph.Position)
			for _, n := range c.Store().Nodes() {
				positions[n.ID] = n.Position
			}
			return nil
		}
		var err error
		positions, err = c.ForceLayout()
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

type saveResponse struct {
	Revision int64 `json:"revision"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	rev, err := s.sess.Save(r.Context())
	if err != nil {
		recordSaveFailure()
		SendAlert(AlertSaveFailed, SeverityWarning, "novel save failed", map[string]interface{}{
			"novel_id": s.sess.NovelID(),
			"error":    err.Error(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recordSave(time.Now())
	writeJSON(w, http.StatusOK, saveResponse{Revision: rev})
}

// Run serves on the given port, with TLS when configured, until ctx is
// cancelled. Open event streams are closed on shutdown.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg := serverTLSConfig(); cfg != nil {
			srv.TLSConfig = cfg
			s.logger.Info("listening", "addr", srv.Addr, "tls", true)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		s.logger.Info("listening", "addr", srv.Addr, "tls", false)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package canvas turns editor gestures into graph store mutations and keeps
// the transient interaction state of one editing session.
package canvas

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/layout"
	"github.com/xchatlife/novelgraph/internal/log"
)

// Mode is the interaction state of the canvas.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Connecting
	ConnectionRejected
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Connecting:
		return "connecting"
	case ConnectionRejected:
		return "connection_rejected"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ErrBusy is returned when a gesture starts while another is in progress.
var ErrBusy = errors.New("canvas: another gesture is in progress")

// Pending is a connection being dragged from a source handle.
type Pending struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Rejection records why the last connection attempt was refused.
type Rejection struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	Reason       string `json:"reason"`
}

// DeleteFailure is a node of a selection that could not be deleted.
type DeleteFailure struct {
	NodeID string
	Err    error
}

// Menu is an open node context menu. Options lists the variants the
// palette may attach to the node.
type Menu struct {
	NodeID   string          `json:"nodeId"`
	Position graph.Position  `json:"position"`
	Options  []graph.Variant `json:"options"`
}

// Controller owns the store of one editing session. It is not safe for
// concurrent use.
type Controller struct {
	store  *graph.Store
	engine layout.Engine
	dir    layout.Direction
	logger *slog.Logger

	autoLayout bool

	mode      Mode
	dragNode  string
	pending   *Pending
	rejection *Rejection
	selection []string
	menu      *Menu
}

// Option configures a Controller.
type Option func(*Controller)

// WithDirection sets the layout direction. The default is top to bottom.
func WithDirection(d layout.Direction) Option {
	return func(c *Controller) { c.dir = d }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithAutoLayout controls whether structural changes trigger an immediate
// relayout. Enabled by default.
func WithAutoLayout(on bool) Option {
	return func(c *Controller) { c.autoLayout = on }
}

// New creates a controller over store. A nil engine uses layout.NewLayered.
func New(store *graph.Store, engine layout.Engine, opts ...Option) *Controller {
	if engine == nil {
		engine = layout.NewLayered()
	}
	c := &Controller{
		store:      store,
		engine:     engine,
		dir:        layout.TopToBottom,
		autoLayout: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithComponent("canvas")
	}
	return c
}

// Store returns the underlying graph store.
func (c *Controller) Store() *graph.Store { return c.store }

// Mode returns the current interaction state.
func (c *Controller) Mode() Mode { return c.mode }

// Direction returns the layout direction.
func (c *Controller) Direction() layout.Direction { return c.dir }

// DragNode returns the node being dragged, if any.
func (c *Controller) DragNode() (string, bool) {
	return c.dragNode, c.mode == Dragging
}

// PendingConnection returns the connection being dragged, if any.
func (c *Controller) PendingConnection() (Pending, bool) {
	if c.pending == nil {
		return Pending{}, false
	}
	return *c.pending, true
}

// Rejection returns the reason of the last refused connection while the
// canvas is in ConnectionRejected.
func (c *Controller) Rejection() (Rejection, bool) {
	if c.rejection == nil {
		return Rejection{}, false
	}
	return *c.rejection, true
}

func (c *Controller) reset() {
	c.mode = Idle
	c.dragNode = ""
	c.pending = nil
	c.rejection = nil
}

// BeginDrag enters Dragging for a node.
func (c *Controller) BeginDrag(nodeID string) error {
	if c.mode != Idle {
		return ErrBusy
	}
	if !c.store.HasNode(nodeID) {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	c.mode = Dragging
	c.dragNode = nodeID
	return nil
}

// OnNodeDragEnd places a node manually and returns to Idle. The placement
// holds until the next structural change triggers a relayout.
func (c *Controller) OnNodeDragEnd(nodeID string, pos graph.Position) error {
	defer c.reset()
	if err := c.store.MoveNode(nodeID, pos); err != nil {
		return err
	}
	c.emit("node.moved", "", map[string]interface{}{
		"node_id": nodeID,
		"x":       pos.X,
		"y":       pos.Y,
	})
	return nil
}

// BeginConnect enters Connecting from a node's source handle.
func (c *Controller) BeginConnect(source, sourceHandle string) error {
	if c.mode != Idle {
		return ErrBusy
	}
	if !c.store.HasNode(source) {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, source)
	}
	c.mode = Connecting
	c.pending = &Pending{Source: source, SourceHandle: sourceHandle}
	return nil
}

// OnConnectEdge adds an edge. A refused connection is discarded and moves
// the canvas to ConnectionRejected until DismissRejection.
func (c *Controller) OnConnectEdge(source, sourceHandle, target string) (graph.Edge, error) {
	e, err := c.store.Connect(source, sourceHandle, target)
	if err != nil {
		c.reset()
		if errors.Is(err, graph.ErrInvalidConnection) {
			c.mode = ConnectionRejected
			c.rejection = &Rejection{
				Source:       source,
				SourceHandle: sourceHandle,
				Target:       target,
				Reason:       err.Error(),
			}
			c.emit("connection.rejected", err.Error(), map[string]interface{}{
				"source":        source,
				"source_handle": sourceHandle,
				"target":        target,
			})
		}
		return graph.Edge{}, err
	}
	c.reset()
	c.emit("edge.connected", "", edgeFields(e))
	c.structural()
	return e, nil
}

// DismissRejection acknowledges a refused connection.
func (c *Controller) DismissRejection() {
	if c.mode == ConnectionRejected {
		c.reset()
	}
}

// Cancel abandons any gesture in progress.
func (c *Controller) Cancel() {
	c.reset()
}

// OnDisconnect removes an edge.
func (c *Controller) OnDisconnect(edgeID string) error {
	e, ok := c.store.Edge(edgeID)
	if err := c.store.Disconnect(edgeID); err != nil {
		return err
	}
	if ok {
		c.emit("edge.disconnected", "", edgeFields(e))
	}
	c.structural()
	return nil
}

// OnDeleteSelection deletes each node independently. Failures are
// collected and returned; the other nodes are still deleted.
func (c *Controller) OnDeleteSelection(nodeIDs []string) []DeleteFailure {
	var failures []DeleteFailure
	deleted := 0
	for _, id := range nodeIDs {
		removed, err := c.store.DeleteNode(id)
		if err != nil {
			failures = append(failures, DeleteFailure{NodeID: id, Err: err})
			continue
		}
		deleted++
		c.unselect(id)
		if c.menu != nil && c.menu.NodeID == id {
			c.menu = nil
		}
		c.emit("node.deleted", "", map[string]interface{}{
			"node_id":       id,
			"removed_edges": len(removed),
		})
	}
	if len(failures) > 0 {
		c.logger.Warn("selection partially deleted", "deleted", deleted, "failed", len(failures))
	}
	c.emit("selection.deleted", "", map[string]interface{}{
		"requested": len(nodeIDs),
		"deleted":   deleted,
		"failed":    len(failures),
	})
	if deleted > 0 {
		c.structural()
	}
	return failures
}

// OnAddNode creates an unconnected node from the palette.
func (c *Controller) OnAddNode(variant graph.Variant, pos *graph.Position) (graph.Node, error) {
	n, err := c.store.AddNode(variant, nil, pos)
	if err != nil {
		return graph.Node{}, err
	}
	c.emit("node.added", "", nodeFields(n))
	c.structural()
	return n, nil
}

// OnAddFromPalette creates a node of variant and connects the parent's
// next free handle to it. If the connection fails the new node is removed
// again and the graph is left as it was.
func (c *Controller) OnAddFromPalette(parentID string, variant graph.Variant) (graph.Node, graph.Edge, error) {
	parent, ok := c.store.Node(parentID)
	if !ok {
		return graph.Node{}, graph.Edge{}, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, parentID)
	}
	wasDirty := c.store.LayoutDirty()

	pos := graph.Position{X: parent.Position.X, Y: parent.Position.Y + parent.Size.Height + 80}
	n, err := c.store.AddNode(variant, nil, &pos)
	if err != nil {
		return graph.Node{}, graph.Edge{}, err
	}

	handle, _ := c.store.FreeHandle(parentID)
	e, err := c.store.Connect(parentID, handle, n.ID)
	if err != nil {
		if _, rbErr := c.store.DeleteNode(n.ID); rbErr != nil {
			c.logger.Error("palette rollback failed", "node_id", n.ID, "error", rbErr)
			return graph.Node{}, graph.Edge{}, errors.Join(err, rbErr)
		}
		if !wasDirty {
			c.store.ApplyLayout(nil)
		}
		c.logger.Debug("palette add rolled back", "parent_id", parentID, "variant", variant, "error", err)
		return graph.Node{}, graph.Edge{}, err
	}

	c.emit("node.added", "", nodeFields(n))
	c.emit("edge.connected", "", edgeFields(e))
	c.structural()
	n, _ = c.store.Node(n.ID)
	return n, e, nil
}

// OnUpdateNode applies a node editor patch.
func (c *Controller) OnUpdateNode(nodeID string, patch graph.Patch) (graph.Node, error) {
	edgesBefore := c.store.EdgeCount()
	n, err := c.store.UpdateNodeData(nodeID, patch)
	if err != nil {
		return graph.Node{}, err
	}
	fields := nodeFields(n)
	fields["removed_edges"] = edgesBefore - c.store.EdgeCount()
	c.emit("node.updated", "", fields)
	if c.store.LayoutDirty() {
		c.structural()
	}
	return n, nil
}

// OnRenameNode sets a node's caption.
func (c *Controller) OnRenameNode(nodeID, label string) error {
	if err := c.store.RenameNode(nodeID, label); err != nil {
		return err
	}
	c.emit("node.renamed", "", map[string]interface{}{"node_id": nodeID, "label": label})
	return nil
}

// Select replaces the selection. Unknown ids are ignored.
func (c *Controller) Select(nodeIDs ...string) {
	c.selection = c.selection[:0]
	seen := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		if c.store.HasNode(id) && !seen[id] {
			seen[id] = true
			c.selection = append(c.selection, id)
		}
	}
}

// Selection returns the selected node ids.
func (c *Controller) Selection() []string {
	return append([]string(nil), c.selection...)
}

// DeleteSelected deletes the current selection.
func (c *Controller) DeleteSelected() []DeleteFailure {
	return c.OnDeleteSelection(c.Selection())
}

func (c *Controller) unselect(id string) {
	for i, s := range c.selection {
		if s == id {
			c.selection = append(c.selection[:i], c.selection[i+1:]...)
			return
		}
	}
}

// OpenContextMenu opens the node menu at pos.
func (c *Controller) OpenContextMenu(nodeID string, pos graph.Position) (Menu, error) {
	if !c.store.HasNode(nodeID) {
		return Menu{}, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	m := &Menu{NodeID: nodeID, Position: pos}
	if _, free := c.store.FreeHandle(nodeID); free {
		for _, v := range graph.Variants {
			if v != graph.VariantStart {
				m.Options = append(m.Options, v)
			}
		}
	}
	c.menu = m
	return *m, nil
}

// ContextMenu returns the open menu, if any.
func (c *Controller) ContextMenu() (Menu, bool) {
	if c.menu == nil {
		return Menu{}, false
	}
	return *c.menu, true
}

// CloseContextMenu closes the menu.
func (c *Controller) CloseContextMenu() { c.menu = nil }

// SetDirection changes the layout direction and lays the graph out again.
func (c *Controller) SetDirection(d layout.Direction) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", layout.ErrInvalidDirection, d)
	}
	c.dir = d
	_, err := c.layout()
	return err
}

// Relayout recomputes positions when the graph is layout-dirty. It reports
// whether a layout was applied.
func (c *Controller) Relayout() (bool, error) {
	if !c.store.LayoutDirty() {
		return false, nil
	}
	if _, err := c.layout(); err != nil {
		return false, err
	}
	return true, nil
}

// ForceLayout recomputes positions regardless of the dirty flag.
func (c *Controller) ForceLayout() (map[string]graph.Position, error) {
	return c.layout()
}

func (c *Controller) layout() (map[string]graph.Position, error) {
	pos, err := layout.Apply(c.engine, c.store, c.dir)
	if err != nil {
		c.logger.Error("layout failed", "error", err)
		return nil, err
	}
	c.emit("layout.computed", "", map[string]interface{}{
		"nodes":     len(pos),
		"direction": string(c.dir),
	})
	return pos, nil
}

// structural runs after a committed structural change.
func (c *Controller) structural() {
	if !c.autoLayout {
		return
	}
	if _, err := c.Relayout(); err != nil {
		c.emit("system.error", "layout failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *Controller) emit(name, msg string, fields map[string]interface{}) {
	level := "info"
	if name == "connection.rejected" {
		level = "warn"
	} else if name == "system.error" {
		level = "error"
	}
	if _, err := events.Emit(level, name, msg, fields); err != nil {
		c.logger.Error("emit failed", "event", name, "error", err)
	}
	c.logger.Debug(name, "fields", fields)
}

func nodeFields(n graph.Node) map[string]interface{} {
	return map[string]interface{}{
		"node_id": n.ID,
		"variant": string(n.Variant),
	}
}

func edgeFields(e graph.Edge) map[string]interface{} {
	return map[string]interface{}{
		"edge_id":       e.ID,
		"source":        e.Source,
		"source_handle": e.SourceHandle,
		"target":        e.Target,
	}
}

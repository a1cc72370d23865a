package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// Store is the sole authority over a story graph's nodes and edges.
// Every mutation either commits a change that keeps all invariants or
// returns an error and leaves the store untouched.
//
// A Store is not safe for concurrent use; an editing session has exactly
// one mutator.
type Store struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	startID   string
	dirty     bool
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid-based identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// NewStore creates a graph holding a single start node at the origin.
func NewStore(opts ...Option) *Store {
	s := newEmptyStore(opts...)
	id := s.newID()
	s.insertNode(&Node{
		ID:      id,
		Variant: VariantStart,
		Label:   DefaultLabel(VariantStart),
		Data:    StartData{},
		Size:    SizeFor(VariantStart, StartData{}),
	})
	s.dirty = true
	return s
}

func newEmptyStore(opts ...Option) *Store {
	s := &Store{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// freshID returns an identifier that collides with no node or edge.
func (s *Store) freshID() string {
	for {
		id := s.newID()
		if id == "" {
			continue
		}
		if _, ok := s.nodes[id]; ok {
			continue
		}
		if _, ok := s.edges[id]; ok {
			continue
		}
		return id
	}
}

// AddNode creates a node of the given variant. A nil data uses the variant's
// defaults; a nil position leaves the node at the origin pending layout.
func (s *Store) AddNode(variant Variant, data Payload, pos *Position) (Node, error) {
	if !variant.Valid() {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}
	if variant == VariantStart {
		return Node{}, fmt.Errorf("%w: graph already has a start node", ErrInvalidVariant)
	}

	if data == nil {
		def, err := DefaultPayload(variant)
		if err != nil {
			return Node{}, err
		}
		data = def
	}
	if data.Variant() != variant {
		return Node{}, fmt.Errorf("%w: %s payload for %s node", ErrPayloadMismatch, data.Variant(), variant)
	}
	data = data.clone()
	if err := data.validate(); err != nil {
		return Node{}, err
	}

	id := s.freshID()
	if err := s.checkJumpTarget(id, data); err != nil {
		return Node{}, err
	}

	n := &Node{
		ID:      id,
		Variant: variant,
		Label:   DefaultLabel(variant),
		Data:    data,
		Size:    SizeFor(variant, data),
	}
	if pos != nil {
		n.Position = *pos
	}
	s.insertNode(n)
	s.dirty = true
	return n.clone(), nil
}

func (s *Store) insertNode(n *Node) {
	s.nodes[n.ID] = n
	s.nodeOrder = append(s.nodeOrder, n.ID)
	if n.Variant == VariantStart {
		s.startID = n.ID
	}
}

// UpdateNodeData merges a node-type editor patch into the node's payload.
// Shrinking a branch's choice list removes the edges on the dropped handles.
func (s *Store) UpdateNodeData(nodeID string, patch Patch) (Node, error) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if patch == nil || patch.Variant() != n.Variant {
		return Node{}, fmt.Errorf("%w: cannot apply %s patch to %s node", ErrPayloadMismatch, patchVariant(patch), n.Variant)
	}

	next := patch.apply(n.Data)
	if err := next.validate(); err != nil {
		return Node{}, err
	}
	if err := s.checkJumpTarget(nodeID, next); err != nil {
		return Node{}, err
	}

	if b, ok := next.(BranchData); ok {
		old := n.Data.(BranchData)
		if len(b.Choices) != len(old.Choices) {
			for _, e := range s.outEdges(nodeID) {
				if idx, _ := ParseChoiceHandle(e.SourceHandle); idx >= len(b.Choices) {
					s.removeEdge(e.ID)
				}
			}
			s.dirty = true
		}
	}

	n.Data = next
	n.Size = SizeFor(n.Variant, next)
	return n.clone(), nil
}

func patchVariant(p Patch) Variant {
	if p == nil {
		return "nil"
	}
	return p.Variant()
}

// checkJumpTarget enforces that a jump target exists and is not the jump itself.
func (s *Store) checkJumpTarget(nodeID string, data Payload) error {
	j, ok := data.(JumpData)
	if !ok || j.TargetNodeID == "" {
		return nil
	}
	if j.TargetNodeID == nodeID {
		return fmt.Errorf("%w: jump node cannot target itself", ErrPayloadMismatch)
	}
	if _, ok := s.nodes[j.TargetNodeID]; !ok {
		return fmt.Errorf("%w: jump target %s does not exist", ErrPayloadMismatch, j.TargetNodeID)
	}
	return nil
}

// RenameNode sets a node's caption.
func (s *Store) RenameNode(nodeID, label string) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	n.Label = label
	return nil
}

// MoveNode sets a node's position. Moving is not structural and does not
// mark the layout dirty.
func (s *Store) MoveNode(nodeID string, pos Position) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	n.Position = pos
	return nil
}

// DeleteNode removes a node together with every edge touching it and clears
// jump targets that pointed at it. It returns the removed edges.
func (s *Store) DeleteNode(nodeID string) ([]Edge, error) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if n.Variant == VariantStart {
		return nil, ErrCannotDeleteStart
	}

	var removed []Edge
	for _, id := range append([]string{}, s.edgeOrder...) {
		e := s.edges[id]
		if e.Source == nodeID || e.Target == nodeID {
			removed = append(removed, *e)
			s.removeEdge(id)
		}
	}

	for _, other := range s.nodes {
		if j, ok := other.Data.(JumpData); ok && j.TargetNodeID == nodeID {
			other.Data = JumpData{}
		}
	}

	delete(s.nodes, nodeID)
	s.nodeOrder = removeID(s.nodeOrder, nodeID)
	s.dirty = true
	return removed, nil
}

// Connect adds an edge from source (through sourceHandle for branch nodes)
// to target.
func (s *Store) Connect(source, sourceHandle, target string) (Edge, error) {
	if err := s.checkConnect(source, sourceHandle, target); err != nil {
		return Edge{}, err
	}
	e := &Edge{
		ID:           s.freshID(),
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
	}
	s.insertEdge(e)
	s.dirty = true
	return *e, nil
}

func (s *Store) checkConnect(source, sourceHandle, target string) error {
	src, ok := s.nodes[source]
	if !ok {
		return fmt.Errorf("%w: source %s does not exist", ErrInvalidConnection, source)
	}
	tgt, ok := s.nodes[target]
	if !ok {
		return fmt.Errorf("%w: target %s does not exist", ErrInvalidConnection, target)
	}
	if source == target {
		return fmt.Errorf("%w: self loop on %s", ErrInvalidConnection, source)
	}
	if tgt.Variant == VariantStart {
		return fmt.Errorf("%w: start node cannot have incoming edges", ErrInvalidConnection)
	}

	out := s.outEdges(source)
	switch src.Variant {
	case VariantStart, VariantScene:
		if sourceHandle != "" {
			return fmt.Errorf("%w: %s node has no handle %q", ErrInvalidConnection, src.Variant, sourceHandle)
		}
		if len(out) >= 1 {
			return fmt.Errorf("%w: %s node %s already has an outgoing edge", ErrInvalidConnection, src.Variant, source)
		}
	case VariantBranch:
		idx, ok := ParseChoiceHandle(sourceHandle)
		choices := src.Data.(BranchData).Choices
		if !ok || idx >= len(choices) {
			return fmt.Errorf("%w: branch %s has no handle %q", ErrInvalidConnection, source, sourceHandle)
		}
		for _, e := range out {
			if i, ok := ParseChoiceHandle(e.SourceHandle); ok && i == idx {
				return fmt.Errorf("%w: choice %d of %s is already connected", ErrInvalidConnection, idx, source)
			}
		}
	case VariantJump, VariantEnd:
		return fmt.Errorf("%w: %s nodes have no outgoing edges", ErrInvalidConnection, src.Variant)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVariant, src.Variant)
	}
	return nil
}

func (s *Store) insertEdge(e *Edge) {
	s.edges[e.ID] = e
	s.edgeOrder = append(s.edgeOrder, e.ID)
}

// Disconnect removes a single edge.
func (s *Store) Disconnect(edgeID string) error {
	if _, ok := s.edges[edgeID]; !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
	}
	s.removeEdge(edgeID)
	s.dirty = true
	return nil
}

func (s *Store) removeEdge(edgeID string) {
	delete(s.edges, edgeID)
	s.edgeOrder = removeID(s.edgeOrder, edgeID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (s *Store) outEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, id := range s.edgeOrder {
		if e := s.edges[id]; e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(nodeID string) (Node, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// HasNode returns true if the node exists.
func (s *Store) HasNode(nodeID string) bool {
	_, ok := s.nodes[nodeID]
	return ok
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(edgeID string) (Edge, bool) {
	e, ok := s.edges[edgeID]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Nodes returns copies of all nodes in creation order.
func (s *Store) Nodes() []Node {
	out := make([]Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, s.nodes[id].clone())
	}
	return out
}

// Edges returns copies of all edges in creation order.
func (s *Store) Edges() []Edge {
	out := make([]Edge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		out = append(out, *s.edges[id])
	}
	return out
}

// OutEdges returns the edges leaving a node.
func (s *Store) OutEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range s.outEdges(nodeID) {
		out = append(out, *e)
	}
	return out
}

// IncidentEdges returns the edges touching a node in either direction.
func (s *Store) IncidentEdges(nodeID string) []Edge {
	var out []Edge
	for _, id := range s.edgeOrder {
		if e := s.edges[id]; e.Source == nodeID || e.Target == nodeID {
			out = append(out, *e)
		}
	}
	return out
}

// FreeHandle returns the first source handle of a node that can still take an
// outgoing edge. ok is false when the node is at its out-degree limit.
func (s *Store) FreeHandle(nodeID string) (handle string, ok bool) {
	n, found := s.nodes[nodeID]
	if !found {
		return "", false
	}
	out := s.outEdges(nodeID)
	switch d := n.Data.(type) {
	case StartData, SceneData:
		return "", len(out) == 0
	case BranchData:
		used := make(map[string]bool, len(out))
		for _, e := range out {
			used[e.SourceHandle] = true
		}
		for i := range d.Choices {
			if h := ChoiceHandle(i); !used[h] {
				return h, true
			}
		}
	}
	return "", false
}

// StartID returns the id of the start node.
func (s *Store) StartID() string { return s.startID }

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return len(s.edges) }

// LayoutDirty reports whether a structural change happened since the last
// layout was applied.
func (s *Store) LayoutDirty() bool { return s.dirty }

// ApplyLayout sets every node's position from a computed layout and clears
// the layout-dirty flag. Nodes missing from positions keep their position.
func (s *Store) ApplyLayout(positions map[string]Position) {
	for id, p := range positions {
		if n, ok := s.nodes[id]; ok {
			n.Position = p
		}
	}
	s.dirty = false
}

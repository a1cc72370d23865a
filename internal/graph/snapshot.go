package graph

import "fmt"

// Snapshot is the full serializable state of a graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Serialize returns a deep copy of the graph for persistence.
func (s *Store) Serialize() Snapshot {
	return Snapshot{
		Nodes: s.Nodes(),
		Edges: s.Edges(),
	}
}

// Load replaces the store's contents with the snapshot. The snapshot is
// validated in full first; any invariant violation rejects it wholesale and
// leaves the current graph untouched.
func (s *Store) Load(snap Snapshot) error {
	next, err := buildStore(snap, s.newID)
	if err != nil {
		return err
	}
	s.nodes = next.nodes
	s.nodeOrder = next.nodeOrder
	s.edges = next.edges
	s.edgeOrder = next.edgeOrder
	s.startID = next.startID
	s.dirty = false
	return nil
}

// FromSnapshot builds a new Store from a validated snapshot.
func FromSnapshot(snap Snapshot, opts ...Option) (*Store, error) {
	s := newEmptyStore(opts...)
	if err := s.Load(snap); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks a snapshot against every enforced invariant without
// loading it.
func Validate(snap Snapshot) error {
	_, err := buildStore(snap, nil)
	return err
}

func buildStore(snap Snapshot, newID func() string) (*Store, error) {
	s := &Store{
		nodes: make(map[string]*Node, len(snap.Nodes)),
		edges: make(map[string]*Edge, len(snap.Edges)),
		newID: newID,
	}

	starts := 0
	for i, n := range snap.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := s.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s", ErrInvalidSnapshot, n.ID)
		}
		if !n.Variant.Valid() {
			return nil, fmt.Errorf("%w: node %s has unknown variant %q", ErrInvalidSnapshot, n.ID, n.Variant)
		}
		if n.Data == nil || n.Data.Variant() != n.Variant {
			return nil, fmt.Errorf("%w: node %s payload does not match variant %s", ErrInvalidSnapshot, n.ID, n.Variant)
		}
		if err := n.Data.validate(); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidSnapshot, n.ID, err)
		}
		if n.Variant == VariantStart {
			starts++
		}
		cp := n.clone()
		s.insertNode(&cp)
	}
	if starts != 1 {
		return nil, fmt.Errorf("%w: expected exactly one start node, found %d", ErrInvalidSnapshot, starts)
	}

	for _, n := range snap.Nodes {
		if err := s.checkJumpTarget(n.ID, n.Data); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidSnapshot, n.ID, err)
		}
	}

	for i, e := range snap.Edges {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: edge %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := s.edges[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate edge id %s", ErrInvalidSnapshot, e.ID)
		}
		if _, clash := s.nodes[e.ID]; clash {
			return nil, fmt.Errorf("%w: edge id %s collides with a node id", ErrInvalidSnapshot, e.ID)
		}
		if err := s.checkConnect(e.Source, e.SourceHandle, e.Target); err != nil {
			return nil, fmt.Errorf("%w: edge %s: %v", ErrInvalidSnapshot, e.ID, err)
		}
		cp := e
		s.insertEdge(&cp)
	}

	return s, nil
}

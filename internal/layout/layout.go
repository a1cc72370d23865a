// Package layout computes canvas positions for a story graph.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xchatlife/novelgraph/internal/graph"
)

// Direction is the flow direction of edges in a computed layout.
type Direction string

const (
	TopToBottom Direction = "TB"
	LeftToRight Direction = "LR"
)

var (
	ErrInvalidDirection = errors.New("layout: invalid direction")
	ErrUnknownNode      = errors.New("layout: edge references unknown node")
)

// Valid returns true for TB and LR.
func (d Direction) Valid() bool {
	return d == TopToBottom || d == LeftToRight
}

// ParseDirection accepts "TB" or "LR" in any case. Empty means TB.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return TopToBottom, nil
	}
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// Item is a node as seen by a layout engine.
type Item struct {
	ID   string
	Size graph.Size
}

// Link is a directed edge as seen by a layout engine.
type Link struct {
	Source string
	Target string
}

// Engine computes one position per item. Implementations must be
// deterministic for a fixed input and must never drop an item.
type Engine interface {
	ComputeLayout(items []Item, links []Link, dir Direction) (map[string]graph.Position, error)
}

// Input extracts the layout input from a store in creation order.
// Jump targets are payload only and do not take part in layout.
func Input(s *graph.Store) ([]Item, []Link) {
	nodes := s.Nodes()
	items := make([]Item, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, Item{ID: n.ID, Size: n.Size})
	}
	edges := s.Edges()
	links := make([]Link, 0, len(edges))
	for _, e := range edges {
		links = append(links, Link{Source: e.Source, Target: e.Target})
	}
	return items, links
}

// Apply computes a layout for the store and writes it back, clearing the
// layout-dirty flag.
func Apply(e Engine, s *graph.Store, dir Direction) (map[string]graph.Position, error) {
	items, links := Input(s)
	positions, err := e.ComputeLayout(items, links, dir)
	if err != nil {
		return nil, err
	}
	if len(positions) != len(items) {
		return nil, fmt.Errorf("layout: engine placed %d of %d nodes", len(positions), len(items))
	}
	s.ApplyLayout(positions)
	return positions, nil
}

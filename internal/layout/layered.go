package layout

import (
	"fmt"
	"sort"

	"github.com/xchatlife/novelgraph/internal/graph"
)

// Layered is a hierarchical layout. Each connected component is ranked by
// longest path after cycles are broken, ordered within ranks by barycenter
// sweeps and placed next to the previous component. Nodes with no edges
// are lined up after the main layout.
type Layered struct {
	RankSep      float64 // gap between ranks along the flow axis
	NodeSep      float64 // gap between nodes of the same rank
	ComponentSep float64 // gap between connected components
	Sweeps       int     // barycenter ordering passes
}

// NewLayered creates a Layered engine with default spacing.
func NewLayered() *Layered {
	return &Layered{
		RankSep:      80,
		NodeSep:      40,
		ComponentSep: 120,
		Sweeps:       4,
	}
}

// ComputeLayout implements Engine. Positions are top-left corners.
func (l *Layered) ComputeLayout(items []Item, links []Link, dir Direction) (map[string]graph.Position, error) {
	if dir == "" {
		dir = TopToBottom
	}
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}

	index := make(map[string]int, len(items))
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("layout: node %d has no id", i)
		}
		if _, dup := index[it.ID]; dup {
			return nil, fmt.Errorf("layout: duplicate node %s", it.ID)
		}
		index[it.ID] = i
	}

	out := make([][]int, len(items))
	in := make([][]int, len(items))
	seen := make(map[[2]int]bool)
	for _, ln := range links {
		s, ok := index[ln.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, ln.Source)
		}
		t, ok := index[ln.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, ln.Target)
		}
		// Self loops and parallel edges do not affect ranking.
		if s == t || seen[[2]int{s, t}] {
			continue
		}
		seen[[2]int{s, t}] = true
		out[s] = append(out[s], t)
		in[t] = append(in[t], s)
	}

	ax := axis{dir: dir}
	positions := make(map[string]graph.Position, len(items))

	var cross, depth float64
	var isolated []int
	for _, comp := range components(len(items), out, in) {
		if len(comp) == 1 {
			isolated = append(isolated, comp[0])
			continue
		}
		layers := l.rank(comp, out)
		width, d := l.place(layers, items, ax, cross, positions)
		cross += width + l.ComponentSep
		depth = max(depth, d)
	}

	main := 0.0
	if len(positions) > 0 {
		main = depth + l.RankSep
	}
	c := 0.0
	for _, i := range isolated {
		positions[items[i].ID] = ax.position(main, c)
		c += ax.cross(items[i].Size) + l.NodeSep
	}

	return positions, nil
}

// components groups node indices into weakly connected components.
// Components and their members are in input order.
func components(n int, out, in [][]int) [][]int {
	visited := make([]bool, n)
	var comps [][]int
	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		var comp []int
		queue := []int{root}
		visited[root] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, next := range append(append([]int{}, out[cur]...), in[cur]...) {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// rank assigns the component's nodes to ordered layers.
func (l *Layered) rank(comp []int, out [][]int) [][]int {
	reversed := breakCycles(comp, out)

	dagOut := make(map[int][]int)
	dagIn := make(map[int][]int)
	for _, u := range comp {
		for _, v := range out[u] {
			from, to := u, v
			if reversed[[2]int{u, v}] {
				from, to = v, u
			}
			dagOut[from] = append(dagOut[from], to)
			dagIn[to] = append(dagIn[to], from)
		}
	}

	// Longest path from the sources, in topological order.
	indeg := make(map[int]int, len(comp))
	var queue []int
	for _, v := range comp {
		indeg[v] = len(dagIn[v])
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	ranks := make(map[int]int, len(comp))
	maxRank := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range dagOut[u] {
			ranks[v] = max(ranks[v], ranks[u]+1)
			maxRank = max(maxRank, ranks[v])
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	layers := make([][]int, maxRank+1)
	for _, v := range comp {
		layers[ranks[v]] = append(layers[ranks[v]], v)
	}

	order := make(map[int]float64, len(comp))
	for _, layer := range layers {
		for k, v := range layer {
			order[v] = float64(k)
		}
	}
	for i := 0; i < l.Sweeps; i++ {
		for r := 1; r < len(layers); r++ {
			sortByBarycenter(layers[r], dagIn, order)
		}
		for r := len(layers) - 2; r >= 0; r-- {
			sortByBarycenter(layers[r], dagOut, order)
		}
	}
	return layers
}

// breakCycles returns the edges to reverse so that the component becomes
// acyclic. The DFS starts from nodes without incoming edges.
func breakCycles(comp []int, out [][]int) map[[2]int]bool {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[int]int, len(comp))
	reversed := make(map[[2]int]bool)

	hasIn := make(map[int]bool, len(comp))
	for _, u := range comp {
		for _, v := range out[u] {
			hasIn[v] = true
		}
	}
	roots := make([]int, 0, len(comp))
	for _, v := range comp {
		if !hasIn[v] {
			roots = append(roots, v)
		}
	}
	roots = append(roots, comp...)

	var visit func(u int)
	visit = func(u int) {
		state[u] = active
		for _, v := range out[u] {
			switch state[v] {
			case active:
				reversed[[2]int{u, v}] = true
			case unvisited:
				visit(v)
			}
		}
		state[u] = done
	}
	for _, r := range roots {
		if state[r] == unvisited {
			visit(r)
		}
	}
	return reversed
}

func sortByBarycenter(layer []int, neighbors map[int][]int, order map[int]float64) {
	bary := make(map[int]float64, len(layer))
	for _, v := range layer {
		adj := neighbors[v]
		if len(adj) == 0 {
			bary[v] = order[v]
			continue
		}
		sum := 0.0
		for _, u := range adj {
			sum += order[u]
		}
		bary[v] = sum / float64(len(adj))
	}
	sort.SliceStable(layer, func(i, j int) bool {
		return bary[layer[i]] < bary[layer[j]]
	})
	for k, v := range layer {
		order[v] = float64(k)
	}
}

// place writes positions for the layers starting at the given cross
// offset and returns the component's extent across and along the flow.
func (l *Layered) place(layers [][]int, items []Item, ax axis, offset float64, positions map[string]graph.Position) (width, depth float64) {
	thick := make([]float64, len(layers))
	spans := make([]float64, len(layers))
	for r, layer := range layers {
		for k, v := range layer {
			sz := items[v].Size
			thick[r] = max(thick[r], ax.main(sz))
			spans[r] += ax.cross(sz)
			if k > 0 {
				spans[r] += l.NodeSep
			}
		}
		width = max(width, spans[r])
	}

	m := 0.0
	for r, layer := range layers {
		c := offset + (width-spans[r])/2
		for _, v := range layer {
			sz := items[v].Size
			positions[items[v].ID] = ax.position(m+(thick[r]-ax.main(sz))/2, c)
			c += ax.cross(sz) + l.NodeSep
		}
		m += thick[r]
		if r < len(layers)-1 {
			m += l.RankSep
		}
	}
	return width, m
}

// axis maps flow/cross coordinates to canvas x/y.
type axis struct {
	dir Direction
}

func (a axis) main(s graph.Size) float64 {
	if a.dir == LeftToRight {
		return s.Width
	}
	return s.Height
}

func (a axis) cross(s graph.Size) float64 {
	if a.dir == LeftToRight {
		return s.Height
	}
	return s.Width
}

func (a axis) position(main, cross float64) graph.Position {
	if a.dir == LeftToRight {
		return graph.Position{X: main, Y: cross}
	}
	return graph.Position{X: cross, Y: main}
}

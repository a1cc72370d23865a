package graph

import "fmt"

// IssueKind names a well-formedness problem.
type IssueKind string

const (
	IssueStartUnconnected  IssueKind = "start_unconnected"
	IssueDeadEnd           IssueKind = "dead_end"
	IssueUnwiredChoice     IssueKind = "unwired_choice"
	IssueJumpWithoutTarget IssueKind = "jump_without_target"
	IssueUnreachable       IssueKind = "unreachable"
	IssueNoPathToEnd       IssueKind = "no_path_to_end"
)

// Issue is an advisory finding. Issues never block editing.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	NodeID  string    `json:"node_id"`
	Message string    `json:"message"`
}

// Check reports well-formedness problems of the graph: beats that lead
// nowhere, choices that are not wired, nodes the player can never reach
// and nodes from which no ending can be reached.
func (s *Store) Check() []Issue {
	var issues []Issue

	succ := s.successors()

	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		out := s.outEdges(id)
		switch d := n.Data.(type) {
		case StartData:
			if len(out) == 0 {
				issues = append(issues, Issue{IssueStartUnconnected, id, "start node is not connected"})
			}
		case SceneData:
			if len(out) == 0 {
				issues = append(issues, Issue{IssueDeadEnd, id, fmt.Sprintf("scene %q has no next beat", n.Label)})
			}
		case BranchData:
			wired := make(map[string]bool, len(out))
			for _, e := range out {
				wired[e.SourceHandle] = true
			}
			for i, choice := range d.Choices {
				if !wired[ChoiceHandle(i)] {
					issues = append(issues, Issue{IssueUnwiredChoice, id, fmt.Sprintf("choice %d %q is not connected", i, choice)})
				}
			}
		case JumpData:
			if d.TargetNodeID == "" {
				issues = append(issues, Issue{IssueJumpWithoutTarget, id, fmt.Sprintf("jump %q has no target", n.Label)})
			}
		case EndData:
		}
	}

	reachable := walk([]string{s.startID}, succ)
	for _, id := range s.nodeOrder {
		if !reachable[id] {
			issues = append(issues, Issue{IssueUnreachable, id, fmt.Sprintf("%s %q cannot be reached from start", s.nodes[id].Variant, s.nodes[id].Label)})
		}
	}

	pred := make(map[string][]string)
	var ends []string
	for _, id := range s.nodeOrder {
		for _, next := range succ[id] {
			pred[next] = append(pred[next], id)
		}
		if s.nodes[id].Variant == VariantEnd {
			ends = append(ends, id)
		}
	}
	toEnd := walk(ends, pred)
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if n.Variant == VariantJump || n.Variant == VariantEnd {
			continue
		}
		if !toEnd[id] {
			issues = append(issues, Issue{IssueNoPathToEnd, id, fmt.Sprintf("%s %q has no path to an ending", n.Variant, n.Label)})
		}
	}

	return issues
}

// successors maps each node to the nodes the story can continue to,
// following drawn edges and jump targets.
func (s *Store) successors() map[string][]string {
	succ := make(map[string][]string, len(s.nodes))
	for _, id := range s.edgeOrder {
		e := s.edges[id]
		succ[e.Source] = append(succ[e.Source], e.Target)
	}
	for _, id := range s.nodeOrder {
		if j, ok := s.nodes[id].Data.(JumpData); ok && j.TargetNodeID != "" {
			succ[id] = append(succ[id], j.TargetNodeID)
		}
	}
	return succ
}

// walk returns every node reachable from roots over adj.
func walk(roots []string, adj map[string][]string) map[string]bool {
	visited := make(map[string]bool)
	queue := append([]string{}, roots...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, next := range adj[current] {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return visited
}

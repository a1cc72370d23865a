package layout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xchatlife/novelgraph/internal/graph"
)

func storyStore(t *testing.T) (*graph.Store, map[string]string) {
	t.Helper()
	n := 0
	s := graph.NewStore(graph.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}))
	ids := map[string]string{"start": s.StartID()}

	add := func(name string, v graph.Variant, data graph.Payload) {
		node, err := s.AddNode(v, data, nil)
		if err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
		ids[name] = node.ID
	}
	connect := func(src, handle, dst string) {
		if _, err := s.Connect(ids[src], handle, ids[dst]); err != nil {
			t.Fatalf("Connect(%s, %s) failed: %v", src, dst, err)
		}
	}

	add("scene", graph.VariantScene, nil)
	add("branch", graph.VariantBranch, graph.BranchData{Choices: []string{"Stay", "Leave"}})
	add("good", graph.VariantEnd, graph.EndData{EndingType: graph.EndingGood})
	add("bad", graph.VariantEnd, graph.EndData{EndingType: graph.EndingBad})
	connect("start", "", "scene")
	connect("scene", "", "branch")
	connect("branch", graph.ChoiceHandle(0), "good")
	connect("branch", graph.ChoiceHandle(1), "bad")
	return s, ids
}

func overlaps(a, b graph.Position, sa, sb graph.Size) bool {
	return a.X < b.X+sb.Width && b.X < a.X+sa.Width &&
		a.Y < b.Y+sb.Height && b.Y < a.Y+sa.Height
}

func assertNoOverlap(t *testing.T, items []Item, pos map[string]graph.Position) {
	t.Helper()
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if overlaps(pos[a.ID], pos[b.ID], a.Size, b.Size) {
				t.Errorf("nodes %s and %s overlap: %+v %+v", a.ID, b.ID, pos[a.ID], pos[b.ID])
			}
		}
	}
}

func TestLayeredStoryScenario(t *testing.T) {
	s, ids := storyStore(t)
	items, links := Input(s)

	pos, err := NewLayered().ComputeLayout(items, links, TopToBottom)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if len(pos) != 5 {
		t.Fatalf("expected 5 positions, got %d", len(pos))
	}
	start := pos[ids["start"]]
	for _, end := range []string{"good", "bad"} {
		if start.Y >= pos[ids[end]].Y {
			t.Errorf("expected start above %s ending: %v vs %v", end, start, pos[ids[end]])
		}
	}
	if pos[ids["scene"]].Y >= pos[ids["branch"]].Y {
		t.Error("expected scene above branch")
	}
	if pos[ids["good"]].Y != pos[ids["bad"]].Y {
		t.Error("expected both endings on the same rank")
	}
	assertNoOverlap(t, items, pos)
}

func TestLayeredLeftToRight(t *testing.T) {
	s, ids := storyStore(t)
	items, links := Input(s)

	pos, err := NewLayered().ComputeLayout(items, links, LeftToRight)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if pos[ids["start"]].X >= pos[ids["scene"]].X || pos[ids["scene"]].X >= pos[ids["branch"]].X {
		t.Errorf("expected flow along x, got %+v", pos)
	}
	assertNoOverlap(t, items, pos)
}

func TestLayeredDeterministic(t *testing.T) {
	s, _ := storyStore(t)
	items, links := Input(s)
	engine := NewLayered()

	first, err := engine.ComputeLayout(items, links, TopToBottom)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := engine.ComputeLayout(items, links, TopToBottom)
		if err != nil {
			t.Fatalf("ComputeLayout failed: %v", err)
		}
		for id, p := range first {
			if again[id] != p {
				t.Fatalf("run %d: node %s moved from %v to %v", i, id, p, again[id])
			}
		}
	}
}

func TestLayeredPlacesIsolatedNodesBelow(t *testing.T) {
	s, ids := storyStore(t)
	loose, err := s.AddNode(graph.VariantScene, nil, nil)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	jump, err := s.AddNode(graph.VariantJump, graph.JumpData{TargetNodeID: ids["scene"]}, nil)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	items, links := Input(s)

	pos, err := NewLayered().ComputeLayout(items, links, TopToBottom)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if len(pos) != len(items) {
		t.Fatalf("expected %d positions, got %d", len(items), len(pos))
	}
	bottom := 0.0
	for _, id := range ids {
		n, _ := s.Node(id)
		if b := pos[id].Y + n.Size.Height; b > bottom {
			bottom = b
		}
	}
	for _, id := range []string{loose.ID, jump.ID} {
		if pos[id].Y <= bottom {
			t.Errorf("expected isolated node %s below the story, got %v", id, pos[id])
		}
	}
	assertNoOverlap(t, items, pos)
}

func TestLayeredSeparatesComponents(t *testing.T) {
	items := []Item{
		{ID: "a", Size: graph.Size{Width: 100, Height: 50}},
		{ID: "b", Size: graph.Size{Width: 100, Height: 50}},
		{ID: "c", Size: graph.Size{Width: 100, Height: 50}},
		{ID: "d", Size: graph.Size{Width: 100, Height: 50}},
	}
	links := []Link{{Source: "a", Target: "b"}, {Source: "c", Target: "d"}}

	pos, err := NewLayered().ComputeLayout(items, links, TopToBottom)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if pos["c"].X < pos["a"].X+100 {
		t.Errorf("expected second component to the right of the first, got %+v", pos)
	}
	assertNoOverlap(t, items, pos)
}

func TestLayeredHandlesCycles(t *testing.T) {
	items := []Item{
		{ID: "a", Size: graph.Size{Width: 80, Height: 40}},
		{ID: "b", Size: graph.Size{Width: 80, Height: 40}},
		{ID: "c", Size: graph.Size{Width: 80, Height: 40}},
	}
	links := []Link{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "a"},
		{Source: "b", Target: "b"},
	}

	pos, err := NewLayered().ComputeLayout(items, links, TopToBottom)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if len(pos) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(pos))
	}
	if !(pos["a"].Y < pos["b"].Y && pos["b"].Y < pos["c"].Y) {
		t.Errorf("expected a, b, c on successive ranks, got %+v", pos)
	}
}

func TestLayeredErrors(t *testing.T) {
	items := []Item{{ID: "a"}}

	if _, err := NewLayered().ComputeLayout(items, []Link{{Source: "a", Target: "x"}}, TopToBottom); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
	if _, err := NewLayered().ComputeLayout(items, nil, Direction("diagonal")); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}
	if _, err := NewLayered().ComputeLayout([]Item{{ID: "a"}, {ID: "a"}}, nil, TopToBottom); err == nil {
		t.Error("expected duplicate ids to fail")
	}
}

func TestApplyClearsDirty(t *testing.T) {
	s, ids := storyStore(t)
	if !s.LayoutDirty() {
		t.Fatal("expected dirty store before layout")
	}

	pos, err := Apply(NewLayered(), s, TopToBottom)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if s.LayoutDirty() {
		t.Error("expected layout to clear dirty flag")
	}
	n, _ := s.Node(ids["good"])
	if n.Position != pos[ids["good"]] {
		t.Errorf("expected stored position %v, got %v", pos[ids["good"]], n.Position)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" lr "); err != nil || d != LeftToRight {
		t.Errorf("expected LR, got %q (%v)", d, err)
	}
	if d, err := ParseDirection(""); err != nil || d != TopToBottom {
		t.Errorf("expected TB default, got %q (%v)", d, err)
	}
	if _, err := ParseDirection("up"); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}
}

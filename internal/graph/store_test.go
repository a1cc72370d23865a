package graph

import (
	"errors"
	"fmt"
	"testing"
)

// sequentialIDs makes ids predictable in tests.
func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func strPtr(s string) *string { return &s }

// assertInvariants checks the enforced invariants on the store's current
// state, both with the independent checker and by revalidating a snapshot.
func assertInvariants(t *testing.T, s *Store) {
	t.Helper()
	if err := checkInvariants(s); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
	if err := Validate(s.Serialize()); err != nil {
		t.Fatalf("snapshot does not validate: %v", err)
	}
}

func mustAdd(t *testing.T, s *Store, v Variant, data Payload) Node {
	t.Helper()
	n, err := s.AddNode(v, data, nil)
	if err != nil {
		t.Fatalf("AddNode(%s) failed: %v", v, err)
	}
	assertInvariants(t, s)
	return n
}

func mustConnect(t *testing.T, s *Store, src, handle, dst string) Edge {
	t.Helper()
	e, err := s.Connect(src, handle, dst)
	if err != nil {
		t.Fatalf("Connect(%s, %q, %s) failed: %v", src, handle, dst, err)
	}
	assertInvariants(t, s)
	return e
}

func TestNewStoreHasSingleStart(t *testing.T) {
	s := NewStore(sequentialIDs())

	if s.NodeCount() != 1 {
		t.Fatalf("expected 1 node, got %d", s.NodeCount())
	}
	start, ok := s.Node(s.StartID())
	if !ok {
		t.Fatal("start node missing")
	}
	if start.Variant != VariantStart {
		t.Errorf("expected start variant, got %s", start.Variant)
	}
	if !s.LayoutDirty() {
		t.Error("expected fresh graph to be layout-dirty")
	}
	assertInvariants(t, s)
}

func TestAddNodeDefaults(t *testing.T) {
	s := NewStore(sequentialIDs())

	scene := mustAdd(t, s, VariantScene, nil)
	if _, ok := scene.Data.(SceneData); !ok {
		t.Errorf("expected SceneData payload, got %T", scene.Data)
	}
	if scene.Size != SizeFor(VariantScene, scene.Data) {
		t.Errorf("unexpected scene size %+v", scene.Size)
	}

	branch := mustAdd(t, s, VariantBranch, nil)
	if got := len(branch.Data.(BranchData).Choices); got != 2 {
		t.Errorf("expected 2 default choices, got %d", got)
	}

	end := mustAdd(t, s, VariantEnd, nil)
	if end.Data.(EndData).EndingType != EndingNeutral {
		t.Errorf("expected neutral default ending, got %s", end.Data.(EndData).EndingType)
	}

	jump := mustAdd(t, s, VariantJump, nil)
	if jump.Data.(JumpData).TargetNodeID != "" {
		t.Error("expected jump without target by default")
	}
}

func TestAddNodeAtPosition(t *testing.T) {
	s := NewStore(sequentialIDs())
	n, err := s.AddNode(VariantScene, nil, &Position{X: 40, Y: 80})
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if n.Position != (Position{X: 40, Y: 80}) {
		t.Errorf("expected position (40,80), got %+v", n.Position)
	}
}

func TestAddNodeRejectsInvalidVariant(t *testing.T) {
	s := NewStore(sequentialIDs())

	if _, err := s.AddNode(Variant("cutscene"), nil, nil); !errors.Is(err, ErrInvalidVariant) {
		t.Errorf("expected ErrInvalidVariant, got %v", err)
	}
	if _, err := s.AddNode(VariantStart, nil, nil); !errors.Is(err, ErrInvalidVariant) {
		t.Errorf("expected ErrInvalidVariant for second start, got %v", err)
	}
	if s.NodeCount() != 1 {
		t.Errorf("expected rejected adds to leave 1 node, got %d", s.NodeCount())
	}
}

func TestAddNodeRejectsMismatchedPayload(t *testing.T) {
	s := NewStore(sequentialIDs())

	if _, err := s.AddNode(VariantScene, EndData{EndingType: EndingGood}, nil); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch, got %v", err)
	}
	if _, err := s.AddNode(VariantJump, JumpData{TargetNodeID: "missing"}, nil); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for dangling jump target, got %v", err)
	}
	if s.NodeCount() != 1 {
		t.Errorf("expected 1 node, got %d", s.NodeCount())
	}
}

func TestUpdateNodeData(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, SceneData{Dialogue: "Hello"})

	updated, err := s.UpdateNodeData(scene.ID, ScenePatch{CharacterName: strPtr("Aiko")})
	if err != nil {
		t.Fatalf("UpdateNodeData failed: %v", err)
	}
	d := updated.Data.(SceneData)
	if d.CharacterName != "Aiko" {
		t.Errorf("expected character Aiko, got %q", d.CharacterName)
	}
	if d.Dialogue != "Hello" {
		t.Errorf("expected dialogue to be kept, got %q", d.Dialogue)
	}
}

func TestUpdateNodeDataErrors(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	end := mustAdd(t, s, VariantEnd, nil)
	jump := mustAdd(t, s, VariantJump, nil)

	if _, err := s.UpdateNodeData("nope", ScenePatch{}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := s.UpdateNodeData(scene.ID, EndPatch{}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for wrong patch, got %v", err)
	}
	if _, err := s.UpdateNodeData(s.StartID(), ScenePatch{}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for start node, got %v", err)
	}
	bad := EndingType("tragic")
	if _, err := s.UpdateNodeData(end.ID, EndPatch{EndingType: &bad}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for unknown ending, got %v", err)
	}
	if _, err := s.UpdateNodeData(jump.ID, JumpPatch{TargetNodeID: strPtr(jump.ID)}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for self jump, got %v", err)
	}

	n, _ := s.Node(end.ID)
	if n.Data.(EndData).EndingType != EndingNeutral {
		t.Error("rejected patch must not change the node")
	}
}

func TestJumpTargetSetAndClearedOnDelete(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	jump := mustAdd(t, s, VariantJump, nil)

	if _, err := s.UpdateNodeData(jump.ID, JumpPatch{TargetNodeID: strPtr(scene.ID)}); err != nil {
		t.Fatalf("set jump target failed: %v", err)
	}
	if _, err := s.DeleteNode(scene.ID); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	n, _ := s.Node(jump.ID)
	if n.Data.(JumpData).TargetNodeID != "" {
		t.Errorf("expected jump target to be cleared, got %q", n.Data.(JumpData).TargetNodeID)
	}
	assertInvariants(t, s)
}

func TestJumpNodesCannotConnect(t *testing.T) {
	s := NewStore(sequentialIDs())
	jump := mustAdd(t, s, VariantJump, nil)
	scene := mustAdd(t, s, VariantScene, nil)

	if _, err := s.Connect(jump.ID, "", scene.ID); !errors.Is(err, ErrInvalidConnection) {
		t.Errorf("expected ErrInvalidConnection from jump, got %v", err)
	}
}

func TestConnectSceneOutDegree(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	a := mustAdd(t, s, VariantEnd, nil)
	b := mustAdd(t, s, VariantEnd, nil)

	mustConnect(t, s, scene.ID, "", a.ID)

	if _, err := s.Connect(scene.ID, "", b.ID); !errors.Is(err, ErrInvalidConnection) {
		t.Errorf("expected ErrInvalidConnection, got %v", err)
	}
	if _, err := s.Connect(scene.ID, "", a.ID); !errors.Is(err, ErrInvalidConnection) {
		t.Errorf("expected ErrInvalidConnection for repeated connect, got %v", err)
	}
	if s.EdgeCount() != 1 {
		t.Errorf("expected exactly 1 edge, got %d", s.EdgeCount())
	}
}

func TestConnectRejections(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"Stay", "Leave"}})
	end := mustAdd(t, s, VariantEnd, nil)

	cases := []struct {
		name           string
		src, handle, d string
	}{
		{"dangling source", "missing", "", end.ID},
		{"dangling target", scene.ID, "", "missing"},
		{"self loop", scene.ID, "", scene.ID},
		{"into start", scene.ID, "", s.StartID()},
		{"handle on scene", scene.ID, ChoiceHandle(0), end.ID},
		{"branch without handle", branch.ID, "", end.ID},
		{"branch unknown choice", branch.ID, ChoiceHandle(2), end.ID},
		{"branch garbage handle", branch.ID, "left", end.ID},
		{"from end", end.ID, "", scene.ID},
	}
	for _, tc := range cases {
		if _, err := s.Connect(tc.src, tc.handle, tc.d); !errors.Is(err, ErrInvalidConnection) {
			t.Errorf("%s: expected ErrInvalidConnection, got %v", tc.name, err)
		}
	}
	if s.EdgeCount() != 0 {
		t.Errorf("expected no edges after rejections, got %d", s.EdgeCount())
	}
}

func TestConnectBranchHandles(t *testing.T) {
	s := NewStore(sequentialIDs())
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"Stay", "Leave"}})
	good := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingGood})
	bad := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingBad})

	mustConnect(t, s, branch.ID, ChoiceHandle(0), good.ID)
	if _, err := s.Connect(branch.ID, ChoiceHandle(0), bad.ID); !errors.Is(err, ErrInvalidConnection) {
		t.Errorf("expected duplicate handle to be rejected, got %v", err)
	}
	mustConnect(t, s, branch.ID, ChoiceHandle(1), bad.ID)

	if _, ok := s.FreeHandle(branch.ID); ok {
		t.Error("expected branch to have no free handle")
	}
	if len(s.OutEdges(branch.ID)) != 2 {
		t.Errorf("expected 2 out edges, got %d", len(s.OutEdges(branch.ID)))
	}
}

func TestConnectRejectsAliasedChoiceHandles(t *testing.T) {
	s := NewStore(sequentialIDs())
	branch := mustAdd(t, s, VariantBranch, nil)
	e1 := mustAdd(t, s, VariantEnd, nil)
	e2 := mustAdd(t, s, VariantEnd, nil)

	mustConnect(t, s, branch.ID, "choice-1", e1.ID)
	for _, alias := range []string{"choice-01", "choice-+1", "choice-0x1", "choice- 1"} {
		if _, err := s.Connect(branch.ID, alias, e2.ID); !errors.Is(err, ErrInvalidConnection) {
			t.Errorf("Connect via %q: expected ErrInvalidConnection, got %v", alias, err)
		}
	}
	if n := len(s.OutEdges(branch.ID)); n != 1 {
		t.Errorf("expected 1 out edge, got %d", n)
	}
	if h, ok := s.FreeHandle(branch.ID); !ok || h != "choice-0" {
		t.Errorf("expected choice-0 to remain free, got %q %v", h, ok)
	}
}

func TestParseChoiceHandle(t *testing.T) {
	for handle, want := range map[string]int{"choice-0": 0, "choice-1": 1, "choice-12": 12} {
		if got, ok := ParseChoiceHandle(handle); !ok || got != want {
			t.Errorf("ParseChoiceHandle(%q) = %d, %v; want %d", handle, got, ok, want)
		}
	}
	for _, handle := range []string{"", "choice-", "choice-01", "choice-+1", "choice--1", "choice-a", "exit-1"} {
		if _, ok := ParseChoiceHandle(handle); ok {
			t.Errorf("ParseChoiceHandle(%q) accepted a non-canonical handle", handle)
		}
	}
}

func TestAddNodeCapsChoices(t *testing.T) {
	s := NewStore(sequentialIDs())
	many := make([]string, MaxChoices+1)
	for i := range many {
		many[i] = fmt.Sprintf("Option %d", i+1)
	}
	if _, err := s.AddNode(VariantBranch, BranchData{Choices: many}, nil); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch, got %v", err)
	}
	if s.NodeCount() != 1 {
		t.Errorf("rejected add left %d nodes", s.NodeCount())
	}
	mustAdd(t, s, VariantBranch, BranchData{Choices: many[:MaxChoices]})
}

func TestShrinkingChoicesDropsEdges(t *testing.T) {
	s := NewStore(sequentialIDs())
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"A", "B", "C"}})
	e1 := mustAdd(t, s, VariantEnd, nil)
	e2 := mustAdd(t, s, VariantEnd, nil)
	e3 := mustAdd(t, s, VariantEnd, nil)
	mustConnect(t, s, branch.ID, ChoiceHandle(0), e1.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(1), e2.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(2), e3.ID)
	s.ApplyLayout(nil)

	updated, err := s.UpdateNodeData(branch.ID, BranchPatch{Choices: []string{"A"}})
	if err != nil {
		t.Fatalf("UpdateNodeData failed: %v", err)
	}
	if s.EdgeCount() != 1 {
		t.Errorf("expected 1 remaining edge, got %d", s.EdgeCount())
	}
	if !s.LayoutDirty() {
		t.Error("expected choice count change to mark layout dirty")
	}
	if updated.Size != SizeFor(VariantBranch, BranchData{Choices: []string{"A"}}) {
		t.Errorf("expected size to follow choices, got %+v", updated.Size)
	}
	if _, err := s.UpdateNodeData(branch.ID, BranchPatch{Choices: []string{}}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected empty choices to be rejected, got %v", err)
	}
	assertInvariants(t, s)
}

func TestDeleteNodeCascadesIncidentEdgesOnly(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"Stay", "Leave"}})
	good := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingGood})
	bad := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingBad})
	mustConnect(t, s, s.StartID(), "", scene.ID)
	mustConnect(t, s, scene.ID, "", branch.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(0), good.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(1), bad.ID)

	nodesBefore := s.NodeCount()
	incident := len(s.IncidentEdges(branch.ID))

	removed, err := s.DeleteNode(branch.ID)
	if err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	if len(removed) != incident || incident != 3 {
		t.Errorf("expected 3 incident edges removed, got %d (incident %d)", len(removed), incident)
	}
	if s.NodeCount() != nodesBefore-1 {
		t.Errorf("expected node count %d, got %d", nodesBefore-1, s.NodeCount())
	}
	if s.EdgeCount() != 1 {
		t.Errorf("expected start->scene edge to survive, got %d edges", s.EdgeCount())
	}
	if out := s.OutEdges(s.StartID()); len(out) != 1 || out[0].Target != scene.ID {
		t.Errorf("unrelated edge changed: %+v", out)
	}
	assertInvariants(t, s)
}

func TestDeleteNodeErrors(t *testing.T) {
	s := NewStore(sequentialIDs())

	if _, err := s.DeleteNode("missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := s.DeleteNode(s.StartID()); !errors.Is(err, ErrCannotDeleteStart) {
		t.Errorf("expected ErrCannotDeleteStart, got %v", err)
	}
	if s.NodeCount() != 1 {
		t.Errorf("expected start to survive, got %d nodes", s.NodeCount())
	}
}

func TestDisconnect(t *testing.T) {
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, nil)
	e := mustConnect(t, s, s.StartID(), "", scene.ID)
	s.ApplyLayout(nil)

	if err := s.Disconnect(e.ID); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if s.EdgeCount() != 0 {
		t.Errorf("expected 0 edges, got %d", s.EdgeCount())
	}
	if !s.LayoutDirty() {
		t.Error("expected disconnect to mark layout dirty")
	}
	if err := s.Disconnect(e.ID); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound, got %v", err)
	}
}

func TestMoveNodeIsNotStructural(t *testing.T) {
	s := NewStore(sequentialIDs())
	s.ApplyLayout(nil)

	if err := s.MoveNode(s.StartID(), Position{X: 10, Y: 20}); err != nil {
		t.Fatalf("MoveNode failed: %v", err)
	}
	if s.LayoutDirty() {
		t.Error("expected move to keep layout clean")
	}
	n, _ := s.Node(s.StartID())
	if n.Position != (Position{X: 10, Y: 20}) {
		t.Errorf("unexpected position %+v", n.Position)
	}
	if err := s.MoveNode("missing", Position{}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestNodeReturnsCopy(t *testing.T) {
	s := NewStore(sequentialIDs())
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"A", "B"}})

	n, _ := s.Node(branch.ID)
	n.Data.(BranchData).Choices[0] = "mutated"

	again, _ := s.Node(branch.ID)
	if again.Data.(BranchData).Choices[0] != "A" {
		t.Error("store state leaked through returned node")
	}
}

func TestStoryScenario(t *testing.T) {
	s := NewStore(sequentialIDs())

	scene := mustAdd(t, s, VariantScene, SceneData{CharacterName: "Mira", Dialogue: "Will you stay?"})
	mustConnect(t, s, s.StartID(), "", scene.ID)

	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"Stay", "Leave"}})
	mustConnect(t, s, scene.ID, "", branch.ID)

	good := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingGood})
	bad := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingBad})
	mustConnect(t, s, branch.ID, ChoiceHandle(0), good.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(1), bad.ID)

	if s.NodeCount() != 5 {
		t.Errorf("expected 5 nodes, got %d", s.NodeCount())
	}
	if s.EdgeCount() != 4 {
		t.Errorf("expected 4 edges, got %d", s.EdgeCount())
	}
	if issues := s.Check(); len(issues) != 0 {
		t.Errorf("expected a well-formed story, got issues %+v", issues)
	}
}

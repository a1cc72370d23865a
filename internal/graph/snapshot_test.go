package graph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func buildStory(t *testing.T) *Store {
	t.Helper()
	s := NewStore(sequentialIDs())
	scene := mustAdd(t, s, VariantScene, SceneData{CharacterName: "Mira", Dialogue: "Will you stay?", SceneryImageSrc: "harbor.png"})
	branch := mustAdd(t, s, VariantBranch, BranchData{Choices: []string{"Stay", "Leave"}})
	good := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingGood, FinalMessage: "Together."})
	bad := mustAdd(t, s, VariantEnd, EndData{EndingType: EndingBad})
	jump := mustAdd(t, s, VariantJump, JumpData{TargetNodeID: scene.ID})
	mustConnect(t, s, s.StartID(), "", scene.ID)
	mustConnect(t, s, scene.ID, "", branch.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(0), good.ID)
	mustConnect(t, s, branch.ID, ChoiceHandle(1), bad.ID)
	if err := s.RenameNode(jump.ID, "Back to the harbor"); err != nil {
		t.Fatalf("RenameNode failed: %v", err)
	}
	if err := s.MoveNode(good.ID, Position{X: 12.5, Y: -3}); err != nil {
		t.Fatalf("MoveNode failed: %v", err)
	}
	return s
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	s := buildStory(t)
	snap := s.Serialize()

	loaded, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot failed: %v", err)
	}
	if diff := cmp.Diff(snap, loaded.Serialize(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if loaded.LayoutDirty() {
		t.Error("expected loaded graph to be clean")
	}
	if loaded.StartID() != s.StartID() {
		t.Errorf("expected start %s, got %s", s.StartID(), loaded.StartID())
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	s := buildStory(t)
	snap := s.Serialize()

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(snap, decoded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeIsDeepCopy(t *testing.T) {
	s := buildStory(t)
	snap := s.Serialize()

	for i := range snap.Nodes {
		if b, ok := snap.Nodes[i].Data.(BranchData); ok {
			b.Choices[0] = "mutated"
		}
	}
	snap.Edges[0].Target = "elsewhere"

	again := s.Serialize()
	for _, n := range again.Nodes {
		if b, ok := n.Data.(BranchData); ok && b.Choices[0] != "Stay" {
			t.Error("serialized snapshot shares choice slice with the store")
		}
	}
	if again.Edges[0].Target == "elsewhere" {
		t.Error("serialized snapshot shares edges with the store")
	}
}

func TestLoadRejectsInvalidSnapshotWholesale(t *testing.T) {
	base := buildStory(t).Serialize()

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"dangling edge", func(s *Snapshot) { s.Edges[0].Target = "ghost" }},
		{"duplicate node id", func(s *Snapshot) { s.Nodes[2].ID = s.Nodes[1].ID }},
		{"edge id clashes with node", func(s *Snapshot) { s.Edges[0].ID = s.Nodes[1].ID }},
		{"no start", func(s *Snapshot) { s.Nodes = s.Nodes[1:]; s.Edges = s.Edges[1:] }},
		{"second start", func(s *Snapshot) {
			s.Nodes = append(s.Nodes, Node{ID: "extra", Variant: VariantStart, Data: StartData{}})
		}},
		{"payload mismatch", func(s *Snapshot) { s.Nodes[1].Data = EndData{EndingType: EndingGood} }},
		{"unknown variant", func(s *Snapshot) { s.Nodes[1].Variant = "cutscene" }},
		{"two scene exits", func(s *Snapshot) {
			s.Edges = append(s.Edges, Edge{ID: "extra", Source: s.Edges[1].Source, Target: s.Edges[2].Target})
		}},
		{"edge into start", func(s *Snapshot) {
			s.Edges = append(s.Edges, Edge{ID: "extra", Source: s.Edges[1].Source, Target: s.Nodes[0].ID})
		}},
		{"dangling jump target", func(s *Snapshot) {
			for i := range s.Nodes {
				if s.Nodes[i].Variant == VariantJump {
					s.Nodes[i].Data = JumpData{TargetNodeID: "ghost"}
				}
			}
		}},
		{"aliased choice handle", func(s *Snapshot) {
			for _, e := range s.Edges {
				if e.SourceHandle == ChoiceHandle(1) {
					s.Edges = append(s.Edges, Edge{ID: "alias", Source: e.Source, SourceHandle: "choice-01", Target: s.Nodes[1].ID})
					return
				}
			}
		}},
		{"aliased handle on free choice", func(s *Snapshot) {
			for i, e := range s.Edges {
				if e.SourceHandle == ChoiceHandle(0) {
					s.Edges[i].SourceHandle = "choice-+0"
				}
			}
		}},
		{"too many choices", func(s *Snapshot) {
			for i := range s.Nodes {
				if s.Nodes[i].Variant == VariantBranch {
					s.Nodes[i].Data = BranchData{Choices: make([]string, MaxChoices+1)}
				}
			}
		}},
		{"empty branch", func(s *Snapshot) {
			for i := range s.Nodes {
				if s.Nodes[i].Variant == VariantBranch {
					s.Nodes[i].Data = BranchData{}
				}
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := buildStory(t)
			before := target.Serialize()

			snap := cloneSnapshot(base)
			tc.mutate(&snap)

			err := target.Load(snap)
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
			}
			if diff := cmp.Diff(before, target.Serialize(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("rejected load changed the store (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadReplacesGraph(t *testing.T) {
	target := NewStore(sequentialIDs())
	mustAdd(t, target, VariantScene, nil)

	src := buildStory(t)
	if err := target.Load(src.Serialize()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if target.NodeCount() != src.NodeCount() || target.EdgeCount() != src.EdgeCount() {
		t.Errorf("expected %d/%d, got %d/%d", src.NodeCount(), src.EdgeCount(), target.NodeCount(), target.EdgeCount())
	}
	if _, err := target.AddNode(VariantScene, nil, nil); err != nil {
		t.Errorf("expected fresh ids after load, got %v", err)
	}
}

func TestNodeUnmarshalRejectsForeignPayload(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id":"a","variant":"scene","data":{"endingType":"good"}}`), &n)
	if !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch, got %v", err)
	}

	err = json.Unmarshal([]byte(`{"id":"a","variant":"dream","data":{}}`), &n)
	if !errors.Is(err, ErrInvalidVariant) {
		t.Errorf("expected ErrInvalidVariant, got %v", err)
	}
}

func TestDecodePatch(t *testing.T) {
	p, err := DecodePatch(VariantEnd, json.RawMessage(`{"endingType":"secret"}`))
	if err != nil {
		t.Fatalf("DecodePatch failed: %v", err)
	}
	ep, ok := p.(EndPatch)
	if !ok || ep.EndingType == nil || *ep.EndingType != EndingSecret {
		t.Errorf("unexpected patch %#v", p)
	}
	if ep.FinalMessage != nil {
		t.Error("expected untouched field to stay nil")
	}

	if _, err := DecodePatch(VariantScene, json.RawMessage(`{"choices":["a"]}`)); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch, got %v", err)
	}
	if _, err := DecodePatch(VariantStart, json.RawMessage(`{}`)); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch for start, got %v", err)
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{
		Nodes: make([]Node, len(s.Nodes)),
		Edges: append([]Edge{}, s.Edges...),
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.clone()
	}
	return out
}

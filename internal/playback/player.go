// Package playback walks a story graph the way a reader would: scenes
// advance, branches wait for a choice, jumps redirect and endings finish.
package playback

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/log"
)

// DefaultMaxAutoSteps bounds the transitions taken without reader input.
const DefaultMaxAutoSteps = 64

var (
	ErrNotWaiting     = errors.New("playback: not waiting for this input")
	ErrInvalidChoice  = errors.New("playback: choice out of range")
	ErrUnwiredChoice  = errors.New("playback: choice leads nowhere")
	ErrChoicesMissing = errors.New("playback: ran out of choices")
)

// Player runs one playthrough of a graph snapshot.
type Player struct {
	nodes    map[string]graph.Node
	out      map[string]map[string]string
	startID  string
	maxSteps int
	logger   *slog.Logger

	current string
	state   State
	reason  string
	history []string
}

// Option configures a Player.
type Option func(*Player)

// WithMaxAutoSteps replaces DefaultMaxAutoSteps.
func WithMaxAutoSteps(n int) Option {
	return func(p *Player) { p.maxSteps = n }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// New validates snap and prepares a player for it.
func New(snap graph.Snapshot, opts ...Option) (*Player, error) {
	if err := graph.Validate(snap); err != nil {
		return nil, err
	}
	p := &Player{
		nodes:    make(map[string]graph.Node, len(snap.Nodes)),
		out:      make(map[string]map[string]string),
		maxSteps: DefaultMaxAutoSteps,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.WithComponent("playback")
	}
	for _, n := range snap.Nodes {
		p.nodes[n.ID] = n
		if n.Variant == graph.VariantStart {
			p.startID = n.ID
		}
	}
	for _, e := range snap.Edges {
		if p.out[e.Source] == nil {
			p.out[e.Source] = make(map[string]string)
		}
		p.out[e.Source][e.SourceHandle] = e.Target
	}
	return p, nil
}

// Start begins a playthrough at the start node, discarding any previous one.
func (p *Player) Start() Frame {
	p.current = ""
	p.reason = ""
	p.history = nil
	p.state = StateIdle

	p.emitEvent("playback.started", map[string]interface{}{"node_id": p.startID})
	p.enter(p.startID, 0)
	return p.Current()
}

// Advance moves past the scene being shown.
func (p *Player) Advance() (Frame, error) {
	if p.state != StateShowing {
		return p.Current(), fmt.Errorf("%w: advance while %s", ErrNotWaiting, p.state)
	}
	from := p.current
	next, ok := p.out[from][""]
	if !ok {
		p.stall("scene has no next beat")
		return p.Current(), nil
	}
	p.emitEvent("playback.advanced", map[string]interface{}{"node_id": from, "next": next})
	p.enter(next, 0)
	return p.Current(), nil
}

// Choose picks choice i of the branch being shown. An unwired choice is
// refused and the branch keeps waiting.
func (p *Player) Choose(i int) (Frame, error) {
	if p.state != StateChoosing {
		return p.Current(), fmt.Errorf("%w: choose while %s", ErrNotWaiting, p.state)
	}
	from := p.current
	choices := p.nodes[from].Data.(graph.BranchData).Choices
	if i < 0 || i >= len(choices) {
		return p.Current(), fmt.Errorf("%w: %d of %d", ErrInvalidChoice, i, len(choices))
	}
	next, ok := p.out[from][graph.ChoiceHandle(i)]
	if !ok {
		return p.Current(), fmt.Errorf("%w: %q", ErrUnwiredChoice, choices[i])
	}
	p.emitEvent("playback.choice", map[string]interface{}{
		"node_id": from,
		"choice":  i,
		"label":   choices[i],
		"next":    next,
	})
	p.enter(next, 0)
	return p.Current(), nil
}

// Play starts a playthrough and feeds it the given choices in order until
// it ends or stalls. It returns every frame shown. Reaching a branch with
// no choices left returns ErrChoicesMissing along with the frames so far.
func (p *Player) Play(choices []int) ([]Frame, error) {
	frames := []Frame{p.Start()}
	for !p.state.Done() {
		var (
			f   Frame
			err error
		)
		switch p.state {
		case StateShowing:
			f, err = p.Advance()
		case StateChoosing:
			if len(choices) == 0 {
				return frames, ErrChoicesMissing
			}
			f, err = p.Choose(choices[0])
			choices = choices[1:]
		default:
			return frames, fmt.Errorf("playback: unexpected state %s", p.state)
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// State returns the playthrough state.
func (p *Player) State() State { return p.state }

// History returns the visited node ids in order, including start and jumps.
func (p *Player) History() []string {
	return append([]string(nil), p.history...)
}

// Current returns the frame of the current node.
func (p *Player) Current() Frame {
	n, ok := p.nodes[p.current]
	if !ok {
		return Frame{State: p.state, Reason: p.reason}
	}
	f := Frame{
		NodeID:  n.ID,
		Variant: string(n.Variant),
		Label:   n.Label,
		State:   p.state,
		Reason:  p.reason,
	}
	switch d := n.Data.(type) {
	case graph.SceneData:
		f.CharacterName = d.CharacterName
		f.Dialogue = d.Dialogue
		f.ImageSrc = d.SceneryImageSrc
	case graph.BranchData:
		f.Choices = append([]string(nil), d.Choices...)
	case graph.EndData:
		f.Ending = string(d.EndingType)
		f.FinalMessage = d.FinalMessage
	}
	return f
}

// enter moves to nodeID. Start and jump nodes pass straight through;
// auto counts those consecutive pass-throughs.
func (p *Player) enter(nodeID string, auto int) {
	if auto > p.maxSteps {
		p.stall(fmt.Sprintf("more than %d steps without input", p.maxSteps))
		return
	}
	n, ok := p.nodes[nodeID]
	if !ok {
		p.stall(fmt.Sprintf("node %s does not exist", nodeID))
		return
	}
	p.current = nodeID
	p.history = append(p.history, nodeID)

	switch d := n.Data.(type) {
	case graph.StartData:
		next, ok := p.out[nodeID][""]
		if !ok {
			p.stall("start node is not connected")
			return
		}
		p.enter(next, auto+1)
	case graph.SceneData:
		p.state = StateShowing
	case graph.BranchData:
		p.state = StateChoosing
	case graph.JumpData:
		if d.TargetNodeID == "" {
			p.stall("jump has no target")
			return
		}
		p.emitEvent("playback.jumped", map[string]interface{}{"node_id": nodeID, "target": d.TargetNodeID})
		p.enter(d.TargetNodeID, auto+1)
	case graph.EndData:
		p.state = StateEnded
		p.emitEvent("playback.ended", map[string]interface{}{
			"node_id": nodeID,
			"ending":  string(d.EndingType),
			"steps":   len(p.history),
		})
	default:
		p.stall(fmt.Sprintf("unknown payload %T", d))
	}
}

func (p *Player) stall(reason string) {
	p.state = StateStalled
	p.reason = reason
	p.emitEvent("playback.stalled", map[string]interface{}{"node_id": p.current, "reason": reason})
}

func (p *Player) emitEvent(name string, fields map[string]interface{}) {
	level := "info"
	if name == "playback.stalled" {
		level = "warn"
	}
	if _, err := events.Emit(level, name, "", fields); err != nil {
		p.logger.Error("emit failed", "event", name, "error", err)
	}
}

package graph

import (
	"fmt"
	"strings"
)

// Payload is the variant-specific data of a node.
// The set of implementations is closed: StartData, SceneData, BranchData,
// JumpData and EndData. Consumers switch on the concrete type.
type Payload interface {
	Variant() Variant
	clone() Payload
	validate() error
}

// StartData is the (empty) payload of the start node.
type StartData struct{}

// SceneData is a line of dialogue, optionally spoken by a character
// in front of a scenery image.
type SceneData struct {
	CharacterName   string `json:"characterName,omitempty"`
	Dialogue        string `json:"dialogue"`
	SceneryImageSrc string `json:"sceneryImageSrc,omitempty"`
}

// BranchData is an ordered list of player choices.
type BranchData struct {
	Choices []string `json:"choices"`
}

// JumpData redirects the story to another node. The target is payload only;
// no drawn edge leaves a jump node.
type JumpData struct {
	TargetNodeID string `json:"targetNodeId,omitempty"`
}

// EndingType classifies an ending.
type EndingType string

const (
	EndingGood    EndingType = "good"
	EndingNeutral EndingType = "neutral"
	EndingBad     EndingType = "bad"
	EndingSecret  EndingType = "secret"
)

// Valid returns true for the four known ending types.
func (e EndingType) Valid() bool {
	switch e {
	case EndingGood, EndingNeutral, EndingBad, EndingSecret:
		return true
	}
	return false
}

// EndData closes a story path.
type EndData struct {
	EndingType   EndingType `json:"endingType"`
	FinalMessage string     `json:"finalMessage,omitempty"`
}

func (StartData) Variant() Variant  { return VariantStart }
func (SceneData) Variant() Variant  { return VariantScene }
func (BranchData) Variant() Variant { return VariantBranch }
func (JumpData) Variant() Variant   { return VariantJump }
func (EndData) Variant() Variant    { return VariantEnd }

func (d StartData) clone() Payload { return d }
func (d SceneData) clone() Payload { return d }
func (d JumpData) clone() Payload  { return d }
func (d EndData) clone() Payload   { return d }

func (d BranchData) clone() Payload {
	if d.Choices != nil {
		d.Choices = append([]string{}, d.Choices...)
	}
	return d
}

func (StartData) validate() error { return nil }
func (SceneData) validate() error { return nil }
func (JumpData) validate() error  { return nil }

// MaxChoices caps the number of choices of a branch.
const MaxChoices = 8

func (d BranchData) validate() error {
	if len(d.Choices) == 0 {
		return fmt.Errorf("%w: branch needs at least one choice", ErrPayloadMismatch)
	}
	if len(d.Choices) > MaxChoices {
		return fmt.Errorf("%w: branch has %d choices, at most %d allowed", ErrPayloadMismatch, len(d.Choices), MaxChoices)
	}
	return nil
}

func (d EndData) validate() error {
	if !d.EndingType.Valid() {
		return fmt.Errorf("%w: unknown ending type %q", ErrPayloadMismatch, d.EndingType)
	}
	return nil
}

// DefaultPayload returns the safe default payload for a variant.
func DefaultPayload(v Variant) (Payload, error) {
	switch v {
	case VariantStart:
		return StartData{}, nil
	case VariantScene:
		return SceneData{}, nil
	case VariantBranch:
		return BranchData{Choices: []string{"Choice 1", "Choice 2"}}, nil
	case VariantJump:
		return JumpData{}, nil
	case VariantEnd:
		return EndData{EndingType: EndingNeutral}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, v)
}

// Patch is a partial payload update produced by a node-type editor.
// Nil fields are left untouched.
type Patch interface {
	Variant() Variant
	apply(Payload) Payload
}

// ScenePatch updates a scene node.
type ScenePatch struct {
	CharacterName   *string `json:"characterName,omitempty"`
	Dialogue        *string `json:"dialogue,omitempty"`
	SceneryImageSrc *string `json:"sceneryImageSrc,omitempty"`
}

// BranchPatch replaces the choice list of a branch node when Choices is non-nil.
type BranchPatch struct {
	Choices []string `json:"choices,omitempty"`
}

// JumpPatch retargets a jump node. An empty target clears it.
type JumpPatch struct {
	TargetNodeID *string `json:"targetNodeId,omitempty"`
}

// EndPatch updates an end node.
type EndPatch struct {
	EndingType   *EndingType `json:"endingType,omitempty"`
	FinalMessage *string     `json:"finalMessage,omitempty"`
}

func (ScenePatch) Variant() Variant  { return VariantScene }
func (BranchPatch) Variant() Variant { return VariantBranch }
func (JumpPatch) Variant() Variant   { return VariantJump }
func (EndPatch) Variant() Variant    { return VariantEnd }

func (p ScenePatch) apply(cur Payload) Payload {
	d := cur.(SceneData)
	if p.CharacterName != nil {
		d.CharacterName = strings.TrimSpace(*p.CharacterName)
	}
	if p.Dialogue != nil {
		d.Dialogue = *p.Dialogue
	}
	if p.SceneryImageSrc != nil {
		d.SceneryImageSrc = *p.SceneryImageSrc
	}
	return d
}

func (p BranchPatch) apply(cur Payload) Payload {
	d := cur.clone().(BranchData)
	if p.Choices != nil {
		d.Choices = append([]string{}, p.Choices...)
	}
	return d
}

func (p JumpPatch) apply(cur Payload) Payload {
	d := cur.(JumpData)
	if p.TargetNodeID != nil {
		d.TargetNodeID = *p.TargetNodeID
	}
	return d
}

func (p EndPatch) apply(cur Payload) Payload {
	d := cur.(EndData)
	if p.EndingType != nil {
		d.EndingType = *p.EndingType
	}
	if p.FinalMessage != nil {
		d.FinalMessage = *p.FinalMessage
	}
	return d
}

package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant is the fixed narrative role of a node.
type Variant string

const (
	VariantStart  Variant = "start"
	VariantScene  Variant = "scene"
	VariantBranch Variant = "branch"
	VariantJump   Variant = "jump"
	VariantEnd    Variant = "end"
)

// Variants lists every known variant in palette order.
var Variants = []Variant{VariantStart, VariantScene, VariantBranch, VariantJump, VariantEnd}

// Valid returns true if v is one of the five known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantStart, VariantScene, VariantBranch, VariantJump, VariantEnd:
		return true
	}
	return false
}

// ParseVariant converts a string into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVariant, s)
	}
	return v, nil
}

// Position is a 2-D canvas coordinate (top-left corner of the node).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the width/height used by layout.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a single story beat.
type Node struct {
	ID       string
	Variant  Variant
	Label    string
	Data     Payload
	Position Position
	Size     Size
}

// Edge is a directed transition between two nodes.
// SourceHandle is only set for branch sources (one handle per choice).
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
}

func (n Node) clone() Node {
	if n.Data != nil {
		n.Data = n.Data.clone()
	}
	return n
}

const choiceHandlePrefix = "choice-"

// ChoiceHandle returns the source handle for the choice at index i.
func ChoiceHandle(i int) string {
	return choiceHandlePrefix + strconv.Itoa(i)
}

// ParseChoiceHandle returns the choice index encoded in a branch handle.
// Only the form produced by ChoiceHandle is accepted, so "choice-01" and
// "choice-+1" are not aliases of "choice-1".
func ParseChoiceHandle(handle string) (int, bool) {
	if !strings.HasPrefix(handle, choiceHandlePrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(handle, choiceHandlePrefix))
	if err != nil || i < 0 || ChoiceHandle(i) != handle {
		return 0, false
	}
	return i, true
}

// DefaultLabel is the caption given to a freshly created node.
func DefaultLabel(v Variant) string {
	switch v {
	case VariantStart:
		return "Start"
	case VariantScene:
		return "Scene"
	case VariantBranch:
		return "Choice"
	case VariantJump:
		return "Jump"
	case VariantEnd:
		return "Ending"
	}
	return string(v)
}

// SizeFor returns the layout size of a node with the given payload.
// Start, jump and end nodes are compact; branch nodes grow with their choices.
func SizeFor(v Variant, data Payload) Size {
	switch v {
	case VariantStart, VariantJump, VariantEnd:
		return Size{Width: 160, Height: 56}
	case VariantScene:
		return Size{Width: 280, Height: 140}
	case VariantBranch:
		choices := 0
		if b, ok := data.(BranchData); ok {
			choices = len(b.Choices)
		}
		return Size{Width: 280, Height: 72 + 32*float64(choices)}
	}
	return Size{Width: 160, Height: 56}
}

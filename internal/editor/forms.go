// Package editor holds the per-variant node forms. A form describes the
// fields an editing dialog shows and turns a submission into a typed
// patch for the graph store.
package editor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xchatlife/novelgraph/internal/graph"
)

// FieldKind tells a client how to render a field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextArea FieldKind = "textarea"
	KindURL      FieldKind = "url"
	KindList     FieldKind = "list"
	KindSelect   FieldKind = "select"
	KindNodeRef  FieldKind = "node"
)

// Field is a single input of a form.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// Form is the editing dialog of one variant.
type Form struct {
	Variant graph.Variant `json:"variant"`
	Title   string        `json:"title"`
	Fields  []Field       `json:"fields"`
}

// FormFor returns the form of a variant. Start nodes have an empty form.
func FormFor(v graph.Variant) (Form, error) {
	switch v {
	case graph.VariantStart:
		return Form{Variant: v, Title: "Start"}, nil
	case graph.VariantScene:
		return Form{Variant: v, Title: "Scene", Fields: []Field{
			{Name: "characterName", Label: "Character", Kind: KindText},
			{Name: "dialogue", Label: "Dialogue", Kind: KindTextArea, Required: true},
			{Name: "sceneryImageSrc", Label: "Scenery image", Kind: KindURL},
		}}, nil
	case graph.VariantBranch:
		return Form{Variant: v, Title: "Choice", Fields: []Field{
			{Name: "choices", Label: "Choices", Kind: KindList, Required: true},
		}}, nil
	case graph.VariantJump:
		return Form{Variant: v, Title: "Jump", Fields: []Field{
			{Name: "targetNodeId", Label: "Jump to", Kind: KindNodeRef},
		}}, nil
	case graph.VariantEnd:
		return Form{Variant: v, Title: "Ending", Fields: []Field{
			{Name: "endingType", Label: "Ending type", Kind: KindSelect, Required: true, Options: []string{
				string(graph.EndingGood), string(graph.EndingNeutral), string(graph.EndingBad), string(graph.EndingSecret),
			}},
			{Name: "finalMessage", Label: "Final message", Kind: KindTextArea},
		}}, nil
	}
	return Form{}, fmt.Errorf("%w: %q", graph.ErrInvalidVariant, v)
}

// Forms returns the forms of every variant in palette order.
func Forms() []Form {
	out := make([]Form, 0, len(graph.Variants))
	for _, v := range graph.Variants {
		f, _ := FormFor(v)
		out = append(out, f)
	}
	return out
}

// Decode turns a JSON submission for a node of variant v into a
// normalized patch. Shape errors and field rules both yield
// graph.ErrPayloadMismatch; graph-level rules such as jump targets are
// left to the store.
func Decode(v graph.Variant, raw json.RawMessage) (graph.Patch, error) {
	p, err := graph.DecodePatch(v, raw)
	if err != nil {
		return nil, err
	}
	return Normalize(p)
}

// Normalize trims text fields and applies per-field rules.
func Normalize(p graph.Patch) (graph.Patch, error) {
	switch p := p.(type) {
	case graph.ScenePatch:
		if p.Dialogue != nil {
			d := strings.TrimSpace(*p.Dialogue)
			if d == "" {
				return nil, fmt.Errorf("%w: dialogue is required", graph.ErrPayloadMismatch)
			}
			p.Dialogue = &d
		}
		if p.SceneryImageSrc != nil {
			src := strings.TrimSpace(*p.SceneryImageSrc)
			if err := checkImageURL(src); err != nil {
				return nil, err
			}
			p.SceneryImageSrc = &src
		}
		return p, nil
	case graph.BranchPatch:
		if p.Choices == nil {
			return p, nil
		}
		choices := make([]string, len(p.Choices))
		for i, c := range p.Choices {
			c = strings.TrimSpace(c)
			if c == "" {
				return nil, fmt.Errorf("%w: choice %d is empty", graph.ErrPayloadMismatch, i)
			}
			choices[i] = c
		}
		p.Choices = choices
		return p, nil
	case graph.JumpPatch:
		if p.TargetNodeID != nil {
			id := strings.TrimSpace(*p.TargetNodeID)
			p.TargetNodeID = &id
		}
		return p, nil
	case graph.EndPatch:
		if p.EndingType != nil && !p.EndingType.Valid() {
			return nil, fmt.Errorf("%w: unknown ending type %q", graph.ErrPayloadMismatch, *p.EndingType)
		}
		if p.FinalMessage != nil {
			m := strings.TrimSpace(*p.FinalMessage)
			p.FinalMessage = &m
		}
		return p, nil
	case nil:
		return nil, fmt.Errorf("%w: empty submission", graph.ErrPayloadMismatch)
	}
	return nil, fmt.Errorf("%w: unsupported patch %T", graph.ErrPayloadMismatch, p)
}

// checkImageURL accepts empty values, http(s) URLs and root-relative paths.
// Uploading happens elsewhere; only the reference is stored.
func checkImageURL(src string) error {
	if src == "" || strings.HasPrefix(src, "/") {
		return nil
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: scenery image must be an http(s) URL", graph.ErrPayloadMismatch)
	}
	return nil
}

package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type nodeJSON struct {
	ID       string          `json:"id"`
	Variant  Variant         `json:"variant"`
	Label    string          `json:"label"`
	Data     json.RawMessage `json:"data"`
	Position Position        `json:"position"`
	Size     Size            `json:"size"`
}

// MarshalJSON encodes the node with its payload under "data".
func (n Node) MarshalJSON() ([]byte, error) {
	var data Payload = n.Data
	if data == nil {
		data = StartData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Variant:  n.Variant,
		Label:    n.Label,
		Data:     raw,
		Position: n.Position,
		Size:     n.Size,
	})
}

// UnmarshalJSON decodes a node, choosing the payload type from "variant".
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodePayload(raw.Variant, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	*n = Node{
		ID:       raw.ID,
		Variant:  raw.Variant,
		Label:    raw.Label,
		Data:     data,
		Position: raw.Position,
		Size:     raw.Size,
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// DecodePayload decodes a payload of the given variant. Unknown fields are
// rejected so that a payload cannot carry another variant's shape.
func DecodePayload(v Variant, raw json.RawMessage) (Payload, error) {
	switch v {
	case VariantStart:
		if !isNull(raw) {
			var d StartData
			if err := strictUnmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return StartData{}, nil
	case VariantScene:
		var d SceneData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case VariantBranch:
		var d BranchData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case VariantJump:
		var d JumpData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case VariantEnd:
		var d EndData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, v)
}

func decodeInto(raw json.RawMessage, dst any) error {
	if isNull(raw) {
		return nil
	}
	return strictUnmarshal(raw, dst)
}

func strictUnmarshal(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadMismatch, err)
	}
	return nil
}

// DecodePatch decodes a node-type editor submission for a node of variant v.
func DecodePatch(v Variant, raw json.RawMessage) (Patch, error) {
	var p Patch
	switch v {
	case VariantScene:
		var sp ScenePatch
		if err := strictUnmarshal(raw, &sp); err != nil {
			return nil, err
		}
		p = sp
	case VariantBranch:
		var bp BranchPatch
		if err := strictUnmarshal(raw, &bp); err != nil {
			return nil, err
		}
		p = bp
	case VariantJump:
		var jp JumpPatch
		if err := strictUnmarshal(raw, &jp); err != nil {
			return nil, err
		}
		p = jp
	case VariantEnd:
		var ep EndPatch
		if err := strictUnmarshal(raw, &ep); err != nil {
			return nil, err
		}
		p = ep
	case VariantStart:
		return nil, fmt.Errorf("%w: start nodes have no editable payload", ErrPayloadMismatch)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, v)
	}
	return p, nil
}

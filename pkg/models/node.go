// Package models defines the core domain models for node-graph image generation
package models

import (
	"encoding/json"
	"fmt"
)

// Well-known input slot names written by the graph patcher.
const (
	InputText          = "text"
	InputCheckpoint    = "ckpt_name"
	InputSamplerName   = "sampler_name"
	InputScheduler     = "scheduler"
	InputSeed          = "seed"
	InputNoiseSeed     = "noise_seed"
	NodeTypeCheckpoint = "CheckpointLoaderSimple"
	NodeTypeKSampler   = "KSampler"
)

// NodeMeta carries optional display metadata of a node.
type NodeMeta struct {
	Title string `json:"title,omitempty"`
}

// Node is a single processing step in a graph. Each input is either a literal
// JSON value or a reference to another node's output (see Ref).
type Node struct {
	ClassType string         `json:"class_type"      validate:"required"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *NodeMeta      `json:"_meta,omitempty"`
}

// Title returns the display title of the node, falling back to its class type.
func (n *Node) Title() string {
	if n.Meta != nil && n.Meta.Title != "" {
		return n.Meta.Title
	}

	return n.ClassType
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	clone := &Node{
		ClassType: n.ClassType,
		Inputs:    make(map[string]any, len(n.Inputs)),
	}

	for key, value := range n.Inputs {
		clone.Inputs[key] = cloneValue(value)
	}

	if n.Meta != nil {
		meta := *n.Meta
		clone.Meta = &meta
	}

	return clone
}

// Ref points at output slot Output of node NodeID. On the wire it is the
// two element array [nodeId, outputIndex].
type Ref struct {
	NodeID string
	Output int
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.NodeID, r.Output})
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid node reference: %w", err)
	}

	ref, ok := AsRef(raw)
	if !ok {
		return fmt.Errorf("invalid node reference: %s", string(data))
	}

	*r = ref

	return nil
}

// AsRef reports whether an input value is a node reference and decodes it.
func AsRef(value any) (Ref, bool) {
	switch v := value.(type) {
	case Ref:
		return v, true
	case *Ref:
		if v == nil {
			return Ref{}, false
		}

		return *v, true
	case []any:
		if len(v) != 2 {
			return Ref{}, false
		}

		nodeID, ok := v[0].(string)
		if !ok {
			return Ref{}, false
		}

		switch idx := v[1].(type) {
		case float64:
			return Ref{NodeID: nodeID, Output: int(idx)}, true
		case int:
			return Ref{NodeID: nodeID, Output: idx}, true
		case json.Number:
			n, err := idx.Int64()
			if err != nil {
				return Ref{}, false
			}

			return Ref{NodeID: nodeID, Output: int(n)}, true
		}
	}

	return Ref{}, false
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	case *Ref:
		if v == nil {
			return nil
		}

		ref := *v

		return &ref
	default:
		return v
	}
}

package adaptive

import (
	"fmt"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// PredicateSpec is the closed, serializable condition language for adaptive
// rules. It replaces the reference system's dynamically evaluated string
// templates: conditions are data interpreted by Eval, never code.
//
// Kinds:
//
//	type_is        - node type equals Type
//	attr_below     - Attr < threshold(ThresholdKey) (Fallback if absent)
//	attr_above     - Attr > threshold(ThresholdKey)
//	has_metadata   - node metadata contains Key
//	seq_ends_with  - student's type sequence ends with EndsWith
//	all            - every spec in All holds
//
// Thresholds are looked up in the user profile's learning-style weights, so
// the same rule tightens or relaxes per learner.
type PredicateSpec struct {
	Kind         string            `json:"kind"`
	Type         schema.NodeType   `json:"type,omitempty"`
	Attr         string            `json:"attr,omitempty"`
	ThresholdKey string            `json:"threshold_key,omitempty"`
	Fallback     float64           `json:"fallback,omitempty"`
	Key          string            `json:"key,omitempty"`
	EndsWith     []schema.NodeType `json:"ends_with,omitempty"`
	All          []PredicateSpec   `json:"all,omitempty"`
}

// EvalContext is the restricted namespace a predicate may see.
type EvalContext struct {
	Node       *graph.Node
	Sequence   []schema.NodeType
	Thresholds map[string]float64 // learning-style weights
}

func (c *EvalContext) threshold(key string, fallback float64) float64 {
	if v, ok := c.Thresholds[key]; ok {
		return v
	}
	return fallback
}

// Eval interprets the predicate against ctx. Any failure (unknown kind, unknown
// attribute, missing node) is an error; callers must treat an error as "rule
// inapplicable", never as a reason to abort inference. A spec loaded from an
// old or foreign store therefore degrades to a rule that never fires.
func (p *PredicateSpec) Eval(ctx *EvalContext) (bool, error) {
	switch p.Kind {
	case "type_is":
		if ctx.Node == nil {
			return false, fmt.Errorf("predicate type_is: no node")
		}
		return ctx.Node.Type == p.Type, nil

	case "attr_below", "attr_above":
		if ctx.Node == nil {
			return false, fmt.Errorf("predicate %s: no node", p.Kind)
		}
		v, ok := ctx.Node.Attr(p.Attr)
		if !ok {
			return false, fmt.Errorf("predicate %s: unknown attr %q", p.Kind, p.Attr)
		}
		t := ctx.threshold(p.ThresholdKey, p.Fallback)
		if p.Kind == "attr_below" {
			return v < t, nil
		}
		return v > t, nil

	case "has_metadata":
		if ctx.Node == nil {
			return false, fmt.Errorf("predicate has_metadata: no node")
		}
		_, ok := ctx.Node.Metadata[p.Key]
		return ok, nil

	case "seq_ends_with":
		if len(p.EndsWith) == 0 || len(ctx.Sequence) < len(p.EndsWith) {
			return false, nil
		}
		off := len(ctx.Sequence) - len(p.EndsWith)
		for i, t := range p.EndsWith {
			if ctx.Sequence[off+i] != t {
				return false, nil
			}
		}
		return true, nil

	case "all":
		if len(p.All) == 0 {
			return false, fmt.Errorf("predicate all: empty")
		}
		for i := range p.All {
			ok, err := p.All[i].Eval(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("predicate: unknown kind %q", p.Kind)
}

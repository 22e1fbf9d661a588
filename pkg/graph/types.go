// Package graph provides the in-memory inquiry graph: schema-validated
// node/edge mutation, adjacency indexes, traversal primitives, structural-gap
// and guard checking, and line-delimited JSON export/import.
//
// The graph is a directed multigraph and may contain cycles (an Insight can
// modify the Hypothesis that produced it), so every traversal carries a
// visited set or depth bound.
package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

// Sentinel errors for store operations.
var (
	ErrNotFound      = errors.New("graph: not found")
	ErrAlreadyExists = errors.New("graph: already exists")
	ErrInvalidID     = errors.New("graph: invalid id")
	ErrInvalidData   = errors.New("graph: invalid data")
	ErrClosed        = errors.New("graph: store closed")
)

// SchemaViolationError reports an edge rejected by ontology validation:
// a missing endpoint, an unknown relation, or a domain/range mismatch.
// The store is unchanged when this is returned.
type SchemaViolationError struct {
	SourceID string
	Relation schema.Relation
	TargetID string
	Reason   string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("graph: schema violation on (%s)-[%s]->(%s): %s",
		e.SourceID, e.Relation, e.TargetID, e.Reason)
}

// LifecycleState tracks how settled a node is in the learner's thinking.
type LifecycleState string

const (
	StateTentative LifecycleState = "tentative"
	StateConfirmed LifecycleState = "confirmed"
	StateRevised   LifecycleState = "revised"
	StateAbandoned LifecycleState = "abandoned"
)

// Node is one step in a learner's inquiry trajectory. Nodes are append-only
// facts: created once, then only Confidence, State and Metadata may change
// (see Store.UpdateNode). Nodes are never deleted.
type Node struct {
	ID            string          `json:"id"`
	Type          schema.NodeType `json:"type"`
	Text          string          `json:"text"`
	StudentID     string          `json:"student_id"`
	CreatedAt     time.Time       `json:"created_at"`
	State         LifecycleState  `json:"state"`
	Confidence    float64         `json:"confidence"`
	Tags          []string        `json:"tags,omitempty"`
	Clarity       float64         `json:"clarity"`
	Depth         float64         `json:"depth"`
	GoalAlignment float64         `json:"goal_alignment"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Attr returns the named scalar attribute used by guard checks.
func (n *Node) Attr(name string) (float64, bool) {
	switch name {
	case "clarity":
		return n.Clarity, true
	case "depth":
		return n.Depth, true
	case "confidence":
		return n.Confidence, true
	case "alignment":
		return n.GoalAlignment, true
	}
	return 0, false
}

// Edge is a typed relation between two nodes. Edges are immutable once
// accepted by the store.
type Edge struct {
	ID         string          `json:"id"`
	SourceID   string          `json:"source_id"`
	Relation   schema.Relation `json:"relation"`
	TargetID   string          `json:"target_id"`
	Confidence float64         `json:"confidence"`
	CreatedAt  time.Time       `json:"created_at"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// Direction selects which adjacency to follow in Neighbors.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// Gap is one detected structural hole in a student's graph: a required
// relation or node that the constraints say should exist but does not.
type Gap struct {
	// Kind distinguishes the detector: "structural", "alignment", "depth"
	// or "cycle".
	Kind           string             `json:"kind"`
	MissingElement string             `json:"missing_element"`
	ExistingNodeID string             `json:"existing_node"`
	Prompt         string             `json:"prompt"`
	Priority       schema.GapPriority `json:"priority"`
}

// GuardHit is one guard whose attribute comparison held for a node.
type GuardHit struct {
	NodeID  string       `json:"node_id"`
	Guard   schema.Guard `json:"guard"`
	Value   float64      `json:"value"`
	Suggest string       `json:"suggest"`
}

// Progress is the coarse stage summary for one student.
type Progress struct {
	Stage           string                  `json:"stage"`
	CompletedCycles int                     `json:"completed_cycles"`
	NodeCounts      map[schema.NodeType]int `json:"node_counts"`
}

func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Tags != nil {
		c.Tags = make([]string, len(n.Tags))
		copy(c.Tags, n.Tags)
	}
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

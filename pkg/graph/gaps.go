package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

// CheckStructuralGaps scans one student's subgraph against the constraints
// catalogue and returns every detected gap, stable-sorted high before medium
// before low so ties keep their scan order.
//
// Detectors, in scan order:
//   - structural requirements: an X-typed node missing its required
//     (relation, Y) outgoing edge
//   - alignment gap: a Question with no aligned_with edge to any Goal
//   - depth gap: the longest single-successor inquiry chain is shorter than
//     the configured minimum
//   - cycle gap: an Insight with no modifies edge back to a Hypothesis
func (s *Store) CheckStructuralGaps(studentID string) []Gap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	var gaps []Gap
	c := &s.schema.Constraints

	for _, req := range c.StructuralRequirements {
		for _, n := range s.nodesOfType(studentID, req.IfExists) {
			if s.hasOutgoingTo(n.ID, req.MustHave, req.Target) {
				continue
			}
			gaps = append(gaps, Gap{
				Kind:           "structural",
				MissingElement: string(req.Target),
				ExistingNodeID: n.ID,
				Prompt:         renderPrompt(req.GapPrompt, n.Text),
				Priority:       req.Priority,
			})
		}
	}

	if c.Advanced.AlignmentGap {
		for _, q := range s.nodesOfType(studentID, schema.Question) {
			if s.hasOutgoingTo(q.ID, schema.AlignedWith, schema.Goal) {
				continue
			}
			gaps = append(gaps, Gap{
				Kind:           "alignment",
				MissingElement: string(schema.Goal),
				ExistingNodeID: q.ID,
				Prompt:         fmt.Sprintf("How does the question %q serve your goal?", q.Text),
				Priority:       schema.PriorityMedium,
			})
		}
	}

	if c.Advanced.DepthGap {
		if depth := s.maxChainLength(studentID); depth > 0 && depth < c.Advanced.MinDepth {
			gaps = append(gaps, Gap{
				Kind:           "depth",
				MissingElement: "deeper inquiry chain",
				Prompt:         "The inquiry has not gone very deep yet. What would the next step be?",
				Priority:       schema.PriorityLow,
			})
		}
	}

	if c.Advanced.CycleGap {
		for _, in := range s.nodesOfType(studentID, schema.Insight) {
			if s.hasOutgoingTo(in.ID, schema.Modifies, schema.Hypothesis) {
				continue
			}
			gaps = append(gaps, Gap{
				Kind:           "cycle",
				MissingElement: string(schema.Hypothesis),
				ExistingNodeID: in.ID,
				Prompt:         fmt.Sprintf("Does the insight %q change what you believed before?", in.Text),
				Priority:       schema.PriorityMedium,
			})
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Priority.Rank() < gaps[j].Priority.Rank()
	})
	return gaps
}

// hasOutgoingTo reports whether nodeID has an outgoing rel edge to a node of
// type target. Caller holds the lock.
func (s *Store) hasOutgoingTo(nodeID string, rel schema.Relation, target schema.NodeType) bool {
	for eid := range s.outgoing[nodeID] {
		e := s.edges[eid]
		if e == nil || e.Relation != rel {
			continue
		}
		if dst := s.nodes[e.TargetID]; dst != nil && dst.Type == target {
			return true
		}
	}
	return false
}

// maxChainLength follows single-successor edges from every root (no incoming
// edges) of the student's subgraph and returns the longest chain length in
// nodes. Branching ends a chain; the visited set bounds cycles. Caller holds
// the lock.
func (s *Store) maxChainLength(studentID string) int {
	max := 0
	for _, id := range s.studentNodes[studentID] {
		if len(s.incoming[id]) > 0 {
			continue
		}
		length := 1
		visited := map[string]struct{}{id: {}}
		cur := id
		for {
			out := s.outgoing[cur]
			if len(out) != 1 {
				break
			}
			var next string
			for eid := range out {
				if e := s.edges[eid]; e != nil {
					next = e.TargetID
				}
			}
			if _, dup := visited[next]; dup || next == "" {
				break
			}
			visited[next] = struct{}{}
			length++
			cur = next
		}
		if length > max {
			max = length
		}
	}
	return max
}

// renderPrompt substitutes the node text into a gap-prompt template. A
// template without a verb ("%s" or "%q") is returned as-is so plain config
// prompts keep working.
func renderPrompt(tmpl, text string) string {
	if strings.Contains(tmpl, "%s") || strings.Contains(tmpl, "%q") {
		return fmt.Sprintf(tmpl, text)
	}
	return tmpl
}

// CheckGuards returns every guard whose attribute comparison holds for the
// node, in catalogue order.
func (s *Store) CheckGuards(nodeID string) ([]GuardHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	n, ok := s.nodes[nodeID]
	if !ok {
		return nil, ErrNotFound
	}

	var hits []GuardHit
	for _, g := range s.schema.Constraints.Guards {
		if g.NodeType != n.Type {
			continue
		}
		v, ok := n.Attr(g.Attr)
		if !ok || !g.Holds(v) {
			continue
		}
		hits = append(hits, GuardHit{NodeID: n.ID, Guard: g, Value: v, Suggest: g.Suggest})
	}
	return hits, nil
}

// stageOrder lists stages from earliest to furthest; the furthest stage
// whose marker type is present wins.
var stageOrder = []struct {
	marker schema.NodeType
	stage  string
}{
	{schema.Insight, "insight"},
	{schema.Data, "analyzing"},
	{schema.Method, "experimenting"},
	{schema.Hypothesis, "hypothesizing"},
	{schema.Question, "questioning"},
	{schema.Goal, "goal_setting"},
}

// CalculateProgress derives a coarse stage label from which node types the
// student has produced, and counts completed Insight/Hypothesis cycles as
// min(#Insight, #Hypothesis).
func (s *Store) CalculateProgress(studentID string) Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := Progress{Stage: "not_started", NodeCounts: make(map[schema.NodeType]int)}
	if s.closed {
		return p
	}
	for _, id := range s.studentNodes[studentID] {
		if n := s.nodes[id]; n != nil {
			p.NodeCounts[n.Type]++
		}
	}
	for _, st := range stageOrder {
		if p.NodeCounts[st.marker] > 0 {
			p.Stage = st.stage
			break
		}
	}
	insights := p.NodeCounts[schema.Insight]
	hypotheses := p.NodeCounts[schema.Hypothesis]
	if insights < hypotheses {
		p.CompletedCycles = insights
	} else {
		p.CompletedCycles = hypotheses
	}
	return p
}

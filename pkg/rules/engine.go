// Package rules implements the static pedagogical rule engine: a fixed,
// priority-ranked list of condition/action rules evaluated deterministically
// over the inquiry graph, plus loop detection, multi-step lookahead and
// alternative-path ranking.
package rules

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/logging"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// SupportType classifies the kind of tutoring support to give next.
type SupportType string

const (
	SupportUnderstanding SupportType = "understanding"
	SupportPathfinding   SupportType = "pathfinding"
	SupportDeepening     SupportType = "deepening"
	SupportExperimenting SupportType = "experimenting"
	SupportReframing     SupportType = "reframing"
	SupportNarrowing     SupportType = "narrowing"
)

// SpeechAct is one recommended dialogue move for the response generator.
type SpeechAct string

const (
	ActClarify   SpeechAct = "CLARIFY"
	ActProbe     SpeechAct = "PROBE"
	ActSuggest   SpeechAct = "SUGGEST"
	ActEncourage SpeechAct = "ENCOURAGE"
	ActChallenge SpeechAct = "CHALLENGE"
	ActReframe   SpeechAct = "REFRAME"
	ActSummarize SpeechAct = "SUMMARIZE"
)

// Result is the outcome of one inference: what support to give, how to say
// it, and which node type the learner should produce next.
type Result struct {
	SupportType  SupportType     `json:"support_type"`
	Acts         []SpeechAct     `json:"acts"`
	Reason       string          `json:"reason"`
	NextNodeType schema.NodeType `json:"next_node_type,omitempty"`
	Confidence   float64         `json:"confidence"`
	AppliedRule  string          `json:"applied_rule"`
}

// Rule is one (condition, action) pair with a 1-10 priority. Higher
// priorities evaluate first.
type Rule struct {
	Name      string
	Priority  int
	Condition func(n *graph.Node, g *graph.Store) bool
	Action    func(n *graph.Node, g *graph.Store) (*Result, error)
}

// Engine evaluates rules in strictly descending priority; rules sharing a
// priority evaluate in registration order. That tie-break is the contract:
// first match wins, so registration order is part of the policy, not an
// implementation accident.
type Engine struct {
	g     *graph.Store
	log   *zap.Logger
	rules []Rule
}

// New creates an engine over g seeded with the built-in rule set.
func New(g *graph.Store, log *zap.Logger) *Engine {
	e := &Engine{g: g, log: logging.OrNop(log).Named("rules")}
	for _, r := range seedRules() {
		e.Register(r)
	}
	return e
}

// Graph returns the store this engine evaluates over.
func (e *Engine) Graph() *graph.Store { return e.g }

// Register appends r and re-sorts by descending priority. The sort is
// stable, preserving registration order within a priority.
func (e *Engine) Register(r Rule) {
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
}

// Rules returns the evaluation-ordered rule list.
func (e *Engine) Rules() []Rule { return e.rules }

// DefaultResult is returned when no rule matches.
func DefaultResult() *Result {
	return &Result{
		SupportType: SupportPathfinding,
		Acts:        []SpeechAct{ActSuggest},
		Reason:      "no rule matched; offering general direction",
		Confidence:  0.5,
		AppliedRule: "default",
	}
}

// InferNextStep evaluates the rule list against the node and returns the
// first matching rule's result. A rule that panics or errors is skipped and
// evaluation continues; no match yields DefaultResult. Repeated calls on an
// unchanged graph return identical results.
func (e *Engine) InferNextStep(nodeID string) (*Result, error) {
	n, err := e.g.Node(nodeID)
	if err != nil {
		return nil, err
	}
	return e.evaluate(n), nil
}

// evaluate runs the rule list against n, which need not be stored in the
// graph (lookahead uses virtual nodes).
func (e *Engine) evaluate(n *graph.Node) *Result {
	for i := range e.rules {
		r := &e.rules[i]
		res, err := e.applyRule(r, n)
		if err != nil {
			e.log.Warn("rule skipped",
				zap.String("rule", r.Name), zap.String("node", n.ID), zap.Error(err))
			continue
		}
		if res == nil {
			continue // condition did not hold
		}
		if res.AppliedRule == "" {
			res.AppliedRule = r.Name
		}
		return res
	}
	return DefaultResult()
}

// applyRule evaluates one rule, converting panics in the condition or action
// into errors so a single bad rule never aborts the inference.
func (e *Engine) applyRule(r *Rule, n *graph.Node) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("rule %s panicked: %v", r.Name, p)
		}
	}()
	if !r.Condition(n, e.g) {
		return nil, nil
	}
	return r.Action(n, e.g)
}

// windowRepeats reports whether the trailing window of 2-4 node types
// repeats its immediate predecessor window. This is the loop signal: the
// learner is cycling through the same step shapes without advancing.
func windowRepeats(seq []schema.NodeType) bool {
	for w := 2; w <= 4; w++ {
		if len(seq) < 2*w {
			continue
		}
		match := true
		for i := 0; i < w; i++ {
			if seq[len(seq)-w+i] != seq[len(seq)-2*w+i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// openOptionCount counts the node's open_options metadata entries, accepting
// both the JSON-decoded []any shape and a programmatically set []string.
func openOptionCount(n *graph.Node) int {
	switch opts := n.Metadata["open_options"].(type) {
	case []any:
		return len(opts)
	case []string:
		return len(opts)
	}
	return 0
}

// hasOutgoing reports whether n has any outgoing edge of the given relation.
func hasOutgoing(g *graph.Store, n *graph.Node, rel schema.Relation) bool {
	for _, e := range g.OutgoingEdges(n.ID) {
		if e.Relation == rel {
			return true
		}
	}
	return false
}

// seedRules returns the built-in rule set. Registration order below is the
// documented tie-break for rules sharing a priority.
func seedRules() []Rule {
	return []Rule{
		{
			Name:     "loop_break",
			Priority: 10,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return windowRepeats(g.NodeTypeSequence(n.StudentID))
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportReframing,
					Acts:         []SpeechAct{ActReframe, ActChallenge},
					Reason:       "the recent steps repeat the same pattern; break the loop",
					NextNodeType: schema.Reflection,
					Confidence:   0.85,
				}, nil
			},
		},
		{
			Name:     "clarify_unclear_question",
			Priority: 9,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Question && n.Clarity < 0.5
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportUnderstanding,
					Acts:         []SpeechAct{ActClarify, ActProbe},
					Reason:       "the question is still vague; sharpen it before moving on",
					NextNodeType: schema.Question,
					Confidence:   0.9,
				}, nil
			},
		},
		{
			Name:     "insight_to_revision",
			Priority: 8,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Insight && !hasOutgoing(g, n, schema.Modifies)
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportDeepening,
					Acts:         []SpeechAct{ActChallenge, ActProbe},
					Reason:       "feed the insight back into the hypothesis it speaks to",
					NextNodeType: schema.Hypothesis,
					Confidence:   0.8,
				}, nil
			},
		},
		{
			Name:     "question_to_hypothesis",
			Priority: 7,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Question && n.Clarity >= 0.5 &&
					!hasOutgoing(g, n, schema.LeadsTo)
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportPathfinding,
					Acts:         []SpeechAct{ActSuggest, ActEncourage},
					Reason:       "the question is clear enough to hazard an answer",
					NextNodeType: schema.Hypothesis,
					Confidence:   0.8,
				}, nil
			},
		},
		{
			Name:     "hypothesis_to_method",
			Priority: 7,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Hypothesis && !hasOutgoing(g, n, schema.IsTestedBy)
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportExperimenting,
					Acts:         []SpeechAct{ActSuggest},
					Reason:       "an untested hypothesis needs a way to be tested",
					NextNodeType: schema.Method,
					Confidence:   0.75,
				}, nil
			},
		},
		{
			Name:     "data_to_insight",
			Priority: 7,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Data && !hasOutgoing(g, n, schema.LeadsToInsight)
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportDeepening,
					Acts:         []SpeechAct{ActProbe, ActSummarize},
					Reason:       "the data is in; draw out what it means",
					NextNodeType: schema.Insight,
					Confidence:   0.75,
				}, nil
			},
		},
		{
			Name:     "method_to_data",
			Priority: 6,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return n.Type == schema.Method && !hasOutgoing(g, n, schema.ResultsIn)
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType:  SupportExperimenting,
					Acts:         []SpeechAct{ActEncourage},
					Reason:       "the method is chosen; carry it out and record what happens",
					NextNodeType: schema.Data,
					Confidence:   0.7,
				}, nil
			},
		},
		{
			Name:     "narrow_options",
			Priority: 6,
			Condition: func(n *graph.Node, g *graph.Store) bool {
				return openOptionCount(n) > 5
			},
			Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
				return &Result{
					SupportType: SupportNarrowing,
					Acts:        []SpeechAct{ActSummarize, ActSuggest},
					Reason:      "too many options are open; narrow before going deeper",
					Confidence:  0.7,
				}, nil
			},
		},
	}
}

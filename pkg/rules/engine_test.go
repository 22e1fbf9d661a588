package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

func newTestEngine(t *testing.T) (*Engine, *graph.Store) {
	t.Helper()
	g := graph.New(schema.Default(), nil)
	return New(g, nil), g
}

func addTyped(t *testing.T, g *graph.Store, id string, typ schema.NodeType, clarity float64) {
	t.Helper()
	require.NoError(t, g.AddNode(&graph.Node{
		ID: id, Type: typ, StudentID: "alice", Text: id, Clarity: clarity,
	}))
}

func TestInferNextStep_ClarifyUnclearQuestion(t *testing.T) {
	e, g := newTestEngine(t)
	addTyped(t, g, "q1", schema.Question, 0.3)

	res, err := e.InferNextStep("q1")
	require.NoError(t, err)
	assert.Equal(t, SupportUnderstanding, res.SupportType)
	assert.Equal(t, []SpeechAct{ActClarify, ActProbe}, res.Acts)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, "clarify_unclear_question", res.AppliedRule)
}

func TestInferNextStep_Deterministic(t *testing.T) {
	e, g := newTestEngine(t)
	addTyped(t, g, "q1", schema.Question, 0.3)

	first, err := e.InferNextStep("q1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.InferNextStep("q1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestInferNextStep_Progressions(t *testing.T) {
	e, g := newTestEngine(t)
	addTyped(t, g, "q1", schema.Question, 0.8)
	addTyped(t, g, "h1", schema.Hypothesis, 0.8)
	addTyped(t, g, "m1", schema.Method, 0.8)
	addTyped(t, g, "d1", schema.Data, 0.8)
	addTyped(t, g, "i1", schema.Insight, 0.8)

	tests := []struct {
		node string
		rule string
		next schema.NodeType
	}{
		{"q1", "question_to_hypothesis", schema.Hypothesis},
		{"h1", "hypothesis_to_method", schema.Method},
		{"m1", "method_to_data", schema.Data},
		{"d1", "data_to_insight", schema.Insight},
		{"i1", "insight_to_revision", schema.Hypothesis},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			res, err := e.InferNextStep(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.rule, res.AppliedRule)
			assert.Equal(t, tt.next, res.NextNodeType)
		})
	}
}

func TestInferNextStep_LoopBreakOverridesAll(t *testing.T) {
	e, g := newTestEngine(t)
	// Alternating Question/Hypothesis six times: the trailing window
	// repeats its predecessor, so loop_break (priority 10) must win even
	// though hypothesis_to_method also matches the last node.
	types := []schema.NodeType{
		schema.Question, schema.Hypothesis, schema.Question,
		schema.Hypothesis, schema.Question, schema.Hypothesis,
	}
	var last string
	for i, typ := range types {
		id := string(rune('a' + i))
		addTyped(t, g, id, typ, 0.2)
		last = id
	}

	res, err := e.InferNextStep(last)
	require.NoError(t, err)
	assert.Equal(t, "loop_break", res.AppliedRule)
	assert.Equal(t, SupportReframing, res.SupportType)
}

func TestWindowRepeats(t *testing.T) {
	q, h, m := schema.Question, schema.Hypothesis, schema.Method
	assert.True(t, windowRepeats([]schema.NodeType{q, h, q, h}))
	assert.True(t, windowRepeats([]schema.NodeType{m, q, h, m, q, h}))
	assert.False(t, windowRepeats([]schema.NodeType{q, h, m, q}))
	assert.False(t, windowRepeats([]schema.NodeType{q, h}))
	assert.False(t, windowRepeats(nil))
}

func TestInferNextStep_DefaultWhenNothingMatches(t *testing.T) {
	e, g := newTestEngine(t)
	addTyped(t, g, "t1", schema.Topic, 0.8)

	res, err := e.InferNextStep("t1")
	require.NoError(t, err)
	assert.Equal(t, "default", res.AppliedRule)
	assert.Equal(t, SupportPathfinding, res.SupportType)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestInferNextStep_NarrowOptions(t *testing.T) {
	e, g := newTestEngine(t)
	// Both metadata shapes must fire the rule: []any from a JSON-decoded
	// import, []string when set programmatically.
	require.NoError(t, g.AddNode(&graph.Node{
		ID: "t1", Type: schema.Topic, StudentID: "alice", Clarity: 0.8,
		Metadata: map[string]any{
			"open_options": []any{"a", "b", "c", "d", "e", "f"},
		},
	}))
	require.NoError(t, g.AddNode(&graph.Node{
		ID: "t2", Type: schema.Topic, StudentID: "bob", Clarity: 0.8,
		Metadata: map[string]any{
			"open_options": []string{"a", "b", "c", "d", "e", "f"},
		},
	}))

	for _, id := range []string{"t1", "t2"} {
		res, err := e.InferNextStep(id)
		require.NoError(t, err)
		assert.Equal(t, "narrow_options", res.AppliedRule)
		assert.Equal(t, SupportNarrowing, res.SupportType)
	}
}

func TestInferNextStep_FaultyRuleIsSkipped(t *testing.T) {
	e, g := newTestEngine(t)
	addTyped(t, g, "q1", schema.Question, 0.3)

	// Highest priority and always matching, but broken: one panics, one
	// errors. Both must be skipped, the clarify rule still answers.
	e.Register(Rule{
		Name:      "panics",
		Priority:  10,
		Condition: func(n *graph.Node, g *graph.Store) bool { return true },
		Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
			panic("boom")
		},
	})
	e.Register(Rule{
		Name:      "errors",
		Priority:  10,
		Condition: func(n *graph.Node, g *graph.Store) bool { return true },
		Action: func(n *graph.Node, g *graph.Store) (*Result, error) {
			return nil, errors.New("nope")
		},
	})

	res, err := e.InferNextStep("q1")
	require.NoError(t, err)
	assert.Equal(t, "clarify_unclear_question", res.AppliedRule)
}

func TestRegister_TieBreakIsRegistrationOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	names := func() []string {
		var out []string
		for _, r := range e.Rules() {
			if r.Priority == 7 {
				out = append(out, r.Name)
			}
		}
		return out
	}
	// Seed order within priority 7 is the documented contract.
	assert.Equal(t, []string{
		"question_to_hypothesis", "hypothesis_to_method", "data_to_insight",
	}, names())
}

func TestInferNextStep_UnknownNode(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.InferNextStep("ghost")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

func evalCtx(n *graph.Node, thresholds map[string]float64) *EvalContext {
	return &EvalContext{Node: n, Thresholds: thresholds}
}

func TestPredicateSpec_TypeIs(t *testing.T) {
	p := PredicateSpec{Kind: "type_is", Type: schema.Question}

	ok, err := p.Eval(evalCtx(&graph.Node{Type: schema.Question}, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Eval(evalCtx(&graph.Node{Type: schema.Goal}, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicateSpec_AttrThresholdFromProfile(t *testing.T) {
	p := PredicateSpec{Kind: "attr_below", Attr: "clarity", ThresholdKey: StyleStructured, Fallback: 0.5}
	n := &graph.Node{Type: schema.Question, Clarity: 0.6}

	// Fallback threshold 0.5: 0.6 is not below.
	ok, err := p.Eval(evalCtx(n, nil))
	require.NoError(t, err)
	assert.False(t, ok)

	// A structured learner raises the bar to 0.8: now it is below.
	ok, err = p.Eval(evalCtx(n, map[string]float64{StyleStructured: 0.8}))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredicateSpec_SeqEndsWith(t *testing.T) {
	p := PredicateSpec{Kind: "seq_ends_with", EndsWith: []schema.NodeType{schema.Method, schema.Data}}

	ctx := &EvalContext{Sequence: []schema.NodeType{schema.Question, schema.Method, schema.Data}}
	ok, err := p.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ctx.Sequence = []schema.NodeType{schema.Data, schema.Method}
	ok, err = p.Eval(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ctx.Sequence = []schema.NodeType{schema.Data}
	ok, err = p.Eval(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "sequence shorter than the suffix never matches")
}

func TestPredicateSpec_All(t *testing.T) {
	p := PredicateSpec{Kind: "all", All: []PredicateSpec{
		{Kind: "type_is", Type: schema.Data},
		{Kind: "attr_above", Attr: "depth", Fallback: 0.5},
	}}
	deep := &graph.Node{Type: schema.Data, Depth: 0.9}
	shallow := &graph.Node{Type: schema.Data, Depth: 0.2}

	ok, err := p.Eval(evalCtx(deep, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Eval(evalCtx(shallow, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicateSpec_FailuresAreErrorsNotPanics(t *testing.T) {
	tests := []PredicateSpec{
		{Kind: "teleport"},                       // unknown kind
		{Kind: "attr_above", Attr: "charisma"},   // unknown attr
		{Kind: "type_is", Type: schema.Question}, // nil node below
		{Kind: "all"},                            // empty conjunction
	}
	for _, p := range tests {
		ok, err := p.Eval(&EvalContext{})
		assert.Error(t, err)
		assert.False(t, ok)
	}
}

func TestPredicateSpec_HasMetadata(t *testing.T) {
	p := PredicateSpec{Kind: "has_metadata", Key: "open_options"}

	ok, err := p.Eval(evalCtx(&graph.Node{Metadata: map[string]any{"open_options": []any{"a"}}}, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Eval(evalCtx(&graph.Node{}, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

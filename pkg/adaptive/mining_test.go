package adaptive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

func addSequence(t *testing.T, g *graph.Store, student string, types []schema.NodeType) {
	t.Helper()
	for i, typ := range types {
		require.NoError(t, g.AddNode(&graph.Node{
			ID:        fmt.Sprintf("%s-%d", student, i),
			Type:      typ,
			Text:      "step",
			StudentID: student,
			Clarity:   0.7,
		}))
	}
}

func TestDiscoverNewPatterns(t *testing.T) {
	e, g := newTestEngine(t)
	q, h, m := schema.Question, schema.Hypothesis, schema.Method
	// Q H M three times over: only the QHM window reaches support 3.
	addSequence(t, g, "alice", []schema.NodeType{q, h, m, q, h, m, q, h, m})

	created := e.DiscoverNewPatterns("alice", 0)
	require.Len(t, created, 1)
	assert.Equal(t, []schema.NodeType{q, h, m}, created[0].Sequence)
	assert.Equal(t, coldStartEffectiveness, created[0].Effectiveness,
		"nothing to borrow from on an empty store")
	assert.Equal(t, "alice", created[0].ContextConditions["mined_from"])
	assert.Equal(t, 1, e.Patterns().Len())

	// Mining again discovers nothing new.
	assert.Empty(t, e.DiscoverNewPatterns("alice", 0))
	assert.Equal(t, 1, e.Patterns().Len())
}

func TestDiscoverNewPatterns_BelowSupport(t *testing.T) {
	e, g := newTestEngine(t)
	q, h, m := schema.Question, schema.Hypothesis, schema.Method
	addSequence(t, g, "alice", []schema.NodeType{q, h, m, q, h, m})

	assert.Empty(t, e.DiscoverNewPatterns("alice", 0),
		"two occurrences never reach the default support of three")
}

func TestDiscoverNewPatterns_ShortSequence(t *testing.T) {
	e, g := newTestEngine(t)
	addSequence(t, g, "alice", []schema.NodeType{schema.Question, schema.Hypothesis})
	assert.Empty(t, e.DiscoverNewPatterns("alice", 0))
	assert.Empty(t, e.DiscoverNewPatterns("nobody", 0))
}

func TestDiscoverNewPatterns_BorrowsEffectiveness(t *testing.T) {
	e, g := newTestEngine(t)
	q, h, m, d := schema.Question, schema.Hypothesis, schema.Method, schema.Data
	e.Patterns().Put(&LearningPattern{
		ID:            "p-kin",
		Sequence:      []schema.NodeType{q, h, m, d},
		Effectiveness: 0.9,
	})
	addSequence(t, g, "alice", []schema.NodeType{q, h, m, q, h, m, q, h, m})

	created := e.DiscoverNewPatterns("alice", 0)
	require.Len(t, created, 1)
	// Sole kin pattern contributes its own score as the weighted mean.
	assert.InDelta(t, 0.9, created[0].Effectiveness, 1e-9)
}

func TestDiscoverNewPatterns_CustomSupport(t *testing.T) {
	e, g := newTestEngine(t)
	q, h, m := schema.Question, schema.Hypothesis, schema.Method
	addSequence(t, g, "alice", []schema.NodeType{q, h, m, q, h, m})

	created := e.DiscoverNewPatterns("alice", 2)
	assert.NotEmpty(t, created)
	for _, p := range created {
		assert.GreaterOrEqual(t, len(p.Sequence), minMiningWindow)
		assert.LessOrEqual(t, len(p.Sequence), maxMiningWindow)
	}
}

package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

func TestSequenceSimilarity(t *testing.T) {
	q, h, m, d := schema.Question, schema.Hypothesis, schema.Method, schema.Data

	assert.Equal(t, 1.0, SequenceSimilarity(
		[]schema.NodeType{q, h, m}, []schema.NodeType{q, h, m}),
		"a sequence against itself is 1.0")

	assert.Equal(t, 0.0, SequenceSimilarity(
		[]schema.NodeType{q, h}, []schema.NodeType{m, d}),
		"disjoint equal-length sequences are 0.0")

	// LCS(QHM, QM) = 2, longer = 3.
	assert.InDelta(t, 2.0/3.0, SequenceSimilarity(
		[]schema.NodeType{q, h, m}, []schema.NodeType{q, m}), 1e-9)

	assert.Equal(t, 1.0, SequenceSimilarity(nil, nil))
	assert.Equal(t, 0.0, SequenceSimilarity([]schema.NodeType{q}, nil))
}

func TestContextSimilarity(t *testing.T) {
	features := map[string]any{
		"clarity": 0.8,
		"topic":   "plants",
		"phrases": []string{"sunlight", "growth"},
	}

	// Identical conditions score 1 per field.
	assert.InDelta(t, 1.0, ContextSimilarity(features, map[string]any{
		"clarity": 0.8,
		"topic":   "plants",
		"phrases": []string{"sunlight", "growth"},
	}), 1e-9)

	// Numeric distance: 1 - |0.8-0.4|/max(0.8,0.4,1) = 0.6.
	assert.InDelta(t, 0.6, ContextSimilarity(features, map[string]any{
		"clarity": 0.4,
	}), 1e-9)

	// String mismatch is 0, Jaccard of {sunlight,growth} vs {growth,water}
	// is 1/3; average over two fields.
	got := ContextSimilarity(features, map[string]any{
		"topic":   "animals",
		"phrases": []string{"growth", "water"},
	})
	assert.InDelta(t, (0.0+1.0/3.0)/2.0, got, 1e-9)

	// A field missing from the live context contributes 0.
	assert.InDelta(t, 0.0, ContextSimilarity(features, map[string]any{
		"absent": 1.0,
	}), 1e-9)

	// Empty conditions are neutral.
	assert.Equal(t, 0.5, ContextSimilarity(features, nil))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.Equal(t, 1.0, jaccard([]string{"a"}, []string{"a"}))
	assert.Equal(t, 0.0, jaccard([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 0.5, jaccard([]string{"a", "b", "c"}, []string{"a", "b", "d"}), 1e-9)
}

func TestActsKey(t *testing.T) {
	assert.Equal(t, "CLARIFY+PROBE", ActsKey([]string{"PROBE", "CLARIFY"}))
	assert.Equal(t, ActsKey([]string{"A", "B"}), ActsKey([]string{"B", "A"}))
	assert.Equal(t, "", ActsKey(nil))
}

package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

func TestPatternStore_CopiesOnReadAndWrite(t *testing.T) {
	s := NewPatternStore()
	orig := &LearningPattern{
		ID:                "p1",
		Sequence:          []schema.NodeType{schema.Question, schema.Hypothesis},
		ContextConditions: map[string]any{"topic": "plants"},
	}
	s.Put(orig)

	// Mutating the caller's value after Put must not reach the store.
	orig.Sequence[0] = schema.Goal
	orig.ContextConditions["topic"] = "rocks"

	got, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, schema.Question, got.Sequence[0])
	assert.Equal(t, "plants", got.ContextConditions["topic"])

	// Mutating a read result must not reach the store either.
	got.Sequence[1] = schema.Data
	got.ContextConditions["topic"] = "stars"

	again, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, schema.Hypothesis, again.Sequence[1])
	assert.Equal(t, "plants", again.ContextConditions["topic"])

	all := s.All()
	require.Len(t, all, 1)
	all[0].Sequence[0] = schema.Method
	final, _ := s.Get("p1")
	assert.Equal(t, schema.Question, final.Sequence[0])
}

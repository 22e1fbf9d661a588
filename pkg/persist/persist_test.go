package persist

import (
	"encoding/json"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inqgraph/inqgraph/pkg/adaptive"
	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadModels_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	patterns := []*adaptive.LearningPattern{{
		ID:            "p1",
		Sequence:      []schema.NodeType{schema.Question, schema.Hypothesis},
		Effectiveness: 0.72,
		UsageCount:    4,
	}}
	rules := []*adaptive.Rule{{
		ID:           "r1",
		Name:         "custom",
		Predicate:    adaptive.PredicateSpec{Kind: "type_is", Type: schema.Data},
		Priority:     5,
		Confidence:   0.64,
		SuccessCount: 3,
		FailureCount: 1,
	}}
	profile := adaptive.NewUserProfile("alice")
	profile.PreferredSupport["understanding"] = 0.55

	require.NoError(t, s.SaveModels(patterns, rules, []*adaptive.UserProfile{profile}))

	g := graph.New(schema.Default(), nil)
	e := adaptive.New(g, nil)
	require.NoError(t, s.LoadModels(e))

	p, ok := e.Patterns().Get("p1")
	require.True(t, ok)
	assert.Equal(t, patterns[0].Sequence, p.Sequence)
	assert.Equal(t, 0.72, p.Effectiveness)
	assert.Equal(t, 4, p.UsageCount)

	r, ok := e.AdaptiveRules().Get("r1")
	require.True(t, ok)
	assert.Equal(t, "type_is", r.Predicate.Kind)
	assert.Equal(t, 0.64, r.Confidence)
	assert.Equal(t, 3, r.SuccessCount)

	pr := e.Profiles().GetOrCreate("alice")
	assert.Equal(t, 0.55, pr.PreferredSupport["understanding"])
}

func TestLoadModels_SkipsUnknownVersion(t *testing.T) {
	s := openTestStore(t)

	// Hand-write a future-versioned envelope and a plain malformed value.
	future, err := json.Marshal(envelope{Version: 99, Kind: "pattern", Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key(prefixPattern, "future"), future); err != nil {
			return err
		}
		return txn.Set(key(prefixPattern, "garbage"), []byte("not json"))
	}))

	g := graph.New(schema.Default(), nil)
	e := adaptive.New(g, nil)
	require.NoError(t, s.LoadModels(e), "bad records are skipped, not fatal")
	assert.Equal(t, 0, e.Patterns().Len())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	src := graph.New(schema.Default(), nil)
	require.NoError(t, src.AddNode(&graph.Node{ID: "q1", Type: schema.Question, Text: "why?", StudentID: "alice"}))
	require.NoError(t, src.AddNode(&graph.Node{ID: "h1", Type: schema.Hypothesis, Text: "because", StudentID: "alice"}))
	require.NoError(t, src.AddEdge(&graph.Edge{SourceID: "q1", Relation: schema.LeadsTo, TargetID: "h1"}))

	require.NoError(t, s.SaveSnapshot("session-1", src))

	dst := graph.New(schema.Default(), nil)
	stats, err := s.LoadSnapshot("session-1", dst)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, 0, stats.Skipped)
	assert.True(t, dst.HasEdge("q1", "h1", schema.LeadsTo))
}

func TestLoadSnapshot_Missing(t *testing.T) {
	s := openTestStore(t)
	g := graph.New(schema.Default(), nil)
	_, err := s.LoadSnapshot("nope", g)
	assert.Error(t, err)
}

func TestSaveModels_AfterClose(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.SaveModels(nil, nil, nil))
}

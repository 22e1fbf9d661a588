package rules

import (
	"sort"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// lookaheadDecay shrinks confidence per additional lookahead step. A design
// choice for diminishing certainty with distance, not a calibrated value.
const lookaheadDecay = 0.9

// Prediction is one step of the hypothetical continuation chain.
type Prediction struct {
	Step        int             `json:"step"`
	NodeType    schema.NodeType `json:"node_type"`
	SupportType SupportType     `json:"support_type"`
	Confidence  float64         `json:"confidence"`
}

// PredictNextNodes chains up to depth hypothetical continuations from the
// node. Each step infers on a virtual node of the previous step's predicted
// type; step k's confidence is the first step's confidence times 0.9^(k-1).
// The chain stops early when a step predicts no next node type.
func (e *Engine) PredictNextNodes(nodeID string, depth int) ([]Prediction, error) {
	n, err := e.g.Node(nodeID)
	if err != nil {
		return nil, err
	}

	var preds []Prediction
	cur := n
	base := 0.0
	conf := 0.0
	for step := 1; step <= depth; step++ {
		res := e.evaluate(cur)
		if res.NextNodeType == "" {
			break
		}
		if step == 1 {
			base = res.Confidence
			conf = base
		} else {
			conf *= lookaheadDecay
		}
		preds = append(preds, Prediction{
			Step:        step,
			NodeType:    res.NextNodeType,
			SupportType: res.SupportType,
			Confidence:  conf,
		})
		// Virtual node for the next hop: mid-range attributes so the
		// lookahead follows progression rules rather than re-triggering
		// low-clarity repair on every synthetic step.
		cur = &graph.Node{
			ID:         "virtual:" + string(res.NextNodeType),
			Type:       res.NextNodeType,
			StudentID:  n.StudentID,
			Clarity:    0.7,
			Depth:      cur.Depth,
			Confidence: 0.6,
		}
	}
	return preds, nil
}

// PathOption is one ranked alternative route toward the goal type.
type PathOption struct {
	Kind         string            `json:"kind"` // direct, cyclic, reset
	Path         []string          `json:"path"`
	TypeSequence []schema.NodeType `json:"type_sequence"`
	Quality      float64           `json:"quality"`
	Score        float64           `json:"score"` // quality after the kind discount
}

// Discounts applied before ranking: the cyclic option costs a revision pass,
// the reset option abandons accumulated context.
const (
	cyclicDiscount = 0.9
	resetDiscount  = 0.7
)

const pathSearchDepth = 6

// SuggestAlternativePaths computes a direct path, an Insight-mediated cyclic
// path and a Question-reset path toward goalType, scores each with
// PathQuality, applies the kind discounts and returns the top 3 by
// discounted score.
func (e *Engine) SuggestAlternativePaths(nodeID string, goalType schema.NodeType) ([]PathOption, error) {
	if _, err := e.g.Node(nodeID); err != nil {
		return nil, err
	}

	var opts []PathOption
	if p := e.g.FindPath(nodeID, goalType, pathSearchDepth); p != nil {
		opts = append(opts, e.scorePath("direct", p, 1.0))
	}
	if p := e.viaPath(nodeID, schema.Insight, goalType); p != nil {
		opts = append(opts, e.scorePath("cyclic", p, cyclicDiscount))
	}
	if p := e.viaPath(nodeID, schema.Question, goalType); p != nil {
		opts = append(opts, e.scorePath("reset", p, resetDiscount))
	}

	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Score > opts[j].Score })
	if len(opts) > 3 {
		opts = opts[:3]
	}
	return opts, nil
}

// viaPath finds a path that first reaches a node of the pivot type, then
// continues from the pivot to the goal type.
func (e *Engine) viaPath(startID string, pivot, goal schema.NodeType) []string {
	first := e.g.FindPath(startID, pivot, pathSearchDepth)
	if first == nil {
		return nil
	}
	pivotID := first[len(first)-1]
	second := e.g.FindPath(pivotID, goal, pathSearchDepth)
	if second == nil {
		return nil
	}
	return append(first, second[1:]...)
}

func (e *Engine) scorePath(kind string, path []string, discount float64) PathOption {
	seq := make([]schema.NodeType, 0, len(path))
	for _, id := range path {
		if n, err := e.g.Node(id); err == nil {
			seq = append(seq, n.Type)
		}
	}
	q := e.PathQuality(path, seq)
	return PathOption{Kind: kind, Path: path, TypeSequence: seq, Quality: q, Score: q * discount}
}

// PathQuality scores a node-id path: the number of consecutive pairs joined
// by an existing edge, plus a flat +2 when the type sequence prefix-matches
// a declared allowed path, normalized by path length + 2.
func (e *Engine) PathQuality(path []string, seq []schema.NodeType) float64 {
	if len(path) == 0 {
		return 0
	}
	edgeCount := 0
	for i := 0; i+1 < len(path); i++ {
		if e.g.HasEdge(path[i], path[i+1], "") {
			edgeCount++
		}
	}
	bonus := 0.0
	for _, allowed := range e.g.Schema().Ontology.AllowedPaths {
		if isTypePrefix(seq, allowed) {
			bonus = 2.0
			break
		}
	}
	return (float64(edgeCount) + bonus) / float64(len(path)+2)
}

// isTypePrefix reports whether seq is a prefix of allowed.
func isTypePrefix(seq, allowed []schema.NodeType) bool {
	if len(seq) == 0 || len(seq) > len(allowed) {
		return false
	}
	for i := range seq {
		if seq[i] != allowed[i] {
			return false
		}
	}
	return true
}

package adaptive

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/logging"
	"github.com/inqgraph/inqgraph/pkg/rules"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// Persister stores the learned model state. Implemented by pkg/persist;
// declared here so the engine does not depend on a storage backend.
type Persister interface {
	SaveModels(patterns []*LearningPattern, rules []*Rule, profiles []*UserProfile) error
}

// fusionWeights are the fixed per-kind weights of candidate fusion. They
// multiply heterogeneous scales (raw rule confidence, raw similarity)
// without cross-candidate renormalization; this replicates the observed
// scoring rule and makes no optimality claim.
var fusionWeights = map[string]float64{
	"pattern_match":      0.3,
	"rule_confidence":    0.25,
	"user_preference":    0.2,
	"context_similarity": 0.15,
	"temporal_relevance": 0.1,
}

// History bounds: the inference log trims to historyKeep entries once it
// exceeds historyMax.
const (
	historyMax  = 10000
	historyKeep = 5000
)

// How far back feedback reaches per store kind.
const (
	feedbackPatternWindow = 10 // last N inferences whose patterns get updated
	feedbackRuleWindow    = 5  // last N inferences whose rules get updated
)

// Engine is the adaptive inference engine. It extends the static rule
// engine with pattern matching, profile-parameterized adaptive rules and
// weighted candidate fusion.
type Engine struct {
	*rules.Engine

	g        *graph.Store
	log      *zap.Logger
	patterns *PatternStore
	adaptive *RuleStore
	profiles *ProfileStore
	persist  Persister // optional

	histMu  sync.Mutex
	history []InferenceRecord
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersister attaches a model store that LearnFromFeedback saves to.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persist = p }
}

// New creates an adaptive engine over g, seeded with the built-in adaptive
// rule set.
func New(g *graph.Store, log *zap.Logger, opts ...Option) *Engine {
	log = logging.OrNop(log)
	e := &Engine{
		Engine:   rules.New(g, log),
		g:        g,
		log:      log.Named("adaptive"),
		patterns: NewPatternStore(),
		adaptive: NewRuleStore(),
		profiles: NewProfileStore(),
	}
	for _, r := range seedAdaptiveRules() {
		e.adaptive.Put(r)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Patterns exposes the pattern store (persistence load, tests).
func (e *Engine) Patterns() *PatternStore { return e.patterns }

// AdaptiveRules exposes the adaptive rule store.
func (e *Engine) AdaptiveRules() *RuleStore { return e.adaptive }

// Profiles exposes the profile store.
func (e *Engine) Profiles() *ProfileStore { return e.profiles }

// candidate is one fusion entry. Insertion order matters: ties resolve to
// the first-seen maximum.
type candidate struct {
	kind       string // "rule", "adaptive", "pattern"
	result     *rules.Result
	score      float64
	patternIDs []string
	ruleIDs    []string
}

// InferNextStepAdvanced runs the full adaptive inference for a node.
// convCtx carries conversation-derived features (current topic, entities,
// key phrases) supplied by the caller; nil is fine.
//
// Structural gaps take absolute priority: when any exist, the top gap is
// turned directly into the result at confidence 0.95 and all other scoring
// is bypassed.
func (e *Engine) InferNextStepAdvanced(nodeID string, convCtx map[string]any) (*rules.Result, string, error) {
	n, err := e.g.Node(nodeID)
	if err != nil {
		return nil, "", err
	}
	user := n.StudentID

	if gaps := e.g.CheckStructuralGaps(user); len(gaps) > 0 {
		res := e.resultFromGap(gaps[0])
		id := e.record(user, nodeID, res, nil, nil)
		return res, id, nil
	}

	features := e.contextFeatures(n, convCtx)
	seq := e.g.NodeTypeSequence(user)
	profile := e.profiles.GetOrCreate(user)

	var cands []candidate

	// Basic rule engine result is always a candidate.
	if base, err := e.Engine.InferNextStep(nodeID); err == nil {
		cands = append(cands, candidate{
			kind:   "rule",
			result: base,
			score:  base.Confidence * fusionWeights["rule_confidence"],
		})
	}

	// Top-3 adaptive rules.
	for _, m := range e.matchAdaptiveRules(n, seq, profile, 3) {
		cands = append(cands, candidate{
			kind:    "adaptive",
			result:  m.result,
			score:   m.confidence*fusionWeights["rule_confidence"] + m.temporalFit*fusionWeights["temporal_relevance"],
			ruleIDs: []string{m.rule.ID},
		})
	}

	// Top-2 pattern-derived candidates.
	for _, m := range e.matchPatterns(seq, features, 2) {
		cands = append(cands, candidate{
			kind:       "pattern",
			result:     e.resultFromPattern(m.pattern, n, m.similarity),
			score:      m.similarity*fusionWeights["pattern_match"] + m.contextSim*fusionWeights["context_similarity"],
			patternIDs: []string{m.pattern.ID},
		})
	}

	if len(cands) == 0 {
		res := rules.DefaultResult()
		id := e.record(user, nodeID, res, nil, nil)
		return res, id, nil
	}

	// User-preference adjustment applies to every candidate.
	for i := range cands {
		cands[i].score += preferenceAdjustment(profile, cands[i].result) * fusionWeights["user_preference"]
	}

	// Arg-max; strict greater-than keeps the first-seen maximum on ties.
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].score > cands[best].score {
			best = i
		}
	}
	win := cands[best]

	var patternIDs, ruleIDs []string
	for _, c := range cands {
		patternIDs = append(patternIDs, c.patternIDs...)
		ruleIDs = append(ruleIDs, c.ruleIDs...)
	}
	for _, pid := range win.patternIDs {
		e.patterns.Update(pid, func(p *LearningPattern) {
			p.UsageCount++
			p.LastUsed = time.Now().UTC()
		})
	}

	e.log.Debug("adaptive inference",
		zap.String("node", nodeID),
		zap.String("winner", win.kind),
		zap.String("rule", win.result.AppliedRule),
		zap.Float64("score", win.score),
		zap.Int("candidates", len(cands)))

	id := e.record(user, nodeID, win.result, patternIDs, ruleIDs)
	return win.result, id, nil
}

// resultFromGap synthesizes a result directly from the highest-priority
// structural gap. MissingElement is only carried into NextNodeType when it
// names an ontology type; depth gaps describe the missing element in prose
// and leave NextNodeType empty.
func (e *Engine) resultFromGap(g graph.Gap) *rules.Result {
	res := &rules.Result{
		SupportType: rules.SupportPathfinding,
		Acts:        []rules.SpeechAct{rules.ActSuggest, rules.ActProbe},
		Reason:      g.Prompt,
		Confidence:  0.95,
		AppliedRule: "structural_gap:" + g.Kind,
	}
	if t := schema.NodeType(g.MissingElement); e.g.Schema().Ontology.HasNodeType(t) {
		res.NextNodeType = t
	}
	return res
}

// contextFeatures builds the feature vector for pattern matching: node
// attributes, conversation-derived fields, neighbor-type counts and rolling
// clarity/depth means over the student's last 5 nodes.
func (e *Engine) contextFeatures(n *graph.Node, convCtx map[string]any) map[string]any {
	features := map[string]any{
		"type":       string(n.Type),
		"clarity":    n.Clarity,
		"depth":      n.Depth,
		"confidence": n.Confidence,
		"alignment":  n.GoalAlignment,
	}
	for k, v := range convCtx {
		features[k] = v
	}
	if out, err := e.g.Neighbors(n.ID, graph.DirOut); err == nil {
		for _, nb := range out {
			key := "out_" + string(nb.Type)
			cur, _ := features[key].(int)
			features[key] = cur + 1
		}
	}
	if in, err := e.g.Neighbors(n.ID, graph.DirIn); err == nil {
		for _, nb := range in {
			key := "in_" + string(nb.Type)
			cur, _ := features[key].(int)
			features[key] = cur + 1
		}
	}

	recent := e.g.NodesByStudent(n.StudentID)
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) > 0 {
		var clarity, depth float64
		for _, r := range recent {
			clarity += r.Clarity
			depth += r.Depth
		}
		features["mean_clarity_recent"] = clarity / float64(len(recent))
		features["mean_depth_recent"] = depth / float64(len(recent))
	}
	return features
}

// patternMatch is one pattern scored against the current context.
type patternMatch struct {
	pattern    *LearningPattern
	similarity float64 // fused 0.6*seq + 0.4*ctx
	contextSim float64
}

// patternMatchThreshold drops weak matches before the top-k cut.
const patternMatchThreshold = 0.3

// matchPatterns scores every stored pattern against the student's type
// sequence and context features, keeping matches above the threshold, best
// first, at most k.
func (e *Engine) matchPatterns(seq []schema.NodeType, features map[string]any, k int) []patternMatch {
	var matches []patternMatch
	for _, p := range e.patterns.All() {
		seqSim := SequenceSimilarity(seq, p.Sequence)
		ctxSim := ContextSimilarity(features, p.ContextConditions)
		sim := 0.6*seqSim + 0.4*ctxSim
		if sim <= patternMatchThreshold {
			continue
		}
		matches = append(matches, patternMatch{pattern: p, similarity: sim, contextSim: ctxSim})
	}
	// Stable selection: All() is id-ordered, so equal similarities keep a
	// deterministic order.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].similarity > matches[i].similarity {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// resultFromPattern proposes the step that followed the current node type
// the last time this pattern played out.
func (e *Engine) resultFromPattern(p *LearningPattern, n *graph.Node, sim float64) *rules.Result {
	next := p.Sequence[0]
	for i, t := range p.Sequence {
		if t == n.Type && i+1 < len(p.Sequence) {
			next = p.Sequence[i+1]
			break
		}
	}
	return &rules.Result{
		SupportType:  rules.SupportPathfinding,
		Acts:         []rules.SpeechAct{rules.ActSuggest},
		Reason:       fmt.Sprintf("a previously effective path continued with %s here", next),
		NextNodeType: next,
		Confidence:   sim * p.Effectiveness,
		AppliedRule:  "pattern:" + p.ID,
	}
}

// adaptiveMatch is one applicable adaptive rule with its adjusted
// confidence.
type adaptiveMatch struct {
	rule        *Rule
	result      *rules.Result
	confidence  float64
	temporalFit float64
}

// matchAdaptiveRules evaluates every adaptive rule's predicate with the
// profile's learning-style weights as the threshold namespace. Evaluation
// failures make the rule inapplicable, never abort the call. Applicable
// rules get their confidence adjusted by historical success rate, style fit
// and temporal fit, then the best k are returned.
func (e *Engine) matchAdaptiveRules(n *graph.Node, seq []schema.NodeType, profile *UserProfile, k int) []adaptiveMatch {
	ctx := &EvalContext{Node: n, Sequence: seq, Thresholds: profile.LearningStyle}

	var matches []adaptiveMatch
	for _, r := range e.adaptive.All() {
		ok, err := r.Predicate.Eval(ctx)
		if err != nil {
			e.log.Debug("adaptive rule inapplicable",
				zap.String("rule", r.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		conf := r.Confidence
		if rate, has := r.SuccessRate(); has {
			conf = 0.7*conf + 0.3*rate
		}
		conf += styleFit(r.ID, profile)
		temporal := temporalFit(r.ID, n)
		conf = clamp(conf+temporal*0.1, 0, 1)

		res := &rules.Result{
			SupportType:  r.Action.SupportType,
			Acts:         r.Action.Acts,
			Reason:       r.Action.Reason,
			NextNodeType: r.Action.NextNodeType,
			Confidence:   conf,
			AppliedRule:  r.ID,
		}
		matches = append(matches, adaptiveMatch{rule: r, result: res, confidence: conf, temporalFit: temporal})
	}

	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].confidence > matches[i].confidence {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// styleFit rewards rules whose id names a learning-style dimension the user
// leans into: the adjustment is the signed distance of that style weight
// from neutral, scaled down.
func styleFit(ruleID string, profile *UserProfile) float64 {
	fit := 0.0
	for dim, weight := range profile.LearningStyle {
		if strings.Contains(ruleID, dim) {
			fit += (weight - 0.5) * 0.2
		}
	}
	return fit
}

// temporalFit scores the recency of the node plus a small bonus when the
// rule id mentions the node's type.
func temporalFit(ruleID string, n *graph.Node) float64 {
	fit := 0.0
	age := time.Since(n.CreatedAt)
	switch {
	case age < 10*time.Minute:
		fit = 0.5
	case age < time.Hour:
		fit = 0.3
	default:
		fit = 0.1
	}
	if strings.Contains(strings.ToLower(ruleID), strings.ToLower(string(n.Type))) {
		fit += 0.2
	}
	return fit
}

// preferenceAdjustment derives a per-candidate bonus from the profile's
// preferred support types and effective act combinations; neutral history
// (0.5 weights) yields a flat adjustment that does not reorder candidates.
func preferenceAdjustment(profile *UserProfile, res *rules.Result) float64 {
	support, ok := profile.PreferredSupport[string(res.SupportType)]
	if !ok {
		support = 0.5
	}
	acts := make([]string, len(res.Acts))
	for i, a := range res.Acts {
		acts[i] = string(a)
	}
	combo, ok := profile.EffectiveActs[ActsKey(acts)]
	if !ok {
		combo = 0.5
	}
	return (support + combo) / 2
}

// record logs one inference into the bounded history and returns its id.
func (e *Engine) record(userID, nodeID string, res *rules.Result, patternIDs, ruleIDs []string) string {
	rec := InferenceRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		NodeID:     nodeID,
		Timestamp:  time.Now().UTC(),
		Result:     res,
		PatternIDs: patternIDs,
		RuleIDs:    ruleIDs,
	}
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = append(e.history, rec)
	if len(e.history) > historyMax {
		e.history = e.history[len(e.history)-historyKeep:]
	}
	return rec.ID
}

// recentForUser returns up to limit of the user's most recent inference
// records, newest first.
func (e *Engine) recentForUser(userID string, limit int) []InferenceRecord {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	var out []InferenceRecord
	for i := len(e.history) - 1; i >= 0 && len(out) < limit; i-- {
		if e.history[i].UserID == userID {
			out = append(out, e.history[i])
		}
	}
	return out
}

// findInference looks an inference up by id, scanning newest first.
func (e *Engine) findInference(id string) (InferenceRecord, bool) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].ID == id {
			return e.history[i], true
		}
	}
	return InferenceRecord{}, false
}

// HistoryLen reports the current inference history length.
func (e *Engine) HistoryLen() int {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	return len(e.history)
}

// Package adaptive extends the static rule engine with a learned layer:
// mined type-sequence patterns, templated adaptive rules whose thresholds
// come from per-user profiles, and a feedback loop that tunes pattern
// effectiveness and rule confidence online.
package adaptive

import (
	"sort"
	"strings"
	"time"

	"github.com/inqgraph/inqgraph/pkg/rules"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// LearningPattern is a mined, reusable node-type sequence with an
// empirically tracked effectiveness score.
type LearningPattern struct {
	ID                string            `json:"id"`
	Sequence          []schema.NodeType `json:"sequence"`
	SuccessRate       float64           `json:"success_rate"`
	UsageCount        int               `json:"usage_count"`
	LastUsed          time.Time         `json:"last_used"`
	Effectiveness     float64           `json:"effectiveness_score"`
	ContextConditions map[string]any    `json:"context_conditions,omitempty"`
}

// ActionTemplate is the parameterized action half of an adaptive rule.
type ActionTemplate struct {
	SupportType  rules.SupportType `json:"support_type"`
	Acts         []rules.SpeechAct `json:"acts"`
	NextNodeType schema.NodeType   `json:"next_node_type,omitempty"`
	Reason       string            `json:"reason"`
}

// Confidence clamp bounds for adaptive rules. Feedback can never push a rule
// to certainty or to uselessness.
const (
	MinRuleConfidence = 0.10
	MaxRuleConfidence = 0.95
)

// Rule is an adaptive rule: a typed predicate plus an action template, with
// confidence recomputed from its success/failure history.
type Rule struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Predicate      PredicateSpec  `json:"predicate"`
	Action         ActionTemplate `json:"action"`
	Priority       int            `json:"priority"`
	Confidence     float64        `json:"confidence"`
	SuccessCount   int            `json:"success_count"`
	FailureCount   int            `json:"failure_count"`
	SourcePatterns []string       `json:"source_patterns,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SuccessRate returns successes over total uses, or 0 with no uses.
func (r *Rule) SuccessRate() (float64, bool) {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 0, false
	}
	return float64(r.SuccessCount) / float64(total), true
}

// RecomputeConfidence sets confidence from the success ratio, clamped to
// [MinRuleConfidence, MaxRuleConfidence].
func (r *Rule) RecomputeConfidence() {
	rate, ok := r.SuccessRate()
	if !ok {
		return
	}
	r.Confidence = clamp(rate, MinRuleConfidence, MaxRuleConfidence)
}

// Learning-style dimension names; keys of UserProfile.LearningStyle and the
// threshold namespace for adaptive predicates.
const (
	StyleAnalytical  = "analytical"
	StyleCreative    = "creative"
	StyleStructured  = "structured"
	StyleExploratory = "exploratory"
)

// AdaptationRecord is one entry of a profile's bounded history ring.
type AdaptationRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	InferenceID   string    `json:"inference_id"`
	SupportType   string    `json:"support_type"`
	Satisfaction  float64   `json:"satisfaction"`
	Effectiveness float64   `json:"effectiveness"`
}

// profileHistoryCap bounds a profile's adaptation history ring.
const profileHistoryCap = 50

// UserProfile carries per-learner preference weights, all updated by
// exponential moving average with alpha 0.1.
type UserProfile struct {
	UserID               string             `json:"user_id"`
	LearningStyle        map[string]float64 `json:"learning_style"`
	PreferredSupport     map[string]float64 `json:"preferred_support"`
	EffectiveActs        map[string]float64 `json:"effective_acts"`
	DifficultyPreference map[string]float64 `json:"difficulty_preference"`
	History              []AdaptationRecord `json:"history,omitempty"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// NewUserProfile returns a neutral profile: every weight starts at 0.5.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID: userID,
		LearningStyle: map[string]float64{
			StyleAnalytical:  0.5,
			StyleCreative:    0.5,
			StyleStructured:  0.5,
			StyleExploratory: 0.5,
		},
		PreferredSupport: make(map[string]float64),
		EffectiveActs:    make(map[string]float64),
		DifficultyPreference: map[string]float64{
			"easy": 0.5, "moderate": 0.5, "challenging": 0.5,
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// profileEMAAlpha is the smoothing factor for all profile weight updates.
const profileEMAAlpha = 0.1

// ema blends a new observation into a weight; missing weights start at 0.5.
func ema(weights map[string]float64, key string, observed, alpha float64) {
	old, ok := weights[key]
	if !ok {
		old = 0.5
	}
	weights[key] = old*(1-alpha) + observed*alpha
}

// recordAdaptation appends to the history ring, dropping the oldest entry
// past the cap.
func (p *UserProfile) recordAdaptation(rec AdaptationRecord) {
	p.History = append(p.History, rec)
	if len(p.History) > profileHistoryCap {
		p.History = p.History[len(p.History)-profileHistoryCap:]
	}
}

// Feedback is one user reaction to an inference.
type Feedback struct {
	Satisfaction  float64  `json:"satisfaction"`  // 0..1
	Effectiveness float64  `json:"effectiveness"` // 0..1
	SupportType   string   `json:"support_type"`
	Acts          []string `json:"acts"`
}

// ActsKey canonicalizes an act combination: sorted and joined, so the same
// set of acts always maps to the same profile weight.
func ActsKey(acts []string) string {
	sorted := make([]string, len(acts))
	copy(sorted, acts)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// InferenceRecord remembers which candidates contributed to one inference so
// later feedback can reach back to them.
type InferenceRecord struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	NodeID    string        `json:"node_id"`
	Timestamp time.Time     `json:"timestamp"`
	Result    *rules.Result `json:"result"`
	// Stores touched by this inference, for feedback attribution.
	PatternIDs []string `json:"pattern_ids,omitempty"`
	RuleIDs    []string `json:"rule_ids,omitempty"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

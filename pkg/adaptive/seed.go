package adaptive

import (
	"time"

	"github.com/inqgraph/inqgraph/pkg/rules"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// seedAdaptiveRules returns the fixed starter set. Rule ids deliberately
// contain a learning-style dimension and a node type so style-fit and
// temporal-fit keyword matching have something to bite on; feedback tunes
// their confidence from here.
func seedAdaptiveRules() []*Rule {
	now := time.Now().UTC()
	return []*Rule{
		{
			ID:   "adaptive_analytical_data_probe",
			Name: "probe deep data analytically",
			Predicate: PredicateSpec{Kind: "all", All: []PredicateSpec{
				{Kind: "type_is", Type: schema.Data},
				{Kind: "attr_above", Attr: "depth", ThresholdKey: StyleAnalytical, Fallback: 0.5},
			}},
			Action: ActionTemplate{
				SupportType:  rules.SupportDeepening,
				Acts:         []rules.SpeechAct{rules.ActProbe},
				NextNodeType: schema.Insight,
				Reason:       "the data is rich enough to analyze for an insight",
			},
			Priority:   6,
			Confidence: 0.6,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:   "adaptive_creative_question_branch",
			Name: "branch a clear question creatively",
			Predicate: PredicateSpec{Kind: "all", All: []PredicateSpec{
				{Kind: "type_is", Type: schema.Question},
				{Kind: "attr_above", Attr: "clarity", ThresholdKey: StyleCreative, Fallback: 0.5},
			}},
			Action: ActionTemplate{
				SupportType:  rules.SupportPathfinding,
				Acts:         []rules.SpeechAct{rules.ActSuggest, rules.ActReframe},
				NextNodeType: schema.Hypothesis,
				Reason:       "try more than one answer to this question",
			},
			Priority:   5,
			Confidence: 0.55,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:   "adaptive_structured_hypothesis_plan",
			Name: "plan a test for a shaky hypothesis",
			Predicate: PredicateSpec{Kind: "all", All: []PredicateSpec{
				{Kind: "type_is", Type: schema.Hypothesis},
				{Kind: "attr_below", Attr: "confidence", ThresholdKey: StyleStructured, Fallback: 0.6},
			}},
			Action: ActionTemplate{
				SupportType:  rules.SupportExperimenting,
				Acts:         []rules.SpeechAct{rules.ActSuggest},
				NextNodeType: schema.Method,
				Reason:       "a step-by-step test would firm this hypothesis up",
			},
			Priority:   5,
			Confidence: 0.6,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:        "adaptive_exploratory_insight_widen",
			Name:      "open a new question from an insight",
			Predicate: PredicateSpec{Kind: "type_is", Type: schema.Insight},
			Action: ActionTemplate{
				SupportType:  rules.SupportReframing,
				Acts:         []rules.SpeechAct{rules.ActEncourage, rules.ActReframe},
				NextNodeType: schema.Question,
				Reason:       "this insight opens territory worth exploring",
			},
			Priority:   4,
			Confidence: 0.5,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

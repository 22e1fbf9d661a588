// Package schema defines the inquiry ontology (node and relation vocabulary,
// relation domain/range, allowed type paths) and the constraints catalogue
// (structural requirements, attribute guards, advanced structural checks).
//
// Both are data, not code: they load from YAML and are validated fail-fast at
// construction. The graph package consults the ontology on every edge insert;
// gap detection and guard checks consult the constraints.
package schema

// NodeType is one step kind in a learner's inquiry trajectory.
type NodeType string

const (
	Goal       NodeType = "Goal"
	Question   NodeType = "Question"
	Hypothesis NodeType = "Hypothesis"
	Method     NodeType = "Method"
	Data       NodeType = "Data"
	Insight    NodeType = "Insight"
	Reflection NodeType = "Reflection"
	Will       NodeType = "Will"
	Need       NodeType = "Need"
	Topic      NodeType = "Topic"
	Challenge  NodeType = "Challenge"
)

// Relation is a typed arc between two inquiry nodes.
type Relation string

const (
	Generates      Relation = "generates"
	Motivates      Relation = "motivates"
	Grounds        Relation = "grounds"
	Frames         Relation = "frames"
	LeadsTo        Relation = "leads_to"
	IsTestedBy     Relation = "is_tested_by"
	ResultsIn      Relation = "results_in"
	LeadsToInsight Relation = "leads_to_insight"
	Modifies       Relation = "modifies"
	AlignedWith    Relation = "aligned_with"
)

// RelationSpec declares which node types a relation may connect.
// An edge (src)-[rel]->(dst) is valid iff src.Type is in Domain and
// dst.Type is in Range.
type RelationSpec struct {
	Name   Relation   `yaml:"name"`
	Domain []NodeType `yaml:"domain"`
	Range  []NodeType `yaml:"range"`
}

// AllowsDomain reports whether t may be the source type of this relation.
func (r *RelationSpec) AllowsDomain(t NodeType) bool {
	for _, d := range r.Domain {
		if d == t {
			return true
		}
	}
	return false
}

// AllowsRange reports whether t may be the target type of this relation.
func (r *RelationSpec) AllowsRange(t NodeType) bool {
	for _, d := range r.Range {
		if d == t {
			return true
		}
	}
	return false
}

// Ontology is the node/relation vocabulary plus the declared allowed type
// paths used by path-quality scoring.
type Ontology struct {
	NodeTypes    []NodeType     `yaml:"node_types"`
	Relations    []RelationSpec `yaml:"relations"`
	AllowedPaths [][]NodeType   `yaml:"allowed_paths"`

	typeSet  map[NodeType]struct{}
	relIndex map[Relation]*RelationSpec
}

// HasNodeType reports whether t is part of the vocabulary.
func (o *Ontology) HasNodeType(t NodeType) bool {
	_, ok := o.typeSet[t]
	return ok
}

// RelationSpec returns the declaration for rel, if any.
func (o *Ontology) RelationSpec(rel Relation) (*RelationSpec, bool) {
	spec, ok := o.relIndex[rel]
	return spec, ok
}

// GapPriority orders structural gaps for presentation: high before medium
// before low. Ties keep their scan order (stable sort).
type GapPriority string

const (
	PriorityHigh   GapPriority = "high"
	PriorityMedium GapPriority = "medium"
	PriorityLow    GapPriority = "low"
)

// Rank maps a priority to its sort key; lower sorts first.
func (p GapPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// StructuralRequirement is one "if a node of type X exists, it must have an
// outgoing edge of relation R to a node of type Y" rule.
type StructuralRequirement struct {
	IfExists  NodeType    `yaml:"if_exists"`
	MustHave  Relation    `yaml:"must_have"`
	Target    NodeType    `yaml:"target_type"`
	GapPrompt string      `yaml:"gap_prompt"`
	Priority  GapPriority `yaml:"priority"`
}

// Guard fires a pedagogical suggestion when a node attribute crosses a
// threshold. Attr is one of clarity, depth, confidence, alignment.
type Guard struct {
	NodeType NodeType `yaml:"node_type"`
	Attr     string   `yaml:"attr"`
	Op       string   `yaml:"op"` // lt, le, gt, ge, eq
	Value    float64  `yaml:"value"`
	Suggest  string   `yaml:"suggest"`
}

// Holds evaluates the guard's comparison against an attribute value.
func (g *Guard) Holds(v float64) bool {
	switch g.Op {
	case "lt":
		return v < g.Value
	case "le":
		return v <= g.Value
	case "gt":
		return v > g.Value
	case "ge":
		return v >= g.Value
	case "eq":
		return v == g.Value
	}
	return false
}

// AdvancedChecks toggles the structural checks that go beyond single
// requirement rules: question/goal alignment, inquiry chain depth, and the
// insight-back-to-hypothesis cycle.
type AdvancedChecks struct {
	AlignmentGap bool `yaml:"alignment_gap"`
	DepthGap     bool `yaml:"depth_gap"`
	MinDepth     int  `yaml:"min_depth"`
	CycleGap     bool `yaml:"cycle_gap"`
}

// Constraints is the full constraints catalogue.
type Constraints struct {
	StructuralRequirements []StructuralRequirement `yaml:"structural_requirements"`
	Guards                 []Guard                 `yaml:"guards"`
	Advanced               AdvancedChecks          `yaml:"advanced_structural_checks"`
}

// Schema bundles ontology and constraints; the unit the engines consume.
type Schema struct {
	Ontology    Ontology    `yaml:"ontology"`
	Constraints Constraints `yaml:"constraints"`
}

package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var validGuardOps = map[string]struct{}{
	"lt": {}, "le": {}, "gt": {}, "ge": {}, "eq": {},
}

var validGuardAttrs = map[string]struct{}{
	"clarity": {}, "depth": {}, "confidence": {}, "alignment": {},
}

// Load reads and validates a schema from a YAML file. A malformed or
// inconsistent schema is fatal at construction: callers should not attempt
// to recover.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a schema from YAML bytes.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks internal consistency and builds the lookup indexes.
// It must be called before the schema is handed to a graph store; Load,
// Parse and Default all do so.
func (s *Schema) Validate() error {
	o := &s.Ontology
	if len(o.NodeTypes) == 0 {
		return fmt.Errorf("validate: ontology declares no node types")
	}
	if len(o.Relations) == 0 {
		return fmt.Errorf("validate: ontology declares no relations")
	}

	o.typeSet = make(map[NodeType]struct{}, len(o.NodeTypes))
	for _, t := range o.NodeTypes {
		if t == "" {
			return fmt.Errorf("validate: empty node type")
		}
		if _, dup := o.typeSet[t]; dup {
			return fmt.Errorf("validate: duplicate node type %q", t)
		}
		o.typeSet[t] = struct{}{}
	}

	o.relIndex = make(map[Relation]*RelationSpec, len(o.Relations))
	for i := range o.Relations {
		spec := &o.Relations[i]
		if spec.Name == "" {
			return fmt.Errorf("validate: relation %d has no name", i)
		}
		if _, dup := o.relIndex[spec.Name]; dup {
			return fmt.Errorf("validate: duplicate relation %q", spec.Name)
		}
		if len(spec.Domain) == 0 || len(spec.Range) == 0 {
			return fmt.Errorf("validate: relation %q needs a domain and a range", spec.Name)
		}
		for _, t := range spec.Domain {
			if _, ok := o.typeSet[t]; !ok {
				return fmt.Errorf("validate: relation %q domain references unknown type %q", spec.Name, t)
			}
		}
		for _, t := range spec.Range {
			if _, ok := o.typeSet[t]; !ok {
				return fmt.Errorf("validate: relation %q range references unknown type %q", spec.Name, t)
			}
		}
		o.relIndex[spec.Name] = spec
	}

	for _, path := range o.AllowedPaths {
		for _, t := range path {
			if _, ok := o.typeSet[t]; !ok {
				return fmt.Errorf("validate: allowed path references unknown type %q", t)
			}
		}
	}

	c := &s.Constraints
	for i, req := range c.StructuralRequirements {
		if _, ok := o.typeSet[req.IfExists]; !ok {
			return fmt.Errorf("validate: requirement %d if_exists references unknown type %q", i, req.IfExists)
		}
		if _, ok := o.typeSet[req.Target]; !ok {
			return fmt.Errorf("validate: requirement %d target_type references unknown type %q", i, req.Target)
		}
		if _, ok := o.relIndex[req.MustHave]; !ok {
			return fmt.Errorf("validate: requirement %d must_have references unknown relation %q", i, req.MustHave)
		}
		switch req.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			return fmt.Errorf("validate: requirement %d has invalid priority %q", i, req.Priority)
		}
	}
	for i, g := range c.Guards {
		if _, ok := o.typeSet[g.NodeType]; !ok {
			return fmt.Errorf("validate: guard %d references unknown type %q", i, g.NodeType)
		}
		if _, ok := validGuardOps[g.Op]; !ok {
			return fmt.Errorf("validate: guard %d has invalid op %q", i, g.Op)
		}
		if _, ok := validGuardAttrs[g.Attr]; !ok {
			return fmt.Errorf("validate: guard %d has invalid attr %q", i, g.Attr)
		}
	}
	if c.Advanced.DepthGap && c.Advanced.MinDepth <= 0 {
		return fmt.Errorf("validate: depth_gap enabled with min_depth %d", c.Advanced.MinDepth)
	}

	return nil
}

// Default returns the built-in inquiry ontology and constraints so the
// engines work without any config files. The vocabulary follows the
// Goal->Question->Hypothesis->Method->Data->Insight cycle with the Insight
// feedback arc back into Hypothesis.
func Default() *Schema {
	s := &Schema{
		Ontology: Ontology{
			NodeTypes: []NodeType{
				Goal, Question, Hypothesis, Method, Data, Insight,
				Reflection, Will, Need, Topic, Challenge,
			},
			Relations: []RelationSpec{
				{Name: Generates, Domain: []NodeType{Goal, Insight}, Range: []NodeType{Question}},
				{Name: Motivates, Domain: []NodeType{Will, Need}, Range: []NodeType{Goal, Question}},
				{Name: Grounds, Domain: []NodeType{Data, Topic}, Range: []NodeType{Hypothesis, Insight}},
				{Name: Frames, Domain: []NodeType{Topic, Challenge}, Range: []NodeType{Question, Goal}},
				{Name: LeadsTo, Domain: []NodeType{Question}, Range: []NodeType{Hypothesis}},
				{Name: IsTestedBy, Domain: []NodeType{Hypothesis}, Range: []NodeType{Method}},
				{Name: ResultsIn, Domain: []NodeType{Method}, Range: []NodeType{Data}},
				{Name: LeadsToInsight, Domain: []NodeType{Data, Reflection}, Range: []NodeType{Insight}},
				{Name: Modifies, Domain: []NodeType{Insight, Reflection}, Range: []NodeType{Hypothesis, Question}},
				{Name: AlignedWith, Domain: []NodeType{Question, Hypothesis}, Range: []NodeType{Goal}},
			},
			AllowedPaths: [][]NodeType{
				{Goal, Question, Hypothesis, Method, Data, Insight},
				{Question, Hypothesis, Method, Data, Insight},
				{Insight, Hypothesis, Method, Data, Insight},
				{Insight, Question, Hypothesis},
			},
		},
		Constraints: Constraints{
			StructuralRequirements: []StructuralRequirement{
				{
					IfExists: Hypothesis, MustHave: IsTestedBy, Target: Method,
					GapPrompt: "How could you test the hypothesis %q?",
					Priority:  PriorityHigh,
				},
				{
					IfExists: Question, MustHave: LeadsTo, Target: Hypothesis,
					GapPrompt: "What might be an answer to %q?",
					Priority:  PriorityMedium,
				},
				{
					IfExists: Method, MustHave: ResultsIn, Target: Data,
					GapPrompt: "What did you observe when you tried %q?",
					Priority:  PriorityMedium,
				},
				{
					IfExists: Data, MustHave: LeadsToInsight, Target: Insight,
					GapPrompt: "What does %q tell you?",
					Priority:  PriorityLow,
				},
			},
			Guards: []Guard{
				{NodeType: Question, Attr: "clarity", Op: "lt", Value: 0.5,
					Suggest: "Help the learner restate the question more precisely."},
				{NodeType: Hypothesis, Attr: "confidence", Op: "lt", Value: 0.3,
					Suggest: "Probe what evidence would raise confidence in this hypothesis."},
				{NodeType: Question, Attr: "alignment", Op: "lt", Value: 0.4,
					Suggest: "Ask how this question serves the learner's goal."},
			},
			Advanced: AdvancedChecks{
				AlignmentGap: true,
				DepthGap:     true,
				MinDepth:     3,
				CycleGap:     true,
			},
		},
	}
	// Built-in schema must always validate.
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
}

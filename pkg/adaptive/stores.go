package adaptive

import (
	"sort"
	"sync"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

// The three learned-model stores wrap their maps in explicit RWMutex-guarded
// types. Thread safety is the contract here, not an accident of
// single-threaded use: sessions sharing one engine funnel through these
// locks.

// PatternStore holds mined learning patterns by id.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*LearningPattern
}

func NewPatternStore() *PatternStore {
	return &PatternStore{patterns: make(map[string]*LearningPattern)}
}

// Put inserts or replaces a pattern.
func (s *PatternStore) Put(p *LearningPattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = copyPattern(p)
}

// Get returns a copy of the pattern, if present.
func (s *PatternStore) Get(id string) (*LearningPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, false
	}
	return copyPattern(p), true
}

// All returns copies of every pattern, ordered by id for determinism.
func (s *PatternStore) All() []*LearningPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*LearningPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, copyPattern(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// copyPattern deep-copies the slice and map fields so nothing outside the
// store aliases indexed state.
func copyPattern(p *LearningPattern) *LearningPattern {
	cp := *p
	if p.Sequence != nil {
		cp.Sequence = make([]schema.NodeType, len(p.Sequence))
		copy(cp.Sequence, p.Sequence)
	}
	if p.ContextConditions != nil {
		cp.ContextConditions = make(map[string]any, len(p.ContextConditions))
		for k, v := range p.ContextConditions {
			cp.ContextConditions[k] = v
		}
	}
	return &cp
}

// Update applies fn to the stored pattern under the write lock.
func (s *PatternStore) Update(id string, fn func(*LearningPattern)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

func (s *PatternStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// RuleStore holds adaptive rules by id.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewRuleStore() *RuleStore {
	return &RuleStore{rules: make(map[string]*Rule)}
}

func (s *RuleStore) Put(r *Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rules[r.ID] = &cp
}

func (s *RuleStore) Get(id string) (*Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// All returns copies of every rule, highest priority first, id as tie-break
// so evaluation order is deterministic.
func (s *RuleStore) All() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *RuleStore) Update(id string, fn func(*Rule)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// ProfileStore holds user profiles, created lazily on first reference.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*UserProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*UserProfile)}
}

// GetOrCreate returns a copy of the user's profile, creating a neutral one
// on first reference.
func (s *ProfileStore) GetOrCreate(userID string) *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = NewUserProfile(userID)
		s.profiles[userID] = p
	}
	return copyProfile(p)
}

// Update applies fn to the stored profile under the write lock, creating the
// profile first if needed.
func (s *ProfileStore) Update(userID string, fn func(*UserProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = NewUserProfile(userID)
		s.profiles[userID] = p
	}
	fn(p)
}

// All returns copies of every profile, ordered by user id.
func (s *ProfileStore) All() []*UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Put inserts or replaces a profile (used by persistence load).
func (s *ProfileStore) Put(p *UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = copyProfile(p)
}

func copyProfile(p *UserProfile) *UserProfile {
	cp := *p
	cp.LearningStyle = copyWeights(p.LearningStyle)
	cp.PreferredSupport = copyWeights(p.PreferredSupport)
	cp.EffectiveActs = copyWeights(p.EffectiveActs)
	cp.DifficultyPreference = copyWeights(p.DifficultyPreference)
	if p.History != nil {
		cp.History = make([]AdaptationRecord, len(p.History))
		copy(cp.History, p.History)
	}
	return &cp
}

func copyWeights(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

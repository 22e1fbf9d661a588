package adaptive

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

// Mining window bounds: contiguous subsequences of these lengths are
// candidates.
const (
	minMiningWindow = 3
	maxMiningWindow = 5
)

// DefaultMinSupport is the occurrence count a window needs to become a
// pattern.
const DefaultMinSupport = 3

// coldStartEffectiveness seeds a new pattern when no existing pattern is
// similar enough to borrow a score from.
const coldStartEffectiveness = 0.6

// DiscoverNewPatterns mines the user's chronological node-type sequence for
// frequent contiguous subsequences of length 3-5. A window occurring at
// least minSupport times (minSupport <= 0 uses DefaultMinSupport) and not
// already stored becomes a new pattern whose initial effectiveness is the
// similarity-weighted mean of existing patterns' scores, falling back to the
// cold-start default. Returns the newly created patterns.
func (e *Engine) DiscoverNewPatterns(userID string, minSupport int) []*LearningPattern {
	if minSupport <= 0 {
		minSupport = DefaultMinSupport
	}
	seq := e.g.NodeTypeSequence(userID)
	if len(seq) < minMiningWindow {
		return nil
	}

	// Count occurrences of every window, remembering first-seen order so
	// output is deterministic.
	counts := make(map[string]int)
	windows := make(map[string][]schema.NodeType)
	var order []string
	for w := minMiningWindow; w <= maxMiningWindow; w++ {
		for i := 0; i+w <= len(seq); i++ {
			win := seq[i : i+w]
			key := windowKey(win)
			if counts[key] == 0 {
				windows[key] = append([]schema.NodeType{}, win...)
				order = append(order, key)
			}
			counts[key]++
		}
	}

	existing := e.patterns.All()
	var created []*LearningPattern
	for _, key := range order {
		if counts[key] < minSupport {
			continue
		}
		win := windows[key]
		if hasSequence(existing, win) {
			continue
		}
		p := &LearningPattern{
			ID:            uuid.NewString(),
			Sequence:      win,
			Effectiveness: initialEffectiveness(win, existing),
			ContextConditions: map[string]any{
				"mined_from": userID,
			},
			LastUsed: time.Now().UTC(),
		}
		e.patterns.Put(p)
		existing = append(existing, p)
		created = append(created, p)
		e.log.Info("pattern discovered",
			zap.String("id", p.ID),
			zap.String("user", userID),
			zap.Int("support", counts[key]),
			zap.Float64("effectiveness", p.Effectiveness))
	}
	return created
}

func windowKey(win []schema.NodeType) string {
	key := ""
	for _, t := range win {
		key += string(t) + ">"
	}
	return key
}

func hasSequence(patterns []*LearningPattern, seq []schema.NodeType) bool {
	for _, p := range patterns {
		if len(p.Sequence) != len(seq) {
			continue
		}
		same := true
		for i := range seq {
			if p.Sequence[i] != seq[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// initialEffectiveness borrows from similar existing patterns: the
// similarity-weighted mean of their effectiveness scores, or the cold-start
// default when nothing is similar.
func initialEffectiveness(seq []schema.NodeType, existing []*LearningPattern) float64 {
	var weighted, total float64
	for _, p := range existing {
		sim := SequenceSimilarity(seq, p.Sequence)
		if sim <= 0 {
			continue
		}
		weighted += sim * p.Effectiveness
		total += sim
	}
	if total == 0 {
		return coldStartEffectiveness
	}
	return weighted / total
}

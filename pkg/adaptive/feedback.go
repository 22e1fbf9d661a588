package adaptive

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// patternEMAAlpha smooths pattern effectiveness updates; patterns adapt
// faster than profiles.
const patternEMAAlpha = 0.2

// LearnFromFeedback folds one user reaction back into the learned state:
//
//   - the user's profile preference maps update by EMA (alpha 0.1), keyed by
//     the feedback's support type and its sorted-and-joined acts key;
//   - any pattern used in the user's last 10 inferences has its
//     effectiveness updated by EMA (alpha 0.2);
//   - any adaptive rule used in the user's last 5 inferences gets a
//     success or failure tick and its confidence recomputed, clamped to
//     [0.10, 0.95].
//
// When a persister is attached all three stores are saved afterwards.
func (e *Engine) LearnFromFeedback(inferenceID, userID string, fb Feedback) error {
	rec, ok := e.findInference(inferenceID)
	if !ok {
		return fmt.Errorf("adaptive: unknown inference %q", inferenceID)
	}

	e.profiles.Update(userID, func(p *UserProfile) {
		if fb.SupportType != "" {
			ema(p.PreferredSupport, fb.SupportType, fb.Satisfaction, profileEMAAlpha)
		}
		if len(fb.Acts) > 0 {
			ema(p.EffectiveActs, ActsKey(fb.Acts), fb.Effectiveness, profileEMAAlpha)
		}
		p.UpdatedAt = time.Now().UTC()
		p.recordAdaptation(AdaptationRecord{
			Timestamp:     time.Now().UTC(),
			InferenceID:   inferenceID,
			SupportType:   fb.SupportType,
			Satisfaction:  fb.Satisfaction,
			Effectiveness: fb.Effectiveness,
		})
	})

	success := fb.Satisfaction >= 0.5
	patternsTouched := 0
	rulesTouched := 0

	for _, r := range e.recentForUser(userID, feedbackPatternWindow) {
		for _, pid := range r.PatternIDs {
			if e.patterns.Update(pid, func(p *LearningPattern) {
				p.Effectiveness = p.Effectiveness*(1-patternEMAAlpha) + fb.Effectiveness*patternEMAAlpha
				if success {
					p.SuccessRate = p.SuccessRate*(1-patternEMAAlpha) + patternEMAAlpha
				} else {
					p.SuccessRate = p.SuccessRate * (1 - patternEMAAlpha)
				}
				p.LastUsed = time.Now().UTC()
			}) {
				patternsTouched++
			}
		}
	}

	for _, r := range e.recentForUser(userID, feedbackRuleWindow) {
		for _, rid := range r.RuleIDs {
			if e.adaptive.Update(rid, func(ar *Rule) {
				if success {
					ar.SuccessCount++
				} else {
					ar.FailureCount++
				}
				ar.RecomputeConfidence()
				ar.UpdatedAt = time.Now().UTC()
			}) {
				rulesTouched++
			}
		}
	}

	e.log.Debug("feedback applied",
		zap.String("inference", inferenceID),
		zap.String("node", rec.NodeID),
		zap.String("user", userID),
		zap.Float64("satisfaction", fb.Satisfaction),
		zap.Int("patterns", patternsTouched),
		zap.Int("rules", rulesTouched))

	if e.persist != nil {
		if err := e.persist.SaveModels(e.patterns.All(), e.adaptive.All(), e.profiles.All()); err != nil {
			return fmt.Errorf("adaptive: persist models: %w", err)
		}
	}
	return nil
}

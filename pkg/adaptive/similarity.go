package adaptive

import (
	"math"

	"github.com/inqgraph/inqgraph/pkg/schema"
)

// SequenceSimilarity is a normalized longest-common-subsequence ratio over
// node-type sequences: LCS length divided by the longer length. A sequence
// against itself scores 1.0; disjoint equal-length sequences score 0.0.
func SequenceSimilarity(a, b []schema.NodeType) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(lcsLength(a, b)) / float64(longer)
}

// lcsLength computes LCS length with the standard two-row DP.
func lcsLength(a, b []schema.NodeType) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// ContextSimilarity averages per-field distances between a live context
// feature map and a pattern's stored conditions. Numeric fields use
// 1 - |a-b| / max(|a|,|b|,1); strings use exact match; lists use the Jaccard
// index. Fields missing on either side score 0. An empty condition map is
// neutral (0.5): the pattern neither fits nor clashes.
func ContextSimilarity(features, conditions map[string]any) float64 {
	if len(conditions) == 0 {
		return 0.5
	}
	total := 0.0
	for key, want := range conditions {
		got, ok := features[key]
		if !ok {
			continue // contributes 0
		}
		total += fieldSimilarity(got, want)
	}
	return total / float64(len(conditions))
}

func fieldSimilarity(a, b any) float64 {
	if fa, aok := asFloat(a); aok {
		if fb, bok := asFloat(b); bok {
			denom := math.Max(math.Max(math.Abs(fa), math.Abs(fb)), 1)
			return 1 - math.Abs(fa-fb)/denom
		}
		return 0
	}
	if sa, aok := a.(string); aok {
		if sb, bok := b.(string); bok && sa == sb {
			return 1
		}
		return 0
	}
	la, aok := asStringList(a)
	lb, bok := asStringList(b)
	if aok && bok {
		return jaccard(la, lb)
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func asStringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// jaccard is |intersection| / |union| over string sets; two empty sets
// count as identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s] = 1
	}
	inter := 0
	for _, s := range b {
		if set[s] == 1 {
			set[s] = 2
			inter++
		} else if _, ok := set[s]; !ok {
			set[s] = 0
		}
	}
	union := len(set)
	return float64(inter) / float64(union)
}

package stability

import (
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

// Jaccard returns |a ∩ b| / |a ∪ b| for two token sets.
//
// Membership is exact, case-sensitive string equality. When both sets are
// empty the ratio is 0/0 and ErrUndefinedSimilarity is returned; callers
// must treat that as "skip this sample", never as a zero score.
func Jaccard(a, b map[string]struct{}) (float64, error) {
	if len(a) == 0 && len(b) == 0 {
		return 0, apperrors.ErrUndefinedSimilarity
	}
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	intersection := 0
	for tok := range smaller {
		if _, ok := larger[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union), nil
}

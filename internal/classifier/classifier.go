// Package classifier defines the probability-producing classifier boundary
// consumed by the explainers. Model internals are deliberately opaque: the
// evaluator only needs class probabilities over a fixed label space.
package classifier

import "context"

// Classifier is the sole contract the explanation layer requires from a
// model. Each row of PredictProba output sums to 1 across Labels().
//
// Implementations must be safe for concurrent use: a stability run explains
// original and perturbed variants against the same frozen model snapshot,
// possibly from multiple goroutines.
type Classifier interface {
	// ID identifies the loaded model (used in cache keys and reports).
	ID() string

	// Labels returns the ordered class label space.
	Labels() []string

	// PredictProba returns one probability row per input text.
	PredictProba(ctx context.Context, texts []string) ([][]float64, error)
}

// Argmax returns the index of the largest probability in row, preferring
// the lower index on ties.
func Argmax(row []float64) int {
	best := 0
	for i, p := range row {
		if p > row[best] {
			best = i
		}
	}
	return best
}

// Package explain defines the uniform adapter over attribution methods:
// given raw text and a probability-producing classifier, produce the
// top-k contributing tokens for the predicted class.
package explain

import (
	"context"
	"math"
	"sort"

	"github.com/explainlab/stability-platform/internal/classifier"
)

// Attribution maps tokens to signed contribution weights for the predicted
// class. Produced fresh per explanation call; it has no identity beyond its
// owning (text, model, method) triple.
type Attribution struct {
	// Class is the index of the predicted class the weights refer to.
	Class int `json:"class"`
	// ClassLabel is the label string for Class.
	ClassLabel string `json:"class_label"`
	// Weights holds one signed weight per distinct token.
	Weights map[string]float64 `json:"weights"`
}

// TopTokens returns the k tokens with the largest absolute weight, ordered
// by descending magnitude with a lexicographic tie-break so output is
// deterministic across runs.
func (a *Attribution) TopTokens(k int) []string {
	tokens := make([]string, 0, len(a.Weights))
	for tok := range a.Weights {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		wi := math.Abs(a.Weights[tokens[i]])
		wj := math.Abs(a.Weights[tokens[j]])
		if wi != wj {
			return wi > wj
		}
		return tokens[i] < tokens[j]
	})
	if k > 0 && len(tokens) > k {
		tokens = tokens[:k]
	}
	return tokens
}

// TokenSet returns the top-k tokens as a membership set. Membership is
// exact, case-sensitive string equality with no stemming or normalisation.
// Loosening it would inflate reported stability.
func (a *Attribution) TokenSet(k int) map[string]struct{} {
	set := make(map[string]struct{}, k)
	for _, tok := range a.TopTokens(k) {
		set[tok] = struct{}{}
	}
	return set
}

// Explainer produces an Attribution for a text against a classifier.
//
// Implementations must map degenerate inputs (no tokens, constant
// predictions, singular fits) to errors wrapping
// pkg/errors.ErrExplanationFailed so the caller can skip the sample
// instead of aborting the run.
type Explainer interface {
	// Method names the attribution method ("lime" or "shap").
	Method() string

	// Explain computes token attributions for the class the classifier
	// predicts on text, retaining the topK strongest tokens.
	Explain(ctx context.Context, text string, clf classifier.Classifier, topK int) (*Attribution, error)
}

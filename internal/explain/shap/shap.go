// Package shap implements a sampling approximation of Shapley token
// attributions: feature permutations are walked front to back, and each
// token is credited with the marginal change in the predicted-class
// probability when it joins the coalition. Permutations are drawn in
// antithetic pairs (a permutation and its reverse) to reduce variance.
package shap

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/explain"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

const defaultPermutations = 16

// Explainer approximates Shapley values by permutation sampling. A single
// instance may be shared across goroutines; the rng is mutex-guarded.
type Explainer struct {
	permutations int
	mu           sync.Mutex
	rng          *rand.Rand
}

// New creates a SHAP-style explainer drawing the given number of feature
// permutations per explanation (rounded up to an even count for antithetic
// pairing).
func New(permutations int, seed int64) *Explainer {
	if permutations <= 0 {
		permutations = defaultPermutations
	}
	if permutations%2 != 0 {
		permutations++
	}
	return &Explainer{
		permutations: permutations,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

func (e *Explainer) Method() string {
	return "shap"
}

// Explain computes sampled Shapley attributions for the predicted class.
// All coalition variants are scored in a single classifier batch.
func (e *Explainer) Explain(ctx context.Context, text string, clf classifier.Classifier, topK int) (*explain.Attribution, error) {
	words := strings.Fields(text)
	features := distinct(words)
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("%w: no tokens in input", apperrors.ErrExplanationFailed)
	}

	orders := e.drawOrders(n)

	// Variant layout: [full, coalition walks...]. Each walk contributes n
	// texts, one per prefix of the permutation.
	index := make(map[string]int, n)
	for i, f := range features {
		index[f] = i
	}
	variants := make([]string, 0, 1+len(orders)*n)
	variants = append(variants, strings.Join(words, " "))
	for _, order := range orders {
		present := make([]bool, n)
		for _, feat := range order {
			present[feat] = true
			variants = append(variants, coalitionText(words, index, present))
		}
	}

	probs, err := clf.PredictProba(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("%w: predicting coalitions: %v", apperrors.ErrExplanationFailed, err)
	}
	if len(probs) != len(variants) {
		return nil, fmt.Errorf("%w: classifier returned %d rows for %d variants",
			apperrors.ErrExplanationFailed, len(probs), len(variants))
	}

	class := classifier.Argmax(probs[0])

	// Empty-coalition baseline: predicted-class probability of the empty
	// text, shared across all walks.
	baseline, err := emptyBaseline(ctx, clf, class)
	if err != nil {
		return nil, err
	}

	phi := make([]float64, n)
	row := 1
	for _, order := range orders {
		prev := baseline
		for _, feat := range order {
			current := probs[row][class]
			phi[feat] += current - prev
			prev = current
			row++
		}
	}
	for i := range phi {
		phi[i] /= float64(len(orders))
	}

	weights := make(map[string]float64, n)
	for i, tok := range features {
		weights[tok] = phi[i]
	}
	attr := &explain.Attribution{
		Class:      class,
		ClassLabel: classLabel(clf, class),
		Weights:    weights,
	}
	trim(attr, topK)
	return attr, nil
}

// drawOrders returns antithetic pairs of feature permutations.
func (e *Explainer) drawOrders(n int) [][]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	orders := make([][]int, 0, e.permutations)
	for len(orders) < e.permutations {
		perm := e.rng.Perm(n)
		orders = append(orders, perm)
		reversed := make([]int, n)
		for i, v := range perm {
			reversed[n-1-i] = v
		}
		orders = append(orders, reversed)
	}
	return orders
}

func emptyBaseline(ctx context.Context, clf classifier.Classifier, class int) (float64, error) {
	probs, err := clf.PredictProba(ctx, []string{""})
	if err != nil {
		return 0, fmt.Errorf("%w: predicting empty baseline: %v", apperrors.ErrExplanationFailed, err)
	}
	if len(probs) != 1 || class >= len(probs[0]) {
		return 0, fmt.Errorf("%w: malformed baseline prediction", apperrors.ErrExplanationFailed)
	}
	return probs[0][class], nil
}

// coalitionText keeps every occurrence of each present feature, in the
// original word order.
func coalitionText(words []string, idx map[string]int, present []bool) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if present[idx[w]] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func distinct(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func classLabel(clf classifier.Classifier, class int) string {
	labels := clf.Labels()
	if class >= 0 && class < len(labels) {
		return labels[class]
	}
	return ""
}

func trim(attr *explain.Attribution, topK int) {
	if topK <= 0 || len(attr.Weights) <= topK {
		return
	}
	keep := make(map[string]float64, topK)
	for _, tok := range attr.TopTokens(topK) {
		keep[tok] = attr.Weights[tok]
	}
	attr.Weights = keep
}

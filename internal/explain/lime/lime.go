// Package lime implements a LIME-style local surrogate explainer: it draws
// randomly masked variants of the input, queries the classifier on each,
// and fits a proximity-weighted ridge regression whose coefficients become
// token attributions for the predicted class.
package lime

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/explain"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

const (
	defaultSamples = 500
	// kernelWidth controls how sharply proximity weights decay as more
	// tokens are masked out.
	kernelWidth = 0.25
	ridgeLambda = 1e-3
)

// Explainer fits local linear surrogates. The perturbation rng is owned by
// the explainer and mutex-guarded, so a single instance may be shared
// across scoring goroutines.
type Explainer struct {
	samples int
	mu      sync.Mutex
	rng     *rand.Rand
}

// New creates a LIME-style explainer with the given perturbation budget
// (masked variants per explanation) and seed.
func New(samples int, seed int64) *Explainer {
	if samples <= 0 {
		samples = defaultSamples
	}
	return &Explainer{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (e *Explainer) Method() string {
	return "lime"
}

// Explain computes attributions for the predicted class of text.
//
// Degenerate cases (empty token list, singular surrogate fit) return an
// error wrapping ErrExplanationFailed; the caller skips the sample.
func (e *Explainer) Explain(ctx context.Context, text string, clf classifier.Classifier, topK int) (*explain.Attribution, error) {
	words := strings.Fields(text)
	features := distinct(words)
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no tokens in input", apperrors.ErrExplanationFailed)
	}

	rows := e.samples
	if rows < len(features)+2 {
		rows = len(features) + 2
	}
	masks := e.drawMasks(rows, len(features))

	variants := make([]string, rows)
	index := featureIndex(features)
	for i, mask := range masks {
		variants[i] = applyMask(words, index, mask)
	}

	probs, err := clf.PredictProba(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("%w: predicting masked variants: %v", apperrors.ErrExplanationFailed, err)
	}
	if len(probs) != rows {
		return nil, fmt.Errorf("%w: classifier returned %d rows for %d variants",
			apperrors.ErrExplanationFailed, len(probs), rows)
	}

	// Row 0 is the unmasked input; its argmax fixes the explained class.
	class := classifier.Argmax(probs[0])

	targets := make([]float64, rows)
	proximity := make([]float64, rows)
	for i := range masks {
		targets[i] = probs[i][class]
		proximity[i] = kernel(distance(masks[i]))
	}

	coefs, err := ridgeFit(masks, targets, proximity, ridgeLambda)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExplanationFailed, err)
	}

	weights := make(map[string]float64, len(features))
	for i, tok := range features {
		weights[tok] = coefs[i+1] // coefs[0] is the intercept
	}
	attr := &explain.Attribution{
		Class:      class,
		ClassLabel: classLabel(clf, class),
		Weights:    weights,
	}
	trim(attr, topK)
	return attr, nil
}

// drawMasks produces rows binary masks over n features. The first mask is
// all ones so the original prediction anchors the fit.
func (e *Explainer) drawMasks(rows, n int) [][]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	masks := make([][]float64, rows)
	for i := range masks {
		mask := make([]float64, n)
		if i == 0 {
			for j := range mask {
				mask[j] = 1
			}
		} else {
			for j := range mask {
				if e.rng.Float64() < 0.5 {
					mask[j] = 1
				}
			}
		}
		masks[i] = mask
	}
	return masks
}

// distinct returns the unique words in first-occurrence order.
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

func featureIndex(features []string) map[string]int {
	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f] = i
	}
	return index
}

// applyMask removes every occurrence of each masked-out feature word.
func applyMask(words []string, index map[string]int, mask []float64) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if mask[index[w]] == 1 {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// distance is the fraction of features masked out: 0 for the original
// input, 1 for the empty variant.
func distance(mask []float64) float64 {
	var present float64
	for _, m := range mask {
		present += m
	}
	return 1 - present/float64(len(mask))
}

func kernel(d float64) float64 {
	return math.Exp(-(d * d) / (kernelWidth * kernelWidth))
}

func classLabel(clf classifier.Classifier, class int) string {
	labels := clf.Labels()
	if class >= 0 && class < len(labels) {
		return labels[class]
	}
	return ""
}

// trim drops everything outside the top-k weights so cached attributions
// stay small.
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

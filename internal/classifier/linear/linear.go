// Package linear implements the TF-IDF + multinomial logistic regression
// baseline as a native Classifier. Weights are trained offline and loaded
// from a JSON model file; prediction is a sparse dot product followed by a
// softmax, so the whole path is deterministic and dependency-free.
package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

// Model is the on-disk representation of a trained baseline.
//
// Vocabulary maps terms to column indices into IDF and the coefficient
// rows. Coefficients has one row per label; Intercepts one value per label.
type Model struct {
	ID           string         `json:"id"`
	Labels       []string       `json:"labels"`
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	Coefficients [][]float64    `json:"coefficients"`
	Intercepts   []float64      `json:"intercepts"`
}

// Classifier is a loaded linear baseline. Read-only after construction,
// safe for concurrent use.
type Classifier struct {
	model Model
}

// Load reads and validates a model file. A missing or inconsistent file is
// a configuration-level failure (ErrModelUnavailable): the caller must not
// start a run.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"reading linear model %s: %v", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"parsing linear model %s: %v", path, err)
	}
	return New(m)
}

// New validates the model shape and returns a ready Classifier.
func New(m Model) (*Classifier, error) {
	if err := validate(m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"invalid linear model %s: %v", m.ID, err)
	}
	return &Classifier{model: m}, nil
}

func validate(m Model) error {
	if len(m.Labels) == 0 {
		return fmt.Errorf("no labels")
	}
	if len(m.Vocabulary) == 0 {
		return fmt.Errorf("empty vocabulary")
	}
	if len(m.IDF) != len(m.Vocabulary) {
		return fmt.Errorf("idf length %d != vocabulary size %d", len(m.IDF), len(m.Vocabulary))
	}
	if len(m.Coefficients) != len(m.Labels) {
		return fmt.Errorf("coefficient rows %d != labels %d", len(m.Coefficients), len(m.Labels))
	}
	for i, row := range m.Coefficients {
		if len(row) != len(m.Vocabulary) {
			return fmt.Errorf("coefficient row %d has %d columns, want %d", i, len(row), len(m.Vocabulary))
		}
	}
	if len(m.Intercepts) != len(m.Labels) {
		return fmt.Errorf("intercepts %d != labels %d", len(m.Intercepts), len(m.Labels))
	}
	for term, idx := range m.Vocabulary {
		if idx < 0 || idx >= len(m.IDF) {
			return fmt.Errorf("term %q maps to out-of-range column %d", term, idx)
		}
	}
	return nil
}

func (c *Classifier) ID() string {
	return c.model.ID
}

func (c *Classifier) Labels() []string {
	out := make([]string, len(c.model.Labels))
	copy(out, c.model.Labels)
	return out
}

// PredictProba vectorises each text (term-frequency counts weighted by IDF,
// L2-normalised) and applies the logistic layer. Out-of-vocabulary terms
// contribute nothing, matching the frozen training-time vocabulary.
func (c *Classifier) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("predict cancelled: %w", err)
		}
		out[i] = c.predictOne(text)
	}
	return out, nil
}

func (c *Classifier) predictOne(text string) []float64 {
	features := c.vectorize(text)

	logits := make([]float64, len(c.model.Labels))
	for class := range logits {
		sum := c.model.Intercepts[class]
		row := c.model.Coefficients[class]
		for col, value := range features {
			sum += row[col] * value
		}
		logits[class] = sum
	}
	return softmax(logits)
}

// vectorize returns the sparse L2-normalised tf-idf vector of text.
func (c *Classifier) vectorize(text string) map[int]float64 {
	counts := make(map[int]int)
	for _, term := range tokenize(text) {
		if col, ok := c.model.Vocabulary[term]; ok {
			counts[col]++
		}
	}
	features := make(map[int]float64, len(counts))
	var norm float64
	for col, count := range counts {
		v := float64(count) * c.model.IDF[col]
		features[col] = v
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for col := range features {
			features[col] /= norm
		}
	}
	return features
}

// tokenize lower-cases text and extracts runs of two or more word
// characters, mirroring the training-time token pattern.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

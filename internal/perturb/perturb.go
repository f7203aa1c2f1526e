// Package perturb generates semantically close variants of input texts by
// probabilistically substituting words with thesaurus synonyms. Perturbed
// variants probe how stable a model explanation is under near-meaning-
// preserving edits.
package perturb

import (
	"math/rand"
	"strings"

	"github.com/explainlab/stability-platform/internal/thesaurus"
)

// Perturber substitutes words with synonyms drawn from a thesaurus.
//
// A Perturber is a pure function of (text, probability, rng state): the same
// seed and inputs always produce the same output. It is NOT safe for
// concurrent use because of the shared rng; callers that parallelise must
// perturb up-front or use one Perturber per goroutine.
type Perturber struct {
	th  *thesaurus.Thesaurus
	rng *rand.Rand
}

// New creates a Perturber with its own seeded random source.
func New(th *thesaurus.Thesaurus, seed int64) *Perturber {
	return NewWithRand(th, rand.New(rand.NewSource(seed)))
}

// NewWithRand creates a Perturber using the supplied random source.
func NewWithRand(th *thesaurus.Thesaurus, rng *rand.Rand) *Perturber {
	return &Perturber{th: th, rng: rng}
}

// Perturb splits text into whitespace-delimited tokens and, for each token
// that has at least one thesaurus entry, replaces it with the first synonym
// with the given probability. Multi-word synonyms have their underscore
// separators converted to spaces.
//
// Tokens are rejoined with single spaces: original whitespace and
// punctuation layout is not preserved. Downstream Jaccard comparison is
// layout-insensitive, so nothing depends on the original spacing.
//
// Tokens without synonyms are never substituted, regardless of probability.
// A zero probability returns the input verbatim.
func (p *Perturber) Perturb(text string, probability float64) string {
	if probability <= 0 {
		return text
	}
	words := strings.Fields(text)
	for i, word := range words {
		synonyms := p.th.Synonyms(word)
		if len(synonyms) == 0 {
			continue
		}
		if probability >= 1 || p.rng.Float64() < probability {
			// First synonym, first lemma: the documented deterministic
			// tie-break. Changing it changes reported stability numbers.
			words[i] = strings.ReplaceAll(synonyms[0], "_", " ")
		}
	}
	return strings.Join(words, " ")
}

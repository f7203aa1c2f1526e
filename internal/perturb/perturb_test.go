package perturb

import (
	"testing"

	"github.com/explainlab/stability-platform/internal/thesaurus"
)

func TestPerturbAlwaysSubstitutes(t *testing.T) {
	p := New(thesaurus.Embedded(), 1)
	got := p.Perturb("I love this product", 1.0)
	want := "I adore this merchandise"
	if got != want {
		t.Errorf("Perturb(p=1) = %q, want %q", got, want)
	}
}

func TestPerturbZeroProbabilityIsIdentity(t *testing.T) {
	p := New(thesaurus.Embedded(), 1)
	inputs := []string{
		"I love this product",
		"  leading and   internal whitespace ",
		"",
	}
	for _, in := range inputs {
		if got := p.Perturb(in, 0); got != in {
			t.Errorf("Perturb(%q, 0) = %q, want input unchanged", in, got)
		}
	}
}

func TestPerturbLeavesUnknownWordsAlone(t *testing.T) {
	p := New(thesaurus.Embedded(), 1)
	in := "xylophone quixotic zephyr"
	if got := p.Perturb(in, 1.0); got != in {
		t.Errorf("Perturb(%q, 1) = %q, want unchanged", in, got)
	}
}

func TestPerturbMultiWordSynonym(t *testing.T) {
	p := New(thesaurus.Embedded(), 1)
	// "delay" maps to "hold_up"; underscores become spaces in the output.
	got := p.Perturb("delay", 1.0)
	if got != "hold up" {
		t.Errorf("Perturb(delay, 1) = %q, want %q", got, "hold up")
	}
}

func TestPerturbDeterministicForSeed(t *testing.T) {
	th := thesaurus.Embedded()
	text := "I love this great game but hate the terrible lag"

	a := New(th, 42).Perturb(text, 0.5)
	b := New(th, 42).Perturb(text, 0.5)
	if a != b {
		t.Errorf("same seed produced different outputs:\n%q\n%q", a, b)
	}
}

func TestPerturbCaseInsensitiveLookup(t *testing.T) {
	p := New(thesaurus.Embedded(), 1)
	got := p.Perturb("LOVE Love love", 1.0)
	want := "adore adore adore"
	if got != want {
		t.Errorf("Perturb = %q, want %q", got, want)
	}
}

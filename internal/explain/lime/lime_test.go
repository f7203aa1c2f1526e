package lime

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

// keywordClassifier predicts class 0 with high probability whenever the
// trigger word is present, making that word the dominant feature.
type keywordClassifier struct {
	trigger string
}

func (k *keywordClassifier) ID() string       { return "keyword-clf" }
func (k *keywordClassifier) Labels() []string { return []string{"Positive", "Negative"} }

func (k *keywordClassifier) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if strings.Contains(" "+text+" ", " "+k.trigger+" ") {
			out[i] = []float64{0.9, 0.1}
		} else {
			out[i] = []float64{0.2, 0.8}
		}
	}
	return out, nil
}

type failingClassifier struct{}

func (f *failingClassifier) ID() string       { return "failing-clf" }
func (f *failingClassifier) Labels() []string { return []string{"Positive", "Negative"} }
func (f *failingClassifier) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, errors.New("backend down")
}

func TestExplainFindsDominantToken(t *testing.T) {
	e := New(200, 7)
	attr, err := e.Explain(context.Background(), "i love this new game", &keywordClassifier{trigger: "love"}, 3)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if attr.Class != 0 || attr.ClassLabel != "Positive" {
		t.Errorf("explained class = %d (%s), want 0 (Positive)", attr.Class, attr.ClassLabel)
	}
	top := attr.TopTokens(1)
	if len(top) != 1 || top[0] != "love" {
		t.Errorf("top token = %v, want [love]", top)
	}
	if attr.Weights["love"] <= 0 {
		t.Errorf("weight for love = %v, want positive", attr.Weights["love"])
	}
}

func TestExplainRespectsTopK(t *testing.T) {
	e := New(200, 7)
	attr, err := e.Explain(context.Background(), "one two three four five six", &keywordClassifier{trigger: "three"}, 2)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(attr.Weights) > 2 {
		t.Errorf("attribution kept %d weights, want at most 2", len(attr.Weights))
	}
}

func TestExplainEmptyInput(t *testing.T) {
	e := New(100, 1)
	for _, text := range []string{"", "   \t  "} {
		_, err := e.Explain(context.Background(), text, &keywordClassifier{trigger: "x"}, 5)
		if !errors.Is(err, apperrors.ErrExplanationFailed) {
			t.Errorf("Explain(%q) err = %v, want ErrExplanationFailed", text, err)
		}
	}
}

func TestExplainClassifierFailure(t *testing.T) {
	e := New(100, 1)
	_, err := e.Explain(context.Background(), "some text here", &failingClassifier{}, 5)
	if !errors.Is(err, apperrors.ErrExplanationFailed) {
		t.Fatalf("err = %v, want ErrExplanationFailed", err)
	}
}

func TestExplainDeterministicForSeed(t *testing.T) {
	text := "i love this new game"
	clf := &keywordClassifier{trigger: "love"}

	a, err := New(150, 42).Explain(context.Background(), text, clf, 5)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	b, err := New(150, 42).Explain(context.Background(), text, clf, 5)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !reflect.DeepEqual(a.Weights, b.Weights) {
		t.Errorf("same seed produced different weights:\n%v\n%v", a.Weights, b.Weights)
	}
}

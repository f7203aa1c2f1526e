package stability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/dataset"
	"github.com/explainlab/stability-platform/internal/explain"
	"github.com/explainlab/stability-platform/internal/perturb"
	"github.com/explainlab/stability-platform/internal/thesaurus"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
)

// stubClassifier returns uniform probabilities and can be told to fail.
type stubClassifier struct {
	failPredict bool
}

func (s *stubClassifier) ID() string       { return "stub-model" }
func (s *stubClassifier) Labels() []string { return []string{"Positive", "Negative"} }

func (s *stubClassifier) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	if s.failPredict {
		return nil, errors.New("connection refused")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.6, 0.4}
	}
	return out, nil
}

// stubExplainer attributes every word of the input, so identical texts
// always produce identical token sets. Texts containing failOn error out.
type stubExplainer struct {
	failOn string
}

func (s *stubExplainer) Method() string { return "lime" }

func (s *stubExplainer) Explain(ctx context.Context, text string, clf classifier.Classifier, topK int) (*explain.Attribution, error) {
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, fmt.Errorf("%w: induced failure", apperrors.ErrExplanationFailed)
	}
	weights := make(map[string]float64)
	for i, w := range strings.Fields(text) {
		weights[w] = 1 / float64(i+1)
	}
	return &explain.Attribution{Class: 0, ClassLabel: "Positive", Weights: weights}, nil
}

func testCorpus(texts ...string) *dataset.Dataset {
	d := &dataset.Dataset{}
	for i, text := range texts {
		d.Samples = append(d.Samples, dataset.Sample{
			ID:    fmt.Sprintf("s%d", i),
			Label: "Positive",
			Text:  text,
		})
	}
	return d
}

func testDeps(d *dataset.Dataset, exp explain.Explainer, clf classifier.Classifier) Deps {
	return Deps{
		Dataset:    d,
		Perturber:  perturb.New(thesaurus.Embedded(), 1),
		Explainer:  exp,
		Classifier: clf,
	}
}

func TestRunIdenticalExplanationsScoreOne(t *testing.T) {
	d := testCorpus(
		"the quick brown fox",
		"jumped over lazy dogs",
		"nothing rhymes with orange",
		"tokens stay put here",
		"one more plain sentence",
	)
	// Zero substitution probability keeps perturbed text identical, so every
	// sample must score exactly 1.
	e := NewEvaluator("run-1", testDeps(d, &stubExplainer{}, &stubClassifier{}), Options{
		SampleSize:              5,
		SubstitutionProbability: 0,
		TopK:                    4,
		Seed:                    42,
	})

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.State() != StateDone {
		t.Errorf("state = %v, want done", e.State())
	}
	if report.Scored != 5 || report.Skipped != 0 {
		t.Fatalf("scored %d skipped %d, want 5/0", report.Scored, report.Skipped)
	}
	if report.Mean == nil || *report.Mean != 1.0 {
		t.Errorf("Mean = %v, want 1.0", report.Mean)
	}
}

func TestRunSkipsFailedExplanations(t *testing.T) {
	d := testCorpus(
		"ordinary sentence one",
		"poison pill sample",
		"ordinary sentence two",
	)
	e := NewEvaluator("run-2", testDeps(d, &stubExplainer{failOn: "poison"}, &stubClassifier{}), Options{
		SubstitutionProbability: 0,
		TopK:                    3,
		Seed:                    1,
	})

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scored != 2 || report.Skipped != 1 {
		t.Errorf("scored %d skipped %d, want 2/1", report.Scored, report.Skipped)
	}
	// The mean covers retained samples only.
	if report.Mean == nil || *report.Mean != 1.0 {
		t.Errorf("Mean = %v, want 1.0 over retained samples", report.Mean)
	}
}

func TestRunEmptyCorpusUndefinedMean(t *testing.T) {
	e := NewEvaluator("run-3", testDeps(testCorpus(), &stubExplainer{}, &stubClassifier{}), Options{
		SubstitutionProbability: 0.2,
		TopK:                    10,
	})

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Mean != nil {
		t.Errorf("Mean = %v, want nil for empty corpus", *report.Mean)
	}
	if report.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0: nothing was attempted", report.Skipped)
	}
	if e.State() != StateDone {
		t.Errorf("state = %v, want done", e.State())
	}
}

func TestRunUnreachableModelFailsBeforeSampling(t *testing.T) {
	d := testCorpus("some sample text")
	e := NewEvaluator("run-4", testDeps(d, &stubExplainer{}, &stubClassifier{failPredict: true}), Options{
		SubstitutionProbability: 0.2,
		TopK:                    10,
	})

	report, err := e.Run(context.Background())
	if !errors.Is(err, apperrors.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if report != nil {
		t.Error("expected no partial report on configuration failure")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %v, want failed", e.State())
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	d := testCorpus("text")
	tests := []struct {
		name string
		opts Options
	}{
		{"negative probability", Options{SubstitutionProbability: -0.1, TopK: 10}},
		{"probability above one", Options{SubstitutionProbability: 1.5, TopK: 10}},
		{"zero top-k", Options{SubstitutionProbability: 0.2, TopK: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator("run", testDeps(d, &stubExplainer{}, &stubClassifier{}), tt.opts)
			if _, err := e.Run(context.Background()); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	texts := []string{
		"alpha beta gamma delta",
		"epsilon zeta eta theta",
		"iota kappa lambda mu",
		"nu xi omicron pi",
		"rho sigma tau upsilon",
		"phi chi psi omega",
	}
	run := func(parallelism int) *Report {
		t.Helper()
		e := NewEvaluator("run", testDeps(testCorpus(texts...), &stubExplainer{}, &stubClassifier{}), Options{
			SampleSize:              4,
			SubstitutionProbability: 0.5,
			TopK:                    3,
			Seed:                    42,
			Parallelism:             parallelism,
		})
		report, err := e.Run(context.Background())
		if err != nil {
			t.Fatalf("Run(parallelism=%d): %v", parallelism, err)
		}
		return report
	}

	seq := run(1)
	par := run(4)
	if seq.Scored != par.Scored || seq.Skipped != par.Skipped {
		t.Fatalf("counts differ: seq %d/%d, par %d/%d", seq.Scored, seq.Skipped, par.Scored, par.Skipped)
	}
	if *seq.Mean != *par.Mean {
		t.Errorf("mean differs: seq %v, par %v", *seq.Mean, *par.Mean)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEvaluator("run", testDeps(testCorpus("a b c"), &stubExplainer{}, &stubClassifier{}), Options{
		SubstitutionProbability: 0,
		TopK:                    3,
	})
	if _, err := e.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %v, want failed", e.State())
	}
}

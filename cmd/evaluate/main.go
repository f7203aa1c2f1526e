// Command evaluate runs a single explanation-stability measurement and
// prints the report.
//
// It loads the validation corpus, draws a seeded subsample, perturbs each
// text with near-synonyms, explains both versions against the configured
// classifier, and reports the mean Jaccard overlap of the top-k token sets.
//
// Usage:
//
//	go run ./cmd/evaluate [-config configs/development.yaml] [-samples N] [-method lime|shap]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/classifier/linear"
	"github.com/explainlab/stability-platform/internal/classifier/remote"
	"github.com/explainlab/stability-platform/internal/dataset"
	"github.com/explainlab/stability-platform/internal/explain"
	"github.com/explainlab/stability-platform/internal/explain/lime"
	"github.com/explainlab/stability-platform/internal/explain/shap"
	"github.com/explainlab/stability-platform/internal/perturb"
	"github.com/explainlab/stability-platform/internal/stability"
	"github.com/explainlab/stability-platform/internal/thesaurus"
	"github.com/explainlab/stability-platform/pkg/config"
	"github.com/explainlab/stability-platform/pkg/logger"
	"github.com/explainlab/stability-platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	samples := flag.Int("samples", 0, "override evaluator.sampleSize (0 keeps config)")
	method := flag.String("method", "", "override explainer.method (lime or shap)")
	seed := flag.Int64("seed", -1, "override evaluator.seed (-1 keeps config)")
	prob := flag.Float64("prob", -1, "override perturbation.substitutionProbability (-1 keeps config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *samples > 0 {
		cfg.Evaluator.SampleSize = *samples
	}
	if *method != "" {
		cfg.Explainer.Method = *method
	}
	if *seed >= 0 {
		cfg.Evaluator.Seed = *seed
	}
	if *prob >= 0 {
		cfg.Perturbation.SubstitutionProbability = *prob
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Evaluator.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Evaluator.Timeout)
		defer cancel()
	}

	ds, err := dataset.Load(cfg.Dataset.Path, cfg.Dataset.Labels)
	if err != nil {
		slog.Error("failed to load dataset", "path", cfg.Dataset.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("dataset loaded",
		"path", cfg.Dataset.Path,
		"samples", len(ds.Samples),
		"malformed", ds.Malformed,
	)

	clf, err := buildClassifier(cfg)
	if err != nil {
		slog.Error("failed to build classifier", "kind", cfg.Classifier.Kind, "error", err)
		os.Exit(1)
	}

	th, err := loadThesaurus(cfg.Perturbation.ThesaurusPath)
	if err != nil {
		slog.Error("failed to load thesaurus", "path", cfg.Perturbation.ThesaurusPath, "error", err)
		os.Exit(1)
	}

	evaluator := stability.NewEvaluator(newRunID(), stability.Deps{
		Dataset:    ds,
		Perturber:  perturb.New(th, cfg.Evaluator.Seed),
		Explainer:  buildExplainer(cfg),
		Classifier: clf,
	}, stability.Options{
		SampleSize:              cfg.Evaluator.SampleSize,
		SubstitutionProbability: cfg.Perturbation.SubstitutionProbability,
		TopK:                    cfg.Explainer.TopK,
		Seed:                    cfg.Evaluator.Seed,
		Parallelism:             cfg.Evaluator.Parallelism,
	})

	report, err := evaluator.Run(ctx)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(report)
}

func buildClassifier(cfg *config.Config) (classifier.Classifier, error) {
	switch cfg.Classifier.Kind {
	case "remote":
		return remote.New(cfg.Classifier, resilience.CircuitBreakerConfig{})
	default:
		return linear.Load(cfg.Classifier.ModelPath)
	}
}

func buildExplainer(cfg *config.Config) explain.Explainer {
	if cfg.Explainer.Method == "shap" {
		return shap.New(cfg.Explainer.Samples, cfg.Evaluator.Seed)
	}
	return lime.New(cfg.Explainer.Samples, cfg.Evaluator.Seed)
}

func loadThesaurus(path string) (*thesaurus.Thesaurus, error) {
	if path == "" {
		return thesaurus.Embedded(), nil
	}
	return thesaurus.Load(path)
}

func newRunID() string {
	return fmt.Sprintf("cli-%d", os.Getpid())
}

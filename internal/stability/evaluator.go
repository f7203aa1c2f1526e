// Package stability measures how much a model explanation changes when its
// input is perturbed with near-synonyms. For each sampled text the
// evaluator explains the original and a perturbed variant against the same
// frozen classifier and scores the overlap of their top-k token sets with
// Jaccard similarity; the mean over retained samples is the stability
// score of a (classifier, method) configuration.
package stability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/dataset"
	"github.com/explainlab/stability-platform/internal/explain"
	"github.com/explainlab/stability-platform/internal/perturb"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
	"github.com/explainlab/stability-platform/pkg/kafka"
	"github.com/explainlab/stability-platform/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// State tracks evaluator progress through its run lifecycle.
type State int32

const (
	StateInit State = iota
	StateSampling
	StateScoring
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSampling:
		return "sampling"
	case StateScoring:
		return "scoring"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options holds the per-run evaluation parameters.
type Options struct {
	// SampleSize is the number of validation samples to draw. Zero means
	// the whole corpus.
	SampleSize int `json:"sample_size"`
	// SubstitutionProbability is the per-token synonym substitution chance.
	SubstitutionProbability float64 `json:"substitution_probability"`
	// TopK is the number of explained tokens compared per sample.
	TopK int `json:"top_k"`
	// Seed drives subsampling; perturbation randomness comes from the
	// injected Perturber.
	Seed int64 `json:"seed"`
	// Parallelism bounds concurrent sample scoring. Values below 2 keep
	// the strict sequential loop.
	Parallelism int `json:"parallelism"`
}

// Deps are the collaborators an Evaluator drives. Producer and Metrics are
// optional; a nil value disables event publishing or metric recording.
type Deps struct {
	Dataset    *dataset.Dataset
	Perturber  *perturb.Perturber
	Explainer  explain.Explainer
	Classifier classifier.Classifier
	Producer   *kafka.Producer
	// RunProducer receives run-finished events. When nil they go to
	// Producer instead, so single-topic deployments still see them.
	RunProducer *kafka.Producer
	Metrics     *metrics.Metrics
}

// Evaluator runs one stability measurement. All collaborators are injected:
// there are no package-level model or explainer singletons, so two
// evaluators with different classifiers can run side by side.
type Evaluator struct {
	runID  string
	deps   Deps
	opts   Options
	state  atomic.Int32
	logger *slog.Logger
}

// scoredPair is the intermediate outcome for one sample, kept in sample
// order so reports are deterministic.
type scoredPair struct {
	score      float64
	skipped    bool
	skipReason string
	outcome    SampleOutcome
}

// NewEvaluator creates an Evaluator in the INIT state.
func NewEvaluator(runID string, deps Deps, opts Options) *Evaluator {
	return &Evaluator{
		runID:  runID,
		deps:   deps,
		opts:   opts,
		logger: slog.Default().With("component", "stability-evaluator", "run_id", runID),
	}
}

// State returns the current lifecycle state.
func (e *Evaluator) State() State {
	return State(e.state.Load())
}

func (e *Evaluator) setState(s State) {
	e.state.Store(int32(s))
}

// Run executes the full INIT → SAMPLING → SCORING → DONE lifecycle and
// returns the report. Per-sample failures are skipped and counted;
// configuration-level failures (invalid options, unreachable model) abort
// before any sampling and leave the evaluator in FAILED with no partial
// report.
func (e *Evaluator) Run(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()

	if err := e.init(ctx); err != nil {
		e.fail(ctx, err)
		return nil, err
	}

	e.setState(StateSampling)
	pairs := e.draw()
	e.logger.Info("sample drawn",
		"requested", e.opts.SampleSize,
		"drawn", len(pairs),
		"method", e.deps.Explainer.Method(),
	)

	e.setState(StateScoring)
	if e.deps.Metrics != nil {
		e.deps.Metrics.ActiveRuns.Inc()
		defer e.deps.Metrics.ActiveRuns.Dec()
	}
	outcomes, err := e.score(ctx, pairs)
	if err != nil {
		e.fail(ctx, err)
		return nil, err
	}
	e.publishOutcomes(ctx, outcomes)

	scores := make([]float64, 0, len(outcomes))
	skipped := 0
	for _, o := range outcomes {
		if o.skipped {
			skipped++
			continue
		}
		scores = append(scores, o.score)
	}

	report := buildReport(e.runID, e.deps.Classifier.ID(), e.deps.Explainer.Method(),
		len(pairs), scores, skipped, started)
	e.setState(StateDone)
	e.recordRun("done")
	e.publishFinished(ctx, report, StateDone)
	e.logger.Info("run finished",
		"scored", report.Scored,
		"skipped", report.Skipped,
	)
	return report, nil
}

// init validates options and probes the classifier. A model that cannot
// answer a trivial predict call must fail the run up front.
func (e *Evaluator) init(ctx context.Context) error {
	p := e.opts.SubstitutionProbability
	if p < 0 || p > 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"substitution probability %v outside [0,1]", p)
	}
	if e.opts.TopK <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"top-k must be positive, got %d", e.opts.TopK)
	}
	if e.deps.Dataset == nil || e.deps.Perturber == nil || e.deps.Explainer == nil || e.deps.Classifier == nil {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "missing evaluator dependency")
	}

	if _, err := e.deps.Classifier.PredictProba(ctx, []string{"readiness probe"}); err != nil {
		return apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"classifier probe failed: %v", err)
	}
	return nil
}

// samplePair carries a sample and its perturbed variant. Perturbation
// happens in the sampling phase, sequentially, so results are identical
// whether scoring runs sequentially or in parallel.
type samplePair struct {
	sample    dataset.Sample
	perturbed string
}

func (e *Evaluator) draw() []samplePair {
	rng := rand.New(rand.NewSource(e.opts.Seed))
	samples := e.deps.Dataset.Subsample(e.opts.SampleSize, rng)
	pairs := make([]samplePair, len(samples))
	for i, s := range samples {
		pairs[i] = samplePair{
			sample:    s,
			perturbed: e.deps.Perturber.Perturb(s.Text, e.opts.SubstitutionProbability),
		}
	}
	return pairs
}

func (e *Evaluator) score(ctx context.Context, pairs []samplePair) ([]scoredPair, error) {
	outcomes := make([]scoredPair, len(pairs))

	if e.opts.Parallelism < 2 {
		for i, pair := range pairs {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("scoring aborted: %w", err)
			}
			outcomes[i] = e.scoreOne(ctx, pair)
		}
		return outcomes, nil
	}

	// Parallel scoring is safe: every pair is explained against the same
	// frozen classifier, and the mean is order-independent.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	var mu sync.Mutex
	for i, pair := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("scoring aborted: %w", err)
			}
			outcome := e.scoreOne(gctx, pair)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// scoreOne runs perturb-explain-score for one sample. Both explanation
// failures and an undefined similarity skip the sample; nothing here is
// fatal to the run.
func (e *Evaluator) scoreOne(ctx context.Context, pair samplePair) scoredPair {
	method := e.deps.Explainer.Method()

	origAttr, err := e.explainTimed(ctx, pair.sample.Text)
	if err != nil {
		return e.skip(pair, method, err)
	}
	pertAttr, err := e.explainTimed(ctx, pair.perturbed)
	if err != nil {
		return e.skip(pair, method, err)
	}

	origSet := origAttr.TokenSet(e.opts.TopK)
	pertSet := pertAttr.TokenSet(e.opts.TopK)

	// An empty token set from non-empty input means the explanation
	// produced nothing usable; the sample is excluded, not scored as zero.
	if len(origSet) == 0 || len(pertSet) == 0 {
		return e.skip(pair, method,
			fmt.Errorf("%w: empty token set", apperrors.ErrExplanationFailed))
	}

	score, err := Jaccard(origSet, pertSet)
	if err != nil {
		return e.skip(pair, method, err)
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.SamplesScoredTotal.WithLabelValues(method).Inc()
		e.deps.Metrics.StabilityScore.WithLabelValues(method).Observe(score)
	}
	return scoredPair{score: score, outcome: SampleOutcome{
		Type:         EventSampleScored,
		RunID:        e.runID,
		ClassifierID: e.deps.Classifier.ID(),
		Method:       method,
		SampleID:     pair.sample.ID,
		Score:        &score,
		Timestamp:    time.Now().UTC(),
	}}
}

func (e *Evaluator) explainTimed(ctx context.Context, text string) (*explain.Attribution, error) {
	start := time.Now()
	attr, err := e.deps.Explainer.Explain(ctx, text, e.deps.Classifier, e.opts.TopK)
	if e.deps.Metrics != nil && err == nil {
		e.deps.Metrics.ExplainLatency.
			WithLabelValues(e.deps.Explainer.Method(), "computed").
			Observe(time.Since(start).Seconds())
	}
	return attr, err
}

func (e *Evaluator) skip(pair samplePair, method string, cause error) scoredPair {
	reason := ReasonExplanationFailed
	if errors.Is(cause, apperrors.ErrUndefinedSimilarity) {
		reason = ReasonUndefinedSimilarity
	}
	e.logger.Warn("sample skipped",
		"sample_id", pair.sample.ID,
		"reason", reason,
		"error", cause,
	)
	if e.deps.Metrics != nil {
		e.deps.Metrics.SamplesSkippedTotal.WithLabelValues(method, reason).Inc()
	}
	return scoredPair{skipped: true, skipReason: reason, outcome: SampleOutcome{
		Type:         EventSampleSkipped,
		RunID:        e.runID,
		ClassifierID: e.deps.Classifier.ID(),
		Method:       method,
		SampleID:     pair.sample.ID,
		SkipReason:   reason,
		Timestamp:    time.Now().UTC(),
	}}
}

func (e *Evaluator) fail(ctx context.Context, err error) {
	e.setState(StateFailed)
	e.recordRun("failed")
	e.logger.Error("run failed", "error", err)

	event := RunFinished{
		Type:      EventRunFinished,
		RunID:     e.runID,
		State:     StateFailed.String(),
		Timestamp: time.Now().UTC(),
	}
	if e.deps.Classifier != nil {
		event.ClassifierID = e.deps.Classifier.ID()
	}
	if e.deps.Explainer != nil {
		event.Method = e.deps.Explainer.Method()
	}
	e.publishRunEvent(ctx, event)
}

func (e *Evaluator) recordRun(state string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RunsTotal.WithLabelValues(state).Inc()
	}
}

// publishOutcomes writes every per-sample event in one batched Kafka call,
// preserving sample order in the stream.
func (e *Evaluator) publishOutcomes(ctx context.Context, outcomes []scoredPair) {
	if e.deps.Producer == nil || len(outcomes) == 0 {
		return
	}
	events := make([]kafka.Event, len(outcomes))
	for i, o := range outcomes {
		events[i] = kafka.Event{Key: e.runID, Value: o.outcome}
	}
	if err := e.deps.Producer.PublishBatch(ctx, events); err != nil {
		e.logger.Error("failed to publish sample outcomes", "error", err)
	}
}

func (e *Evaluator) publishFinished(ctx context.Context, report *Report, state State) {
	e.publishRunEvent(ctx, RunFinished{
		Type:         EventRunFinished,
		RunID:        e.runID,
		ClassifierID: report.ClassifierID,
		Method:       report.Method,
		State:        state.String(),
		Scored:       report.Scored,
		Skipped:      report.Skipped,
		Mean:         report.Mean,
		Timestamp:    time.Now().UTC(),
	})
}

// publishRunEvent routes run lifecycle events to RunProducer, falling back
// to the outcome producer for single-topic deployments.
func (e *Evaluator) publishRunEvent(ctx context.Context, event RunFinished) {
	producer := e.deps.RunProducer
	if producer == nil {
		producer = e.deps.Producer
	}
	if producer == nil {
		return
	}
	if err := producer.Publish(ctx, kafka.Event{Key: e.runID, Value: event}); err != nil {
		e.logger.Error("failed to publish run event", "error", err)
	}
}

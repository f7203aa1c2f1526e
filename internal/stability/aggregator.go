package stability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/explainlab/stability-platform/pkg/kafka"
)

// PairStats summarises outcomes for one (classifier, method) pair across
// every run seen by the aggregator.
type PairStats struct {
	ClassifierID string  `json:"classifier_id"`
	Method       string  `json:"method"`
	Scored       int64   `json:"scored"`
	Skipped      int64   `json:"skipped"`
	MeanScore    float64 `json:"mean_score"`
	P50Score     float64 `json:"p50_score"`
	P95Score     float64 `json:"p95_score"`
	SkipRate     float64 `json:"skip_rate"`
}

// AggregatedStats is the cross-run view exposed at /api/v1/stats.
type AggregatedStats struct {
	RunsFinished int64       `json:"runs_finished"`
	RunsFailed   int64       `json:"runs_failed"`
	Pairs        []PairStats `json:"pairs"`
	Uptime       string      `json:"uptime"`
}

type pairKey struct {
	classifierID string
	method       string
}

type pairAccumulator struct {
	scored  int64
	skipped int64
	scores  []float64
}

// Aggregator consumes sample-outcome and run-finished events from Kafka and
// keeps cross-run statistics in memory.
type Aggregator struct {
	mu           sync.RWMutex
	pairs        map[pairKey]*pairAccumulator
	runsFinished int64
	runsFailed   int64
	startTime    time.Time

	logger *slog.Logger
}

// NewAggregator creates an empty Aggregator. Feed it by registering
// HandleEvent as the handler of one or more Kafka consumers.
func NewAggregator() *Aggregator {
	return &Aggregator{
		pairs:     make(map[pairKey]*pairAccumulator),
		startTime: time.Now(),
		logger:    slog.Default().With("component", "stability-aggregator"),
	}
}

// HandleEvent returns the kafka.MessageHandler that feeds agg. Undecodable
// events are logged and dropped; the consumer never stalls on bad input.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		outcome, err := kafka.DecodeJSON[SampleOutcome](value)
		if err == nil && (outcome.Type == EventSampleScored || outcome.Type == EventSampleSkipped) {
			agg.recordOutcome(outcome)
			return nil
		}
		finished, ferr := kafka.DecodeJSON[RunFinished](value)
		if ferr == nil && finished.Type == EventRunFinished {
			agg.recordFinished(finished)
			return nil
		}
		agg.logger.Error("failed to decode stability event", "error", err)
		return nil
	}
}

func (a *Aggregator) recordOutcome(outcome SampleOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc := a.pair(pairKey{outcome.ClassifierID, outcome.Method})
	if outcome.Type == EventSampleSkipped {
		acc.skipped++
		return
	}
	if outcome.Score == nil {
		return
	}
	acc.scored++
	acc.scores = append(acc.scores, *outcome.Score)
}

func (a *Aggregator) recordFinished(finished RunFinished) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if finished.State == StateFailed.String() {
		a.runsFailed++
		return
	}
	a.runsFinished++
}

// pair returns the accumulator for key, creating it on first use. Callers
// must hold a.mu.
func (a *Aggregator) pair(key pairKey) *pairAccumulator {
	acc, ok := a.pairs[key]
	if !ok {
		acc = &pairAccumulator{}
		a.pairs[key] = acc
	}
	return acc
}

// Stats returns a snapshot of cross-run statistics.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		RunsFinished: a.runsFinished,
		RunsFailed:   a.runsFailed,
		Uptime:       time.Since(a.startTime).Round(time.Second).String(),
	}
	for key, acc := range a.pairs {
		pair := PairStats{
			ClassifierID: key.classifierID,
			Method:       key.method,
			Scored:       acc.scored,
			Skipped:      acc.skipped,
		}
		if total := acc.scored + acc.skipped; total > 0 {
			pair.SkipRate = float64(acc.skipped) / float64(total)
		}
		if len(acc.scores) > 0 {
			sorted := make([]float64, len(acc.scores))
			copy(sorted, acc.scores)
			sort.Float64s(sorted)
			var sum float64
			for _, s := range sorted {
				sum += s
			}
			pair.MeanScore = sum / float64(len(sorted))
			pair.P50Score = percentile(sorted, 50)
			pair.P95Score = percentile(sorted, 95)
		}
		stats.Pairs = append(stats.Pairs, pair)
	}
	sort.Slice(stats.Pairs, func(i, j int) bool {
		if stats.Pairs[i].ClassifierID != stats.Pairs[j].ClassifierID {
			return stats.Pairs[i].ClassifierID < stats.Pairs[j].ClassifierID
		}
		return stats.Pairs[i].Method < stats.Pairs[j].Method
	})
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// StatsHandler serves the aggregated cross-run statistics as JSON.
type StatsHandler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewStatsHandler creates the HTTP handler for GET /api/v1/stats.
func NewStatsHandler(aggregator *Aggregator) *StatsHandler {
	return &StatsHandler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "stats-handler"),
	}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to write stats response", "error", err)
	}
}

package stability

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func feed(t *testing.T, agg *Aggregator, event any) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	if err := HandleEvent(agg)(context.Background(), []byte("run"), data); err != nil {
		t.Fatalf("handling event: %v", err)
	}
}

func outcome(clf, method string, score float64) SampleOutcome {
	return SampleOutcome{
		Type:         EventSampleScored,
		RunID:        "run-1",
		ClassifierID: clf,
		Method:       method,
		SampleID:     "s1",
		Score:        &score,
		Timestamp:    time.Now().UTC(),
	}
}

func TestAggregatorAccumulatesPairStats(t *testing.T) {
	agg := NewAggregator()

	for _, s := range []float64{1.0, 0.5, 0.75, 0.25} {
		feed(t, agg, outcome("clf-a", "lime", s))
	}
	feed(t, agg, SampleOutcome{
		Type: EventSampleSkipped, ClassifierID: "clf-a", Method: "lime",
		SkipReason: ReasonExplanationFailed,
	})
	feed(t, agg, outcome("clf-a", "shap", 0.9))

	stats := agg.Stats()
	if len(stats.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(stats.Pairs))
	}

	// Pairs are sorted by classifier then method, so lime comes first.
	lime := stats.Pairs[0]
	if lime.Method != "lime" || lime.Scored != 4 || lime.Skipped != 1 {
		t.Fatalf("lime pair = %+v", lime)
	}
	if math.Abs(lime.MeanScore-0.625) > 1e-12 {
		t.Errorf("lime mean = %v, want 0.625", lime.MeanScore)
	}
	if math.Abs(lime.SkipRate-0.2) > 1e-12 {
		t.Errorf("lime skip rate = %v, want 0.2", lime.SkipRate)
	}

	shap := stats.Pairs[1]
	if shap.Method != "shap" || shap.Scored != 1 || shap.MeanScore != 0.9 {
		t.Errorf("shap pair = %+v", shap)
	}
}

func TestAggregatorCountsFinishedRuns(t *testing.T) {
	agg := NewAggregator()

	mean := 0.8
	feed(t, agg, RunFinished{
		Type: EventRunFinished, RunID: "run-1", ClassifierID: "clf",
		Method: "lime", State: StateDone.String(), Scored: 10, Mean: &mean,
	})
	feed(t, agg, RunFinished{
		Type: EventRunFinished, RunID: "run-2", ClassifierID: "clf",
		Method: "lime", State: StateFailed.String(),
	})

	stats := agg.Stats()
	if stats.RunsFinished != 1 || stats.RunsFailed != 1 {
		t.Errorf("runs finished/failed = %d/%d, want 1/1", stats.RunsFinished, stats.RunsFailed)
	}
}

func TestAggregatorIgnoresUndecodableEvents(t *testing.T) {
	agg := NewAggregator()
	if err := HandleEvent(agg)(context.Background(), nil, []byte("not json")); err != nil {
		t.Fatalf("handler must drop bad input, got %v", err)
	}
	if stats := agg.Stats(); len(stats.Pairs) != 0 {
		t.Errorf("bad event changed stats: %+v", stats)
	}
}

func TestStatsHandlerServesJSON(t *testing.T) {
	agg := NewAggregator()
	feed(t, agg, outcome("clf-a", "lime", 1.0))

	rec := httptest.NewRecorder()
	NewStatsHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(stats.Pairs) != 1 || stats.Pairs[0].MeanScore != 1.0 {
		t.Errorf("stats = %+v", stats)
	}
}

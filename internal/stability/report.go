package stability

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Report is the immutable output of one (classifier, method) stability run.
//
// Mean is nil when no samples were retained: an undefined mean is flagged
// explicitly rather than surfaced as NaN. The Scored count is always
// reported next to the mean; the mean is never computed over the requested
// sample count when skips occurred.
type Report struct {
	RunID        string    `json:"run_id"`
	ClassifierID string    `json:"classifier_id"`
	Method       string    `json:"method"`
	Requested    int       `json:"requested"`
	Scored       int       `json:"scored"`
	Skipped      int       `json:"skipped"`
	Scores       []float64 `json:"scores"`
	Mean         *float64  `json:"mean"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// buildReport computes the mean over retained scores. Order of scores does
// not affect the mean; aggregation is commutative over retained samples.
func buildReport(runID, classifierID, method string, requested int, scores []float64, skipped int, started time.Time) *Report {
	r := &Report{
		RunID:        runID,
		ClassifierID: classifierID,
		Method:       method,
		Requested:    requested,
		Scored:       len(scores),
		Skipped:      skipped,
		Scores:       scores,
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
	}
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		mean := sum / float64(len(scores))
		r.Mean = &mean
	}
	return r
}

// String renders the human-readable summary printed by the CLI. The mean is
// rounded to three decimals.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stability report: classifier=%s method=%s\n", r.ClassifierID, r.Method)
	if r.Mean != nil {
		fmt.Fprintf(&b, "  mean jaccard similarity: %.3f\n", *r.Mean)
	} else {
		b.WriteString("  mean jaccard similarity: undefined (no samples scored)\n")
	}
	fmt.Fprintf(&b, "  samples scored: %d of %d requested (%d skipped)\n", r.Scored, r.Requested, r.Skipped)
	return b.String()
}

// MeanRounded returns the mean rounded to three decimals, and false when
// the mean is undefined.
func (r *Report) MeanRounded() (float64, bool) {
	if r.Mean == nil {
		return 0, false
	}
	return math.Round(*r.Mean*1000) / 1000, true
}

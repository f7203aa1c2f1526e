package stability

import (
	"strings"
	"testing"
	"time"
)

func TestBuildReportMean(t *testing.T) {
	r := buildReport("r1", "clf", "lime", 4, []float64{1, 0.5, 0.25}, 1, time.Now())
	if r.Scored != 3 || r.Skipped != 1 || r.Requested != 4 {
		t.Fatalf("counts = scored %d skipped %d requested %d", r.Scored, r.Skipped, r.Requested)
	}
	if r.Mean == nil {
		t.Fatal("Mean is nil for non-empty scores")
	}
	if want := (1 + 0.5 + 0.25) / 3; *r.Mean != want {
		t.Errorf("Mean = %v, want %v", *r.Mean, want)
	}
}

func TestBuildReportNoScores(t *testing.T) {
	r := buildReport("r1", "clf", "shap", 2, nil, 2, time.Now())
	if r.Mean != nil {
		t.Errorf("Mean = %v, want nil when nothing scored", *r.Mean)
	}
	if _, ok := r.MeanRounded(); ok {
		t.Error("MeanRounded reported a defined mean")
	}
	if !strings.Contains(r.String(), "undefined") {
		t.Errorf("String() = %q, want undefined marker", r.String())
	}
}

func TestReportStringRoundsToThreeDecimals(t *testing.T) {
	r := buildReport("r1", "clf", "lime", 3, []float64{1, 1, 0}, 0, time.Now())
	if !strings.Contains(r.String(), "0.667") {
		t.Errorf("String() = %q, want mean rendered as 0.667", r.String())
	}
	rounded, ok := r.MeanRounded()
	if !ok || rounded != 0.667 {
		t.Errorf("MeanRounded = %v %v, want 0.667 true", rounded, ok)
	}
}

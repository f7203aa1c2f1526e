package lime

import (
	"math"
	"testing"
)

func TestRidgeFitRecoversLinearTargets(t *testing.T) {
	// Targets follow y = 1 + 2*x0 - x1 exactly; with a tiny lambda the fit
	// must recover intercept and coefficients almost exactly.
	masks := [][]float64{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
		{1, 0},
		{0, 1},
	}
	y := make([]float64, len(masks))
	w := make([]float64, len(masks))
	for i, m := range masks {
		y[i] = 1 + 2*m[0] - m[1]
		w[i] = 1
	}

	coefs, err := ridgeFit(masks, y, w, 1e-9)
	if err != nil {
		t.Fatalf("ridgeFit: %v", err)
	}
	want := []float64{1, 2, -1}
	for i, c := range coefs {
		if math.Abs(c-want[i]) > 1e-4 {
			t.Errorf("coef[%d] = %v, want %v", i, c, want[i])
		}
	}
}

func TestRidgeFitWeightsFavorCloseSamples(t *testing.T) {
	// Two inconsistent observations for the same mask: the heavier one must
	// dominate the fitted value.
	masks := [][]float64{
		{0},
		{1},
		{1},
	}
	y := []float64{0, 1, 0}
	w := []float64{1, 100, 1}

	coefs, err := ridgeFit(masks, y, w, 1e-9)
	if err != nil {
		t.Fatalf("ridgeFit: %v", err)
	}
	fitted := coefs[0] + coefs[1]
	if math.Abs(fitted-1) > 0.05 {
		t.Errorf("fitted value at x=1 is %v, want close to the heavily weighted 1", fitted)
	}
}

func TestRidgeFitSingularMatrix(t *testing.T) {
	// All-zero feature column with zero lambda makes the normal matrix
	// singular.
	masks := [][]float64{
		{0},
		{0},
	}
	y := []float64{1, 1}
	w := []float64{1, 1}
	if _, err := ridgeFit(masks, y, w, 0); err == nil {
		t.Fatal("expected singular-matrix error")
	}
}

func TestRidgeFitNoObservations(t *testing.T) {
	if _, err := ridgeFit(nil, nil, nil, 1e-3); err == nil {
		t.Fatal("expected error for empty input")
	}
}

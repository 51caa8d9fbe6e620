package stat

import (
	"math"
	"testing"
)

func TestMeanEmpty(t *testing.T) {
	r := Mean(nil)
	if r.OK() {
		t.Fatalf("expected failure on empty population")
	}
	if r.Err != ErrEmptyPopulation {
		t.Fatalf("unexpected error: %v", r.Err)
	}
}

func TestMean(t *testing.T) {
	r := Mean([]float64{1, 2, 3, 4})
	if !r.OK() {
		t.Fatalf("unexpected failure: %v", r.Err)
	}
	if r.Value != 2.5 {
		t.Fatalf("want 2.5, got %v", r.Value)
	}
}

func TestConfidenceHalfWidthInsufficientSamples(t *testing.T) {
	r := ConfidenceHalfWidth([]float64{1}, 0.95)
	if r.OK() {
		t.Fatalf("expected failure for n<=1")
	}
}

func TestConfidenceHalfWidthAllEqual(t *testing.T) {
	samples := []float64{10, 10, 10, 10}
	r := ConfidenceHalfWidth(samples, 0.95)
	if !r.OK() {
		t.Fatalf("unexpected failure: %v", r.Err)
	}
	if r.Value != 0 {
		t.Fatalf("want 0 half-width for equal samples, got %v", r.Value)
	}
}

func TestConfidenceHalfWidthNonNegative(t *testing.T) {
	samples := []float64{1, 5, 3, 8, 2, 9, 4}
	for _, cl := range []float64{0.9, 0.95, 0.99} {
		r := ConfidenceHalfWidth(samples, cl)
		if !r.OK() {
			t.Fatalf("unexpected failure at cl=%v: %v", cl, r.Err)
		}
		if r.Value < 0 {
			t.Fatalf("negative half-width at cl=%v: %v", cl, r.Value)
		}
	}
}

func TestConfidenceHalfWidthRangeMode(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5}
	r := ConfidenceHalfWidth(samples, RangeCL)
	if !r.OK() {
		t.Fatalf("unexpected failure: %v", r.Err)
	}
	v := Variance(samples)
	want := math.Sqrt(v.Value) / 2.0
	if math.Abs(r.Value-want) > 1e-12 {
		t.Fatalf("want %v, got %v", want, r.Value)
	}

	if ConfidenceHalfWidth([]float64{1}, RangeCL).OK() {
		t.Fatalf("expected failure for n<=1 in range mode")
	}
}

func TestUndefinedQuantile(t *testing.T) {
	samples := make([]float64, 40)
	for i := range samples {
		samples[i] = float64(i)
	}
	r := ConfidenceHalfWidth(samples, 0.975)
	if r.OK() {
		t.Fatalf("expected undefined quantile failure for cl=0.975, df>30")
	}
	if r.Err != ErrUndefinedQuantile {
		t.Fatalf("unexpected error: %v", r.Err)
	}
}

func TestTStudentTableBounds(t *testing.T) {
	// df == 30 must come from the table, not the asymptotic normal value.
	v, err := tStudent(0.95, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != tTable[29][1] {
		t.Fatalf("want table value %v, got %v", tTable[29][1], v)
	}

	v, err = tStudent(0.95, 31)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1.96 {
		t.Fatalf("want asymptotic 1.96, got %v", v)
	}
}

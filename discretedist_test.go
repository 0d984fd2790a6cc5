package pneumoresistance

import (
	"math"
	"testing"
)

func TestDiscreteDistributionRejectsEmptyOrNegative(t *testing.T) {
	if _, err := NewDiscreteDistribution(nil, 0); err == nil {
		t.Fatal("expected error for empty weight vector")
	}
	if _, err := NewDiscreteDistribution([]float64{1, -1}, 0); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := NewDiscreteDistribution([]float64{0, 0}, 0); err == nil {
		t.Fatal("expected error for all-zero weights")
	}
}

func TestDiscreteDistributionConverges(t *testing.T) {
	seedRNG(42)
	weights := []float64{1, 3, 6}
	d, err := NewDiscreteDistribution(weights, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	const n = 200000
	counts := make([]int, len(weights))
	for i := 0; i < n; i++ {
		idx := d.NextDiscrete()
		if idx < 0 || idx >= len(weights) {
			t.Fatalf("index %d out of range", idx)
		}
		counts[idx]++
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	for i, w := range weights {
		expected := w / total
		observed := float64(counts[i]) / float64(n)
		if math.Abs(expected-observed) > 0.02 {
			t.Errorf("index %d: expected frequency %.3f, observed %.3f", i, expected, observed)
		}
	}
}

func TestDiscreteDistributionNextContinuousRange(t *testing.T) {
	seedRNG(7)
	d, err := NewDiscreteDistribution([]float64{1, 1, 1}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 1000; i++ {
		v := d.NextContinuous()
		if v < 0 || v >= 3 {
			t.Fatalf("continuous draw %f outside [0,3)", v)
		}
	}
}

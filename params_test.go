package pneumoresistance

import "testing"

func TestParametersValidateAcceptsWellFormedConfig(t *testing.T) {
	p := testParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParametersValidateRejectsIncreasingGamma(t *testing.T) {
	p := testParameters()
	p.Gamma = []float64{10.0, 20.0, 30.0}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for gamma not non-increasing by rank")
	}
}

func TestParametersValidateRejectsAlphaRequiredWithoutRandomMixing(t *testing.T) {
	p := testParameters()
	p.UseRandomMixing = false
	p.Alpha = nil
	if err := p.Validate(); err == nil {
		t.Fatal("expected error requiring alpha when use_random_mixing is false")
	}
}

func TestParametersValidateRejectsUnknownImmigrationResistanceModel(t *testing.T) {
	p := testParameters()
	p.ImmigrationResistanceModel = "not_a_real_model"
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for unrecognized immigration_resistance_model")
	}
}

func TestParametersValidateRequiresHistoryLengthForHistoryModel(t *testing.T) {
	p := testParameters()
	p.ImmigrationResistanceModel = "history_by_serotype"
	p.ResistanceHistoryLength = 0
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for missing resistance_history_length")
	}
}

func TestParametersValidateNormalizesAlphaRows(t *testing.T) {
	p := testParameters()
	p.UseRandomMixing = false
	p.Alpha = [][]float64{
		{2, 2},
		{0, 0},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Alpha[0][0] != 0.5 || p.Alpha[0][1] != 0.5 {
		t.Fatalf("expected row 0 normalized to sum 1, got %v", p.Alpha[0])
	}
	if p.Alpha[1][0] != 0 || p.Alpha[1][1] != 0 {
		t.Fatalf("expected all-zero row to stay zero, got %v", p.Alpha[1])
	}
}

func TestResize1DNearestIndex(t *testing.T) {
	src := []float64{0, 10, 20, 30}
	out := resize1D(src, 2)
	if len(out) != 2 {
		t.Fatalf("expected length 2, got %d", len(out))
	}
	if out[0] != src[0] {
		t.Fatalf("expected first resized entry to map to source start, got %f", out[0])
	}
	if out[1] != src[len(src)-1] {
		t.Fatalf("expected last resized entry to map to source end, got %f", out[1])
	}
}

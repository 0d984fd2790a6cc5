package pneumoresistance

import "testing"

func TestEncodeDecodeStrainMatrixRoundTrips(t *testing.T) {
	m := [][2]int{{3, 1}, {0, 7}, {42, 0}}
	blob := encodeStrainMatrix(m)
	got := decodeStrainMatrix(blob)
	if len(got) != len(m) {
		t.Fatalf("expected %d rows, got %d", len(m), len(got))
	}
	for i := range m {
		if got[i] != m[i] {
			t.Fatalf("row %d: expected %v, got %v", i, m[i], got[i])
		}
	}
}

func TestEncodeDecodeTreatmentTimesRoundTrips(t *testing.T) {
	times := []treatmentInterval{{start: 1.5, end: 2.25}, {start: 10, end: 10.1}}
	blob := encodeTreatmentTimes(times)
	got := decodeTreatmentTimes(blob)
	if len(got) != len(times) {
		t.Fatalf("expected %d intervals, got %d", len(times), len(got))
	}
	for i := range times {
		if got[i] != times[i] {
			t.Fatalf("interval %d: expected %v, got %v", i, times[i], got[i])
		}
	}
}

func TestCheckpointPathIsStableAndSortable(t *testing.T) {
	a := checkpointPath("run", 100.5)
	b := checkpointPath("run", 200.25)
	if a == b {
		t.Fatal("expected distinct checkpoint times to produce distinct paths")
	}
	if a >= b {
		t.Fatalf("expected lexicographic order to match time order: %q should sort before %q", a, b)
	}
}

func TestDecodeEmptyBlobsYieldEmptySlices(t *testing.T) {
	if m := decodeStrainMatrix(nil); len(m) != 0 {
		t.Fatalf("expected empty matrix for nil blob, got %v", m)
	}
	if ts := decodeTreatmentTimes(nil); len(ts) != 0 {
		t.Fatalf("expected empty treatment slice for nil blob, got %v", ts)
	}
}

package pneumoresistance

import "testing"

func TestNewAggregatesAllocatesZeroedCounters(t *testing.T) {
	a := NewAggregates(4, 2)
	if len(a.NHostsByAge) != 4 {
		t.Fatalf("expected 4 age buckets, got %d", len(a.NHostsByAge))
	}
	for age := 0; age < 4; age++ {
		if len(a.ColonizationsByAge[age]) != 2 {
			t.Fatalf("expected 2 serotype rows at age %d, got %d", age, len(a.ColonizationsByAge[age]))
		}
		if len(a.HostsByAge[age]) != 0 {
			t.Fatalf("expected empty host set at age %d", age)
		}
	}
}

func TestAdjustColonizationsByAgeAddsAndSubtracts(t *testing.T) {
	a := NewAggregates(2, 2)
	matrix := [][2]int{{3, 1}, {0, 2}}
	a.adjustColonizationsByAge(0, matrix, 1)
	if a.ColonizationsByAge[0][0][0] != 3 || a.ColonizationsByAge[0][0][1] != 1 {
		t.Fatalf("unexpected colonizations after add: %v", a.ColonizationsByAge[0])
	}
	a.adjustColonizationsByAge(0, matrix, -1)
	if a.ColonizationsByAge[0][0][0] != 0 || a.ColonizationsByAge[0][1][1] != 0 {
		t.Fatalf("expected zeroed colonizations after subtract, got %v", a.ColonizationsByAge[0])
	}
}

func TestVerifyCountsDetectsAgeCountMismatch(t *testing.T) {
	a := NewAggregates(2, 1)
	h := &Host{Index: 0, Age: 0, Colonizations: newStrainMatrix(1), PastColonizations: newStrainMatrix(1)}
	a.adjustAgeCount(1, 1) // wrong bucket on purpose
	a.addToAgeSet(1, 0)
	if err := a.verifyCounts([]*Host{h}, 1); err == nil {
		t.Fatal("expected invariant violation for mismatched age bucket")
	}
}

func TestVerifyCountsAcceptsConsistentState(t *testing.T) {
	a := NewAggregates(3, 2)
	hosts := []*Host{
		{Index: 0, Age: 1, Colonizations: [][2]int{{1, 0}, {0, 0}}, PastColonizations: newStrainMatrix(2)},
		{Index: 1, Age: 1, Colonizations: [][2]int{{0, 2}, {1, 0}}, PastColonizations: newStrainMatrix(2)},
		{Index: 2, Age: 2, Colonizations: newStrainMatrix(2), PastColonizations: newStrainMatrix(2)},
	}
	for _, h := range hosts {
		a.adjustAgeCount(h.Age, 1)
		a.addToAgeSet(h.Age, h.Index)
		a.adjustColonizationsByAge(h.Age, h.Colonizations, 1)
	}
	if err := a.verifyCounts(hosts, 2); err != nil {
		t.Fatalf("expected consistent aggregates to verify clean: %v", err)
	}
}

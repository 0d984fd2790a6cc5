package pneumoresistance

import "testing"

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	p := testParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	return k
}

func TestNewHostSchedulesBirthdayWhenLifetimeExceedsOneYear(t *testing.T) {
	k := newTestKernel(t)
	// An index past the kernel's own hosts, whose events are already queued.
	idx := len(k.Hosts)
	_ = newHost(k, idx, 0, 2*k.Params.TYear)
	if !k.Queue.Contains(hostKey(EventCelebrateBirthday, idx)) {
		t.Fatal("expected a celebrate_birthday event for a host outliving one year")
	}
	if k.Queue.Contains(hostKey(EventReset, idx)) {
		t.Fatal("did not expect a reset event yet for a host outliving one year")
	}
}

func TestNewHostSchedulesResetWhenLifetimeUnderOneYear(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 1, 0, 0.5*k.Params.TYear)
	if !k.Queue.Contains(hostKey(EventReset, 1)) {
		t.Fatal("expected a reset event for a host not outliving one year")
	}
	if h.DeathTime != 0.5*k.Params.TYear {
		t.Fatalf("expected death_time=%f, got %f", 0.5*k.Params.TYear, h.DeathTime)
	}
}

func TestReceiveColonizationUpdatesHostAndAggregatesAndSchedulesClearance(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 2, 0, 5*k.Params.TYear)
	k.Aggregates.adjustAgeCount(0, 1)
	k.Aggregates.addToAgeSet(0, 2)

	h.receiveColonization(k, 0, 0, 0)

	if h.Colonizations[0][0] != 1 {
		t.Fatalf("expected 1 sensitive colonization of serotype 0, got %d", h.Colonizations[0][0])
	}
	if k.Aggregates.ColonizationsByAge[0][0][0] != 1 {
		t.Fatalf("expected aggregate to reflect the new colonization, got %d", k.Aggregates.ColonizationsByAge[0][0][0])
	}
	if !h.HasNextClearance {
		t.Fatal("expected a clearance to be scheduled after receiving a colonization")
	}
	if !k.Queue.Contains(hostKey(EventClearColonization, 2)) {
		t.Fatal("expected clear_colonization to be queued")
	}
}

func TestClearColonizationRejectsWrongTime(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 3, 0, 5*k.Params.TYear)
	h.receiveColonization(k, 0, 0, 0)

	if err := h.clearColonization(k, h.NextClearanceTime+1); err == nil {
		t.Fatal("expected an error when clear_colonization fires at the wrong time")
	}
}

func TestClearColonizationMovesCountFromCurrentToPast(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 4, 0, 5*k.Params.TYear)
	h.receiveColonization(k, 1, 0, 0)
	k.Aggregates.adjustAgeCount(0, 1)
	k.Aggregates.addToAgeSet(0, 4)

	at := h.NextClearanceTime
	if err := h.clearColonization(k, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Colonizations[1][0] != 0 {
		t.Fatalf("expected colonization count to drop to 0, got %d", h.Colonizations[1][0])
	}
	if h.PastColonizations[1][0] != 1 {
		t.Fatalf("expected past_colonizations to record the cleared strain, got %d", h.PastColonizations[1][0])
	}
}

func TestStepTreatmentTogglesInTreatmentAndReschedules(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 5, 0, 5*k.Params.TYear)
	k.Queue.RemoveIfPresent(hostKey(EventStepTreatment, 5))
	h.TreatmentTimes = []treatmentInterval{{start: 1, end: 2}}
	h.TreatmentIndex = 0
	h.InTreatment = false

	h.stepTreatment(k, 1)
	if !h.InTreatment {
		t.Fatal("expected in_treatment to become true on entering a course")
	}

	h.stepTreatment(k, 2)
	if h.InTreatment {
		t.Fatal("expected in_treatment to become false on leaving a course")
	}
	if h.TreatmentIndex != 1 {
		t.Fatalf("expected treatment_index to advance to 1, got %d", h.TreatmentIndex)
	}
}

func TestCalculateMeanClearanceDurationScalesResistantTreatedCourses(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 6, 0, 5*k.Params.TYear)
	h.InTreatment = true

	sensitive := h.calculateMeanClearanceDuration(k, 0, 0)
	resistant := h.calculateMeanClearanceDuration(k, 0, 1)

	if sensitive != k.Params.GammaTreatedSensitive {
		t.Fatalf("expected treated sensitive mean to equal gamma_treated_sensitive, got %f", sensitive)
	}
	want := k.Params.GammaTreatedSensitive * k.Params.GammaTreatedRatioResistantToSensitive
	if resistant != want {
		t.Fatalf("expected treated resistant mean %f, got %f", want, resistant)
	}
}

func TestGetProbColonizationAppliesCompetitionAndImmunity(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 7, 0, 5*k.Params.TYear)

	baseline := h.getProbColonization(k, 0, 0)
	if baseline != 1.0 {
		t.Fatalf("expected prob=1 for a naive, uncolonized host, got %f", baseline)
	}

	h.PastColonizations[0][0] = 1
	withImmunity := h.getProbColonization(k, 0, 0)
	if withImmunity != 1-k.Params.Sigma {
		t.Fatalf("expected prob=1-sigma after past exposure, got %f", withImmunity)
	}
}

func TestResetRespawnsHostAtAgeZero(t *testing.T) {
	k := newTestKernel(t)
	h := newHost(k, 8, 0, 5*k.Params.TYear)
	k.Aggregates.adjustAgeCount(0, 1)
	k.Aggregates.addToAgeSet(0, 8)
	h.receiveColonization(k, 0, 0, 0)

	h.reset(k, h.DeathTime)

	if h.Age != 0 {
		t.Fatalf("expected respawned host to be age 0, got %d", h.Age)
	}
	if h.totalColonizations() != 0 {
		t.Fatalf("expected respawned host to carry no colonizations, got %d", h.totalColonizations())
	}
	if h.Index != 8 {
		t.Fatalf("expected respawned host to keep its index, got %d", h.Index)
	}
}

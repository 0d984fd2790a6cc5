package pneumoresistance

import (
	"math"

	"github.com/pkg/errors"
)

// treatmentInterval is one non-overlapping (start, end) course of
// antibiotic treatment within a host's lifetime.
type treatmentInterval struct {
	start, end float64
}

// Host holds one simulated individual's lifecycle, colonization state,
// and treatment schedule. Host never holds a back-reference to the
// Kernel that owns it; every mutator that needs kernel state (the
// event queue, the aggregate counters) takes *Kernel as an explicit
// argument, per the no-back-pointer design in SPEC_FULL.md.
type Host struct {
	Index int

	Age       int
	BirthTime float64
	DeathTime float64

	// Colonizations and PastColonizations are indexed [serotype][0=sensitive,1=resistant].
	Colonizations     [][2]int
	PastColonizations [][2]int

	TreatmentTimes []treatmentInterval
	TreatmentIndex int
	InTreatment    bool

	// NextClearance fields are meaningful only while HasNextClearance
	// is true; a host has a scheduled clearance event iff it currently
	// has at least one colonization.
	HasNextClearance        bool
	NextClearanceTime       float64
	NextClearanceSerotypeID int
	NextClearanceResistant  int
}

// totalColonizations returns the sum of h.Colonizations across every
// (serotype, resistance) cell.
func (h *Host) totalColonizations() int {
	total := 0
	for _, row := range h.Colonizations {
		total += row[0] + row[1]
	}
	return total
}

func (h *Host) totalPastColonizations() int {
	total := 0
	for _, row := range h.PastColonizations {
		total += row[0] + row[1]
	}
	return total
}

// newHost allocates a host and queues its first birthday or its death.
// A host whose death_time is at or after t=0 also gets empty
// colonization/past-colonization matrices sized to k.Params.NSerotypes
// and its full treatment schedule, even if it was born before t=0; its
// colonizations stay empty until InitColonizations fires at t=0. A host
// that dies before t=0 gets neither matrices nor a treatment schedule.
func newHost(k *Kernel, index int, birthTime, lifetime float64) *Host {
	h := &Host{
		Index:     index,
		BirthTime: birthTime,
		DeathTime: birthTime + lifetime,
	}
	if lifetime > k.Params.TYear {
		_ = k.Queue.Add(hostKey(EventCelebrateBirthday, index), birthTime+k.Params.TYear)
	} else {
		_ = k.Queue.Add(hostKey(EventReset, index), h.DeathTime)
	}

	if h.DeathTime >= 0 {
		h.Colonizations = newStrainMatrix(k.Params.NSerotypes)
		h.PastColonizations = newStrainMatrix(k.Params.NSerotypes)
		h.TreatmentTimes = k.drawTreatmentTimes(h.BirthTime, h.DeathTime)
		if len(h.TreatmentTimes) > 0 {
			h.TreatmentIndex = 0
			_ = k.Queue.Add(hostKey(EventStepTreatment, index), h.TreatmentTimes[0].start)
		} else {
			h.TreatmentIndex = -1
		}
	} else {
		h.TreatmentIndex = -1
	}
	return h
}

func newStrainMatrix(nSerotypes int) [][2]int {
	return make([][2]int, nSerotypes)
}

// celebrateBirthday moves the host to age+1, relocating its membership
// in the age-indexed aggregate sets and re-homing its colonization
// counts under the new age bucket, then schedules the next birthday or
// the host's death.
func (h *Host) celebrateBirthday(k *Kernel, t float64) {
	k.Aggregates.removeFromAgeSet(h.Age, h.Index)
	k.Aggregates.adjustAgeCount(h.Age, -1)
	if h.Colonizations != nil {
		k.Aggregates.adjustColonizationsByAge(h.Age, h.Colonizations, -1)
	}
	h.Age++
	k.Aggregates.adjustAgeCount(h.Age, 1)
	k.Aggregates.addToAgeSet(h.Age, h.Index)
	if h.Colonizations != nil {
		k.Aggregates.adjustColonizationsByAge(h.Age, h.Colonizations, 1)
	}

	nextBirthday := t + k.Params.TYear
	if nextBirthday < h.DeathTime {
		_ = k.Queue.Add(hostKey(EventCelebrateBirthday, h.Index), nextBirthday)
	} else {
		_ = k.Queue.Add(hostKey(EventReset, h.Index), h.DeathTime)
	}
}

// reset kills the host in place and immediately respawns it at age 0
// with a freshly drawn lifetime and treatment schedule. The host index
// is reused; the slot is never structurally destroyed.
func (h *Host) reset(k *Kernel, t float64) {
	if h.Colonizations != nil {
		k.Queue.RemoveIfPresent(hostKey(EventClearColonization, h.Index))
	}
	k.Aggregates.adjustAgeCount(h.Age, -1)
	k.Aggregates.removeFromAgeSet(h.Age, h.Index)
	if h.Colonizations != nil {
		k.Aggregates.adjustColonizationsByAge(h.Age, h.Colonizations, -1)
	}

	lifetime := k.drawHostLifetime()
	*h = *newHost(k, h.Index, t, lifetime)

	k.Aggregates.adjustAgeCount(0, 1)
	k.Aggregates.addToAgeSet(0, h.Index)
}

// stepTreatment toggles the treated axis, enqueues the matching
// boundary event (end-of-course while entering, start-of-next-course
// while leaving), and recomputes the clearance rate since it depends
// on InTreatment.
func (h *Host) stepTreatment(k *Kernel, t float64) {
	if h.InTreatment {
		h.InTreatment = false
		h.TreatmentIndex++
		if h.TreatmentIndex < len(h.TreatmentTimes) {
			_ = k.Queue.Add(hostKey(EventStepTreatment, h.Index), h.TreatmentTimes[h.TreatmentIndex].start)
		}
	} else {
		h.InTreatment = true
		endTime := h.TreatmentTimes[h.TreatmentIndex].end
		if endTime < h.DeathTime {
			_ = k.Queue.Add(hostKey(EventStepTreatment, h.Index), endTime)
		}
	}
	h.updateNextClearance(k, t)
}

// calculateMeanClearanceDuration implements the τ(s, r) formula of
// §4.3: treated courses use the fixed treated-sensitive mean (scaled by
// the resistant ratio for resistant strains); untreated courses decay
// from γ[s] toward κ as past colonizations accumulate (scaled by ξ for
// resistant strains). Per the Open Question resolution in DESIGN.md,
// the resistant ratio multiplies only the treated branch.
func (h *Host) calculateMeanClearanceDuration(k *Kernel, serotypeID, resistant int) float64 {
	p := k.Params
	if h.InTreatment {
		mean := p.GammaTreatedSensitive
		if resistant == 1 {
			mean *= p.GammaTreatedRatioResistantToSensitive
		}
		return mean
	}
	mean := p.Kappa + (p.Gamma[serotypeID]-p.Kappa)*math.Exp(-p.Epsilon*float64(h.totalPastColonizations()))
	if resistant == 1 {
		mean *= p.Xi
	}
	return mean
}

// getProbColonization computes p ∈ [0,1], the per-attempt acceptance
// probability for strain (s, r) colonizing this host (§4.3).
func (h *Host) getProbColonization(k *Kernel, serotypeID, resistant int) float64 {
	p := k.Params
	var omega float64
	if h.totalColonizations() == 0 {
		omega = 0
	} else if p.NSerotypes == 1 {
		omega = p.MuMax
	} else {
		minRank := -1
		for s, row := range h.Colonizations {
			if row[0]+row[1] > 0 {
				minRank = s
				break
			}
		}
		omega = p.MuMax * (1.0 - float64(minRank)/float64(p.NSerotypes-1))
	}

	prob := 1 - omega
	pastTotal := 0
	for _, r := range []int{0, 1} {
		pastTotal += h.PastColonizations[serotypeID][r]
	}
	if pastTotal > 0 {
		prob *= 1 - p.Sigma
	}
	return prob
}

// receiveColonization admits one new colonization of strain (s, r) at
// time t, updating the host's own count, the population aggregate, and
// the host's competing-exponentials clearance draw.
func (h *Host) receiveColonization(k *Kernel, serotypeID, resistant int, t float64) {
	h.Colonizations[serotypeID][resistant]++
	k.Aggregates.adjustColonizationsByAgeStrain(h.Age, serotypeID, resistant, 1)
	h.updateNextClearance(k, t)
}

// clearColonization fires the host's scheduled clearance: t must equal
// the previously recorded NextClearanceTime and (s, r) must match the
// recorded strain, per the C3 precondition.
func (h *Host) clearColonization(k *Kernel, t float64) error {
	if !h.HasNextClearance || t != h.NextClearanceTime {
		return errors.Wrapf(ErrInvariantViolation,
			"host %d: clear_colonization fired at t=%f but next_clearance_time=%f (scheduled=%v)",
			h.Index, t, h.NextClearanceTime, h.HasNextClearance)
	}
	s, r := h.NextClearanceSerotypeID, h.NextClearanceResistant
	h.Colonizations[s][r]--
	h.PastColonizations[s][r]++
	k.Aggregates.adjustColonizationsByAgeStrain(h.Age, s, r, -1)
	h.updateNextClearance(k, t)
	return nil
}

// updateNextClearance is the competing-exponentials core: it sums a
// per-strain clearance rate over every strain the host currently
// carries, draws a single exponential for the time of the next
// clearance, and selects which strain clears via a categorical draw
// weighted by each strain's share of the summed rate.
func (h *Host) updateNextClearance(k *Kernel, t float64) {
	if t < 0 {
		return
	}

	type strainRate struct {
		serotypeID, resistant int
		rate                  float64
	}
	var rates []strainRate
	var ratesSum float64
	for s, row := range h.Colonizations {
		for r := 0; r < 2; r++ {
			if row[r] <= 0 {
				continue
			}
			rate := float64(row[r]) / h.calculateMeanClearanceDuration(k, s, r)
			rates = append(rates, strainRate{s, r, rate})
			ratesSum += rate
		}
	}

	if len(rates) == 0 {
		h.HasNextClearance = false
		k.Queue.RemoveIfPresent(hostKey(EventClearColonization, h.Index))
		return
	}
	if ratesSum <= 0 {
		panic(errors.Wrapf(ErrInvariantViolation,
			"host %d: clearance rate sum non-positive (%f) with %d colonized strains",
			h.Index, ratesSum, len(rates)))
	}

	nextTime := t + expDraw(ratesSum)
	weights := make([]float64, len(rates))
	for i, sr := range rates {
		weights[i] = sr.rate
	}
	chosen := rates[multinomialIndex(weights)]

	h.HasNextClearance = true
	h.NextClearanceTime = nextTime
	h.NextClearanceSerotypeID = chosen.serotypeID
	h.NextClearanceResistant = chosen.resistant
	k.Queue.AddOrUpdate(hostKey(EventClearColonization, h.Index), nextTime)
}

// verify checks the per-host invariants enumerated in §8 against the
// host's own recorded state and the event queue's scheduled times.
func (h *Host) verify(k *Kernel, t float64) error {
	if t > h.DeathTime {
		return errors.Wrapf(ErrInvariantViolation, "host %d: verify called at t=%f past death_time=%f", h.Index, t, h.DeathTime)
	}
	if h.Colonizations != nil {
		for s, row := range h.Colonizations {
			for r := 0; r < 2; r++ {
				if row[r] < 0 {
					return errors.Wrapf(ErrInvariantViolation, "host %d: colonizations[%d][%d]=%d is negative", h.Index, s, r, row[r])
				}
				if h.PastColonizations[s][r] < 0 {
					return errors.Wrapf(ErrInvariantViolation, "host %d: past_colonizations[%d][%d]=%d is negative", h.Index, s, r, h.PastColonizations[s][r])
				}
			}
		}
	}
	if h.TreatmentTimes != nil {
		if h.TreatmentIndex < 0 {
			return errors.Wrapf(ErrInvariantViolation, "host %d: has treatment schedule but negative treatment_index", h.Index)
		}
		for i := 1; i < len(h.TreatmentTimes); i++ {
			if h.TreatmentTimes[i].start < h.TreatmentTimes[i-1].end+k.Params.MinTimeBetweenTreatments {
				return errors.Wrapf(ErrInvariantViolation, "host %d: treatment gap %d violates min_time_between_treatments", h.Index, i)
			}
		}
		if h.InTreatment {
			cur := h.TreatmentTimes[h.TreatmentIndex]
			if cur.start > t || cur.end < t {
				return errors.Wrapf(ErrInvariantViolation, "host %d: in_treatment but t=%f outside current interval [%f,%f]", h.Index, t, cur.start, cur.end)
			}
			if cur.end < h.DeathTime {
				scheduled, ok := k.queueTime(hostKey(EventStepTreatment, h.Index))
				if !ok || scheduled != cur.end {
					return errors.Wrapf(ErrInvariantViolation, "host %d: step_treatment queue time does not match treatment end", h.Index)
				}
			}
		} else if h.TreatmentIndex < len(h.TreatmentTimes) {
			if h.TreatmentIndex > 0 && h.TreatmentTimes[h.TreatmentIndex-1].end > t {
				return errors.Wrapf(ErrInvariantViolation, "host %d: previous treatment has not ended yet", h.Index)
			}
			next := h.TreatmentTimes[h.TreatmentIndex]
			if next.start < t {
				return errors.Wrapf(ErrInvariantViolation, "host %d: next treatment start %f precedes t=%f", h.Index, next.start, t)
			}
			scheduled, ok := k.queueTime(hostKey(EventStepTreatment, h.Index))
			if !ok || scheduled != next.start {
				return errors.Wrapf(ErrInvariantViolation, "host %d: step_treatment queue time does not match next treatment start", h.Index)
			}
		}
	}
	return nil
}

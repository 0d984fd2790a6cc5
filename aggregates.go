package pneumoresistance

import "github.com/pkg/errors"

// Aggregates holds the population-wide counters that are maintained
// incrementally in lock-step with every host-state mutation (§4.5).
// Every mutation goes through one of the three adjust methods or the
// two age-set helpers so that the bookkeeping always happens in the same transaction as
// the host-state change that motivated it.
type Aggregates struct {
	// NHostsByAge[a] is the number of hosts currently aged a.
	NHostsByAge []int

	// ColonizationsByAge[a][s][r] sums colonizations[s][r] over every
	// host currently aged a.
	ColonizationsByAge [][][2]int

	// HostsByAge[a] is the set of host indices currently aged a, used
	// to pick source hosts in age-assortative mixing.
	HostsByAge []map[int]struct{}
}

// NewAggregates allocates zeroed counters for nAges age classes and
// nSerotypes strains.
func NewAggregates(nAges, nSerotypes int) *Aggregates {
	a := &Aggregates{
		NHostsByAge:        make([]int, nAges),
		ColonizationsByAge: make([][][2]int, nAges),
		HostsByAge:         make([]map[int]struct{}, nAges),
	}
	for age := 0; age < nAges; age++ {
		a.ColonizationsByAge[age] = make([][2]int, nSerotypes)
		a.HostsByAge[age] = make(map[int]struct{})
	}
	return a
}

func (a *Aggregates) adjustAgeCount(age, delta int) {
	a.NHostsByAge[age] += delta
}

// adjustColonizationsByAge adds sign*matrix[s][r] to
// ColonizationsByAge[age][s][r] for every strain. sign is +1 when a
// host's colonizations should be added to the age bucket (e.g. on
// birthday-in) and -1 when removed (e.g. on birthday-out).
func (a *Aggregates) adjustColonizationsByAge(age int, matrix [][2]int, sign int) {
	bucket := a.ColonizationsByAge[age]
	for s, row := range matrix {
		bucket[s][0] += sign * row[0]
		bucket[s][1] += sign * row[1]
	}
}

func (a *Aggregates) adjustColonizationsByAgeStrain(age, serotypeID, resistant, delta int) {
	a.ColonizationsByAge[age][serotypeID][resistant] += delta
}

func (a *Aggregates) addToAgeSet(age, hostIndex int) {
	a.HostsByAge[age][hostIndex] = struct{}{}
}

func (a *Aggregates) removeFromAgeSet(age, hostIndex int) {
	delete(a.HostsByAge[age], hostIndex)
}

// verifyCounts recomputes every aggregate from the authoritative host
// slice and compares against the incrementally maintained state,
// returning an error wrapping ErrInvariantViolation on any mismatch.
func (a *Aggregates) verifyCounts(hosts []*Host, nSerotypes int) error {
	n := len(hosts)
	scratchHostsByAge := make([]int, len(a.NHostsByAge))
	scratchColByAge := make([][][2]int, len(a.ColonizationsByAge))
	for age := range scratchColByAge {
		scratchColByAge[age] = make([][2]int, nSerotypes)
	}
	seen := make([]map[int]struct{}, len(a.HostsByAge))
	for age := range seen {
		seen[age] = make(map[int]struct{})
	}

	for _, h := range hosts {
		scratchHostsByAge[h.Age]++
		seen[h.Age][h.Index] = struct{}{}
		if h.Colonizations != nil {
			for s, row := range h.Colonizations {
				scratchColByAge[h.Age][s][0] += row[0]
				scratchColByAge[h.Age][s][1] += row[1]
			}
		}
	}

	total := 0
	for age, count := range scratchHostsByAge {
		total += count
		if count != a.NHostsByAge[age] {
			return errors.Wrapf(ErrInvariantViolation,
				"aggregates: n_hosts_by_age[%d] tracked %d, recomputed %d", age, a.NHostsByAge[age], count)
		}
	}
	if total != n {
		return errors.Wrapf(ErrInvariantViolation, "aggregates: sum(n_hosts_by_age)=%d, expected N=%d", total, n)
	}

	for age := range scratchColByAge {
		for s := 0; s < nSerotypes; s++ {
			for r := 0; r < 2; r++ {
				want := scratchColByAge[age][s][r]
				got := a.ColonizationsByAge[age][s][r]
				if want != got {
					return errors.Wrapf(ErrInvariantViolation,
						"aggregates: colonizations_by_age[%d][%d][%d] tracked %d, recomputed %d", age, s, r, got, want)
				}
			}
		}
	}

	for age := range a.HostsByAge {
		if len(a.HostsByAge[age]) != len(seen[age]) {
			return errors.Wrapf(ErrInvariantViolation, "aggregates: hosts_by_age[%d] has %d members, recomputed %d", age, len(a.HostsByAge[age]), len(seen[age]))
		}
		for idx := range seen[age] {
			if _, ok := a.HostsByAge[age][idx]; !ok {
				return errors.Wrapf(ErrInvariantViolation, "aggregates: host %d missing from hosts_by_age[%d]", idx, age)
			}
		}
	}

	return nil
}

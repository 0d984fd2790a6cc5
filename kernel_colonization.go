package pneumoresistance

import "math"

// doColonizationsIndependent is the steady-state colonization event for
// the independent transmission model (transmission_scaling is always
// by_colonization for this model, enforced by Parameters.Validate): it
// runs one colonization attempt round per (serotype, resistance) cell
// independently, then reschedules itself.
func (k *Kernel) doColonizationsIndependent(t float64) {
	p := k.Params
	for s := 0; s < p.NSerotypes; s++ {
		for r := 0; r < 2; r++ {
			if p.UseRandomMixing {
				k.doColonizationsForStrainRandomMixing(t, s, r)
			} else {
				k.doColonizationsForStrain(t, s, r)
			}
		}
	}
	next := t + p.ColonizationEventTimestep
	if next < p.TEnd {
		k.Queue.AddOrUpdate(singletonKey(EventDoColonizations), next)
	}
}

// doColonizationsForStrainRandomMixing is the random-mixing branch of
// the independent model: the per-host upper-bound rate R is computed
// once, Poisson(R * n_hosts) attempts are made, and each attempt subtracts
// the candidate's own contribution before accepting so that a host
// cannot inflate its own colonization probability.
func (k *Kernel) doColonizationsForStrainRandomMixing(t float64, serotypeID, resistant int) {
	p := k.Params
	nHosts := len(k.Hosts)
	if nHosts <= 1 {
		return
	}
	nCol := 0
	for _, row := range k.Aggregates.ColonizationsByAge {
		nCol += row[serotypeID][resistant]
	}
	rate := p.Beta * float64(nCol) / float64(nHosts-1)
	if resistant == 1 {
		rate *= p.RatioFOIResistantToSensitive
	}
	pImm := k.getPImmigrationResistantBySerotype(t, serotypeID)
	rate += k.getImmigrationRate(resistant, pImm)
	if rate <= 0 {
		return
	}

	attempts := poissonDraw(rate * float64(nHosts))
	for i := 0; i < attempts; i++ {
		target := k.Hosts[uniformInt(nHosts)]
		ownContribution := float64(target.Colonizations[serotypeID][resistant]) * p.Beta / float64(nHosts-1)
		if resistant == 1 {
			ownContribution *= p.RatioFOIResistantToSensitive
		}
		adjusted := rate - ownContribution
		if adjusted <= 0 {
			continue
		}
		acceptProb := (adjusted / rate) * target.getProbColonization(k, serotypeID, resistant)
		if bernoulli(acceptProb) {
			target.receiveColonization(k, serotypeID, resistant, t)
			k.recordResistanceHistory(serotypeID, resistant)
		}
	}
}

// getColonizationRatesByAge computes, for every age class, an upper
// bound on the per-host acceptance rate for strain (s, r): the
// age-mixing-weighted local colonization frequency, scaled by beta and
// the resistant ratio, plus immigration. Ages flagged in
// k.noTransmission contribute zero and are skipped entirely by the
// age-assortative dispatch to avoid dividing by an all-zero mixing row.
func (k *Kernel) getColonizationRatesByAge(t float64, serotypeID, resistant int) []float64 {
	p := k.Params
	rates := make([]float64, p.NAges)
	freq := make([]float64, p.NAges)
	for age := 0; age < p.NAges; age++ {
		n := k.Aggregates.NHostsByAge[age]
		if n > 0 {
			freq[age] = float64(k.Aggregates.ColonizationsByAge[age][serotypeID][resistant]) / float64(n)
		}
	}
	pImm := k.getPImmigrationResistantBySerotype(t, serotypeID)
	immRate := k.getImmigrationRate(resistant, pImm)
	for age := 0; age < p.NAges; age++ {
		if k.noTransmission[age] {
			continue
		}
		var mixed float64
		for src := 0; src < p.NAges; src++ {
			mixed += freq[src] * p.Alpha[age][src]
		}
		rate := p.Beta * mixed
		if resistant == 1 {
			rate *= p.RatioFOIResistantToSensitive
		}
		rates[age] = rate + immRate
	}
	return rates
}

// doColonizationsForStrain is the age-assortative branch of the
// independent model. Two dispatch modes share the same rate model:
// colonize_host_by_host visits every host once and applies its exact
// rate; the default mode draws Poisson(max_rate * n_hosts) attempts
// against uniformly drawn targets and rejection-samples using the
// ratio of the target's own adjusted rate to the global upper bound.
func (k *Kernel) doColonizationsForStrain(t float64, serotypeID, resistant int) {
	p := k.Params
	rates := k.getColonizationRatesByAge(t, serotypeID, resistant)

	getRateAdjusted := func(h *Host) float64 {
		rate := rates[h.Age]
		n := k.Aggregates.NHostsByAge[h.Age]
		if n > 1 {
			total := k.Aggregates.ColonizationsByAge[h.Age][serotypeID][resistant]
			own := h.Colonizations[serotypeID][resistant]

			subtract := p.Alpha[h.Age][h.Age] * p.Beta * float64(total) / float64(n)
			addback := p.Alpha[h.Age][h.Age] * p.Beta * float64(total-own) / float64(n-1)
			if resistant == 1 {
				subtract *= p.RatioFOIResistantToSensitive
				addback *= p.RatioFOIResistantToSensitive
			}
			rate = rate - subtract + addback
		}
		return rate
	}

	if p.ColonizeHostByHost {
		for _, h := range k.Hosts {
			if k.noTransmission[h.Age] {
				continue
			}
			acceptProb := getRateAdjusted(h) * h.getProbColonization(k, serotypeID, resistant)
			if bernoulli(acceptProb) {
				h.receiveColonization(k, serotypeID, resistant, t)
				k.recordResistanceHistory(serotypeID, resistant)
			}
		}
		return
	}

	maxRate := 0.0
	for age, r := range rates {
		if k.noTransmission[age] {
			continue
		}
		if r > maxRate {
			maxRate = r
		}
	}
	if maxRate <= 0 {
		return
	}
	nHosts := len(k.Hosts)
	attempts := poissonDraw(maxRate * float64(nHosts))
	for i := 0; i < attempts; i++ {
		target := k.Hosts[uniformInt(nHosts)]
		if k.noTransmission[target.Age] {
			continue
		}
		adjusted := getRateAdjusted(target)
		if adjusted <= 0 {
			continue
		}
		acceptProb := (adjusted / maxRate) * target.getProbColonization(k, serotypeID, resistant)
		if bernoulli(acceptProb) {
			target.receiveColonization(k, serotypeID, resistant, t)
			k.recordResistanceHistory(serotypeID, resistant)
		}
	}
}

// doColonizationsCotransmission is the steady-state colonization event
// for the cotransmission model: it draws Poisson(beta * n_hosts)
// source/target contacts, and for each contact every strain the source
// currently carries is independently offered to the target via
// doSingleCotransmission, followed by a population-wide immigration
// pass and rescheduling.
func (k *Kernel) doColonizationsCotransmission(t float64) {
	p := k.Params
	if p.UseRandomMixing {
		k.doColonizationsCotransmissionRandomMixing(t)
	} else {
		k.doColonizationsCotransmissionAgeAssortative(t)
	}
	k.doImmigrationCotransmission(t)

	next := t + p.ColonizationEventTimestep
	if next < p.TEnd {
		k.Queue.AddOrUpdate(singletonKey(EventDoColonizations), next)
	}
}

func (k *Kernel) doColonizationsCotransmissionRandomMixing(t float64) {
	p := k.Params
	nHosts := len(k.Hosts)
	if nHosts <= 1 {
		return
	}
	contacts := poissonDraw(p.Beta * float64(nHosts))
	for i := 0; i < contacts; i++ {
		targetIdx := uniformInt(nHosts)
		sourceIdx := targetIdx
		for sourceIdx == targetIdx {
			sourceIdx = uniformInt(nHosts)
		}
		k.doSingleCotransmission(t, k.Hosts[sourceIdx], k.Hosts[targetIdx])
	}
}

func (k *Kernel) doColonizationsCotransmissionAgeAssortative(t float64) {
	p := k.Params
	nHosts := len(k.Hosts)
	if nHosts == 0 {
		return
	}
	contacts := poissonDraw(p.Beta * float64(nHosts))
	for i := 0; i < contacts; i++ {
		target := k.Hosts[uniformInt(nHosts)]
		if k.noTransmission[target.Age] {
			continue
		}
		sourceAge := multinomialIndex(p.Alpha[target.Age])
		bucket := k.Aggregates.HostsByAge[sourceAge]
		if len(bucket) == 0 || (len(bucket) == 1 && sourceAge == target.Age) {
			continue
		}
		var source *Host
		for {
			idx := uniformInt(len(bucket))
			j := 0
			for hostIdx := range bucket {
				if j == idx {
					source = k.Hosts[hostIdx]
					break
				}
				j++
			}
			if source != target {
				break
			}
		}
		k.doSingleCotransmission(t, source, target)
	}
}

// doSingleCotransmission offers every strain the source host currently
// carries to the target independently: each copy's acceptance
// probability is scaled by the resistant ratio and, under
// by_host scaling, divided by the source's total colonization count so
// a heavily colonized source does not transmit disproportionately more
// copies per contact.
func (k *Kernel) doSingleCotransmission(t float64, source, target *Host) {
	p := k.Params
	sourceTotal := source.totalColonizations()
	if sourceTotal == 0 {
		return
	}
	for s, row := range source.Colonizations {
		for r := 0; r < 2; r++ {
			count := row[r]
			if count == 0 {
				continue
			}
			pCol := 1.0
			if r == 1 {
				pCol *= p.RatioFOIResistantToSensitive
			}
			if p.TransmissionScaling == "by_host" {
				pCol /= float64(sourceTotal)
			}
			pCol = clamp(pCol, 0, 1) * target.getProbColonization(k, s, r)
			for c := 0; c < count; c++ {
				if bernoulli(pCol) {
					target.receiveColonization(k, s, r, t)
					k.recordResistanceHistory(s, r)
				}
			}
		}
	}
}

// doImmigrationCotransmission is the population-wide immigration pass
// shared by both cotransmission mixing modes: for every (serotype,
// resistance) cell it draws a Poisson number of immigration events and
// offers each to a uniformly chosen target.
func (k *Kernel) doImmigrationCotransmission(t float64) {
	p := k.Params
	nHosts := len(k.Hosts)
	if nHosts == 0 {
		return
	}
	for s := 0; s < p.NSerotypes; s++ {
		pImm := k.getPImmigrationResistantBySerotype(t, s)
		for r := 0; r < 2; r++ {
			rate := k.getImmigrationRate(r, pImm)
			n := poissonDraw(rate * float64(nHosts))
			for i := 0; i < n; i++ {
				target := k.Hosts[uniformInt(nHosts)]
				if bernoulli(target.getProbColonization(k, s, r)) {
					target.receiveColonization(k, s, r, t)
					k.recordResistanceHistory(s, r)
				}
			}
		}
	}
}

// getPImmigrationResistantBounds returns the clamping bounds applied to
// every dynamically estimated immigration resistance fraction.
func (k *Kernel) getPImmigrationResistantBounds() (float64, float64) {
	b := k.Params.PImmigrationResistantBounds
	return b[0], b[1]
}

// getPImmigrationResistantBySerotype resolves p_immigration_resistant
// for one serotype under the configured immigration_resistance_model,
// falling back to the static configured constant whenever a dynamic
// model has no data yet.
func (k *Kernel) getPImmigrationResistantBySerotype(t float64, serotypeID int) float64 {
	p := k.Params
	lo, hi := k.getPImmigrationResistantBounds()
	// hasColonizations reports whether any live colonization exists,
	// restricted to one serotype when serotypeID >= 0.
	hasColonizations := func(serotypeID int) bool {
		for _, byStrain := range k.Aggregates.ColonizationsByAge {
			for s, row := range byStrain {
				if (serotypeID < 0 || s == serotypeID) && row[0]+row[1] > 0 {
					return true
				}
			}
		}
		return false
	}
	switch p.ImmigrationResistanceModel {
	case "constant":
		return p.PImmigrationResistant
	case "fraction_resistant_global":
		if !hasColonizations(-1) {
			return p.PImmigrationResistant
		}
		return clamp(k.getFractionResistant(), lo, hi)
	case "fraction_resistant_by_serotype":
		frac := k.getFractionResistantForSerotype(serotypeID)
		if !hasColonizations(serotypeID) {
			return p.PImmigrationResistant
		}
		return clamp(frac, lo, hi)
	case "history_by_serotype":
		frac, ok := k.getFractionResistantHistoryForSerotype(serotypeID)
		if !ok {
			return p.PImmigrationResistant
		}
		bounded := clamp(frac, lo, hi)
		if k.sink != nil && p.OutputTimestep > 0 && math.Mod(t, p.OutputTimestep) == 0 {
			_ = k.sink.WriteImmigrationResistance(k, t, serotypeID, bounded)
		}
		return bounded
	default:
		return p.PImmigrationResistant
	}
}

// getImmigrationRate splits the configured total immigration rate
// between resistant and sensitive arrivals according to
// p_immigration_resistant.
func (k *Kernel) getImmigrationRate(resistant int, pImmigrationResistant float64) float64 {
	if resistant == 1 {
		return k.Params.ImmigrationRate * pImmigrationResistant
	}
	return k.Params.ImmigrationRate * (1 - pImmigrationResistant)
}

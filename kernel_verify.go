package pneumoresistance

import "github.com/pkg/errors"

// verify is the population-wide consistency check of §8: every host's
// own invariants, the serotype competitive-rank ordering, the
// incrementally maintained aggregates, and the event queue's internal
// structure must all still hold. It is itself a scheduled event and
// reschedules itself on success.
func (k *Kernel) verify(t float64) error {
	for _, h := range k.Hosts {
		if err := h.verify(k, t); err != nil {
			return err
		}
	}
	if err := k.verifySerotypeRanks(); err != nil {
		return err
	}
	if err := k.Aggregates.verifyCounts(k.Hosts, k.Params.NSerotypes); err != nil {
		return err
	}
	if err := k.Queue.Verify(); err != nil {
		return err
	}

	next := t + k.Params.VerificationTimestep
	if next <= k.Params.TEnd {
		k.Queue.AddOrUpdate(singletonKey(EventVerify), next)
	}
	return nil
}

// verifySerotypeRanks checks that gamma is non-increasing by serotype
// rank, the structural assumption that gives "serotype index" its
// competitive-rank meaning throughout the colonization and clearance
// formulas.
func (k *Kernel) verifySerotypeRanks() error {
	gamma := k.Params.Gamma
	for i := 0; i < len(gamma)-1; i++ {
		if gamma[i] < gamma[i+1] {
			return errors.Wrapf(ErrInvariantViolation,
				"gamma not non-increasing by serotype rank at index %d: %f < %f", i, gamma[i], gamma[i+1])
		}
	}
	return nil
}

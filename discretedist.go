package pneumoresistance

import (
	"math"

	"github.com/pkg/errors"
)

// DiscreteDistribution draws from an arbitrary discrete pdf in O(1)
// amortized time using an alias-style lookup table plus rejection,
// rather than an O(log K) binary search over a cumulative sum.
//
// Construction builds a flat table of cell->index assignments sized to
// the least common granularity implied by bin_size, then accepts a
// drawn index with probability p_accept[index] and retries otherwise.
type DiscreteDistribution struct {
	weights  []float64
	binSize  float64
	pAccept  []float64
	table    []int
}

// NewDiscreteDistribution builds a sampler over weights, which must have
// at least one strictly positive entry and no negative entries. binSize
// of 0 selects the default: the smallest strictly positive weight.
func NewDiscreteDistribution(weights []float64, binSize float64) (*DiscreteDistribution, error) {
	if len(weights) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "discrete distribution: empty weight vector")
	}
	minPositive := math.Inf(1)
	anyPositive := false
	for _, w := range weights {
		if w < 0 {
			return nil, errors.Wrapf(ErrConfiguration, "discrete distribution: negative weight %f", w)
		}
		if w > 0 {
			anyPositive = true
			if w < minPositive {
				minPositive = w
			}
		}
	}
	if !anyPositive {
		return nil, errors.Wrap(ErrConfiguration, "discrete distribution: all weights are zero")
	}
	if binSize <= 0 {
		binSize = minPositive
	}

	binsPerIndex := make([]int, len(weights))
	pAccept := make([]float64, len(weights))
	nBins := 0
	for i, w := range weights {
		n := int(math.Ceil(w / binSize))
		if n < 0 {
			n = 0
		}
		binsPerIndex[i] = n
		nBins += n
		if n > 0 {
			pAccept[i] = w / (float64(n) * binSize)
		}
	}
	if nBins == 0 {
		return nil, errors.Wrap(ErrConfiguration, "discrete distribution: bin_size produced an empty table")
	}

	table := make([]int, 0, nBins)
	for i, n := range binsPerIndex {
		for j := 0; j < n; j++ {
			table = append(table, i)
		}
	}

	return &DiscreteDistribution{
		weights: weights,
		binSize: binSize,
		pAccept: pAccept,
		table:   table,
	}, nil
}

// NextDiscrete draws an index in [0, len(weights)) with probability
// proportional to weights[index].
func (d *DiscreteDistribution) NextDiscrete() int {
	for {
		cell := uniformInt(len(d.table))
		value := d.table[cell]
		if uniformFloat() < d.pAccept[value] {
			return value
		}
	}
}

// NextContinuous draws NextDiscrete() + U(0,1), treating the discrete
// index as the floor of a continuous quantity (e.g. integer years of
// life plus a fractional year).
func (d *DiscreteDistribution) NextContinuous() float64 {
	return float64(d.NextDiscrete()) + uniformFloat()
}

package compiler

import "math/rand"

// sampleWeight draws a weight for a generated connection according to its
// weight_init rule, clamped to [0,1] as required for fully_connected and
// sparse_random/random connections. rng must be a seeded *rand.Rand so that
// repeated compiles with the same seed produce byte-identical tables.
func sampleWeight(c Connection, rng *rand.Rand) float64 {
	var w float64
	switch c.WeightInit {
	case WeightRandomUniform:
		lo, hi := 0.0, 1.0
		if c.WeightMin != nil {
			lo = *c.WeightMin
		}
		if c.WeightMax != nil {
			hi = *c.WeightMax
		}
		if c.WeightRange != nil {
			lo, hi = c.WeightRange[0], c.WeightRange[1]
		}
		w = lo + rng.Float64()*(hi-lo)
	case WeightConstant:
		if c.Weight != nil {
			w = *c.Weight
		}
	case WeightRandomNormal:
		mean, stddev := 0.5, 0.1
		if c.WeightMean != nil {
			mean = *c.WeightMean
		}
		if c.WeightStddev != nil {
			stddev = *c.WeightStddev
		}
		w = mean + rng.NormFloat64()*stddev
	default:
		// No explicit weight_init: fall back to a fixed weight if given,
		// otherwise to a uniform draw over the default range.
		if c.Weight != nil {
			w = *c.Weight
		} else {
			w = rng.Float64()
		}
	}

	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return w
}

// sampleSparseWeight draws a weight for sparse_random/random connections,
// which may additionally specify weight_range directly without a
// weight_init tag.
func sampleSparseWeight(c Connection, rng *rand.Rand) float64 {
	if c.WeightInit == "" && c.WeightRange != nil {
		lo, hi := c.WeightRange[0], c.WeightRange[1]
		w := lo + rng.Float64()*(hi-lo)
		if w < 0 {
			w = 0
		}
		if w > 1 {
			w = 1
		}
		return w
	}
	return sampleWeight(c, rng)
}

package cov

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SampleWeights builds the per-sample weight vector for estimating period
// t's covariance from the whole series. A sample in period t' receives raw
// weight gamma^|t'-t|; the vector is normalized to unit sum. counts holds
// the number of samples in each period, in time order.
//
// gamma = 0 puts all mass on period t's own samples (0^0 = 1); gamma = 1
// pools every period equally.
func SampleWeights(counts []int, t int, gamma float64) ([]float64, error) {
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("cov: gamma %v outside [0, 1]", gamma)
	}
	if t < 0 || t >= len(counts) {
		return nil, fmt.Errorf("cov: target period %d outside series of length %d", t, len(counts))
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	weights := make([]float64, 0, total)
	for tp, c := range counts {
		dist := tp - t
		if dist < 0 {
			dist = -dist
		}
		w := 1.0
		for k := 0; k < dist; k++ {
			w *= gamma
		}
		for k := 0; k < c; k++ {
			weights = append(weights, w)
		}
	}

	sum := floats.Sum(weights)
	if sum <= 0 {
		return nil, fmt.Errorf("cov: zero total weight for period %d", t)
	}
	floats.Scale(1/sum, weights)

	return weights, nil
}

// Weighted computes the temporally weighted covariance matrix for period t
// of the series, with sample weights decaying as gamma^|t'-t|.
func Weighted(periods []*mat.Dense, t int, gamma float64) (*mat.SymDense, error) {
	pooled, counts, err := Concat(periods)
	if err != nil {
		return nil, err
	}

	weights, err := SampleWeights(counts, t, gamma)
	if err != nil {
		return nil, err
	}

	return weightedCov(pooled, weights), nil
}

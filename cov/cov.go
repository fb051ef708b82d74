package cov

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// scaleFloor is the minimum standard deviation used for standardization.
// Constant variables would otherwise divide by zero.
const scaleFloor = 1e-10

// Empirical computes the population covariance matrix of x (samples as
// rows, variables as columns).
func Empirical(x *mat.Dense) (*mat.SymDense, error) {
	ns, _ := x.Dims()
	if ns == 0 {
		return nil, errors.New("cov: no samples")
	}

	w := make([]float64, ns)
	floats.AddConst(1/float64(ns), w)

	return weightedCov(x, w), nil
}

// Correlation converts a covariance matrix into a correlation matrix
// without modifying the input. Entry (i, j) is divided by the square roots
// of both diagonal entries, floored so constant variables stay finite.
func Correlation(c *mat.SymDense) *mat.SymDense {
	n := c.SymmetricDim()
	d := make([]float64, n)
	for i := range d {
		d[i] = math.Max(math.Sqrt(c.At(i, i)), scaleFloor)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, c.At(i, j)/(d[i]*d[j]))
		}
	}

	return out
}

// WeightedMoments computes the weighted mean and standard deviation of
// every column of x. Weights must be normalized to unit sum. Standard
// deviations are floored at a small epsilon so standardization is safe for
// constant columns.
func WeightedMoments(x *mat.Dense, weights []float64) (mean, scale []float64) {
	ns, nv := x.Dims()
	mean = make([]float64, nv)
	scale = make([]float64, nv)

	for n := 0; n < ns; n++ {
		row := x.RawRowView(n)
		floats.AddScaled(mean, weights[n], row)
	}
	for n := 0; n < ns; n++ {
		row := x.RawRowView(n)
		for i, v := range row {
			d := v - mean[i]
			scale[i] += weights[n] * d * d
		}
	}
	for i := range scale {
		scale[i] = math.Max(math.Sqrt(scale[i]), scaleFloor)
	}

	return mean, scale
}

// Concat stacks the per-period sample matrices into one pooled matrix and
// returns the per-period sample counts. All periods must have the same
// number of variables and at least one sample.
func Concat(periods []*mat.Dense) (*mat.Dense, []int, error) {
	if len(periods) == 0 {
		return nil, nil, errors.New("cov: no periods")
	}

	_, nv := periods[0].Dims()
	counts := make([]int, len(periods))
	total := 0
	for t, p := range periods {
		ns, cols := p.Dims()
		if ns == 0 {
			return nil, nil, fmt.Errorf("cov: period %d has no samples", t)
		}
		if cols != nv {
			return nil, nil, fmt.Errorf("cov: period %d has %d variables, want %d", t, cols, nv)
		}
		counts[t] = ns
		total += ns
	}

	pooled := mat.NewDense(total, nv, nil)
	row := 0
	for _, p := range periods {
		ns, _ := p.Dims()
		pooled.Slice(row, row+ns, 0, nv).(*mat.Dense).Copy(p)
		row += ns
	}

	return pooled, counts, nil
}

// weightedCov computes sum_n w_n (x_n - mu)(x_n - mu)^T for weights
// normalized to unit sum. Only the upper triangle is accumulated; the
// result is exactly symmetric by construction.
func weightedCov(x *mat.Dense, weights []float64) *mat.SymDense {
	ns, nv := x.Dims()
	mean, _ := WeightedMoments(x, weights)

	data := make([]float64, nv*nv)
	centered := make([]float64, nv)
	for n := 0; n < ns; n++ {
		wn := weights[n]
		if wn == 0 {
			continue
		}
		row := x.RawRowView(n)
		floats.SubTo(centered, row, mean)
		for i := 0; i < nv; i++ {
			ci := wn * centered[i]
			for j := i; j < nv; j++ {
				data[i*nv+j] += ci * centered[j]
			}
		}
	}
	for i := 0; i < nv; i++ {
		for j := i + 1; j < nv; j++ {
			data[j*nv+i] = data[i*nv+j]
		}
	}

	return mat.NewSymDense(nv, data)
}

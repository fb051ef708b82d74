package corex

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CovarianceFrom derives the implied covariance matrix from a fitted
// parameter set: Sigma_std = L^T L + diag(noise) on the standardized scale,
// rescaled by the per-variable standardization scales unless normed is
// true. The result is symmetric and positive semi-definite by construction,
// with exactly unit diagonal in the normed case.
func CovarianceFrom(p *Params, normed bool) *mat.SymDense {
	nv, m := p.NVar, p.NHidden
	data := make([]float64, nv*nv)

	for i := 0; i < nv; i++ {
		for j := i; j < nv; j++ {
			s := 0.0
			for k := 0; k < m; k++ {
				s += p.Loadings[k*nv+i] * p.Loadings[k*nv+j]
			}
			if i == j {
				s += p.Noise[i]
			}
			if !normed {
				s *= p.Scale[i] * p.Scale[j]
			}
			data[i*nv+j] = s
			data[j*nv+i] = s
		}
	}

	return mat.NewSymDense(nv, data)
}

// ClustersFrom assigns each variable to the factor with the strongest
// absolute linkage. Ties resolve to the lowest factor index.
func ClustersFrom(p *Params) []int {
	nv, m := p.NVar, p.NHidden
	assign := make([]int, nv)

	for i := 0; i < nv; i++ {
		best, bestAbs := 0, math.Abs(p.Loadings[i])
		for j := 1; j < m; j++ {
			if av := math.Abs(p.Loadings[j*nv+i]); av > bestAbs {
				best, bestAbs = j, av
			}
		}
		assign[i] = best
	}

	return assign
}

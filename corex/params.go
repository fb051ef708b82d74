package corex

import "gonum.org/v1/gonum/mat"

// Params is the fitted parameter set for one time period.
//
// Weights are the raw optimization variables. Loadings are the
// moment-derived linkage strengths of each variable onto each factor on the
// standardized scale; together with Noise they define the implied
// covariance Sigma_std = L^T L + diag(Noise), which has unit diagonal and
// is positive semi-definite by construction. Mean and Scale hold the
// standardization moments used to map back to the original variable scale.
//
// All matrices are stored row-major with factors as rows: index [j*NVar+i]
// addresses factor j, variable i.
type Params struct {
	NHidden int
	NVar    int

	Weights  []float64 // NHidden x NVar raw weights
	Loadings []float64 // NHidden x NVar linkage strengths
	Noise    []float64 // NVar residual variances, standardized scale
	Mean     []float64 // NVar standardization offsets
	Scale    []float64 // NVar standardization scales
}

// Clone returns a deep copy. The coordinator hands parameters between
// period fits by value, so the receiving fit can never mutate the source.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	q := &Params{NHidden: p.NHidden, NVar: p.NVar}
	q.Weights = append([]float64(nil), p.Weights...)
	q.Loadings = append([]float64(nil), p.Loadings...)
	q.Noise = append([]float64(nil), p.Noise...)
	q.Mean = append([]float64(nil), p.Mean...)
	q.Scale = append([]float64(nil), p.Scale...)

	return q
}

// LoadingsMatrix returns the linkage strengths as an NHidden x NVar dense
// matrix (a copy).
func (p *Params) LoadingsMatrix() *mat.Dense {
	return mat.NewDense(p.NHidden, p.NVar, append([]float64(nil), p.Loadings...))
}

// WeightsMatrix returns the raw weights as an NHidden x NVar dense matrix
// (a copy).
func (p *Params) WeightsMatrix() *mat.Dense {
	return mat.NewDense(p.NHidden, p.NVar, append([]float64(nil), p.Weights...))
}

package tcorex

import (
	"gonum.org/v1/gonum/mat"

	"github.com/corexlab/tcorex/corex"
)

// ErrNotFitted is returned by queries on a model that has not been fitted.
var ErrNotFitted = corex.ErrNotFitted

// Hyperparams identifies one point in the model-selection grid.
type Hyperparams struct {
	NHidden int
	L1      float64
	Gamma   float64
}

// Model is the surface shared by the temporal estimator and the pooled
// baseline: fit a multi-period series, then read one covariance and one
// cluster assignment per period.
type Model interface {
	// Fit estimates the model from per-period sample matrices. All periods
	// must share the same variable count and have at least one sample.
	Fit(periods []*mat.Dense) error

	// Covariance returns one estimated covariance per period, in period
	// order. When normed is true the matrices are correlations with exactly
	// unit diagonal. ErrNotFitted before a successful Fit.
	Covariance(normed bool) ([]*mat.SymDense, error)

	// Clusters returns, per period, the latent factor index each variable
	// links to most strongly. ErrNotFitted before a successful Fit.
	Clusters() ([][]int, error)
}

var (
	_ Model = (*TCorex)(nil)
	_ Model = (*Pooled)(nil)
)

package tcorex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/corexlab/tcorex/corex"
	"github.com/corexlab/tcorex/cov"
	"github.com/corexlab/tcorex/syndata"
)

func genSeries(t *testing.T, cfg syndata.Config) *syndata.Series {
	t.Helper()

	s, err := syndata.Generate(cfg)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	_, err = New(2, WithL1(-0.1))
	require.Error(t, err)

	_, err = New(2, WithGamma(1.5))
	require.Error(t, err)

	_, err = New(2, WithGamma(-0.1))
	require.Error(t, err)

	_, err = New(2, WithMaxIter(0))
	require.Error(t, err)

	_, err = New(2, WithTol(0))
	require.Error(t, err)

	_, err = New(2, WithLearningRate(-1))
	require.Error(t, err)

	_, err = New(2, WithVerbose(5))
	require.Error(t, err)

	_, err = New(2, WithDevice(corex.Device(7)))
	require.Error(t, err)
}

func TestNotFittedQueries(t *testing.T) {
	m, err := New(2)
	require.NoError(t, err)

	_, err = m.Covariance(false)
	require.ErrorIs(t, err, ErrNotFitted)
	_, err = m.Clusters()
	require.ErrorIs(t, err, ErrNotFitted)
	_, err = m.Params()
	require.ErrorIs(t, err, ErrNotFitted)
	_, err = m.NumPeriods()
	require.ErrorIs(t, err, ErrNotFitted)
	_, err = m.History()
	require.ErrorIs(t, err, ErrNotFitted)
}

func TestFitValidation(t *testing.T) {
	m, err := New(2)
	require.NoError(t, err)

	require.Error(t, m.Fit(nil), "no periods")

	mismatched := []*mat.Dense{
		mat.NewDense(4, 3, nil),
		mat.NewDense(4, 5, nil),
	}
	require.Error(t, m.Fit(mismatched), "variable count mismatch")

	m, err = New(9)
	require.NoError(t, err)
	require.Error(t, m.Fit([]*mat.Dense{mat.NewDense(10, 4, nil)}),
		"more factors than variables")
}

func TestFitQueriesAndShapes(t *testing.T) {
	s := genSeries(t, syndata.Config{
		NVars: 8, NHidden: 2, NPeriods: 3, SamplesPerPeriod: 40, Seed: 11,
	})

	m, err := New(2, WithL1(0.2), WithGamma(0.5), WithSeed(1), WithMaxIter(200))
	require.NoError(t, err)
	require.NoError(t, m.Fit(s.Data))

	nt, err := m.NumPeriods()
	require.NoError(t, err)
	require.Equal(t, 3, nt)

	covs, err := m.Covariance(true)
	require.NoError(t, err)
	require.Len(t, covs, 3)
	for _, c := range covs {
		nv, _ := c.Dims()
		require.Equal(t, 8, nv)
		for i := 0; i < nv; i++ {
			require.InDelta(t, 1.0, c.At(i, i), 1e-12)
		}

		var eig mat.EigenSym
		require.True(t, eig.Factorize(c, false))
		for _, ev := range eig.Values(nil) {
			require.GreaterOrEqual(t, ev, -1e-10)
		}
	}

	clusters, err := m.Clusters()
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	for _, assign := range clusters {
		require.Len(t, assign, 8)
		for _, j := range assign {
			require.GreaterOrEqual(t, j, 0)
			require.Less(t, j, 2)
		}
	}

	params, err := m.Params()
	require.NoError(t, err)
	require.Len(t, params, 3)

	hist, err := m.History()
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for _, h := range hist {
		require.NotEmpty(t, h)
	}
}

func TestFitReproducible(t *testing.T) {
	s := genSeries(t, syndata.Config{
		NVars: 6, NHidden: 2, NPeriods: 3, SamplesPerPeriod: 30, Seed: 13,
	})

	fit := func() []*corex.Params {
		m, err := New(2, WithL1(0.1), WithSeed(5), WithMaxIter(150))
		require.NoError(t, err)
		require.NoError(t, m.Fit(s.Data))
		p, err := m.Params()
		require.NoError(t, err)
		return p
	}

	a, b := fit(), fit()
	for t2 := range a {
		require.Equal(t, a[t2].Weights, b[t2].Weights)
	}
}

// TestZeroL1MatchesIndependentFits checks that with the smoothing penalty
// off, the coordinator scores like independent per-period fits over the
// same temporally weighted samples. Warm starts change the optimization
// path, so the comparison is on held-out likelihood, not raw weights.
func TestZeroL1MatchesIndependentFits(t *testing.T) {
	const gamma = 0.5

	s := genSeries(t, syndata.Config{
		NVars: 8, NHidden: 2, NPeriods: 4, SamplesPerPeriod: 60, Seed: 17,
	})
	val := genSeries(t, syndata.Config{
		NVars: 8, NHidden: 2, NPeriods: 4, SamplesPerPeriod: 60, Seed: 18,
	})

	coord, err := New(2, WithL1(0), WithGamma(gamma), WithSeed(9))
	require.NoError(t, err)
	require.NoError(t, coord.Fit(s.Data))

	pooled, counts, err := cov.Concat(s.Data)
	require.NoError(t, err)

	indep := &TCorex{nHidden: 2, cfg: defaultConfig(), fitted: true}
	for period := range s.Data {
		weights, err := cov.SampleWeights(counts, period, gamma)
		require.NoError(t, err)

		fitter, err := corex.New(2, corex.WithSeed(9+uint64(period)))
		require.NoError(t, err)
		require.NoError(t, fitter.FitWeighted(pooled, weights))

		p, err := fitter.Params()
		require.NoError(t, err)
		indep.params = append(indep.params, p)
	}

	coordNLL, err := NLLScore(coord, val.Data)
	require.NoError(t, err)
	indepNLL, err := NLLScore(indep, val.Data)
	require.NoError(t, err)

	require.InDelta(t, indepNLL, coordNLL, 0.1*math.Abs(indepNLL))
}

// TestTemporalRegularizationHelps reproduces the headline use case: short
// periods, a structural change point, and temporal coupling beating
// independent per-period estimation on distance to ground truth.
func TestTemporalRegularizationHelps(t *testing.T) {
	s := genSeries(t, syndata.Config{
		NVars: 32, NHidden: 4, NPeriods: 10, SamplesPerPeriod: 16,
		ChangePoints: []int{5}, Seed: 21,
	})

	meanFrob := func(m Model) float64 {
		covs, err := m.Covariance(true)
		require.NoError(t, err)

		total := 0.0
		for period, c := range covs {
			nv, _ := c.Dims()
			diff := mat.NewDense(nv, nv, nil)
			diff.Sub(c, s.Covariances[period])
			total += mat.Norm(diff, 2)
		}
		return total / float64(len(covs))
	}

	regularized, err := New(4, WithL1(0.3), WithGamma(0.3), WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, regularized.Fit(s.Data))

	independent, err := New(4, WithL1(0), WithGamma(0), WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, independent.Fit(s.Data))

	require.Less(t, meanFrob(regularized), meanFrob(independent))

	// The estimates move smoothly within each regime, so the largest jump
	// between adjacent precision matrices lands on the injected change
	// point.
	covs, err := regularized.Covariance(true)
	require.NoError(t, err)
	precisions := make([]*mat.SymDense, len(covs))
	for period, c := range covs {
		chol, _, err := factorize(c)
		require.NoError(t, err)
		var prec mat.SymDense
		require.NoError(t, chol.InverseTo(&prec))
		precisions[period] = &prec
	}
	jumps := make([]float64, 0, len(precisions)-1)
	for period := 1; period < len(precisions); period++ {
		nv := precisions[period].SymmetricDim()
		diff := mat.NewDense(nv, nv, nil)
		diff.Sub(precisions[period], precisions[period-1])
		jumps = append(jumps, mat.Norm(diff, 2))
	}
	rest := 0.0
	for period, j := range jumps {
		if period != 4 {
			rest += j
		}
	}
	rest /= float64(len(jumps) - 1)
	require.Greater(t, jumps[4], rest, "jump at the change point should dominate")
}

func TestFailedFitKeepsPreviousState(t *testing.T) {
	s := genSeries(t, syndata.Config{
		NVars: 6, NHidden: 2, NPeriods: 2, SamplesPerPeriod: 30, Seed: 25,
	})

	m, err := New(2, WithSeed(1), WithMaxIter(100))
	require.NoError(t, err)
	require.NoError(t, m.Fit(s.Data))
	before, err := m.Covariance(false)
	require.NoError(t, err)

	bad := []*mat.Dense{mat.NewDense(4, 3, nil), mat.NewDense(4, 5, nil)}
	require.Error(t, m.Fit(bad))

	after, err := m.Covariance(false)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for t2 := range before {
		require.True(t, mat.Equal(before[t2], after[t2]))
	}
}

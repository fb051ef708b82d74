package cov

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomPeriods(rng *rand.Rand, nt, ns, nv int) []*mat.Dense {
	periods := make([]*mat.Dense, nt)
	for t := range periods {
		data := make([]float64, ns*nv)
		for i := range data {
			data[i] = rng.NormFloat64() + float64(t)*0.1
		}
		periods[t] = mat.NewDense(ns, nv, data)
	}
	return periods
}

func TestEmpiricalMatchesHandComputation(t *testing.T) {
	require := require.New(t)

	// Two variables, three samples with known population covariance.
	x := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 6,
		5, 10,
	})
	c, err := Empirical(x)
	require.NoError(err)

	// var(x1) = ((1-3)^2 + 0 + (5-3)^2)/3 = 8/3, and x2 = 2*x1.
	require.InDelta(8.0/3.0, c.At(0, 0), 1e-12)
	require.InDelta(16.0/3.0, c.At(0, 1), 1e-12)
	require.InDelta(32.0/3.0, c.At(1, 1), 1e-12)
}

func TestEmpiricalSymmetricPSD(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewPCG(7, 11))

	x := randomPeriods(rng, 1, 40, 6)[0]
	c, err := Empirical(x)
	require.NoError(err)
	requireSymmetricPSD(t, c)
}

func TestCorrelationUnitDiagonal(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewPCG(3, 5))

	x := randomPeriods(rng, 1, 50, 5)[0]
	c, err := Empirical(x)
	require.NoError(err)

	r := Correlation(c)
	for i := 0; i < 5; i++ {
		require.InDelta(1.0, r.At(i, i), 1e-12)
	}
	// Input must be untouched.
	require.NotEqual(1.0, c.At(0, 0))
}

func TestCorrelationMatchesHandComputation(t *testing.T) {
	require := require.New(t)

	c := mat.NewSymDense(2, []float64{
		4, 3,
		3, 9,
	})

	r := Correlation(c)
	require.InDelta(1.0, r.At(0, 0), 1e-12)
	require.InDelta(1.0, r.At(1, 1), 1e-12)
	// 3 / (sqrt(4) * sqrt(9)) = 0.5
	require.InDelta(0.5, r.At(0, 1), 1e-12)
	require.InDelta(0.5, r.At(1, 0), 1e-12)
}

func TestCorrelationConstantVariable(t *testing.T) {
	c := mat.NewSymDense(2, []float64{
		0, 0,
		0, 1,
	})

	r := Correlation(c)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			require.False(t, math.IsNaN(r.At(i, j)), "entry (%d,%d)", i, j)
			require.False(t, math.IsInf(r.At(i, j), 0), "entry (%d,%d)", i, j)
		}
	}
}

func TestWeightedMoments(t *testing.T) {
	require := require.New(t)

	x := mat.NewDense(2, 1, []float64{0, 10})
	mean, scale := WeightedMoments(x, []float64{0.8, 0.2})

	require.InDelta(2.0, mean[0], 1e-12)
	// var = 0.8*(0-2)^2 + 0.2*(10-2)^2 = 3.2 + 12.8 = 16
	require.InDelta(4.0, scale[0], 1e-12)
}

func TestWeightedMomentsConstantColumn(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{5, 5, 5})
	_, scale := WeightedMoments(x, []float64{1 / 3.0, 1 / 3.0, 1 / 3.0})
	require.Positive(t, scale[0])
}

func TestConcatShapeMismatch(t *testing.T) {
	periods := []*mat.Dense{
		mat.NewDense(3, 4, nil),
		mat.NewDense(3, 5, nil),
	}
	_, _, err := Concat(periods)
	require.ErrorContains(t, err, "period 1")
}

func TestConcatCountsAndOrder(t *testing.T) {
	require := require.New(t)

	a := mat.NewDense(2, 1, []float64{1, 2})
	b := mat.NewDense(3, 1, []float64{3, 4, 5})
	pooled, counts, err := Concat([]*mat.Dense{a, b})
	require.NoError(err)
	require.Equal([]int{2, 3}, counts)

	got := make([]float64, 5)
	for i := range got {
		got[i] = pooled.At(i, 0)
	}
	require.Equal([]float64{1, 2, 3, 4, 5}, got)
}

func requireSymmetricPSD(t *testing.T, c *mat.SymDense) {
	t.Helper()
	n := c.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.Abs(c.At(i, j)-c.At(j, i)) > 1e-10 {
				t.Fatalf("matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}

	var es mat.EigenSym
	if !es.Factorize(c, false) {
		t.Fatal("eigendecomposition failed")
	}
	for _, ev := range es.Values(nil) {
		if ev < -1e-8 {
			t.Fatalf("negative eigenvalue %v", ev)
		}
	}
}

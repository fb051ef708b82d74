package syndata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGenerateValidation(t *testing.T) {
	_, err := Generate(Config{NVars: 0, NHidden: 1, NPeriods: 1, SamplesPerPeriod: 1})
	require.Error(t, err)

	_, err = Generate(Config{NVars: 2, NHidden: 4, NPeriods: 1, SamplesPerPeriod: 1})
	require.Error(t, err)

	_, err = Generate(Config{NVars: 4, NHidden: 2, NPeriods: 3, SamplesPerPeriod: 5,
		ChangePoints: []int{3}})
	require.Error(t, err)

	_, err = Generate(Config{NVars: 4, NHidden: 2, NPeriods: 3, SamplesPerPeriod: 5, SNR: -1})
	require.Error(t, err)
}

func TestGenerateShapes(t *testing.T) {
	s, err := Generate(Config{
		NVars: 8, NHidden: 2, NPeriods: 4, SamplesPerPeriod: 16, Seed: 1,
	})
	require.NoError(t, err)

	require.Len(t, s.Data, 4)
	require.Len(t, s.Covariances, 4)
	require.Len(t, s.Assignments, 8)

	for _, d := range s.Data {
		ns, nv := d.Dims()
		require.Equal(t, 16, ns)
		require.Equal(t, 8, nv)
	}
	for _, a := range s.Assignments {
		require.GreaterOrEqual(t, a, 0)
		require.Less(t, a, 2)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := Config{NVars: 6, NHidden: 2, NPeriods: 3, SamplesPerPeriod: 10, Seed: 42}

	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)

	for t2 := range a.Data {
		require.True(t, mat.Equal(a.Data[t2], b.Data[t2]))
		require.True(t, mat.Equal(a.Covariances[t2], b.Covariances[t2]))
	}
}

func TestGenerateCovarianceStructure(t *testing.T) {
	s, err := Generate(Config{
		NVars: 6, NHidden: 2, NPeriods: 4, SamplesPerPeriod: 8,
		ChangePoints: []int{2}, Seed: 7,
	})
	require.NoError(t, err)

	for _, c := range s.Covariances {
		nv, _ := c.Dims()
		for i := 0; i < nv; i++ {
			require.Equal(t, 1.0, c.At(i, i))
			for j := i + 1; j < nv; j++ {
				cross := s.Assignments[i] != s.Assignments[j]
				if cross {
					require.Zero(t, c.At(i, j))
				} else {
					require.Greater(t, math.Abs(c.At(i, j)), 0.0)
				}
			}
		}

		var eig mat.EigenSym
		require.True(t, eig.Factorize(c, false))
		for _, ev := range eig.Values(nil) {
			require.GreaterOrEqual(t, ev, -1e-12)
		}
	}

	// Loadings persist between change points and differ across them.
	require.True(t, mat.Equal(s.Covariances[0], s.Covariances[1]))
	require.True(t, mat.Equal(s.Covariances[2], s.Covariances[3]))
	require.False(t, mat.Equal(s.Covariances[1], s.Covariances[2]))
}

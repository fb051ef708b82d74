// Package syndata generates synthetic time series with modular latent
// factor structure and known ground-truth covariances, for tests, examples
// and benchmarks.
package syndata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config describes one synthetic series. Variables split into NHidden
// contiguous blocks, each driven by its own latent factor. At every change
// point the factor loadings are redrawn, so the true covariance shifts
// abruptly while the block structure stays fixed.
type Config struct {
	NVars            int
	NHidden          int
	NPeriods         int
	SamplesPerPeriod int

	// SNR is the ratio of factor-explained variance to residual variance
	// per variable. Defaults to 5 when zero.
	SNR float64

	// ChangePoints lists period indices at which loadings are redrawn.
	ChangePoints []int

	Seed uint64
}

// Series is a generated dataset.
type Series struct {
	// Data holds one SamplesPerPeriod x NVars sample matrix per period.
	Data []*mat.Dense

	// Covariances holds the true covariance per period. Variables have unit
	// variance, so these are also correlation matrices.
	Covariances []*mat.SymDense

	// Assignments maps each variable to its driving factor.
	Assignments []int
}

// Generate draws a synthetic series. Identical configs yield identical
// output.
func Generate(cfg Config) (*Series, error) {
	if cfg.NVars <= 0 || cfg.NHidden <= 0 || cfg.NPeriods <= 0 || cfg.SamplesPerPeriod <= 0 {
		return nil, fmt.Errorf("syndata: non-positive dimension in config %+v", cfg)
	}
	if cfg.NHidden > cfg.NVars {
		return nil, fmt.Errorf("syndata: %d factors exceed %d variables", cfg.NHidden, cfg.NVars)
	}
	for _, cp := range cfg.ChangePoints {
		if cp <= 0 || cp >= cfg.NPeriods {
			return nil, fmt.Errorf("syndata: change point %d outside (0, %d)", cp, cfg.NPeriods)
		}
	}

	snr := cfg.SNR
	if snr == 0 {
		snr = 5
	}
	if snr < 0 {
		return nil, fmt.Errorf("syndata: negative snr %v", snr)
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x51ed2701)
	rng := rand.New(src)
	// Per-variable SNR jitter keeps loadings heterogeneous.
	jitter := distuv.Uniform{Min: 0.5, Max: 1.5, Src: src}

	assignments := make([]int, cfg.NVars)
	blockSize := cfg.NVars / cfg.NHidden
	for i := range assignments {
		j := i / blockSize
		if j >= cfg.NHidden {
			j = cfg.NHidden - 1
		}
		assignments[i] = j
	}

	drawLoadings := func() []float64 {
		b := make([]float64, cfg.NVars)
		for i := range b {
			s := snr * jitter.Rand()
			b[i] = math.Sqrt(s / (1 + s))
			if rng.Float64() < 0.5 {
				b[i] = -b[i]
			}
		}
		return b
	}

	s := &Series{Assignments: assignments}
	b := drawLoadings()
	for t := 0; t < cfg.NPeriods; t++ {
		if slices.Contains(cfg.ChangePoints, t) {
			b = drawLoadings()
		}

		s.Covariances = append(s.Covariances, trueCovariance(b, assignments))

		data := mat.NewDense(cfg.SamplesPerPeriod, cfg.NVars, nil)
		z := make([]float64, cfg.NHidden)
		for n := 0; n < cfg.SamplesPerPeriod; n++ {
			for j := range z {
				z[j] = rng.NormFloat64()
			}
			for i := 0; i < cfg.NVars; i++ {
				resid := math.Sqrt(1 - b[i]*b[i])
				data.Set(n, i, b[i]*z[assignments[i]]+resid*rng.NormFloat64())
			}
		}
		s.Data = append(s.Data, data)
	}

	return s, nil
}

func trueCovariance(b []float64, assignments []int) *mat.SymDense {
	nv := len(b)
	c := mat.NewSymDense(nv, nil)
	for i := 0; i < nv; i++ {
		c.SetSym(i, i, 1)
		for j := i + 1; j < nv; j++ {
			if assignments[i] == assignments[j] {
				c.SetSym(i, j, b[i]*b[j])
			}
		}
	}

	return c
}

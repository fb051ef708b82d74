package tcorex

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/corexlab/tcorex/corex"
	"github.com/corexlab/tcorex/cov"
	"github.com/corexlab/tcorex/internal/logging"
	"github.com/corexlab/tcorex/internal/options"
)

// TCorex estimates one covariance matrix per time period, coupling adjacent
// periods through temporally decayed sample weights, warm starts and an L1
// smoothing penalty on the factor weights.
type TCorex struct {
	nHidden int
	cfg     config
	logger  *zap.Logger

	fitted    bool
	params    []*corex.Params
	histories [][]float64
}

// New creates an unfitted temporal estimator with nHidden latent factors
// per period.
func New(nHidden int, opts ...Option) (*TCorex, error) {
	if nHidden <= 0 {
		return nil, fmt.Errorf("tcorex: latent factor count must be positive, got %d", nHidden)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &TCorex{
		nHidden: nHidden,
		cfg:     cfg,
		logger:  logging.New(cfg.verbose),
	}, nil
}

// NumHidden returns the latent factor count.
func (m *TCorex) NumHidden() int { return m.nHidden }

// Fit estimates the model from per-period sample matrices, fitting periods
// in increasing time order. The fit is all-or-nothing: the first failing
// period aborts with its period index in the error, and the model stays in
// its previous state.
func (m *TCorex) Fit(periods []*mat.Dense) error {
	pooled, counts, err := cov.Concat(periods)
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}
	_, nv := pooled.Dims()
	if m.nHidden > nv {
		return fmt.Errorf("tcorex: %d latent factors exceed %d observed variables", m.nHidden, nv)
	}

	nt := len(periods)
	m.logger.Info("fitting temporal model",
		zap.Int("periods", nt),
		zap.Int("variables", nv),
		zap.Int("factors", m.nHidden),
		zap.Float64("l1", m.cfg.l1),
		zap.Float64("gamma", m.cfg.gamma),
	)

	params := make([]*corex.Params, nt)
	histories := make([][]float64, nt)
	var prev *corex.Params
	for t := 0; t < nt; t++ {
		weights, err := cov.SampleWeights(counts, t, m.cfg.gamma)
		if err != nil {
			return fmt.Errorf("tcorex: period %d: %w", t, err)
		}

		copts := append([]corex.Option(nil), m.cfg.corexOpts...)
		if m.cfg.seeded {
			copts = append(copts, corex.WithSeed(m.cfg.seed+uint64(t)))
		}
		fitter, err := corex.New(m.nHidden, copts...)
		if err != nil {
			return fmt.Errorf("tcorex: period %d: %w", t, err)
		}

		var fopts []corex.FitOption
		if prev != nil {
			fopts = append(fopts, corex.WithWarmStart(prev))
			if m.cfg.l1 > 0 {
				fopts = append(fopts, corex.WithSmoothing(m.cfg.l1, prev))
			}
		}
		if err := fitter.FitWeighted(pooled, weights, fopts...); err != nil {
			return fmt.Errorf("tcorex: period %d: %w", t, err)
		}

		p, err := fitter.Params()
		if err != nil {
			return fmt.Errorf("tcorex: period %d: %w", t, err)
		}
		h, err := fitter.History()
		if err != nil {
			return fmt.Errorf("tcorex: period %d: %w", t, err)
		}
		params[t], histories[t] = p, h
		prev = p

		m.logger.Debug("period fitted",
			zap.Int("period", t),
			zap.Int("iterations", len(h)),
			zap.Float64("objective", h[len(h)-1]))
	}

	m.params = params
	m.histories = histories
	m.fitted = true
	m.logger.Info("temporal fit complete", zap.Int("periods", nt))

	return nil
}

// Covariance returns one implied covariance matrix per period, or implied
// correlation matrices when normed is true.
func (m *TCorex) Covariance(normed bool) ([]*mat.SymDense, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	covs := make([]*mat.SymDense, len(m.params))
	for t, p := range m.params {
		covs[t] = corex.CovarianceFrom(p, normed)
	}

	return covs, nil
}

// Clusters returns the per-period factor assignment of each variable.
func (m *TCorex) Clusters() ([][]int, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([][]int, len(m.params))
	for t, p := range m.params {
		out[t] = corex.ClustersFrom(p)
	}

	return out, nil
}

// Params returns a copy of each period's fitted parameter set.
func (m *TCorex) Params() ([]*corex.Params, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([]*corex.Params, len(m.params))
	for t, p := range m.params {
		out[t] = p.Clone()
	}

	return out, nil
}

// NumPeriods returns how many periods the model was fitted on.
func (m *TCorex) NumPeriods() (int, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}

	return len(m.params), nil
}

// History returns the per-period objective traces of the last fit.
func (m *TCorex) History() ([][]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([][]float64, len(m.histories))
	for t, h := range m.histories {
		out[t] = append([]float64(nil), h...)
	}

	return out, nil
}

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

// Pooled is the static baseline: one linear CorEx fit over the concatenated
// series, with the resulting covariance reported for every period. It
// ignores the temporal options (l1, gamma).
type Pooled struct {
	nHidden int
	cfg     config
	logger  *zap.Logger

	fitted  bool
	nt      int
	params  *corex.Params
	history []float64
}

// NewPooled creates an unfitted pooled estimator with nHidden latent
// factors.
func NewPooled(nHidden int, opts ...Option) (*Pooled, error) {
	if nHidden <= 0 {
		return nil, fmt.Errorf("tcorex: latent factor count must be positive, got %d", nHidden)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Pooled{
		nHidden: nHidden,
		cfg:     cfg,
		logger:  logging.New(cfg.verbose),
	}, nil
}

// NumHidden returns the latent factor count.
func (m *Pooled) NumHidden() int { return m.nHidden }

// Fit concatenates the periods and fits a single model to the pooled
// samples.
func (m *Pooled) Fit(periods []*mat.Dense) error {
	pooled, _, err := cov.Concat(periods)
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}

	ns, nv := pooled.Dims()
	m.logger.Info("fitting pooled model",
		zap.Int("periods", len(periods)),
		zap.Int("samples", ns),
		zap.Int("variables", nv),
		zap.Int("factors", m.nHidden),
	)

	copts := append([]corex.Option(nil), m.cfg.corexOpts...)
	if m.cfg.seeded {
		copts = append(copts, corex.WithSeed(m.cfg.seed))
	}
	fitter, err := corex.New(m.nHidden, copts...)
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}
	if err := fitter.Fit(pooled); err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}

	p, err := fitter.Params()
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}
	h, err := fitter.History()
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}

	m.params = p
	m.history = h
	m.nt = len(periods)
	m.fitted = true

	return nil
}

// Covariance returns the pooled estimate replicated once per period.
func (m *Pooled) Covariance(normed bool) ([]*mat.SymDense, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	covs := make([]*mat.SymDense, m.nt)
	for t := range covs {
		covs[t] = corex.CovarianceFrom(m.params, normed)
	}

	return covs, nil
}

// Clusters returns the pooled factor assignment replicated once per period.
func (m *Pooled) Clusters() ([][]int, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([][]int, m.nt)
	for t := range out {
		out[t] = corex.ClustersFrom(m.params)
	}

	return out, nil
}

// Params returns a copy of the single fitted parameter set.
func (m *Pooled) Params() (*corex.Params, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	return m.params.Clone(), nil
}

// NumPeriods returns how many periods the model was fitted on.
func (m *Pooled) NumPeriods() (int, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}

	return m.nt, nil
}

// History returns the objective trace of the last fit.
func (m *Pooled) History() ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	return append([]float64(nil), m.history...), nil
}

package tcorex

import (
	"fmt"

	"github.com/corexlab/tcorex/corex"
	"github.com/corexlab/tcorex/internal/options"
)

type config struct {
	l1      float64
	gamma   float64
	seed    uint64
	seeded  bool
	verbose int

	// per-period fitter options forwarded as-is
	corexOpts []corex.Option
}

func defaultConfig() config {
	return config{gamma: 0.5}
}

// Option configures a TCorex or Pooled estimator.
type Option = options.Option[*config]

// WithL1 sets the strength of the L1 penalty tying each period's weights to
// the previous period's. Zero disables temporal coupling, making the periods
// independent fits over the same weighted samples.
func WithL1(l1 float64) Option {
	return options.New(func(c *config) error {
		if l1 < 0 {
			return fmt.Errorf("tcorex: l1 must be non-negative, got %v", l1)
		}
		c.l1 = l1
		return nil
	})
}

// WithGamma sets the temporal decay of sample weights: samples from period
// t' contribute weight gamma^|t'-t| to period t's fit. Zero uses only the
// period's own samples; one pools the whole series uniformly. Default 0.5.
func WithGamma(gamma float64) Option {
	return options.New(func(c *config) error {
		if gamma < 0 || gamma > 1 {
			return fmt.Errorf("tcorex: gamma %v outside [0, 1]", gamma)
		}
		c.gamma = gamma
		return nil
	})
}

// WithMaxIter caps optimizer iterations per period fit.
func WithMaxIter(n int) Option {
	return options.New(func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("tcorex: max iterations must be positive, got %d", n)
		}
		c.corexOpts = append(c.corexOpts, corex.WithMaxIter(n))
		return nil
	})
}

// WithTol sets the per-period convergence tolerance.
func WithTol(tol float64) Option {
	return options.New(func(c *config) error {
		if tol <= 0 {
			return fmt.Errorf("tcorex: tolerance must be positive, got %v", tol)
		}
		c.corexOpts = append(c.corexOpts, corex.WithTol(tol))
		return nil
	})
}

// WithLearningRate sets the Adam step size of the period fits.
func WithLearningRate(lr float64) Option {
	return options.New(func(c *config) error {
		if lr <= 0 {
			return fmt.Errorf("tcorex: learning rate must be positive, got %v", lr)
		}
		c.corexOpts = append(c.corexOpts, corex.WithLearningRate(lr))
		return nil
	})
}

// WithAnneal enables or disables sample-noise annealing in the period fits.
func WithAnneal(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.corexOpts = append(c.corexOpts, corex.WithAnneal(enabled))
	})
}

// WithDevice records the execution target hint for the period fits.
func WithDevice(d corex.Device) Option {
	return options.New(func(c *config) error {
		if d > corex.DeviceAccelerator {
			return fmt.Errorf("tcorex: unknown device %d", uint8(d))
		}
		c.corexOpts = append(c.corexOpts, corex.WithDevice(d))
		return nil
	})
}

// WithSeed pins the random sources, making the whole multi-period fit
// reproducible. Each period derives its own stream from this seed.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *config) {
		c.seed = seed
		c.seeded = true
	})
}

// WithVerbose sets logging verbosity: 0 silent, 1 fit progress, 2 adds
// per-period optimization detail.
func WithVerbose(level int) Option {
	return options.New(func(c *config) error {
		if level < 0 || level > 2 {
			return fmt.Errorf("tcorex: verbose level %d outside [0, 2]", level)
		}
		c.verbose = level
		if level > 1 {
			c.corexOpts = append(c.corexOpts, corex.WithVerbose(level-1))
		}
		return nil
	})
}

package corex

import (
	"fmt"

	"github.com/corexlab/tcorex/internal/options"
)

// Device is an execution target hint. It never changes documented outputs;
// the current implementation runs everything on the CPU and records the
// hint for logging only.
type Device uint8

const (
	DeviceCPU Device = iota
	DeviceAccelerator
)

// String returns the device name.
func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

type config struct {
	maxIter int
	tol     float64
	lr      float64
	eta     float64
	beta    float64
	anneal  bool
	verbose int
	device  Device
	seed    uint64
	seeded  bool
}

func defaultConfig() config {
	return config{
		maxIter: 500,
		tol:     1e-5,
		lr:      0.05,
		eta:     1.0,
		beta:    0.1,
		anneal:  true,
	}
}

// Option configures a Corex fitter.
type Option = options.Option[*config]

// WithMaxIter caps the total number of optimizer iterations across the
// annealing schedule. Must be positive.
func WithMaxIter(n int) Option {
	return options.New(func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("corex: max iterations must be positive, got %d", n)
		}
		c.maxIter = n
		return nil
	})
}

// WithTol sets the relative objective-improvement threshold under which a
// fit is considered converged. Must be positive.
func WithTol(tol float64) Option {
	return options.New(func(c *config) error {
		if tol <= 0 {
			return fmt.Errorf("corex: tolerance must be positive, got %v", tol)
		}
		c.tol = tol
		return nil
	})
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return options.New(func(c *config) error {
		if lr <= 0 {
			return fmt.Errorf("corex: learning rate must be positive, got %v", lr)
		}
		c.lr = lr
		return nil
	})
}

// WithLatentNoise sets the standard deviation of the implicit latent noise
// that regularizes factor variances. Must be positive.
func WithLatentNoise(eta float64) Option {
	return options.New(func(c *config) error {
		if eta <= 0 {
			return fmt.Errorf("corex: latent noise must be positive, got %v", eta)
		}
		c.eta = eta
		return nil
	})
}

// WithModularPenalty sets the strength of the modular bias that discourages
// a variable from spreading linkage across several factors. Zero disables
// the penalty; negative values are rejected.
func WithModularPenalty(beta float64) Option {
	return options.New(func(c *config) error {
		if beta < 0 {
			return fmt.Errorf("corex: modular penalty must be non-negative, got %v", beta)
		}
		c.beta = beta
		return nil
	})
}

// WithAnneal enables or disables the sample-noise annealing schedule.
// Annealing is on by default; disabling it makes short fits cheaper at the
// cost of more local optima.
func WithAnneal(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.anneal = enabled
	})
}

// WithSeed pins the random source used for initialization and annealing
// noise, making fits reproducible.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *config) {
		c.seed = seed
		c.seeded = true
	})
}

// WithVerbose sets logging verbosity: 0 silent, 1 fit progress, 2 adds
// per-window optimization detail. Verbosity never changes fit results.
func WithVerbose(level int) Option {
	return options.New(func(c *config) error {
		if level < 0 || level > 2 {
			return fmt.Errorf("corex: verbose level %d outside [0, 2]", level)
		}
		c.verbose = level
		return nil
	})
}

// WithDevice records the execution target hint.
func WithDevice(d Device) Option {
	return options.New(func(c *config) error {
		if d > DeviceAccelerator {
			return fmt.Errorf("corex: unknown device %d", uint8(d))
		}
		c.device = d
		return nil
	})
}

type fitConfig struct {
	warm *Params
	l1   float64
	prev *Params
}

// FitOption configures a single Fit invocation.
type FitOption = options.Option[*fitConfig]

// WithWarmStart initializes the optimization from a previous parameter set
// instead of random weights. The parameters are deep-copied; the source is
// never mutated. A nil argument is ignored.
func WithWarmStart(p *Params) FitOption {
	return options.NoError(func(c *fitConfig) {
		c.warm = p.Clone()
	})
}

// WithSmoothing adds an L1 penalty of strength l1 on the difference between
// the weights being fit and prev's weights. The temporal coordinator uses
// this to tie adjacent periods together; l1 = 0 disables the penalty.
func WithSmoothing(l1 float64, prev *Params) FitOption {
	return options.New(func(c *fitConfig) error {
		if l1 < 0 {
			return fmt.Errorf("corex: smoothing strength must be non-negative, got %v", l1)
		}
		if l1 > 0 && prev == nil {
			return fmt.Errorf("corex: smoothing requires previous parameters")
		}
		c.l1 = l1
		c.prev = prev.Clone()
		return nil
	})
}

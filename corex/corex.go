package corex

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/corexlab/tcorex/cov"
	"github.com/corexlab/tcorex/internal/logging"
	"github.com/corexlab/tcorex/internal/options"
)

var (
	// ErrNotFitted is returned by queries on a model that has not been
	// fitted yet.
	ErrNotFitted = errors.New("corex: model is not fitted")

	// ErrDiverged is returned when the objective or its gradient becomes
	// non-finite during optimization.
	ErrDiverged = errors.New("corex: optimization diverged")
)

// annealSchedule holds the sample-noise levels the fit steps through.
// Larger noise early smooths the objective landscape; the final stage
// optimizes the clean objective.
var annealSchedule = []float64{0.6, 0.45, 0.3, 0.15, 0}

// convergenceWindow is the number of iterations averaged when checking for
// objective plateaus.
const convergenceWindow = 10

// Corex fits a linear CorEx model to one sample matrix.
//
// A value starts unfitted. Fit and FitWeighted transition it to the fitted
// state on success, replacing any earlier fit; queries return ErrNotFitted
// before the first successful fit.
type Corex struct {
	nHidden int
	cfg     config
	logger  *zap.Logger

	fitted  bool
	params  *Params
	history []float64
}

// New creates an unfitted model with nHidden latent factors.
func New(nHidden int, opts ...Option) (*Corex, error) {
	if nHidden <= 0 {
		return nil, fmt.Errorf("corex: latent factor count must be positive, got %d", nHidden)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Corex{
		nHidden: nHidden,
		cfg:     cfg,
		logger:  logging.New(cfg.verbose),
	}, nil
}

// NumHidden returns the latent factor count.
func (c *Corex) NumHidden() int { return c.nHidden }

// Fit fits the model to x (samples as rows, variables as columns) with
// uniform sample weights.
func (c *Corex) Fit(x mat.Matrix) error {
	ns, _ := x.Dims()
	if ns == 0 {
		return errors.New("corex: no samples")
	}

	w := make([]float64, ns)
	floats.AddConst(1/float64(ns), w)

	return c.FitWeighted(x, w)
}

// FitWeighted fits the model to x under the given per-sample weights. The
// temporal coordinator uses this entry point with decayed weights over the
// pooled series, a warm start from the previous period and a smoothing
// penalty against it.
func (c *Corex) FitWeighted(x mat.Matrix, weights []float64, opts ...FitOption) error {
	ns, nv := x.Dims()
	if ns == 0 || nv == 0 {
		return fmt.Errorf("corex: empty sample matrix (%d x %d)", ns, nv)
	}
	if c.nHidden > nv {
		return fmt.Errorf("corex: %d latent factors exceed %d observed variables", c.nHidden, nv)
	}
	if len(weights) != ns {
		return fmt.Errorf("corex: %d weights for %d samples", len(weights), ns)
	}

	var fc fitConfig
	if err := options.Apply(&fc, opts...); err != nil {
		return err
	}
	if fc.warm != nil && (fc.warm.NHidden != c.nHidden || fc.warm.NVar != nv) {
		return fmt.Errorf("corex: warm start shaped %d x %d, want %d x %d",
			fc.warm.NHidden, fc.warm.NVar, c.nHidden, nv)
	}
	if fc.prev != nil && (fc.prev.NHidden != c.nHidden || fc.prev.NVar != nv) {
		return fmt.Errorf("corex: smoothing reference shaped %d x %d, want %d x %d",
			fc.prev.NHidden, fc.prev.NVar, c.nHidden, nv)
	}

	sw, err := normalizeWeights(weights)
	if err != nil {
		return err
	}

	dense := mat.DenseCopyOf(x)
	mean, scale := cov.WeightedMoments(dense, sw)
	xs := standardize(dense, mean, scale)

	params, history, err := c.optimize(xs, sw, ns, nv, &fc)
	if err != nil {
		return err
	}
	params.Mean = mean
	params.Scale = scale

	c.params = params
	c.history = history
	c.fitted = true

	return nil
}

// optimize runs the annealed Adam loop and returns the fitted parameters
// (without standardization moments) and the per-iteration objective trace.
func (c *Corex) optimize(xs, sw []float64, ns, nv int, fc *fitConfig) (*Params, []float64, error) {
	m := c.nHidden
	rng := c.newRand()

	w := make([]float64, m*nv)
	if fc.warm != nil {
		copy(w, fc.warm.Weights)
	} else {
		initScale := 1 / math.Sqrt(float64(nv))
		for k := range w {
			w[k] = rng.NormFloat64() * initScale
		}
	}

	obj := newObjective(ns, nv, m, c.cfg.eta)
	defer obj.release()

	grad := make([]float64, m*nv)
	opt := newAdam(len(w), c.cfg.lr)

	schedule := annealSchedule
	if !c.cfg.anneal {
		schedule = []float64{0}
	}
	budget := c.cfg.maxIter / len(schedule)
	if budget < 1 {
		budget = 1
	}

	c.logger.Info("starting fit",
		zap.Int("samples", ns),
		zap.Int("variables", nv),
		zap.Int("factors", m),
		zap.Int("max_iter", c.cfg.maxIter),
		zap.Bool("warm_start", fc.warm != nil),
		zap.Float64("smoothing_l1", fc.l1),
		zap.String("device", c.cfg.device.String()),
	)

	var noisy []float64
	history := make([]float64, 0, c.cfg.maxIter)
	iter := 0
	for _, eps := range schedule {
		if iter >= c.cfg.maxIter {
			break
		}
		xcur := xs
		if eps > 0 {
			if noisy == nil {
				noisy = make([]float64, len(xs))
			}
			keep := math.Sqrt(1 - eps*eps)
			for k, v := range xs {
				noisy[k] = keep*v + eps*rng.NormFloat64()
			}
			xcur = noisy
		}

		stageStart := len(history)
		for k := 0; k < budget && iter < c.cfg.maxIter; k++ {
			val, err := obj.eval(xcur, sw, w, grad)
			if err != nil {
				return nil, nil, fmt.Errorf("corex: iteration %d: %w", iter, err)
			}
			val += modularPenalty(w, m, nv, c.cfg.beta, grad)
			if fc.l1 > 0 {
				val += smoothingPenalty(w, fc.prev.Weights, fc.l1, grad)
			}

			history = append(history, val)
			opt.step(w, grad)
			iter++

			if plateaued(history[stageStart:], c.cfg.tol) {
				c.logger.Debug("stage converged",
					zap.Float64("noise", eps),
					zap.Int("iteration", iter),
					zap.Float64("objective", val))
				break
			}
		}
	}

	// Final moment pass on the clean samples drives the readout.
	final := obj.forward(xs, sw, w)
	if !isFinite(final) {
		return nil, nil, fmt.Errorf("corex: final moments at iteration %d: %w", iter, ErrDiverged)
	}
	loadings, noise := obj.loadings(w)

	c.logger.Info("fit complete",
		zap.Int("iterations", iter),
		zap.Float64("objective", final))

	return &Params{
		NHidden:  m,
		NVar:     nv,
		Weights:  w,
		Loadings: loadings,
		Noise:    noise,
	}, history, nil
}

// Covariance returns the implied covariance matrix, or the implied
// correlation matrix (unit diagonal) when normed is true.
func (c *Corex) Covariance(normed bool) (*mat.SymDense, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}

	return CovarianceFrom(c.params, normed), nil
}

// Clusters assigns each observed variable to the latent factor it links to
// most strongly.
func (c *Corex) Clusters() ([]int, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}

	return ClustersFrom(c.params), nil
}

// Params returns a copy of the fitted parameter set.
func (c *Corex) Params() (*Params, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}

	return c.params.Clone(), nil
}

// History returns the per-iteration objective values of the last fit.
func (c *Corex) History() ([]float64, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}

	return append([]float64(nil), c.history...), nil
}

func (c *Corex) newRand() *rand.Rand {
	seed := c.cfg.seed
	if !c.cfg.seeded {
		seed = uint64(time.Now().UnixNano())
	}

	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// plateaued reports whether the windowed mean objective has stopped
// improving within the current annealing stage.
func plateaued(stage []float64, tol float64) bool {
	w := convergenceWindow
	if len(stage) < 2*w || len(stage)%w != 0 {
		return false
	}

	cur := floats.Sum(stage[len(stage)-w:]) / float64(w)
	prev := floats.Sum(stage[len(stage)-2*w:len(stage)-w]) / float64(w)

	return prev-cur < tol*math.Max(1, math.Abs(prev))
}

func normalizeWeights(weights []float64) ([]float64, error) {
	sw := append([]float64(nil), weights...)
	for n, v := range sw {
		if v < 0 || !isFinite(v) {
			return nil, fmt.Errorf("corex: invalid weight %v for sample %d", v, n)
		}
	}
	sum := floats.Sum(sw)
	if sum <= 0 {
		return nil, errors.New("corex: sample weights sum to zero")
	}
	floats.Scale(1/sum, sw)

	return sw, nil
}

func standardize(x *mat.Dense, mean, scale []float64) []float64 {
	ns, nv := x.Dims()
	xs := make([]float64, ns*nv)
	for n := 0; n < ns; n++ {
		row := x.RawRowView(n)
		out := xs[n*nv : (n+1)*nv]
		for i, v := range row {
			out[i] = (v - mean[i]) / scale[i]
		}
	}

	return xs
}

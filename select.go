package tcorex

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/corexlab/tcorex/internal/logging"
	"github.com/corexlab/tcorex/internal/options"
)

// Grid is the hyperparameter search space. NHidden must name at least one
// candidate; an empty L1 axis defaults to {0} and an empty Gamma axis to
// {0.5}.
type Grid struct {
	NHidden []int
	L1      []float64
	Gamma   []float64
}

// Candidate is the outcome of one grid point. A failed fit or score leaves
// Err set and the candidate excluded from selection.
type Candidate struct {
	Params Hyperparams
	Score  float64
	Err    error
}

// Scorer evaluates a fitted model against held-out periods. Lower is
// better.
type Scorer func(m Model, val []*mat.Dense) (float64, error)

// Factory builds the model fitted at one grid point. The default factory
// builds a TCorex.
type Factory func(hp Hyperparams) (Model, error)

// Selection is the result of a grid search.
type Selection struct {
	BestScore       float64
	BestParams      Hyperparams
	BestCovariances []*mat.SymDense
	BestModel       Model
	Results         []Candidate
}

type selectConfig struct {
	workers int
	scorer  Scorer
	factory Factory
	verbose int

	// forwarded to the default factory's models
	modelOpts []Option
}

// SelectOption configures a grid search.
type SelectOption = options.Option[*selectConfig]

// WithWorkers sets how many grid points are fitted concurrently. Defaults
// to GOMAXPROCS.
func WithWorkers(n int) SelectOption {
	return options.New(func(c *selectConfig) error {
		if n <= 0 {
			return fmt.Errorf("tcorex: worker count must be positive, got %d", n)
		}
		c.workers = n
		return nil
	})
}

// WithScorer replaces the default held-out NLL scorer.
func WithScorer(s Scorer) SelectOption {
	return options.New(func(c *selectConfig) error {
		if s == nil {
			return errors.New("tcorex: nil scorer")
		}
		c.scorer = s
		return nil
	})
}

// WithFactory replaces the default TCorex factory, letting the search run
// over other Model implementations.
func WithFactory(f Factory) SelectOption {
	return options.New(func(c *selectConfig) error {
		if f == nil {
			return errors.New("tcorex: nil factory")
		}
		c.factory = f
		return nil
	})
}

// WithSelectMaxIter caps optimizer iterations in each candidate fit.
func WithSelectMaxIter(n int) SelectOption {
	return options.New(func(c *selectConfig) error {
		if n <= 0 {
			return fmt.Errorf("tcorex: max iterations must be positive, got %d", n)
		}
		c.modelOpts = append(c.modelOpts, WithMaxIter(n))
		return nil
	})
}

// WithSelectSeed pins the random sources of every candidate fit.
func WithSelectSeed(seed uint64) SelectOption {
	return options.NoError(func(c *selectConfig) {
		c.modelOpts = append(c.modelOpts, WithSeed(seed))
	})
}

// WithSelectVerbose sets search logging verbosity.
func WithSelectVerbose(level int) SelectOption {
	return options.New(func(c *selectConfig) error {
		if level < 0 || level > 2 {
			return fmt.Errorf("tcorex: verbose level %d outside [0, 2]", level)
		}
		c.verbose = level
		return nil
	})
}

// Select fits every point of the grid on train, scores each fitted model on
// val, and returns the point with the lowest score. Candidates are
// enumerated deterministically (NHidden outer, then L1, then Gamma) and
// each writes only its own result slot, so Results order is reproducible
// regardless of worker count. Ties keep the earliest candidate.
func Select(train, val []*mat.Dense, grid Grid, opts ...SelectOption) (*Selection, error) {
	if len(train) == 0 {
		return nil, errors.New("tcorex: no training periods")
	}
	if len(val) != len(train) {
		return nil, fmt.Errorf("tcorex: %d validation periods for %d training periods",
			len(val), len(train))
	}
	_, nv := train[0].Dims()
	for t, p := range train {
		if _, cols := p.Dims(); cols != nv {
			return nil, fmt.Errorf("tcorex: training period %d has %d variables, want %d",
				t, cols, nv)
		}
	}
	for t, p := range val {
		if _, cols := p.Dims(); cols != nv {
			return nil, fmt.Errorf("tcorex: validation period %d has %d variables, want %d",
				t, cols, nv)
		}
	}
	if len(grid.NHidden) == 0 {
		return nil, errors.New("tcorex: grid needs at least one latent factor count")
	}
	for _, m := range grid.NHidden {
		if m <= 0 {
			return nil, fmt.Errorf("tcorex: grid latent factor count must be positive, got %d", m)
		}
	}

	cfg := selectConfig{
		workers: runtime.GOMAXPROCS(0),
		scorer:  NLLScore,
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.factory == nil {
		cfg.factory = func(hp Hyperparams) (Model, error) {
			mopts := append([]Option{WithL1(hp.L1), WithGamma(hp.Gamma)}, cfg.modelOpts...)
			return New(hp.NHidden, mopts...)
		}
	}

	l1s := grid.L1
	if len(l1s) == 0 {
		l1s = []float64{0}
	}
	gammas := grid.Gamma
	if len(gammas) == 0 {
		gammas = []float64{0.5}
	}

	var candidates []Hyperparams
	for _, m := range grid.NHidden {
		for _, l1 := range l1s {
			for _, g := range gammas {
				candidates = append(candidates, Hyperparams{NHidden: m, L1: l1, Gamma: g})
			}
		}
	}

	logger := logging.New(cfg.verbose)
	logger.Info("grid search",
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", cfg.workers))

	results := make([]Candidate, len(candidates))
	models := make([]Model, len(candidates))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				hp := candidates[k]
				results[k] = Candidate{Params: hp, Score: math.Inf(1)}

				model, err := cfg.factory(hp)
				if err == nil {
					err = model.Fit(train)
				}
				var score float64
				if err == nil {
					score, err = cfg.scorer(model, val)
				}
				if err != nil {
					results[k].Err = err
					logger.Debug("candidate failed",
						zap.Int("factors", hp.NHidden),
						zap.Float64("l1", hp.L1),
						zap.Float64("gamma", hp.Gamma),
						zap.Error(err))
					continue
				}

				results[k].Score = score
				models[k] = model
				logger.Debug("candidate scored",
					zap.Int("factors", hp.NHidden),
					zap.Float64("l1", hp.L1),
					zap.Float64("gamma", hp.Gamma),
					zap.Float64("score", score))
			}
		}()
	}
	for k := range candidates {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	best := -1
	for k, r := range results {
		if r.Err != nil {
			continue
		}
		if best < 0 || r.Score < results[best].Score {
			best = k
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("tcorex: all %d grid points failed, first: %w",
			len(results), results[0].Err)
	}

	covs, err := models[best].Covariance(false)
	if err != nil {
		return nil, fmt.Errorf("tcorex: best model readout: %w", err)
	}

	logger.Info("grid search complete",
		zap.Int("factors", results[best].Params.NHidden),
		zap.Float64("l1", results[best].Params.L1),
		zap.Float64("gamma", results[best].Params.Gamma),
		zap.Float64("score", results[best].Score))

	return &Selection{
		BestScore:       results[best].Score,
		BestParams:      results[best].Params,
		BestCovariances: covs,
		BestModel:       models[best],
		Results:         results,
	}, nil
}

// NLLScore is the default scorer: the average Gaussian negative
// log-likelihood of the held-out samples under the per-period estimated
// covariances. Each validation period is centered by its own mean. Lower is
// better.
func NLLScore(m Model, val []*mat.Dense) (float64, error) {
	covs, err := m.Covariance(false)
	if err != nil {
		return 0, err
	}
	if len(covs) != len(val) {
		return 0, fmt.Errorf("tcorex: %d covariances for %d validation periods",
			len(covs), len(val))
	}

	total, count := 0.0, 0
	for t, x := range val {
		ns, nv := x.Dims()
		if ns == 0 {
			continue
		}
		if cn, _ := covs[t].Dims(); cn != nv {
			return 0, fmt.Errorf("tcorex: period %d: %d variables, covariance is %d x %d",
				t, nv, cn, cn)
		}

		chol, logDet, err := factorize(covs[t])
		if err != nil {
			return 0, fmt.Errorf("tcorex: period %d: %w", t, err)
		}

		mean := make([]float64, nv)
		for n := 0; n < ns; n++ {
			row := x.RawRowView(n)
			for i, v := range row {
				mean[i] += v / float64(ns)
			}
		}

		centered := mat.NewVecDense(nv, nil)
		solved := mat.NewVecDense(nv, nil)
		base := logDet + float64(nv)*math.Log(2*math.Pi)
		for n := 0; n < ns; n++ {
			row := x.RawRowView(n)
			for i, v := range row {
				centered.SetVec(i, v-mean[i])
			}
			if err := chol.SolveVecTo(solved, centered); err != nil {
				return 0, fmt.Errorf("tcorex: period %d: %w", t, err)
			}
			total += 0.5 * (base + mat.Dot(centered, solved))
			count++
		}
	}
	if count == 0 {
		return 0, errors.New("tcorex: no validation samples")
	}

	return total / float64(count), nil
}

// factorize Cholesky-factorizes a covariance, adding escalating diagonal
// jitter when the matrix is only semi-definite numerically.
func factorize(c *mat.SymDense) (*mat.Cholesky, float64, error) {
	var chol mat.Cholesky
	if chol.Factorize(c) {
		return &chol, chol.LogDet(), nil
	}

	n, _ := c.Dims()
	jitter := 1e-8
	for attempt := 0; attempt < 4; attempt++ {
		damped := mat.NewSymDense(n, nil)
		damped.CopySym(c)
		for i := 0; i < n; i++ {
			damped.SetSym(i, i, damped.At(i, i)+jitter)
		}
		if chol.Factorize(damped) {
			return &chol, chol.LogDet(), nil
		}
		jitter *= 100
	}

	return nil, 0, errors.New("covariance is not positive definite")
}

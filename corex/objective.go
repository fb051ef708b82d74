package corex

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/corexlab/tcorex/internal/pool"
)

const (
	// clampEps keeps factor-variable correlations strictly inside (-1, 1).
	clampEps = 1e-6
	// logEps floors the arguments of logarithms in the objective.
	logEps = 1e-8
	// noiseFloor is the minimum residual variance in the covariance readout.
	noiseFloor = 1e-3
)

// objective evaluates the linear CorEx objective and its gradient for one
// period. With weighted sample expectations E_w, standardized samples x and
// latent projections z_j = w_j . x, the objective is
//
//	0.5 * sum_i log E_w[(x_i - E[x_i|z])^2] + 0.5 * sum_j log E_w[z_j^2]
//
// where the conditional expectation assumes the modular (single-parent)
// structure the model is biased toward. The gradient is a hand-written
// reverse-mode pass over the forward computation; both passes cost
// O(ns * nv * m).
//
// All buffers are reused across iterations of one fit; the large
// sample-sized ones come from the shared slice pool and are returned by
// release.
type objective struct {
	ns, nv, m int
	eta       float64

	// sample-sized buffers (pooled)
	z, gz    []float64 // ns x m: latent projections and their gradient
	mbuf, gm []float64 // ns x nv: conditional means and gradient scratch
	ebuf     []float64 // ns x nv: residuals

	// factor x variable buffers
	gmat, rmat, qmat, pmat []float64 // covariances, correlations, derived
	gpmat, ggmat           []float64 // gradient scratch
	clamped                []bool

	// per-factor and per-variable buffers
	s, u, gu, gs     []float64
	ri, ai, gai, gri []float64
	di, gdi          []float64

	cleanups []func()
}

func newObjective(ns, nv, m int, eta float64) *objective {
	o := &objective{ns: ns, nv: nv, m: m, eta: eta}

	grab := func(size int) []float64 {
		buf, done := pool.GetFloat64Slice(size)
		o.cleanups = append(o.cleanups, done)
		return buf
	}

	o.z = grab(ns * m)
	o.gz = grab(ns * m)
	o.mbuf = grab(ns * nv)
	o.gm = grab(ns * nv)
	o.ebuf = grab(ns * nv)

	o.gmat = make([]float64, m*nv)
	o.rmat = make([]float64, m*nv)
	o.qmat = make([]float64, m*nv)
	o.pmat = make([]float64, m*nv)
	o.gpmat = make([]float64, m*nv)
	o.ggmat = make([]float64, m*nv)
	o.clamped = make([]bool, m*nv)

	o.s = make([]float64, m)
	o.u = make([]float64, m)
	o.gu = make([]float64, m)
	o.gs = make([]float64, m)

	o.ri = make([]float64, nv)
	o.ai = make([]float64, nv)
	o.gai = make([]float64, nv)
	o.gri = make([]float64, nv)
	o.di = make([]float64, nv)
	o.gdi = make([]float64, nv)

	return o
}

// release returns the pooled buffers. The objective must not be used after.
func (o *objective) release() {
	for _, done := range o.cleanups {
		done()
	}
	o.cleanups = nil
}

// eval computes the objective at weights w given standardized samples xs
// (row-major ns x nv) and sample weights sw (unit sum), and writes the
// gradient into grad (m x nv, overwritten). It fails if the objective or
// any gradient entry is non-finite.
func (o *objective) eval(xs, sw, w []float64, grad []float64) (float64, error) {
	obj := o.forward(xs, sw, w)
	if !isFinite(obj) {
		return 0, fmt.Errorf("non-finite objective: %w", ErrDiverged)
	}

	o.backward(xs, sw, grad)
	for _, g := range grad {
		if !isFinite(g) {
			return 0, fmt.Errorf("non-finite gradient: %w", ErrDiverged)
		}
	}

	return obj, nil
}

func (o *objective) forward(xs, sw, w []float64) float64 {
	ns, nv, m := o.ns, o.nv, o.m

	// z = x W^T
	for n := 0; n < ns; n++ {
		xrow := xs[n*nv : (n+1)*nv]
		zrow := o.z[n*m : (n+1)*m]
		for j := 0; j < m; j++ {
			zrow[j] = floats.Dot(w[j*nv:(j+1)*nv], xrow)
		}
	}

	// factor second moments s_j = E_w[z_j^2] + eta^2 and
	// factor-variable covariances G_ji = E_w[z_j x_i]
	for j := 0; j < m; j++ {
		o.s[j] = o.eta * o.eta
	}
	clear(o.gmat)
	for n := 0; n < ns; n++ {
		wn := sw[n]
		if wn == 0 {
			continue
		}
		xrow := xs[n*nv : (n+1)*nv]
		zrow := o.z[n*m : (n+1)*m]
		for j := 0; j < m; j++ {
			zv := zrow[j]
			o.s[j] += wn * zv * zv
			floats.AddScaled(o.gmat[j*nv:(j+1)*nv], wn*zv, xrow)
		}
	}
	for j := 0; j < m; j++ {
		o.u[j] = 1 / math.Sqrt(o.s[j])
	}

	// correlations R_ji = G_ji / sqrt(s_j), clamped inside (-1, 1), and the
	// derived quantities Q = R/(1-R^2), r_i = sum_j R*Q, a_i = 1/(1+r_i).
	clear(o.ri)
	for j := 0; j < m; j++ {
		uj := o.u[j]
		for i := 0; i < nv; i++ {
			k := j*nv + i
			rv := uj * o.gmat[k]
			cl := false
			if rv > 1-clampEps {
				rv, cl = 1-clampEps, true
			} else if rv < -(1 - clampEps) {
				rv, cl = -(1 - clampEps), true
			}
			tv := 1 - rv*rv
			qv := rv / tv
			o.rmat[k] = rv
			o.clamped[k] = cl
			o.qmat[k] = qv
			o.pmat[k] = qv * uj
			o.ri[i] += rv * qv
		}
	}
	for i := 0; i < nv; i++ {
		o.ai[i] = 1 / (1 + o.ri[i])
	}

	// conditional means, residuals and residual variances d_i
	clear(o.di)
	for n := 0; n < ns; n++ {
		wn := sw[n]
		xrow := xs[n*nv : (n+1)*nv]
		zrow := o.z[n*m : (n+1)*m]
		mrow := o.mbuf[n*nv : (n+1)*nv]
		erow := o.ebuf[n*nv : (n+1)*nv]
		clear(mrow)
		for j := 0; j < m; j++ {
			floats.AddScaled(mrow, zrow[j], o.pmat[j*nv:(j+1)*nv])
		}
		for i := 0; i < nv; i++ {
			ev := xrow[i] - o.ai[i]*mrow[i]
			erow[i] = ev
			o.di[i] += wn * ev * ev
		}
	}

	obj := 0.0
	for i := 0; i < nv; i++ {
		dv := o.di[i]
		if dv < logEps {
			dv = logEps
			o.gdi[i] = 0
		} else {
			o.gdi[i] = 0.5 / dv
		}
		obj += 0.5 * math.Log(dv)
	}
	for j := 0; j < m; j++ {
		obj += 0.5 * math.Log(o.s[j])
	}

	return obj
}

// backward assumes forward has just run and accumulates d(obj)/d(weights)
// into grad, overwriting it.
func (o *objective) backward(xs, sw []float64, grad []float64) {
	ns, nv, m := o.ns, o.nv, o.m

	// residual path: gE -> gM, ga
	clear(o.gai)
	for n := 0; n < ns; n++ {
		wn := sw[n]
		mrow := o.mbuf[n*nv : (n+1)*nv]
		erow := o.ebuf[n*nv : (n+1)*nv]
		gmrow := o.gm[n*nv : (n+1)*nv]
		for i := 0; i < nv; i++ {
			ge := o.gdi[i] * 2 * wn * erow[i]
			o.gai[i] -= ge * mrow[i]
			gmrow[i] = -o.ai[i] * ge
		}
	}

	// gZ = gM P^T
	for n := 0; n < ns; n++ {
		gmrow := o.gm[n*nv : (n+1)*nv]
		gzrow := o.gz[n*m : (n+1)*m]
		for j := 0; j < m; j++ {
			gzrow[j] = floats.Dot(gmrow, o.pmat[j*nv:(j+1)*nv])
		}
	}

	// gP = Z^T gM
	clear(o.gpmat)
	for n := 0; n < ns; n++ {
		zrow := o.z[n*m : (n+1)*m]
		gmrow := o.gm[n*nv : (n+1)*nv]
		for j := 0; j < m; j++ {
			floats.AddScaled(o.gpmat[j*nv:(j+1)*nv], zrow[j], gmrow)
		}
	}

	// through P = Q*u, r_i and the clamped correlations back to G and u
	for i := 0; i < nv; i++ {
		o.gri[i] = -o.ai[i] * o.ai[i] * o.gai[i]
	}
	for j := 0; j < m; j++ {
		uj := o.u[j]
		guj := 0.0
		for i := 0; i < nv; i++ {
			k := j*nv + i
			guj += o.gpmat[k] * o.qmat[k]
			var gr float64
			if !o.clamped[k] {
				rv := o.rmat[k]
				tv := 1 - rv*rv
				gq := o.gpmat[k] * uj
				gr = gq*(1+rv*rv)/(tv*tv) + o.gri[i]*2*rv/(tv*tv)
			}
			o.ggmat[k] = gr * uj
			guj += gr * o.gmat[k]
		}
		o.gu[j] = guj
		o.gs[j] = -0.5*uj*uj*uj*guj + 0.5/o.s[j]
	}

	// gZ += w_n * (2 z gs + gG x) per sample
	for n := 0; n < ns; n++ {
		wn := sw[n]
		if wn == 0 {
			continue
		}
		xrow := xs[n*nv : (n+1)*nv]
		zrow := o.z[n*m : (n+1)*m]
		gzrow := o.gz[n*m : (n+1)*m]
		for j := 0; j < m; j++ {
			acc := floats.Dot(o.ggmat[j*nv:(j+1)*nv], xrow)
			gzrow[j] += wn * (2*zrow[j]*o.gs[j] + acc)
		}
	}

	// gW = gZ^T x
	clear(grad)
	for n := 0; n < ns; n++ {
		xrow := xs[n*nv : (n+1)*nv]
		gzrow := o.gz[n*m : (n+1)*m]
		for j := 0; j < m; j++ {
			if gzrow[j] != 0 {
				floats.AddScaled(grad[j*nv:(j+1)*nv], gzrow[j], xrow)
			}
		}
	}
}

// loadings derives the linkage strengths and residual variances implied by
// the weights at the end of a fit. It must be called right after a forward
// pass on the clean (un-annealed) samples. Column norms are capped so the
// implied correlation matrix keeps a strictly positive residual diagonal.
func (o *objective) loadings(w []float64) (loadings, noise []float64) {
	nv, m := o.nv, o.m
	loadings = make([]float64, m*nv)
	noise = make([]float64, nv)

	for i := 0; i < nv; i++ {
		norm2 := 0.0
		for j := 0; j < m; j++ {
			b := o.ai[i] * o.qmat[j*nv+i]
			loadings[j*nv+i] = b
			norm2 += b * b
		}
		if norm2 > 1-noiseFloor {
			scale := math.Sqrt((1 - noiseFloor) / norm2)
			for j := 0; j < m; j++ {
				loadings[j*nv+i] *= scale
			}
			norm2 = 1 - noiseFloor
		}
		noise[i] = 1 - norm2
	}

	return loadings, noise
}

// modularPenalty adds the modular bias to the objective: for each variable
// it penalizes all linkage weight mass outside the dominant factor. The
// subgradient on each variable's dominant entry is zero.
func modularPenalty(w []float64, m, nv int, beta float64, grad []float64) float64 {
	if beta == 0 {
		return 0
	}

	pen := 0.0
	for i := 0; i < nv; i++ {
		best, bestAbs := 0, -1.0
		sum := 0.0
		for j := 0; j < m; j++ {
			av := math.Abs(w[j*nv+i])
			sum += av
			if av > bestAbs {
				best, bestAbs = j, av
			}
		}
		pen += sum - bestAbs
		for j := 0; j < m; j++ {
			if j != best {
				grad[j*nv+i] += beta * sign(w[j*nv+i])
			}
		}
	}

	return beta * pen
}

// smoothingPenalty adds the temporal coupling term: an L1 penalty on the
// difference between the weights being fit and the previous period's fixed
// weights.
func smoothingPenalty(w, prev []float64, l1 float64, grad []float64) float64 {
	if l1 == 0 {
		return 0
	}

	pen := 0.0
	for k := range w {
		d := w[k] - prev[k]
		pen += math.Abs(d)
		grad[k] += l1 * sign(d)
	}

	return l1 * pen
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

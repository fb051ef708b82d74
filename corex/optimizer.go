package corex

import "math"

// adam is a standard Adam optimizer: momentum plus a per-parameter adaptive
// learning rate, with bias-corrected moment estimates.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t int
	m []float64
	v []float64
}

func newAdam(n int, lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

// step applies one update to params in place given the current gradient.
func (a *adam) step(params, grad []float64) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for k, g := range grad {
		a.m[k] = a.beta1*a.m[k] + (1-a.beta1)*g
		a.v[k] = a.beta2*a.v[k] + (1-a.beta2)*g*g
		mhat := a.m[k] / bc1
		vhat := a.v[k] / bc2
		params[k] -= a.lr * mhat / (math.Sqrt(vhat) + a.eps)
	}
}

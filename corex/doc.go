// Package corex fits linear CorEx latent factor models to a single sample
// matrix (or a weighted view of a pooled series).
//
// The model explains pairwise correlation among nv observed variables with
// m latent factors: each standardized variable is a linear combination of
// the factors plus independent noise. Fitting minimizes the residual
// dependence not captured by the latent layer, biased toward modular
// solutions where each variable loads strongly on at most one factor.
//
// # Basic Usage
//
//	c, err := corex.New(4, corex.WithMaxIter(500), corex.WithSeed(42))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Fit(x); err != nil {
//	    log.Fatal(err)
//	}
//	sigma, _ := c.Covariance(false) // implied covariance matrix
//	groups, _ := c.Clusters()       // variable -> factor assignment
//
// A Corex value starts unfitted; queries return ErrNotFitted until a Fit
// call succeeds. Fitting uses randomized initialization, so repeated fits
// may converge to different local optima unless a seed is pinned with
// WithSeed.
package corex

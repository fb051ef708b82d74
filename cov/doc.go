// Package cov estimates empirical and temporally weighted covariance
// matrices over per-period sample matrices.
//
// Samples are rows of a *mat.Dense; variables are columns. All estimators
// use the population convention: moments are weighted averages about the
// weighted mean, with weights normalized to unit sum. Under that convention
// Weighted with gamma = 0 reduces exactly to Empirical on the target
// period's own samples, and gamma = 1 reduces exactly to Empirical on the
// pooled series.
package cov

// Package tcorex estimates time-varying covariance matrices for short,
// high-dimensional time series using temporal correlation explanation.
//
// The model assumes a small number of latent factors explain the
// correlations among observed variables. Each time period gets its own
// linear CorEx fit over temporally weighted samples, warm-started from the
// previous period and tied to it by an L1 smoothing penalty, so estimates
// vary smoothly over time while still tracking structural change.
//
// TCorex is the temporal estimator; Pooled is the static baseline that fits
// one model to the whole series. Both satisfy Model and can be saved to and
// loaded from disk. Select tunes hyperparameters against held-out data.
//
// Basic use:
//
//	model, err := tcorex.New(8, tcorex.WithL1(0.3), tcorex.WithGamma(0.4))
//	if err != nil {
//		return err
//	}
//	if err := model.Fit(periods); err != nil {
//		return err
//	}
//	covs, err := model.Covariance(false)
package tcorex

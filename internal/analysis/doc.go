// Package analysis post-processes recorded estimator runs.
//
//   - [TrackingErrors]: per-sample angle and speed error
//   - [Summarize]: mean, standard deviation and worst case after settling
//   - [SettleIndex]: first sample from which the error stays in a band
//   - [ErrorSpectrum]: power spectrum of the angle error, which shows
//     whether the residual error is a DC offset, a ripple at the electrical
//     frequency or broadband noise
//   - [FluxLocus]: the observed flux trajectory in the alpha-beta plane
//
// Everything works on []sim.Sample so it applies equally to a live run and
// to one loaded back from storage.
package analysis

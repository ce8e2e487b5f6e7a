package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/san-kum/sensorless/internal/sim"
)

type SpectrumBin struct {
	Freq  float64 `json:"freq"`  // [Hz]
	Power float64 `json:"power"` // [rad^2]
}

// PowerSpectrum returns the one-sided power spectrum of x sampled every
// period seconds, after removing the mean and applying a Hann window. The
// DC bin therefore only carries window leakage.
func PowerSpectrum(x []float64, period float64) []SpectrumBin {
	n := len(x)
	if n < 2 || period <= 0 {
		return nil
	}

	data := make([]float64, n)
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)
	for i, v := range x {
		data[i] = v - mean
	}
	window.Apply(data, window.Hann)

	coeffs := fft.FFTReal(data)
	bins := make([]SpectrumBin, n/2+1)
	df := 1 / (float64(n) * period)
	for k := range bins {
		mag := cmplx.Abs(coeffs[k]) / float64(n)
		power := mag * mag
		if k != 0 && k != n/2 {
			power *= 2
		}
		bins[k] = SpectrumBin{Freq: float64(k) * df, Power: power}
	}
	return bins
}

// ErrorSpectrum is the power spectrum of the angle error for T >= settle.
func ErrorSpectrum(samples []sim.Sample, period, settle float64) []SpectrumBin {
	errs := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.T >= settle {
			errs = append(errs, s.PositionError())
		}
	}
	return PowerSpectrum(errs, period)
}

// Peak returns the strongest non-DC bin.
func Peak(bins []SpectrumBin) SpectrumBin {
	var best SpectrumBin
	for _, b := range bins[min(1, len(bins)):] {
		if b.Power > best.Power {
			best = b
		}
	}
	return best
}

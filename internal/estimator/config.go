package estimator

import (
	"fmt"
	"math"
)

const (
	DefaultSamplePeriod    = 1.0 / 8000.0 // [s]
	DefaultPLLBandwidth    = 1000.0       // [rad/s]
	DefaultPMFluxLinkage   = 1.58e-3      // [Wb] == [V/(rad/s)]
	DefaultObserverGain    = 1000.0       // [rad/s]
	DefaultPhaseResistance = 0.05         // [ohm]
	DefaultPhaseInductance = 20e-6        // [H]
)

// Config holds the motor and tuning constants the estimator reads every
// tick. It is owned by the caller and never modified by the estimator.
type Config struct {
	SamplePeriod    float64 `yaml:"sample_period" json:"sample_period"`
	PLLBandwidth    float64 `yaml:"pll_bandwidth" json:"pll_bandwidth"`
	PMFluxLinkage   float64 `yaml:"pm_flux_linkage" json:"pm_flux_linkage"`
	ObserverGain    float64 `yaml:"observer_gain" json:"observer_gain"`
	PhaseResistance float64 `yaml:"phase_resistance" json:"phase_resistance"`
	PhaseInductance float64 `yaml:"phase_inductance" json:"phase_inductance"`
}

func DefaultConfig() Config {
	return Config{
		SamplePeriod:    DefaultSamplePeriod,
		PLLBandwidth:    DefaultPLLBandwidth,
		PMFluxLinkage:   DefaultPMFluxLinkage,
		ObserverGain:    DefaultObserverGain,
		PhaseResistance: DefaultPhaseResistance,
		PhaseInductance: DefaultPhaseInductance,
	}
}

// Validate rejects parameters that make the model meaningless. It does not
// check SamplePeriod*Kp; that is a per-tick precondition of Update.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"sample_period", c.SamplePeriod},
		{"pll_bandwidth", c.PLLBandwidth},
		{"pm_flux_linkage", c.PMFluxLinkage},
		{"phase_inductance", c.PhaseInductance},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %g", ErrInvalidConfig, p.name, p.value)
		}
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"observer_gain", c.ObserverGain},
		{"phase_resistance", c.PhaseResistance},
	}
	for _, p := range nonNegative {
		if !(p.value >= 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s must be non-negative and finite, got %g", ErrInvalidConfig, p.name, p.value)
		}
	}

	return nil
}

// Gains are the PLL feedback gains.
type Gains struct {
	Kp float64 `json:"kp"` // [rad/s]
	Ki float64 `json:"ki"` // [(rad/s)^2]
}

// NewGains derives critically damped PLL gains from a loop bandwidth in
// rad/s.
func NewGains(bandwidth float64) Gains {
	kp := 2.0 * bandwidth
	return Gains{
		Kp: kp,
		Ki: 0.25 * (kp * kp),
	}
}

// Stable reports whether the proportional step stays inside the
// discrete-time stability limit for the given sample period.
func (g Gains) Stable(samplePeriod float64) bool {
	return samplePeriod*g.Kp < 1.0
}

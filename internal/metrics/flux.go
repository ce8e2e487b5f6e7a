package metrics

import (
	"math"

	"github.com/san-kum/sensorless/internal/sim"
)

// FluxMagnitude is the mean observed |eta| after Settle divided by the
// magnet flux linkage. A healthy observer sits at 1.
type FluxMagnitude struct {
	name    string
	Settle  float64
	psi     float64
	sum     float64
	samples int
}

func NewFluxMagnitude(settle, fluxLinkage float64) *FluxMagnitude {
	return &FluxMagnitude{name: "flux_ratio", Settle: settle, psi: fluxLinkage}
}

func (f *FluxMagnitude) Name() string { return f.name }

func (f *FluxMagnitude) Observe(s sim.Sample) {
	if s.T < f.Settle {
		return
	}
	f.sum += math.Hypot(s.EtaAlpha, s.EtaBeta)
	f.samples++
}

func (f *FluxMagnitude) Value() float64 {
	if f.samples == 0 || f.psi == 0 {
		return 0
	}
	return f.sum / float64(f.samples) / f.psi
}

func (f *FluxMagnitude) Reset() {
	f.sum = 0
	f.samples = 0
}

// EtaFactorAverage keeps an exponential average of the observer correction
// factor. It is installed on the estimator as a Probe and read back as a
// metric.
type EtaFactorAverage struct {
	name  string
	Alpha float64
	avg   float64
}

func NewEtaFactorAverage() *EtaFactorAverage {
	return &EtaFactorAverage{name: "eta_factor_avg", Alpha: 0.001}
}

func (e *EtaFactorAverage) Name() string { return e.name }

func (e *EtaFactorAverage) ObserveCorrection(etaFactor, fluxMagnitude float64) {
	e.avg += e.Alpha * (etaFactor - e.avg)
}

func (e *EtaFactorAverage) Observe(sim.Sample) {}

func (e *EtaFactorAverage) Value() float64 { return e.avg }

func (e *EtaFactorAverage) Reset() { e.avg = 0 }

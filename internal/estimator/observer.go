package estimator

import "math"

const oneBySqrt3 = 0.57735026918962576451

// Clarke maps the measured phase B and C currents to the stationary
// alpha-beta frame. Phase A is implied by the currents summing to zero.
func Clarke(phB, phC float64) (alpha, beta float64) {
	return -phB - phC, oneBySqrt3 * (phB - phC)
}

// FluxObserver estimates the permanent-magnet flux vector in the alpha-beta
// frame.
type FluxObserver struct {
	period      float64
	resistance  float64
	inductance  float64
	pmFluxSqr   float64
	gainFactor  float64 // observer_gain / pm_flux^2
	fluxState   [2]float64
	eta         [2]float64
	voltageMem  [2]float64 // consumed by this tick's integration
	voltageNext [2]float64 // queued, consumed on the following tick
	etaFactor   float64
}

func NewFluxObserver(cfg Config) FluxObserver {
	pmFluxSqr := cfg.PMFluxLinkage * cfg.PMFluxLinkage
	return FluxObserver{
		period:     cfg.SamplePeriod,
		resistance: cfg.PhaseResistance,
		inductance: cfg.PhaseInductance,
		pmFluxSqr:  pmFluxSqr,
		gainFactor: cfg.ObserverGain * (1.0 / pmFluxSqr),
	}
}

// Update advances the flux estimate by one tick using the alpha-beta
// current sampled this tick. v is the voltage commanded this tick; it is
// queued and only enters the integration two ticks from now.
func (o *FluxObserver) Update(current, v [2]float64) {
	for i := 0; i < 2; i++ {
		// total flux-driving voltage
		y := -o.resistance*current[i] + o.voltageMem[i]
		o.fluxState[i] += y * o.period
		o.eta[i] = o.fluxState[i] - o.inductance*current[i]
	}

	estFluxSqr := o.eta[0]*o.eta[0] + o.eta[1]*o.eta[1]
	o.etaFactor = 0.5 * o.gainFactor * (o.pmFluxSqr - estFluxSqr)

	// The correction scales eta by (1 + step). It may shrink eta down to the
	// magnet flux but not past it, so a flux estimate far outside the circle
	// cannot overshoot and diverge.
	step := o.etaFactor * o.period
	if estFluxSqr > o.pmFluxSqr {
		step = math.Max(step, math.Sqrt(o.pmFluxSqr/estFluxSqr)-1)
	}

	for i := 0; i < 2; i++ {
		o.fluxState[i] += step * o.eta[i]
		o.eta[i] = o.fluxState[i] - o.inductance*current[i]
	}

	o.queue(v)
}

// queue shifts the voltage delay line by one tick. A non-finite command is
// queued as zero.
func (o *FluxObserver) queue(v [2]float64) {
	o.voltageMem = o.voltageNext
	if !finite(v[0]) || !finite(v[1]) {
		v = [2]float64{}
	}
	o.voltageNext = v
}

func (o *FluxObserver) finite() bool {
	return finite(o.eta[0]) && finite(o.eta[1]) && finite(o.etaFactor)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Eta returns the corrected magnet flux estimate.
func (o *FluxObserver) Eta() [2]float64 {
	return o.eta
}

// EtaFactor returns the scalar correction applied on the last update.
func (o *FluxObserver) EtaFactor() float64 {
	return o.etaFactor
}

// FluxMagnitude returns |eta|.
func (o *FluxObserver) FluxMagnitude() float64 {
	return math.Hypot(o.eta[0], o.eta[1])
}

func (o *FluxObserver) Reset() {
	o.fluxState = [2]float64{}
	o.eta = [2]float64{}
	o.voltageMem = [2]float64{}
	o.voltageNext = [2]float64{}
	o.etaFactor = 0
}

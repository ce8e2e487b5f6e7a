package estimator

import "github.com/san-kum/sensorless/internal/dynamo"

// Measurement is the per-tick input from the motor abstraction.
type Measurement struct {
	PhaseB float64 // [A]
	PhaseC float64 // [A]
	VAlpha float64 // [V] commanded this tick
	VBeta  float64 // [V] commanded this tick
}

// Estimate is the per-tick output.
type Estimate struct {
	Position float64 // electrical angle [rad], (-pi, pi]
	Velocity float64 // electrical angular velocity [rad/s]
	Phase    float64 // raw observer phase [rad], (-pi, pi]
}

// Snapshot is a copy of the persistent estimator state.
type Snapshot struct {
	FluxState     [2]float64 `json:"flux_state"`
	Eta           [2]float64 `json:"eta"`
	VoltageMemory [2]float64 `json:"voltage_memory"`
	VoltageQueued [2]float64 `json:"voltage_queued"`
	PLLPos        float64    `json:"pll_pos"`
	PLLVel        float64    `json:"pll_vel"`
	Phase         float64    `json:"phase"`
	EtaFactor     float64    `json:"eta_factor"`
}

// Probe receives the observer correction of every successful tick.
type Probe interface {
	ObserveCorrection(etaFactor, fluxMagnitude float64)
}

// Estimator is the sensorless rotor-state estimator of one motor axis.
type Estimator struct {
	cfg      Config
	observer FluxObserver
	pll      PLL
	phase    float64

	reporter ErrorReporter
	probe    Probe
}

// New builds an estimator with PLL gains derived from cfg.PLLBandwidth.
func New(cfg Config) *Estimator {
	return NewWithGains(cfg, NewGains(cfg.PLLBandwidth))
}

// NewWithGains builds an estimator with explicit PLL gains.
func NewWithGains(cfg Config, gains Gains) *Estimator {
	return &Estimator{
		cfg:      cfg,
		observer: NewFluxObserver(cfg),
		pll:      NewPLL(cfg.SamplePeriod, gains),
	}
}

// SetReporter installs the fault channel used for timing violations.
func (e *Estimator) SetReporter(r ErrorReporter) { e.reporter = r }

// SetProbe installs an observability sink for the observer correction.
func (e *Estimator) SetProbe(p Probe) { e.probe = p }

func (e *Estimator) Config() Config { return e.cfg }
func (e *Estimator) Gains() Gains   { return e.pll.Gains() }

// Update runs one estimator tick. Each of pos, vel and phase may be nil, in
// which case that output is not written. On a timing violation nothing is
// written, no state changes and the returned error wraps ErrTimingViolation.
//
// A measurement that drives the flux estimate to NaN or Inf is dropped. The
// observer keeps its previous flux state while its voltage delay line still
// advances, the PLL coasts on its velocity, the phase is held and the probe
// is skipped. Outputs stay finite and wrapped.
func (e *Estimator) Update(m Measurement, pos, vel, phase *float64) error {
	if !e.pll.Stable() {
		err := &TimingError{SamplePeriod: e.cfg.SamplePeriod, Kp: e.pll.Gains().Kp}
		if e.reporter != nil {
			e.reporter.ReportError(err)
		}
		return err
	}

	prev := e.observer
	iAlpha, iBeta := Clarke(m.PhaseB, m.PhaseC)
	v := [2]float64{m.VAlpha, m.VBeta}
	e.observer.Update([2]float64{iAlpha, iBeta}, v)

	if e.observer.finite() {
		eta := e.observer.Eta()
		e.phase = dynamo.WrapPmPi(dynamo.FastAtan2(eta[1], eta[0]))
		e.pll.Update(e.phase)

		if e.probe != nil {
			e.probe.ObserveCorrection(e.observer.EtaFactor(), e.observer.FluxMagnitude())
		}
	} else {
		e.observer = prev
		e.observer.queue(v)
		e.pll.Predict()
	}

	if pos != nil {
		*pos = e.pll.Position()
	}
	if vel != nil {
		*vel = e.pll.Velocity()
	}
	if phase != nil {
		*phase = e.phase
	}
	return nil
}

// Step is Update with all three outputs requested.
func (e *Estimator) Step(m Measurement) (Estimate, error) {
	var out Estimate
	err := e.Update(m, &out.Position, &out.Velocity, &out.Phase)
	return out, err
}

// Reset zeroes all persistent state. Configuration and gains are kept.
func (e *Estimator) Reset() {
	e.observer.Reset()
	e.pll.Reset()
	e.phase = 0
}

func (e *Estimator) State() Snapshot {
	return Snapshot{
		FluxState:     e.observer.fluxState,
		Eta:           e.observer.eta,
		VoltageMemory: e.observer.voltageMem,
		VoltageQueued: e.observer.voltageNext,
		PLLPos:        e.pll.Position(),
		PLLVel:        e.pll.Velocity(),
		Phase:         e.phase,
		EtaFactor:     e.observer.etaFactor,
	}
}

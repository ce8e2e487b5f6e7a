package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/motor"
)

// Simulator closes the loop between a plant, a drive and the estimator. One
// tick is:
//
//  1. integrate the plant over the period with the latched voltage
//  2. sample phase B and C currents
//  3. the drive computes the next command from the true state
//  4. the inverter latches the previous command and queues the new one
//  5. the estimator consumes the currents and the queued command
type Simulator struct {
	plant      Plant
	integrator dynamo.Integrator
	drive      dynamo.Controller
	est        *estimator.Estimator
	inverter   *motor.Inverter
	sensor     *motor.CurrentSensor
	metrics    []Metric
	observers  []Observer

	period   float64
	substeps int
	validate bool
	x        dynamo.State
	t        float64
	tick     int
	load     float64 // applied without delay
}

func New(plant Plant, integrator dynamo.Integrator, drive dynamo.Controller, est *estimator.Estimator) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		drive:      drive,
		est:        est,
		inverter:   motor.NewInverter(0),
		sensor:     motor.NewCurrentSensor(0, 0, 0),
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		period:     est.Config().SamplePeriod,
		substeps:   1,
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetInverter(inv *motor.Inverter)   { s.inverter = inv }
func (s *Simulator) SetSensor(cs *motor.CurrentSensor) { s.sensor = cs }
func (s *Simulator) Estimator() *estimator.Estimator   { return s.est }
func (s *Simulator) Drive() dynamo.Controller          { return s.drive }
func (s *Simulator) State() dynamo.State               { return s.x.Clone() }
func (s *Simulator) Time() float64                     { return s.t }
func (s *Simulator) Period() float64                   { return s.period }

// Metrics reports the current value of every registered metric.
func (s *Simulator) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Reset re-arms the whole loop at angle theta0 with the given substep count.
func (s *Simulator) Reset(theta0 float64, substeps int) {
	if substeps < 1 {
		substeps = 1
	}
	s.substeps = substeps
	s.x = s.plant.InitialState(theta0)
	s.t = 0
	s.tick = 0
	s.load = 0

	s.est.Reset()
	s.inverter.Reset()
	s.sensor.Reset()
	if r, ok := s.drive.(Resetter); ok {
		r.Reset()
	}
	for _, m := range s.metrics {
		m.Reset()
	}
}

// Tick advances the loop by one control period. Metrics and observers see
// the sample before it is returned. A failed tick returns a
// *dynamo.SimulationError and leaves the simulator at the failing tick.
func (s *Simulator) Tick() (Sample, error) {
	if s.x == nil {
		s.Reset(0, s.substeps)
	}

	applied := s.inverter.Applied()
	u := dynamo.Control{applied[0], applied[1], s.load}

	h := s.period / float64(s.substeps)
	for k := 0; k < s.substeps; k++ {
		s.x = s.integrator.Step(s.plant, s.x, u, s.t+float64(k)*h, h)
		s.plant.Constrain(s.x, s.t+float64(k+1)*h)
	}
	s.t = float64(s.tick+1) * s.period

	if s.validate && !s.x.IsValid() {
		return Sample{}, s.fail(dynamo.ErrInvalidState)
	}

	phB, phC := s.sensor.Sample(s.x[motor.IAlpha], s.x[motor.IBeta])

	cmd := s.drive.Compute(s.x, s.t)
	if len(cmd) > motor.LoadTorque {
		s.load = cmd[motor.LoadTorque]
	}
	s.inverter.Latch()
	v := s.inverter.Command([2]float64{cmd[0], cmd[1]})

	var out estimator.Estimate
	m := estimator.Measurement{PhaseB: phB, PhaseC: phC, VAlpha: v[0], VBeta: v[1]}
	if err := s.est.Update(m, &out.Position, &out.Velocity, &out.Phase); err != nil {
		return Sample{}, s.fail(err)
	}

	eta := s.est.State().Eta
	sample := Sample{
		T:         s.t,
		TrueTheta: s.x[motor.Theta],
		TrueOmega: s.x[motor.Omega],
		Position:  out.Position,
		Velocity:  out.Velocity,
		Phase:     out.Phase,
		IAlpha:    s.x[motor.IAlpha],
		IBeta:     s.x[motor.IBeta],
		VAlpha:    v[0],
		VBeta:     v[1],
		EtaAlpha:  eta[0],
		EtaBeta:   eta[1],
	}
	s.tick++

	for _, mt := range s.metrics {
		mt.Observe(sample)
	}
	for _, obs := range s.observers {
		obs.OnTick(sample)
	}
	return sample, nil
}

func (s *Simulator) fail(err error) error {
	return &dynamo.SimulationError{
		Step:    s.tick,
		Time:    s.t,
		State:   s.x.Clone(),
		Wrapped: err,
	}
}

// Start validates cfg and re-arms the loop for stepping with Tick.
func (s *Simulator) Start(cfg Config) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}
	s.validate = cfg.ValidateState
	s.Reset(cfg.Theta0, cfg.Substeps)
	return nil
}

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.Start(cfg); err != nil {
		return nil, err
	}

	ticks := int(math.Round(cfg.Duration / s.period))
	result := &Result{
		Samples: make([]Sample, 0, ticks),
		Metrics: make(map[string]float64),
		Period:  s.period,
	}

	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		sample, err := s.Tick()
		if err != nil {
			return result, err
		}
		result.Samples = append(result.Samples, sample)
		result.Ticks++
	}

	result.Metrics = s.Metrics()
	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if s.period <= 0 || math.IsNaN(s.period) {
		return fmt.Errorf("%w: sample period must be positive, got %g", dynamo.ErrParameterBounds, s.period)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrParameterBounds, cfg.Duration)
	}
	if cfg.Substeps < 0 {
		return fmt.Errorf("%w: substeps must be >= 0, got %d", dynamo.ErrParameterBounds, cfg.Substeps)
	}
	if s.plant.StateDim() != 4 || s.plant.ControlDim() != 3 {
		return dynamo.ErrDimensionMismatch
	}
	return nil
}

// RunWithCallback streams samples to callback until it returns false, the
// duration elapses or ctx is cancelled. Nothing is retained.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(Sample) bool) error {
	if err := s.Start(cfg); err != nil {
		return err
	}

	ticks := int(math.Round(cfg.Duration / s.period))
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sample, err := s.Tick()
		if err != nil {
			return err
		}
		if !callback(sample) {
			return nil
		}
	}

	return nil
}

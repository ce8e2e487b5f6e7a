package experiment

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/metrics"
	"github.com/san-kum/sensorless/internal/motor"
	"github.com/san-kum/sensorless/internal/sim"
	"github.com/san-kum/sensorless/internal/storage"
)

var quietLogger = log.New(io.Discard, "", 0)

// Experiment wires one config into a closed-loop simulator: plant, inverter,
// current sensor, drive, estimator and the standard metrics.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
	params   map[string]float64
	logger   *log.Logger

	simulator *sim.Simulator
	plant     *motor.PMSM
	drive     dynamo.Controller
	probe     *metrics.EtaFactorAverage
}

// New copies cfg; later changes to cfg do not affect the experiment.
func New(cfg *config.Config) *Experiment {
	return &Experiment{
		cfg:      cfg.Clone(),
		registry: NewRegistry(),
		params:   make(map[string]float64),
		logger:   log.Default(),
	}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) SetRegistry(r *Registry) { e.registry = r }

// SetLogger sets where estimator faults are logged.
func (e *Experiment) SetLogger(l *log.Logger) { e.logger = l }

// SetParam overrides one parameter before Setup. Names are prefixed with
// the component they belong to: "estimator.pll_bandwidth",
// "motor.resistance", "drive.current". Motor overrides change the config
// itself, so the drive, the metrics and the run metadata all see the same
// motor as the plant.
func (e *Experiment) SetParam(name string, value float64) error {
	component, key, ok := strings.Cut(name, ".")
	if !ok {
		return fmt.Errorf("%w: parameter %q needs a component prefix", dynamo.ErrParameterBounds, name)
	}

	switch component {
	case "estimator":
		return setEstimatorParam(&e.cfg.Estimator, key, value)
	case "motor":
		return setMotorParam(&e.cfg.Motor, key, value)
	case "drive":
		e.params[name] = value
		return nil
	default:
		return fmt.Errorf("%w: unknown component %q", dynamo.ErrParameterBounds, component)
	}
}

func setEstimatorParam(c *estimator.Config, key string, value float64) error {
	switch key {
	case "sample_period":
		c.SamplePeriod = value
	case "pll_bandwidth":
		c.PLLBandwidth = value
	case "pm_flux_linkage":
		c.PMFluxLinkage = value
	case "observer_gain":
		c.ObserverGain = value
	case "phase_resistance":
		c.PhaseResistance = value
	case "phase_inductance":
		c.PhaseInductance = value
	default:
		return fmt.Errorf("%w: unknown estimator parameter %q", dynamo.ErrParameterBounds, key)
	}
	return nil
}

// setMotorParam validates the override through the plant's own parameter
// table before writing it back.
func setMotorParam(p *motor.Params, key string, value float64) error {
	m := motor.NewPMSM(*p)
	if err := m.SetParam(key, value); err != nil {
		return fmt.Errorf("motor.%s: %w", key, err)
	}
	*p = m.Params
	return nil
}

// Setup validates the config and builds the simulator.
func (e *Experiment) Setup() error {
	cfg := e.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	plant, err := NewPlant(cfg)
	if err != nil {
		return err
	}

	integ, err := e.registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}

	drive, err := e.registry.GetDrive(cfg.Drive, cfg)
	if err != nil {
		return err
	}

	if err := e.applyParams(drive); err != nil {
		return err
	}

	est := estimator.New(cfg.Estimator)
	est.SetReporter(estimator.LogReporter{Logger: e.logger, Axis: cfg.Name})
	probe := metrics.NewEtaFactorAverage()
	est.SetProbe(probe)

	s := sim.New(plant, integ, drive, est)
	s.SetInverter(motor.NewInverter(cfg.Inverter.BusVoltage))
	s.SetSensor(motor.NewCurrentSensor(cfg.Sensor.NoiseStd, cfg.Sensor.Quantum, cfg.Seed))
	for _, m := range e.registry.DefaultMetrics(cfg) {
		s.AddMetric(m)
	}
	s.AddMetric(probe)

	e.simulator = s
	e.plant = plant
	e.drive = drive
	e.probe = probe
	return nil
}

// applyParams pushes drive overrides in name order so runs are
// reproducible.
func (e *Experiment) applyParams(drive dynamo.Controller) error {
	if len(e.params) == 0 {
		return nil
	}
	c, ok := drive.(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("%w: drive %s has no parameters", dynamo.ErrParameterBounds, e.cfg.Drive)
	}

	names := make([]string, 0, len(e.params))
	for name := range e.params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, key, _ := strings.Cut(name, ".")
		if err := c.SetParam(key, e.params[name]); err != nil {
			return err
		}
	}
	return nil
}

// NewPlant builds the motor for cfg: held on a dynamometer following the
// speed profile, or free to spin under its own torque.
func NewPlant(cfg *config.Config) (*motor.PMSM, error) {
	if cfg.Mode == config.ModeFree {
		return motor.NewPMSM(cfg.Motor), nil
	}
	profile, err := motor.NewProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	return motor.NewDyno(cfg.Motor, profile), nil
}

// SimConfig is the simulator run configuration for cfg.
func SimConfig(cfg *config.Config) sim.Config {
	return sim.Config{
		Duration:      cfg.Duration,
		Substeps:      cfg.Substeps,
		Theta0:        cfg.Theta0,
		ValidateState: true,
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, SimConfig(e.cfg))
}

// Simulator returns the underlying simulator for adding observers.
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

func (e *Experiment) Plant() *motor.PMSM { return e.plant }

// Metadata describes the run for storage.
func (e *Experiment) Metadata() storage.RunMetadata {
	c := e.cfg
	return storage.RunMetadata{
		Name:       c.Name,
		Seed:       c.Seed,
		Duration:   c.Duration,
		Settle:     c.Settle,
		Integrator: c.Integrator,
		Drive:      c.Drive,
		Mode:       c.Mode,
		Bandwidth:  c.Estimator.PLLBandwidth,
		Gamma:      c.Estimator.ObserverGain,
		Flux:       c.Motor.FluxLinkage,
	}
}

// Build returns a ready-to-run simulator for cfg.
func Build(cfg *config.Config) (*sim.Simulator, error) {
	exp := New(cfg)
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	return exp.Simulator(), nil
}

package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/control"
	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/integrators"
	"github.com/san-kum/sensorless/internal/metrics"
	"github.com/san-kum/sensorless/internal/sim"
)

type Registry struct {
	integrators map[string]func() dynamo.Integrator
	drives      map[string]func(cfg *config.Config) dynamo.Controller
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
		drives:      make(map[string]func(*config.Config) dynamo.Controller),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	r.drives["none"] = func(cfg *config.Config) dynamo.Controller {
		d := control.NewNone()
		d.Load = cfg.DriveCfg.Load
		return d
	}
	r.drives["feedforward"] = func(cfg *config.Config) dynamo.Controller {
		dc := cfg.DriveCfg
		d := control.NewFeedForward(cfg.Motor, cfg.Estimator.SamplePeriod, dc.Current, dc.LoadAngle)
		d.Load = dc.Load
		if dc.Kp > 0 {
			d.SetParam("kp", dc.Kp)
		}
		if dc.Ki > 0 {
			d.SetParam("ki", dc.Ki)
		}
		return d
	}
	r.drives["vf"] = func(cfg *config.Config) dynamo.Controller {
		dc := cfg.DriveCfg
		d := control.NewVoltsPerHertz(cfg.Motor.FluxLinkage, dc.Target, dc.Accel, dc.Boost)
		d.Load = dc.Load
		return d
	}

	return r
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetDrive(name string, cfg *config.Config) (dynamo.Controller, error) {
	fn, ok := r.drives[name]
	if !ok {
		return nil, fmt.Errorf("unknown drive: %s", name)
	}
	return fn(cfg), nil
}

// RegisterDrive adds or replaces a drive constructor.
func (r *Registry) RegisterDrive(name string, fn func(cfg *config.Config) dynamo.Controller) {
	r.drives[name] = fn
}

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListDrives() []string      { return sortedKeys(r.drives) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics is the metric set for cfg. Plant constants are taken from
// the motor, not the estimator, so mismatch runs are scored against truth.
func (r *Registry) DefaultMetrics(cfg *config.Config) []sim.Metric {
	return metrics.Standard(cfg.Settle, cfg.Motor.FluxLinkage, cfg.Motor.Resistance)
}

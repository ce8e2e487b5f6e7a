package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/motor"
)

const (
	DefaultDuration   = 1.0
	DefaultSettle     = 0.5
	DefaultSpeed      = 628.3 // [rad/s] electrical, 100 Hz
	DefaultCurrent    = 10.0
	DefaultBusVoltage = 24.0
)

const (
	ModeDyno = "dyno"
	ModeFree = "free"
)

// Config describes one run: the plant, the drive exciting it and the
// estimator under test. The estimator carries its own copy of the motor
// constants so parameter mismatch can be studied.
type Config struct {
	Name       string            `yaml:"name,omitempty"`
	Integrator string            `yaml:"integrator"`
	Drive      string            `yaml:"drive"`
	Mode       string            `yaml:"mode"`
	Duration   float64           `yaml:"duration"`
	Substeps   int               `yaml:"substeps"`
	Settle     float64           `yaml:"settle"`
	Theta0     float64           `yaml:"theta0"`
	Seed       int64             `yaml:"seed"`
	Estimator  estimator.Config  `yaml:"estimator"`
	Motor      motor.Params      `yaml:"motor"`
	Profile    motor.ProfileSpec `yaml:"profile"`
	Sensor     SensorConfig      `yaml:"sensor"`
	Inverter   InverterConfig    `yaml:"inverter"`
	DriveCfg   DriveConfig       `yaml:"drive_params"`
}

type SensorConfig struct {
	NoiseStd float64 `yaml:"noise_std"`
	Quantum  float64 `yaml:"quantum"`
}

type InverterConfig struct {
	BusVoltage float64 `yaml:"bus_voltage"`
}

type DriveConfig struct {
	Current   float64 `yaml:"current"`
	LoadAngle float64 `yaml:"load_angle"`
	Load      float64 `yaml:"load"`
	Kp        float64 `yaml:"kp,omitempty"`
	Ki        float64 `yaml:"ki,omitempty"`
	Target    float64 `yaml:"target,omitempty"` // volts-per-hertz speed
	Accel     float64 `yaml:"accel,omitempty"`
	Boost     float64 `yaml:"boost,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Integrator: "rk4",
		Drive:      "feedforward",
		Mode:       ModeDyno,
		Duration:   DefaultDuration,
		Substeps:   1,
		Settle:     DefaultSettle,
		Estimator:  estimator.DefaultConfig(),
		Motor:      motor.DefaultParams(),
		Profile:    motor.ProfileSpec{Kind: "constant", Speed: DefaultSpeed},
		Inverter:   InverterConfig{BusVoltage: DefaultBusVoltage},
		DriveCfg: DriveConfig{
			Current:   DefaultCurrent,
			LoadAngle: math.Pi / 2,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadWith(path, DefaultConfig())
}

// LoadWith reads path over a copy of base: keys missing from the file keep
// base's values.
func LoadWith(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the run parameters. It deliberately accepts an estimator
// whose PLL violates the timing limit: that is reported per tick by the
// estimator itself.
func (c *Config) Validate() error {
	if err := c.Estimator.Validate(); err != nil {
		return err
	}
	if err := c.Motor.Validate(); err != nil {
		return err
	}
	if !(c.Duration > 0) || math.IsInf(c.Duration, 0) {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrParameterBounds, c.Duration)
	}
	if c.Substeps < 0 {
		return fmt.Errorf("%w: substeps must be >= 0, got %d", dynamo.ErrParameterBounds, c.Substeps)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: settle must be >= 0, got %g", dynamo.ErrParameterBounds, c.Settle)
	}
	if c.Sensor.NoiseStd < 0 || c.Sensor.Quantum < 0 || c.Inverter.BusVoltage < 0 {
		return fmt.Errorf("%w: sensor and inverter parameters must be >= 0", dynamo.ErrParameterBounds)
	}
	switch c.Mode {
	case ModeDyno, ModeFree:
	default:
		return fmt.Errorf("%w: unknown mode %q", dynamo.ErrParameterBounds, c.Mode)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

package config

import "sort"

var Presets = map[string]*Config{
	"nominal": DefaultConfig(),
	"slow": with(func(c *Config) {
		c.Profile.Speed = 150
		c.DriveCfg.Current = 5
		c.Duration = 2
		c.Settle = 1
	}),
	"reverse": with(func(c *Config) {
		c.Profile.Speed = -1000
		c.DriveCfg.Current = 5
	}),
	"reversal": with(func(c *Config) {
		c.Profile.Kind = "reversal"
		c.Profile.Speed = 800
		c.Profile.Start = 0.5
		c.Profile.Duration = 0.5
		c.DriveCfg.Current = 5
		c.Duration = 2
		c.Settle = 1.2
	}),
	"ramp": with(func(c *Config) {
		c.Profile.Kind = "ramp"
		c.Profile.Speed = 100
		c.Profile.Target = 1500
		c.Profile.Duration = 1
		c.Duration = 1.5
		c.Settle = 0.5
	}),
	"noisy": with(func(c *Config) {
		c.Sensor = SensorConfig{NoiseStd: 0.2, Quantum: 0.01}
		c.Seed = 1
	}),
	"mismatch": with(func(c *Config) {
		c.Estimator.PhaseResistance *= 2
		c.Estimator.PMFluxLinkage *= 0.9
	}),
	// spins up from rest until the bus voltage runs out
	"freerun": with(func(c *Config) {
		c.Mode = ModeFree
		c.Profile.Speed = 0
		c.DriveCfg.Current = 3
		c.Inverter.BusVoltage = 12
		c.Duration = 1.5
		c.Settle = 1
	}),
	// PLL period*kp = 2: every tick is rejected
	"unstable": with(func(c *Config) {
		c.Estimator.SamplePeriod = 1.0 / 1000
	}),
}

func with(mutate func(*Config)) *Config {
	c := DefaultConfig()
	mutate(c)
	return c
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	c := p.Clone()
	c.Name = name
	return c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

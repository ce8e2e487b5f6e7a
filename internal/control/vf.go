package control

import (
	"fmt"
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// VoltsPerHertz spins the field open loop. The electrical frequency ramps
// at Accel toward Target and the voltage magnitude is FluxLinkage*omega
// plus Boost, which covers the resistive drop near standstill.
type VoltsPerHertz struct {
	FluxLinkage float64 // [Wb]
	Target      float64 // [rad/s] electrical
	Accel       float64 // [rad/s^2]
	Boost       float64 // [V]
	Load        float64 // [N m]

	angle float64
	omega float64
	prevT float64
	first bool
}

func NewVoltsPerHertz(fluxLinkage, target, accel, boost float64) *VoltsPerHertz {
	return &VoltsPerHertz{
		FluxLinkage: fluxLinkage,
		Target:      target,
		Accel:       accel,
		Boost:       boost,
		first:       true,
	}
}

func (v *VoltsPerHertz) Compute(x dynamo.State, t float64) dynamo.Control {
	if v.first {
		v.prevT = t
		v.first = false
	}
	dt := t - v.prevT
	v.prevT = t

	step := v.Accel * dt
	switch {
	case v.Accel <= 0:
		v.omega = v.Target
	case v.omega < v.Target:
		v.omega = math.Min(v.omega+step, v.Target)
	case v.omega > v.Target:
		v.omega = math.Max(v.omega-step, v.Target)
	}
	v.angle = dynamo.WrapPmPi(v.angle + v.omega*dt)

	mag := math.Abs(v.omega)*v.FluxLinkage + v.Boost
	// the voltage leads the back-EMF by a quarter turn
	va, vb := dynamo.DefaultTrigTable.Rotate(mag, v.angle+math.Copysign(math.Pi/2, v.omega))
	return dynamo.Control{va, vb, v.Load}
}

// Speed returns the commanded electrical speed.
func (v *VoltsPerHertz) Speed() float64 { return v.omega }

func (v *VoltsPerHertz) Reset() {
	v.angle = 0
	v.omega = 0
	v.first = true
}

func (v *VoltsPerHertz) GetParams() map[string]float64 {
	return map[string]float64{
		"target": v.Target,
		"accel":  v.Accel,
		"boost":  v.Boost,
		"load":   v.Load,
	}
}

func (v *VoltsPerHertz) SetParam(name string, value float64) error {
	switch name {
	case "target":
		v.Target = value
	case "accel":
		v.Accel = value
	case "boost":
		v.Boost = value
	case "load":
		v.Load = value
	default:
		return fmt.Errorf("%w: unknown volts-per-hertz parameter %q", dynamo.ErrParameterBounds, name)
	}
	return nil
}

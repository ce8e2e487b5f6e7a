package motor

import (
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// State layout.
const (
	IAlpha = iota
	IBeta
	Theta // electrical angle, kept in (-pi, pi] by Constrain
	Omega // electrical speed [rad/s]
)

// Control layout.
const (
	VAlpha = iota
	VBeta
	LoadTorque // [N m]
)

// PMSM is the plant in the stationary frame:
//
//	L di/dt = v - R i - omega*psi*[-sin(theta), cos(theta)]
//	J/p domega/dt = 1.5*p*psi*i_q - load - B*omega/p
//
// With a Profile set the rotor is held on a dynamometer: omega follows the
// profile and the mechanical equation is ignored.
type PMSM struct {
	Params  Params
	Profile SpeedProfile
}

func NewPMSM(p Params) *PMSM {
	return &PMSM{Params: p}
}

// NewDyno returns a PMSM whose speed is imposed by profile.
func NewDyno(p Params, profile SpeedProfile) *PMSM {
	m := NewPMSM(p)
	m.Profile = profile
	return m
}

func (m *PMSM) StateDim() int   { return 4 }
func (m *PMSM) ControlDim() int { return 3 }

func (m *PMSM) omega(x dynamo.State, t float64) float64 {
	if m.Profile != nil {
		return m.Profile.Speed(t)
	}
	return x[Omega]
}

func (m *PMSM) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	p := m.Params
	w := m.omega(x, t)
	sin, cos := math.Sincos(x[Theta])

	dx := make(dynamo.State, 4)
	dx[IAlpha] = (u[VAlpha] - p.Resistance*x[IAlpha] + w*p.FluxLinkage*sin) / p.Inductance
	dx[IBeta] = (u[VBeta] - p.Resistance*x[IBeta] - w*p.FluxLinkage*cos) / p.Inductance
	dx[Theta] = w

	if m.Profile != nil {
		dx[Omega] = 0
		return dx
	}

	iq := -x[IAlpha]*sin + x[IBeta]*cos
	pp := float64(p.PolePairs)
	load := 0.0
	if len(u) > LoadTorque {
		load = u[LoadTorque]
	}
	torque := p.TorqueConstant()*iq - load - p.Friction*w/pp
	dx[Omega] = pp * torque / p.Inertia
	return dx
}

// Constrain wraps the angle and, on a dyno, snaps omega to the profile.
func (m *PMSM) Constrain(x dynamo.State, t float64) {
	x[Theta] = dynamo.WrapPmPi(x[Theta])
	if m.Profile != nil {
		x[Omega] = m.Profile.Speed(t)
	}
}

// InitialState is a rotor at rest (or at the profile speed) at angle theta.
func (m *PMSM) InitialState(theta float64) dynamo.State {
	x := make(dynamo.State, 4)
	x[Theta] = theta
	m.Constrain(x, 0)
	return x
}

// ElectricalTorque is 1.5*p*psi*i_q for state x.
func (m *PMSM) ElectricalTorque(x dynamo.State) float64 {
	sin, cos := math.Sincos(x[Theta])
	return m.Params.TorqueConstant() * (-x[IAlpha]*sin + x[IBeta]*cos)
}

func (m *PMSM) GetParams() map[string]float64 {
	return map[string]float64{
		"resistance":   m.Params.Resistance,
		"inductance":   m.Params.Inductance,
		"flux_linkage": m.Params.FluxLinkage,
		"pole_pairs":   float64(m.Params.PolePairs),
		"inertia":      m.Params.Inertia,
		"friction":     m.Params.Friction,
	}
}

func (m *PMSM) SetParam(name string, value float64) error {
	next := m.Params
	switch name {
	case "resistance":
		next.Resistance = value
	case "inductance":
		next.Inductance = value
	case "flux_linkage":
		next.FluxLinkage = value
	case "pole_pairs":
		next.PolePairs = int(value)
	case "inertia":
		next.Inertia = value
	case "friction":
		next.Friction = value
	default:
		return dynamo.ErrParameterBounds
	}
	if err := next.Validate(); err != nil {
		return err
	}
	m.Params = next
	return nil
}

package dynamo

import (
	"math"
)

// State is a plant state vector. For the motor the layout is
// [i_alpha, i_beta, theta, omega]; see the motor package.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control is the input held constant across one integration step:
// [v_alpha, v_beta, load torque] for the motor.
type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Controller computes the command issued at the end of a tick from the
// plant state sampled at that tick.
type Controller interface {
	Compute(x State, t float64) Control
}

// Configurable is implemented by plants and drives whose parameters can be
// overridden by name before a run.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

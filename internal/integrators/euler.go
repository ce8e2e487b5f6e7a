package integrators

import "github.com/san-kum/sensorless/internal/dynamo"

// Euler is forward Euler. The estimator's flux integration uses the same
// rule, so an Euler plant with one substep per tick is the exact mirror of
// the observer model.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

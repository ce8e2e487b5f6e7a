package integrators

import "github.com/san-kum/sensorless/internal/dynamo"

// RK4 is the classic fourth order Runge-Kutta step. Stage buffers are reused
// between calls, so one RK4 must not be shared across goroutines.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensure(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

// eval evaluates the derivative at x + h*k into dst.
func (r *RK4) eval(dst dynamo.State, dyn dynamo.System, x, k dynamo.State, h float64, u dynamo.Control, t float64) {
	for i := range x {
		r.stage[i] = x[i] + h*k[i]
	}
	copy(dst, dyn.Derive(r.stage, u, t))
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensure(n)

	copy(r.k[0], dyn.Derive(x, u, t))
	r.eval(r.k[1], dyn, x, r.k[0], 0.5*dt, u, t+0.5*dt)
	r.eval(r.k[2], dyn, x, r.k[1], 0.5*dt, u, t+0.5*dt)
	r.eval(r.k[3], dyn, x, r.k[2], dt, u, t+dt)

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return result
}

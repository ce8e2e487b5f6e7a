package integrators

import (
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// fifth order weights minus embedded fourth order weights
	dpE = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

// RK45 integrates one control period with embedded error control, splitting
// the period into as many internal steps as Tol requires. The plant's
// electrical time constant L/R is close to the tick period, so fixed-step RK4
// is fine for defaults but a high-resistance motor benefits from this.
type RK45 struct {
	Tol      float64
	safety   float64
	minScale float64
	maxScale float64
	maxSteps int

	k [7]dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{
		Tol:      1e-6,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		maxSteps: 256,
	}
}

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	end := t + dt
	h := dt
	cur := x
	for i := 0; i < r.maxSteps && t < end; i++ {
		if t+h > end {
			h = end - t
		}
		next, hNext, err := r.StepAdaptive(dyn, cur, u, t, h, r.Tol)
		if err == nil || h <= dt*1e-6 {
			cur = next
			t += h
		}
		h = hNext
	}
	return cur
}

// StepAdaptive takes one Dormand-Prince step of size dt and returns the
// proposed next step size. The error is ErrParameterBounds when the local
// error estimate exceeds tol and ErrInvalidState when it is NaN; the returned
// state is then the rejected one.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	n := len(x)
	if len(r.k[0]) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
	}

	stage := make(dynamo.State, n)
	var xNew dynamo.State
	for s := 0; s < 7; s++ {
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < s; j++ {
				acc += dpA[s][j] * r.k[j][i]
			}
			stage[i] = x[i] + dt*acc
		}
		if s == 6 {
			// the last row is the fifth order solution (FSAL)
			xNew = stage.Clone()
		}
		copy(r.k[s], dyn.Derive(stage, u, t+dpC[s]*dt))
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		e := 0.0
		for s := 0; s < 7; s++ {
			e += dpE[s] * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*e)/scale)
	}

	errRatio := errMax / tol
	if math.IsNaN(errRatio) {
		return xNew, dt * r.minScale, dynamo.ErrInvalidState
	}

	var scale float64
	switch {
	case errRatio > 1:
		scale = math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		scale = math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		scale = r.maxScale
	}

	if errRatio > 1 {
		return xNew, dt * scale, dynamo.ErrParameterBounds
	}
	return xNew, dt * scale, nil
}

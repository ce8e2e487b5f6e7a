package control

import (
	"fmt"
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/motor"
)

// FeedForward keeps a current vector of magnitude Current at LoadAngle ahead
// of the true rotor angle. It is the reference drive for evaluating the
// estimator: it never reads the estimate.
//
// The voltage is the steady-state solution of the stator equation at the
// centre of the period it will be applied over, 1.5 ticks ahead:
//
//	v = R i + omega*L*j*i + omega*psi*j*e^(j theta)
//
// plus a PI correction on the current error.
type FeedForward struct {
	Params    motor.Params
	Period    float64
	Current   float64 // [A]
	LoadAngle float64 // [rad] from the d axis; pi/2 is pure q
	Load      float64 // [N m] load torque passed to the plant

	alpha, beta *PI
}

func NewFeedForward(p motor.Params, period, current, loadAngle float64) *FeedForward {
	// current loop bandwidth of a quarter of the sample rate
	kp := p.Inductance * 0.25 / period
	return &FeedForward{
		Params:    p,
		Period:    period,
		Current:   current,
		LoadAngle: loadAngle,
		alpha:     NewPI(kp, 0, 0),
		beta:      NewPI(kp, 0, 0),
	}
}

// Reference returns the current vector the drive asks for at angle theta.
func (f *FeedForward) Reference(theta float64) (iAlpha, iBeta float64) {
	return dynamo.DefaultTrigTable.Rotate(f.Current, theta+f.LoadAngle)
}

func (f *FeedForward) Compute(x dynamo.State, t float64) dynamo.Control {
	p := f.Params
	omega := x[motor.Omega]
	theta := x[motor.Theta] + 1.5*f.Period*omega

	iA, iB := f.Reference(theta)
	emfA, emfB := dynamo.DefaultTrigTable.Rotate(omega*p.FluxLinkage, theta+math.Pi/2)

	vA := p.Resistance*iA - omega*p.Inductance*iB + emfA
	vB := p.Resistance*iB + omega*p.Inductance*iA + emfB

	nowA, nowB := f.Reference(x[motor.Theta])
	vA += f.alpha.Update(nowA-x[motor.IAlpha], t)
	vB += f.beta.Update(nowB-x[motor.IBeta], t)

	return dynamo.Control{vA, vB, f.Load}
}

func (f *FeedForward) Reset() {
	f.alpha.Reset()
	f.beta.Reset()
}

func (f *FeedForward) GetParams() map[string]float64 {
	return map[string]float64{
		"current":    f.Current,
		"load_angle": f.LoadAngle,
		"load":       f.Load,
		"kp":         f.alpha.Kp,
		"ki":         f.alpha.Ki,
	}
}

func (f *FeedForward) SetParam(name string, value float64) error {
	switch name {
	case "current":
		f.Current = value
	case "load_angle":
		f.LoadAngle = value
	case "load":
		f.Load = value
	case "kp":
		f.alpha.Kp, f.beta.Kp = value, value
	case "ki":
		f.alpha.Ki, f.beta.Ki = value, value
	default:
		return fmt.Errorf("%w: unknown feed-forward parameter %q", dynamo.ErrParameterBounds, name)
	}
	return nil
}

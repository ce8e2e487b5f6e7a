package sim

import "github.com/san-kum/sensorless/internal/dynamo"

// Sample is one control tick as seen by the recorder: the true rotor state,
// the estimate and the signals that produced it.
type Sample struct {
	T         float64 `json:"t" structs:"t"`
	TrueTheta float64 `json:"true_theta" structs:"true_theta"`
	TrueOmega float64 `json:"true_omega" structs:"true_omega"`
	Position  float64 `json:"position" structs:"position"`
	Velocity  float64 `json:"velocity" structs:"velocity"`
	Phase     float64 `json:"phase" structs:"phase"`
	IAlpha    float64 `json:"i_alpha" structs:"i_alpha"`
	IBeta     float64 `json:"i_beta" structs:"i_beta"`
	VAlpha    float64 `json:"v_alpha" structs:"v_alpha"`
	VBeta     float64 `json:"v_beta" structs:"v_beta"`
	EtaAlpha  float64 `json:"eta_alpha" structs:"eta_alpha"`
	EtaBeta   float64 `json:"eta_beta" structs:"eta_beta"`
}

// PositionError is the wrapped estimate minus true angle.
func (s Sample) PositionError() float64 {
	return dynamo.WrapPmPi(s.Position - s.TrueTheta)
}

func (s Sample) VelocityError() float64 {
	return s.Velocity - s.TrueOmega
}

// Plant is a system the simulator can drive tick by tick.
type Plant interface {
	dynamo.System
	// Constrain projects x back onto the admissible set after a step.
	Constrain(x dynamo.State, t float64)
	InitialState(theta float64) dynamo.State
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(s Sample)
}

// Resetter is implemented by drives that carry state between ticks.
type Resetter interface {
	Reset()
}

type Config struct {
	Duration      float64 // [s]
	Substeps      int     // plant integration steps per tick, 0 means 1
	Theta0        float64 // initial electrical angle [rad]
	ValidateState bool
}

type Result struct {
	Samples []Sample
	Metrics map[string]float64
	Period  float64
	Ticks   int
}

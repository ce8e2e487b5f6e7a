package control

import "github.com/san-kum/sensorless/internal/dynamo"

// None coasts the motor: zero volts and an optional constant load.
type None struct {
	Load float64
}

func NewNone() *None {
	return &None{}
}

func (n *None) Compute(x dynamo.State, t float64) dynamo.Control {
	return dynamo.Control{0, 0, n.Load}
}

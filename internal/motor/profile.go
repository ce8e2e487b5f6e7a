package motor

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// SpeedProfile imposes an electrical speed in rad/s on a dyno-driven rotor.
type SpeedProfile interface {
	Speed(t float64) float64
}

type Constant float64

func (c Constant) Speed(float64) float64 { return float64(c) }

// Ramp moves linearly from From to To over [Start, Start+Duration].
type Ramp struct {
	From, To        float64
	Start, Duration float64
}

func (r Ramp) Speed(t float64) float64 {
	switch {
	case t <= r.Start:
		return r.From
	case r.Duration <= 0 || t >= r.Start+r.Duration:
		return r.To
	}
	return r.From + (r.To-r.From)*(t-r.Start)/r.Duration
}

// Step jumps from Before to After at time At.
type Step struct {
	Before, After float64
	At            float64
}

func (s Step) Speed(t float64) float64 {
	if t < s.At {
		return s.Before
	}
	return s.After
}

// Reversal runs at +Magnitude, then ramps through zero to -Magnitude.
type Reversal struct {
	Magnitude float64
	At        float64
	Duration  float64
}

func (r Reversal) Speed(t float64) float64 {
	return Ramp{From: r.Magnitude, To: -r.Magnitude, Start: r.At, Duration: r.Duration}.Speed(t)
}

// ProfileSpec is the serialisable form of a SpeedProfile.
type ProfileSpec struct {
	Kind     string  `yaml:"kind" json:"kind"` // constant, ramp, step, reversal
	Speed    float64 `yaml:"speed" json:"speed"`
	Target   float64 `yaml:"target,omitempty" json:"target,omitempty"`
	Start    float64 `yaml:"start,omitempty" json:"start,omitempty"`
	Duration float64 `yaml:"duration,omitempty" json:"duration,omitempty"`
}

func NewProfile(spec ProfileSpec) (SpeedProfile, error) {
	if math.IsNaN(spec.Speed) || math.IsNaN(spec.Target) {
		return nil, fmt.Errorf("%w: profile speed is NaN", dynamo.ErrParameterBounds)
	}
	if spec.Duration < 0 || spec.Start < 0 {
		return nil, fmt.Errorf("%w: profile start/duration must be >= 0", dynamo.ErrParameterBounds)
	}

	switch strings.ToLower(spec.Kind) {
	case "", "constant":
		return Constant(spec.Speed), nil
	case "ramp":
		return Ramp{From: spec.Speed, To: spec.Target, Start: spec.Start, Duration: spec.Duration}, nil
	case "step":
		return Step{Before: spec.Speed, After: spec.Target, At: spec.Start}, nil
	case "reversal":
		return Reversal{Magnitude: spec.Speed, At: spec.Start, Duration: spec.Duration}, nil
	default:
		return nil, fmt.Errorf("unknown speed profile %q", spec.Kind)
	}
}

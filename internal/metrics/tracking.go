package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/sensorless/internal/sim"
)

// PositionError is the RMS electrical angle error in radians after Settle.
type PositionError struct {
	name   string
	Settle float64
	errs   []float64
}

func NewPositionError(settle float64) *PositionError {
	return &PositionError{name: "position_rms", Settle: settle}
}

func (p *PositionError) Name() string { return p.name }

func (p *PositionError) Observe(s sim.Sample) {
	if s.T < p.Settle {
		return
	}
	p.errs = append(p.errs, s.PositionError())
}

func (p *PositionError) Value() float64 {
	if len(p.errs) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(p.errs, p.errs) / float64(len(p.errs)))
}

// Max returns the largest absolute error seen after Settle.
func (p *PositionError) Max() float64 {
	if len(p.errs) == 0 {
		return 0
	}
	return math.Max(floats.Max(p.errs), -floats.Min(p.errs))
}

func (p *PositionError) Reset() { p.errs = p.errs[:0] }

// VelocityError is the mean absolute speed error relative to the mean
// absolute true speed, after Settle.
type VelocityError struct {
	name   string
	Settle float64
	errs   []float64
	speeds []float64
}

func NewVelocityError(settle float64) *VelocityError {
	return &VelocityError{name: "velocity_rel", Settle: settle}
}

func (v *VelocityError) Name() string { return v.name }

func (v *VelocityError) Observe(s sim.Sample) {
	if s.T < v.Settle {
		return
	}
	v.errs = append(v.errs, math.Abs(s.VelocityError()))
	v.speeds = append(v.speeds, math.Abs(s.TrueOmega))
}

// Value is the relative error, or the absolute error in rad/s when the rotor
// stood still.
func (v *VelocityError) Value() float64 {
	if len(v.errs) == 0 {
		return 0
	}
	meanErr := stat.Mean(v.errs, nil)
	meanSpeed := stat.Mean(v.speeds, nil)
	if meanSpeed < 1e-9 {
		return meanErr
	}
	return meanErr / meanSpeed
}

func (v *VelocityError) Reset() {
	v.errs = v.errs[:0]
	v.speeds = v.speeds[:0]
}

// LockTime is the time of the first sample from which the angle error stays
// within Band until the end of the run. It is -1 while the estimate is
// outside the band.
type LockTime struct {
	name   string
	Band   float64
	lockAt float64
	locked bool
}

func NewLockTime(band float64) *LockTime {
	return &LockTime{name: "lock_time", Band: band, lockAt: -1}
}

func (l *LockTime) Name() string { return l.name }

func (l *LockTime) Observe(s sim.Sample) {
	if math.Abs(s.PositionError()) > l.Band {
		l.locked = false
		l.lockAt = -1
		return
	}
	if !l.locked {
		l.locked = true
		l.lockAt = s.T
	}
}

func (l *LockTime) Value() float64 { return l.lockAt }

func (l *LockTime) Reset() {
	l.locked = false
	l.lockAt = -1
}

// LockRatio is the fraction of samples after Settle with the angle error
// inside Band.
type LockRatio struct {
	name    string
	Settle  float64
	Band    float64
	inside  int
	samples int
}

func NewLockRatio(settle, band float64) *LockRatio {
	return &LockRatio{name: "lock_ratio", Settle: settle, Band: band}
}

func (l *LockRatio) Name() string { return l.name }

func (l *LockRatio) Observe(s sim.Sample) {
	if s.T < l.Settle {
		return
	}
	l.samples++
	if math.Abs(s.PositionError()) <= l.Band {
		l.inside++
	}
}

func (l *LockRatio) Value() float64 {
	if l.samples == 0 {
		return 0
	}
	return float64(l.inside) / float64(l.samples)
}

func (l *LockRatio) Reset() {
	l.inside = 0
	l.samples = 0
}

package estimator

import "github.com/san-kum/sensorless/internal/dynamo"

// PLL tracks a noisy phase measurement with a position/velocity pair.
type PLL struct {
	period float64
	gains  Gains
	pos    float64 // (-pi, pi]
	vel    float64
}

func NewPLL(period float64, gains Gains) PLL {
	return PLL{period: period, gains: gains}
}

// Update runs one predict/correct cycle against the measured phase and
// returns the wrapped phase error that drove the correction.
func (p *PLL) Update(phase float64) float64 {
	p.Predict()

	delta := dynamo.WrapPmPi(phase - p.pos)
	p.pos = dynamo.WrapPmPi(p.pos + p.period*p.gains.Kp*delta)
	p.vel += p.period * p.gains.Ki * delta

	return delta
}

// Predict advances the position by one tick at the current velocity
// without a measurement.
func (p *PLL) Predict() {
	p.pos = dynamo.WrapPmPi(p.pos + p.period*p.vel)
}

func (p *PLL) Position() float64 { return p.pos }
func (p *PLL) Velocity() float64 { return p.vel }
func (p *PLL) Gains() Gains      { return p.gains }

// Stable reports whether period*Kp < 1.
func (p *PLL) Stable() bool {
	return p.gains.Stable(p.period)
}

func (p *PLL) Reset() {
	p.pos = 0
	p.vel = 0
}

package metrics

import (
	"math"

	"github.com/san-kum/sensorless/internal/sim"
)

// ControlEffort is the mean commanded voltage magnitude.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s sim.Sample) {
	c.sum += math.Hypot(s.VAlpha, s.VBeta)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// CopperLoss integrates the winding loss 1.5*R*|i|^2 in joules. Samples are
// assumed evenly spaced; the first one only sets the time origin.
type CopperLoss struct {
	name       string
	resistance float64
	energy     float64
	prevT      float64
	first      bool
}

func NewCopperLoss(resistance float64) *CopperLoss {
	return &CopperLoss{name: "copper_loss", resistance: resistance, first: true}
}

func (c *CopperLoss) Name() string { return c.name }

func (c *CopperLoss) Observe(s sim.Sample) {
	if c.first {
		c.prevT = s.T
		c.first = false
		return
	}
	power := 1.5 * c.resistance * (s.IAlpha*s.IAlpha + s.IBeta*s.IBeta)
	c.energy += power * (s.T - c.prevT)
	c.prevT = s.T
}

func (c *CopperLoss) Value() float64 { return c.energy }

func (c *CopperLoss) Reset() {
	c.energy = 0
	c.first = true
}

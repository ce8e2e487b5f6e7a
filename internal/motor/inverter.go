package motor

import (
	"math"
	"math/rand"
)

// Inverter models the PWM stage as a two-stage pipeline. A command issued at
// tick N waits in the compare registers, is latched at tick N+1 and drives
// the windings over (N+1, N+2].
type Inverter struct {
	BusVoltage float64

	pending [2]float64
	applied [2]float64
}

func NewInverter(busVoltage float64) *Inverter {
	return &Inverter{BusVoltage: busVoltage}
}

// MaxVoltage is the largest alpha-beta magnitude reachable with space
// vector modulation without overmodulation.
func (inv *Inverter) MaxVoltage() float64 {
	return inv.BusVoltage / math.Sqrt(3)
}

// Command queues v, clamped to the modulation circle, and returns the value
// actually queued.
func (inv *Inverter) Command(v [2]float64) [2]float64 {
	limit := inv.MaxVoltage()
	if mag := math.Hypot(v[0], v[1]); inv.BusVoltage > 0 && mag > limit {
		scale := limit / mag
		v[0] *= scale
		v[1] *= scale
	}
	inv.pending = v
	return v
}

// Latch moves the queued command onto the output stage. Call it before
// Command within a tick.
func (inv *Inverter) Latch() {
	inv.applied = inv.pending
}

func (inv *Inverter) Applied() [2]float64 { return inv.applied }

func (inv *Inverter) Reset() {
	inv.pending = [2]float64{}
	inv.applied = [2]float64{}
}

// CurrentSensor samples phase B and C through shunt amplifiers and an ADC.
// Phase A is not measured; the estimator infers it from i_a+i_b+i_c = 0.
type CurrentSensor struct {
	NoiseStd float64 // [A] per phase, gaussian
	Quantum  float64 // [A] per ADC count, 0 disables quantization

	seed int64
	rng  *rand.Rand
}

func NewCurrentSensor(noiseStd, quantum float64, seed int64) *CurrentSensor {
	return &CurrentSensor{
		NoiseStd: noiseStd,
		Quantum:  quantum,
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Sample converts the alpha-beta current to phase B and C readings.
func (s *CurrentSensor) Sample(iAlpha, iBeta float64) (phB, phC float64) {
	half := math.Sqrt(3) / 2
	phB = -0.5*iAlpha + half*iBeta
	phC = -0.5*iAlpha - half*iBeta
	return s.read(phB), s.read(phC)
}

func (s *CurrentSensor) read(i float64) float64 {
	if s.NoiseStd > 0 {
		i += s.rng.NormFloat64() * s.NoiseStd
	}
	if s.Quantum > 0 {
		i = math.Round(i/s.Quantum) * s.Quantum
	}
	return i
}

// Reset restarts the noise sequence from the original seed.
func (s *CurrentSensor) Reset() {
	s.rng = rand.New(rand.NewSource(s.seed))
}

package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/sensorless/internal/sim"
)

// TrackingErrors returns the wrapped angle error and the speed error of
// every sample.
func TrackingErrors(samples []sim.Sample) (pos, vel []float64) {
	pos = make([]float64, len(samples))
	vel = make([]float64, len(samples))
	for i, s := range samples {
		pos[i] = s.PositionError()
		vel[i] = s.VelocityError()
	}
	return pos, vel
}

// SettleIndex returns the first index from which every |errs[i]| <= band,
// or -1 if the last value is outside the band.
func SettleIndex(errs []float64, band float64) int {
	idx := -1
	for i := len(errs) - 1; i >= 0; i-- {
		if math.Abs(errs[i]) > band {
			break
		}
		idx = i
	}
	return idx
}

type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	RMS    float64 `json:"rms"`
	MaxAbs float64 `json:"max_abs"`
}

func describe(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		std = 0
	}
	return Stats{
		Mean:   mean,
		StdDev: std,
		RMS:    math.Sqrt(floats.Dot(x, x) / float64(len(x))),
		MaxAbs: math.Max(floats.Max(x), -floats.Min(x)),
	}
}

// Summary describes the tracking error of one run after its settle time.
type Summary struct {
	Samples  int     `json:"samples"`
	Settle   float64 `json:"settle"`
	Position Stats   `json:"position"`  // [rad]
	Velocity Stats   `json:"velocity"`  // [rad/s]
	LockTime float64 `json:"lock_time"` // [s], -1 if never locked
}

// Summarize computes error statistics over samples with T >= settle and the
// lock time against band over the whole run.
func Summarize(samples []sim.Sample, settle, band float64) Summary {
	pos, vel := TrackingErrors(samples)

	start := len(samples)
	for i, s := range samples {
		if s.T >= settle {
			start = i
			break
		}
	}

	sum := Summary{
		Samples:  len(samples) - start,
		Settle:   settle,
		Position: describe(pos[start:]),
		Velocity: describe(vel[start:]),
		LockTime: -1,
	}
	if idx := SettleIndex(pos, band); idx >= 0 {
		sum.LockTime = samples[idx].T
	}
	return sum
}

package metrics

import (
	"math"

	"github.com/san-kum/sensorless/internal/sim"
)

// LockBand is the angle error below which the estimate counts as locked.
const LockBand = 5 * math.Pi / 180

// Standard returns the metric set every run reports.
func Standard(settle, fluxLinkage, resistance float64) []sim.Metric {
	return []sim.Metric{
		NewPositionError(settle),
		NewVelocityError(settle),
		NewLockTime(LockBand),
		NewLockRatio(settle, LockBand),
		NewFluxMagnitude(settle, fluxLinkage),
		NewControlEffort(),
		NewCopperLoss(resistance),
	}
}

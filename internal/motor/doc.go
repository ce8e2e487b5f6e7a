// Package motor simulates the plant seen by the estimator: a surface PMSM in
// the stationary frame, the inverter latch and the phase current sensors.
package motor

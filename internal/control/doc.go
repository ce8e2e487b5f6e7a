// Package control provides the drives that excite the motor while the
// estimator runs.
//
// A drive implements [dynamo.Controller]: it reads the true plant state
// sampled at the end of a tick and returns [v_alpha, v_beta, load_torque].
// The voltage is queued in the inverter and reaches the windings one tick
// later, so drives that follow the rotor lead their angle accordingly.
//
//   - [FeedForward]: holds a rotating current vector at a fixed amplitude
//     and load angle to the true rotor angle (sensored reference drive)
//   - [VoltsPerHertz]: open-loop rotating voltage ramped to a target speed
//   - [None]: coast with zero volts
//
// Drives implementing [dynamo.Configurable] support live tuning.
package control

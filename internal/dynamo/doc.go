// Package dynamo provides the numeric primitives shared by the estimator and
// the motor simulation.
//
// The package defines:
//
//   - [State]: vector representing plant state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Controller]: produces the command vector for the next tick
//   - [WrapPmPi] and [FastAtan2]: angle helpers used on every control tick
//   - [TrigTable]: sin/cos lookup for command-vector rotation
//
// # Angles
//
// Electrical angles are kept in (-pi, pi]. [WrapPmPi] maps any finite value
// into that interval and is applied after every update that can leave it.
//
// # Thread Safety
//
// Nothing in this package holds mutable shared state except [TrigTable],
// which is read-only after construction. [ParallelFor] fans work out to
// goroutines for parameter sweeps; each worker must own its own plant and
// estimator.
package dynamo

// Package estimator implements a sensorless rotor-state estimator for a
// surface permanent-magnet synchronous motor.
//
// Once per control tick the [Estimator] takes two measured phase currents
// and the stationary-frame voltage the control loop commanded, and returns
// the electrical rotor position, velocity and the raw observer phase. No
// encoder or resolver is involved.
//
// The estimate is built in two stages:
//
//   - [FluxObserver]: integrates the stator voltage equation in the
//     alpha-beta frame and corrects the result with a quadratic feedback term
//     that pulls the estimated magnet flux magnitude toward the known one
//     (Lee, Hong, Nam, Ortega, Praly, Astolfi; IEEE TPEL 2010, eqn 8).
//   - [PLL]: a second order tracking loop that filters the observer phase
//     into position and velocity. Gains are derived from a bandwidth with
//     critical damping ([NewGains]) and never change at runtime.
//
// # Timing
//
// The voltage passed with tick N is consumed by the flux integration at tick
// N+2. Between the two the inverter latches the command for one PWM period
// and the current sampled at N+2 is the first one to reflect it.
//
// # Errors
//
// The only runtime failure is [ErrTimingViolation]: SamplePeriod*Kp >= 1
// makes the discrete PLL unstable. The tick is aborted with no state change
// and no outputs written, and the error goes to the [ErrorReporter] if one is
// set.
//
// Bad input never produces a NaN estimate. The flux correction may shrink
// the estimate down to the magnet flux but never past it, so large voltages
// cannot make it diverge. A tick whose measurement still yields a non-finite
// flux is dropped and the PLL coasts through it.
//
// # Concurrency
//
// An Estimator belongs to one motor axis and must not be updated from two
// goroutines at once. Update does not allocate on the success path.
package estimator

// Package viz renders a running estimator in the terminal.
//
// [Model] is a Bubble Tea program that steps a [sim.Simulator] a batch of
// ticks per frame and draws a rotor dial on a Braille [Canvas]: the long
// needle is the true electrical angle, the short one the estimate. Beside it
// are the tracking numbers, the lock status and an asciigraph trace of the
// angle error.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Restart the run
//	+/-   - Double/halve ticks per frame
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz

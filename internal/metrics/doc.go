// Package metrics scores an estimator run. Every metric implements
// sim.Metric; errors are measured on the electrical angle and speed, and
// most metrics ignore samples before a settle time so the start-up
// transient does not dominate.
package metrics

package estimator

import (
	"errors"
	"fmt"
	"log"
)

var (
	// ErrTimingViolation indicates SamplePeriod*Kp >= 1. It is a calibration
	// defect: the tick is aborted and nothing is retried.
	ErrTimingViolation = errors.New("estimator: calibration timing violation")

	// ErrInvalidConfig indicates a Config that fails Validate.
	ErrInvalidConfig = errors.New("estimator: invalid configuration")
)

// TimingError carries the offending period and gain of a timing violation.
type TimingError struct {
	SamplePeriod float64
	Kp           float64
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("%v: sample_period*kp = %.4g (sample_period=%g s, kp=%g rad/s), must be < 1",
		ErrTimingViolation, e.SamplePeriod*e.Kp, e.SamplePeriod, e.Kp)
}

func (e *TimingError) Unwrap() error {
	return ErrTimingViolation
}

// ErrorReporter is the external fault channel. The estimator reports every
// failed tick to it before returning the error.
type ErrorReporter interface {
	ReportError(err error)
}

// ReporterFunc adapts a plain function to ErrorReporter.
type ReporterFunc func(err error)

func (f ReporterFunc) ReportError(err error) { f(err) }

// LogReporter writes faults to a logger, tagged with the axis name.
type LogReporter struct {
	Logger *log.Logger
	Axis   string
}

func (r LogReporter) ReportError(err error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("axis %s: %v", r.Axis, err)
}

package model

import "errors"

var (
	// ErrInsufficientData means there were too few observations or bursts to
	// compute a result. It is never replaced by a zero-valued measurement.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoPeriodicity means the cycle detector could not settle on any
	// candidate. It is fatal to TAS analysis for the run.
	ErrNoPeriodicity = errors.New("no periodicity found")

	// ErrCycleTooLong means the cycle does not fit a GCL duration field.
	ErrCycleTooLong = errors.New("cycle length exceeds gcl duration range")
)

package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientData is returned when a computation needs more observations than exist.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNoBaseline is returned when a (city, season) pair was never observed.
	ErrNoBaseline = errors.New("no baseline")
	// ErrInconclusiveBaseline is returned when the baseline standard deviation is undefined.
	ErrInconclusiveBaseline = errors.New("inconclusive baseline")
	// ErrInvalidMonth is returned for months outside 1..12.
	ErrInvalidMonth = errors.New("invalid month")
	// ErrInvalidWindow is returned for rolling windows smaller than 2.
	ErrInvalidWindow = errors.New("invalid rolling window")
)

// ValidationError describes a rejected input record.
// Record is the 1-based position of the record in its input (the line number for CSV input).
type ValidationError struct {
	Record int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("record %d: %s: %s", e.Record, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

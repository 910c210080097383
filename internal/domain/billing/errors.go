package billing

import (
	"errors"
	"strings"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrMismatchedCount = errors.New("number of treatments and rooms do not match")
	ErrMalformedRate   = errors.New("billing rate has a non-numeric cost")
)

// NoRateError lists every treatment/room pair without a billing rate.
type NoRateError struct {
	Pairs []Pair
}

func (e *NoRateError) Error() string {
	parts := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		parts[i] = p.Treatment + " + " + p.Room
	}
	return "no billing found for " + strings.Join(parts, ", ")
}

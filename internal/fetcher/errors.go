package fetcher

import (
	"errors"

	"quoteboard/internal/snapshot"
)

// FailureMessage is the one message consumers see for any HardFailure.
const FailureMessage = "Failed to fetch stock data"

var (
	ErrMissingCredential = errors.New("missing provider credential")
	ErrNoSymbols         = errors.New("no symbols configured")
	ErrPanic             = errors.New("fetch cycle panicked")
)

// Skip is a per-symbol soft failure. It narrows the snapshot but never fails the cycle.
type Skip = snapshot.Skip

// CycleError is a HardFailure: the whole cycle produced no snapshot.
type CycleError struct {
	Err error
}

func (e *CycleError) Error() string {
	if e.Err == nil {
		return "fetch cycle failed"
	}
	return "fetch cycle failed: " + e.Err.Error()
}

func (e *CycleError) Unwrap() error { return e.Err }

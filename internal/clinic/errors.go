package clinic

import "errors"

// Error kinds surfaced by the engine. Callers match with errors.Is; every
// failure returned by a service wraps exactly one of these.
var (
	// ErrNotFound means a referenced entity does not resolve.
	ErrNotFound = errors.New("clinic: not found")
	// ErrSchedulingConflict means a requested interval overlaps a committed one.
	ErrSchedulingConflict = errors.New("clinic: scheduling conflict")
	// ErrInvalidTransition means an illegal appointment status change.
	ErrInvalidTransition = errors.New("clinic: invalid status transition")
	// ErrInvalidState means the operation is disallowed given current aggregate
	// state, e.g. deleting a doctor with appointments or billing a cancelled one.
	ErrInvalidState = errors.New("clinic: invalid state")
	// ErrInvalidAmount means a non-positive payment amount or quantity.
	ErrInvalidAmount = errors.New("clinic: invalid amount")
	// ErrMismatch means a cross-entity relationship was violated.
	ErrMismatch = errors.New("clinic: entity mismatch")
	// ErrConflict means a concurrent-write race detected by the storage layer;
	// retried internally a bounded number of times before surfacing.
	ErrConflict = errors.New("clinic: write conflict")
	// ErrUnavailable means the persistence layer is unreachable.
	ErrUnavailable = errors.New("clinic: storage unavailable")
)

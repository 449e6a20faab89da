package core

import "errors"

// Sentinel errors for the ledger write path. Validation sentinels live in
// domain.go next to the rules they guard.
var (
	// ErrMovementNotFound is returned when a delete references an
	// identifier that does not exist (including a second delete of the
	// same identifier).
	ErrMovementNotFound = errors.New("movement not found")

	// ErrBalanceMissing signals that a delete found no balance register.
	// The register is created by the first add, so its absence while a
	// movement exists means prior corruption; it is surfaced, never
	// defaulted to zero.
	ErrBalanceMissing = errors.New("balance not found")

	// ErrSummaryMissing signals that a delete found no period summary for
	// the movement being removed. Same corruption class as
	// ErrBalanceMissing: the summary row is written by the add that wrote
	// the movement.
	ErrSummaryMissing = errors.New("period summary not found")
)

// IsInconsistent reports whether err indicates a derived store (balance or
// summary) that should exist but does not.
func IsInconsistent(err error) bool {
	return errors.Is(err, ErrBalanceMissing) || errors.Is(err, ErrSummaryMissing)
}

// IsValidation reports whether err is one of the input validation errors,
// which are rejected before any store is touched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidPageSize) ||
		errors.Is(err, ErrInvalidCursor) ||
		errors.Is(err, ErrObservationsTooLong)
}

/*
errors.go - Centralized error types for the fee engine

ERROR CATEGORIES:
  1. NotFound        - referenced student/class/structure/assignment absent
  2. InvalidArgument - malformed month, negative values, percentage > 100
  3. Conflict        - duplicate charge assignment, history version race

PROPAGATION POLICY:
  Structural/input errors are rejected before any computation begins.
  A student with no applicable fee structure is NOT an error - it is a
  silent skip reflected only in the batch counters. Callers never see raw
  database errors; stores translate constraint violations into the
  sentinels below.

USAGE:
  if fees.IsConflict(err) { ... retry or surface 409 ... }
*/
package fees

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is the root of all input validation failures.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrClassNotFound is returned when a compute scope names an unknown class.
	ErrClassNotFound = errors.New("class not found")

	// ErrStructureNotFound is returned when a referenced fee structure doesn't exist.
	ErrStructureNotFound = errors.New("fee structure not found")

	// ErrHistoryNotFound is returned by ledger reads with no matching entry.
	ErrHistoryNotFound = errors.New("fee history not found")

	// ErrDuplicateCharge is returned when a charge assignment already exists
	// for the same (charge, student, month).
	ErrDuplicateCharge = errors.New("duplicate charge assignment")

	// ErrVersionConflict is returned when two computations race on the same
	// (student, month) and both try to append the same version number.
	// The engine retries once on this error.
	ErrVersionConflict = errors.New("history version conflict")

	// ErrVersionOrder is returned when a structure revision would break the
	// monotonic version / non-decreasing effective-from invariant.
	ErrVersionOrder = errors.New("structure version out of order")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// DuplicateChargeError reports a charge uniqueness violation.
type DuplicateChargeError struct {
	ChargeID   ChargeID
	StudentID  StudentID
	Month      Month
	ExistingID string
}

func (e *DuplicateChargeError) Error() string {
	return fmt.Sprintf("charge %s already assigned to %s for %s (assignment: %s)",
		e.ChargeID, e.StudentID, e.Month, e.ExistingID)
}

func (e *DuplicateChargeError) Unwrap() error { return ErrDuplicateCharge }

// VersionConflictError reports a lost race on a history append.
type VersionConflictError struct {
	StudentID StudentID
	Month     Month
	Version   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version %d already exists for %s/%s", e.Version, e.StudentID, e.Month)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrStructureNotFound) ||
		errors.Is(err, ErrHistoryNotFound)
}

// IsInvalidArgument returns true if the error is due to malformed input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsConflict returns true for uniqueness/race violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCharge) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrVersionOrder)
}

/*
errors.go - Error taxonomy for settlement computations

ERROR CATEGORIES:
  1. Not found     - a required price, vehicle or prerequisite row is missing.
                     Propagated to the caller of that single computation.
  2. Batch failure - one vehicle failed inside a multi-vehicle run. Recorded
                     in BatchResult and the run continues.
  3. Fatal         - the run cannot start at all (no active vehicles, store
                     unreachable). The whole batch aborts.
  4. Advisory      - a lease or task guard is already held. Callers skip.

Skip conditions (short history, no attendance row, no prior fuel balance)
are not errors; they resolve to a benign default inside the computation.
*/
package settlement

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPriceNotFound is returned when no price is effective on or before the
	// requested date. Fees are never defaulted to zero.
	ErrPriceNotFound = errors.New("price not found")

	// ErrVehicleNotFound is returned when a (machinery_type, vehicle_no) is unknown.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrSettlementMissing is returned when a step needs the day's settlement
	// row and it has not been generated yet.
	ErrSettlementMissing = errors.New("daily settlement not found")

	// ErrAlreadyRecorded is returned when an append-only row already exists.
	ErrAlreadyRecorded = errors.New("already recorded")

	// ErrNoActiveVehicles aborts a batch: there is nothing to compute.
	ErrNoActiveVehicles = errors.New("no active vehicles")

	// ErrLeaseHeld is returned when another run holds the lease for the same work.
	ErrLeaseHeld = errors.New("lease held by another run")

	// ErrPersonNotFound is returned when a personnel id is unknown.
	ErrPersonNotFound = errors.New("person not found")

	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidKey is returned for malformed keys (unknown machinery type, empty vehicle no).
	ErrInvalidKey = errors.New("invalid settlement key")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// PriceNotFoundError names the category and date that had no effective price.
type PriceNotFoundError struct {
	Category PriceCategory
	AsOf     Date
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("no %s price effective on or before %s", e.Category, e.AsOf)
}

func (e *PriceNotFoundError) Unwrap() error { return ErrPriceNotFound }

// VehicleFailure records why one vehicle failed inside a batch.
type VehicleFailure struct {
	Vehicle VehicleRef
	Err     error
}

func (e *VehicleFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Vehicle, e.Err)
}

func (e *VehicleFailure) Unwrap() error { return e.Err }

// BatchError summarizes the failed vehicles of a batch.
type BatchError struct {
	Operation string
	Failures  []VehicleFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %d vehicle(s) failed: %s", e.Operation, len(e.Failures), strings.Join(parts, "; "))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing price, vehicle, person or prerequisite row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPriceNotFound) ||
		errors.Is(err, ErrVehicleNotFound) ||
		errors.Is(err, ErrSettlementMissing) ||
		errors.Is(err, ErrPersonNotFound) ||
		errors.Is(err, ErrAlertNotFound)
}

// IsSkip returns true if a batch should count the vehicle as skipped rather than failed.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSettlementMissing) || errors.Is(err, ErrAlreadyRecorded)
}

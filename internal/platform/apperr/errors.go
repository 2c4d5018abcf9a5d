// Package apperr centralises the error kinds shared across the clinical and
// billing domain packages. Domain code wraps these sentinels with context via
// fmt.Errorf and %w; handlers classify them with the Is* helpers to pick an
// HTTP status.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed references and missing
	// required fields, detected before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a status edge is not in the
	// allowed transition set.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStatusMismatch is returned when the persisted status differs from
	// the status the caller read, indicating a stale read. Retryable after
	// re-reading current state.
	ErrStatusMismatch = errors.New("status mismatch")

	// ErrBusinessRule is returned for business rule violations (already
	// paid, wrong status for the operation, and similar). Not retryable
	// without changing the request.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrAmountMismatch is returned when a paid amount deviates from the
	// charge's actual amount by more than the tolerance.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrInsufficientStock is returned when a stock decrement would take
	// quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrIdempotencyConflict is returned when a transaction number is
	// reused with a different outcome than the recorded one.
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrConcurrentModification is returned when an optimistic version
	// check fails. The caller decides whether to re-read and retry; the
	// core never retries internally.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInconsistentState is returned when stored data violates a
	// cross-entity invariant (e.g. a paid registration without a paid
	// charge). Indicates corruption, not caller error.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrInfrastructure is returned for storage and identifier-generation
	// failures. Retryable; never converted into a business error.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// InvalidTransitionError reports an illegal status edge with both endpoints.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s status transition %s -> %s is not allowed", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// StatusMismatchError reports a stale status read: the caller expected From
// but the row currently holds Actual.
type StatusMismatchError struct {
	Entity   string
	Expected string
	Actual   string
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("%s status is %s, expected %s", e.Entity, e.Actual, e.Expected)
}

func (e *StatusMismatchError) Unwrap() error { return ErrStatusMismatch }

// InsufficientStockError carries the current and requested quantities so the
// caller can render an actionable message.
type InsufficientStockError struct {
	MedicineID string
	Current    int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s: have %d, need %d",
		e.MedicineID, e.Current, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// AmountMismatchError reports a payment amount outside the tolerance.
type AmountMismatchError struct {
	Expected  decimal.Decimal
	Paid      decimal.Decimal
	Tolerance decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("expected <=%s difference, got paid=%s expected=%s",
		e.Tolerance, e.Paid, e.Expected)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// IsRetryable reports whether the operation might succeed if retried as-is
// after re-reading current state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStatusMismatch) ||
		errors.Is(err, ErrInfrastructure)
}

// IsClientError reports whether the failure is attributable to the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBusinessRule) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrIdempotencyConflict)
}

// IsNotFound reports whether the failure indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

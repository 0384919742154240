// Package service implements the circulation policy engine: the rules
// governing when a patron may borrow, how reservations queue and
// expire, and how returning an item triggers fines and suspensions.
// Every mutating operation runs as a single transaction guarded by an
// engine-wide lock, so no operation observes another mid-flight.
package service

import (
	"errors"
	"fmt"

	"github.com/rferraz/library-circulation/internal/repository"
)

// Reason codes carried by PolicyError.  The HTTP layer forwards them
// verbatim so the UI can show an actionable message.
const (
	ReasonSuspended          = "suspended"
	ReasonLoanLimit          = "loan_limit"
	ReasonElectronicLimit    = "electronic_limit"
	ReasonNoCopyAvailable    = "no_copy_available"
	ReasonCopyAvailable      = "copy_available" // reserving an item that can simply be borrowed
	ReasonNotReady           = "not_ready"
	ReasonReservationExpired = "reservation_expired"
	ReasonAlreadyReserved    = "already_reserved"
)

// PolicyError reports a named business rule failure.  It is never
// retried automatically; the caller must change the preconditions.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "policy violation: " + e.Reason }

func policyErr(reason string) error { return &PolicyError{Reason: reason} }

// StorageError wraps a failure of the persistence layer.  It is not a
// business error: the operation aborted with no partial state change.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// wrapStorage classifies an error crossing the engine boundary.
// Domain errors (not-found, conflict, policy violations) pass through
// untouched; anything else is a storage failure.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var pe *PolicyError
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) || errors.As(err, &pe) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Err: fmt.Errorf("circulation: %w", err)}
}

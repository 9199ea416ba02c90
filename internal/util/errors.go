// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
)

// Common application-specific errors.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input provided")
	ErrDuplicateEntry  = errors.New("duplicate entry")  // unique idempotency key already taken
	ErrVersionConflict = errors.New("version conflict") // concurrent state write lost the race
	ErrWalletExists    = errors.New("WALLET_EXISTS")
	ErrCurrencyInvalid = errors.New("CURRENCY_INVALID")
	ErrOrderCancelled  = errors.New("order payment already cancelled")
)

// IsError reports whether err matches the target error.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// StateConflictError signals a transition attempted from an illegal source
// state. It carries the offending state so callers can report it.
type StateConflictError struct {
	State string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot be fulfilled as state is %s", e.State)
}

// IsStateConflict reports whether err is a state-conflict error.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// ReconciliationError signals that the held amounts do not match the order
// total within the settlement tolerance.
type ReconciliationError struct {
	Remaining int64 // minor units left unexplained
	Currency  string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("TOTAL_AMOUNT_MISMATCH: %d %s unaccounted for", e.Remaining, e.Currency)
}

// IsReconciliationError reports whether err is a total-mismatch error.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}

// UpstreamError wraps a failed downstream call. Name carries the downstream
// error classification when the service reported one.
type UpstreamError struct {
	Service string
	Name    string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s call failed: %s (status %d)", e.Service, e.Name, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InterserviceErrorName is the downstream classification for failures between
// the payment processor and the third-party authorizer.
const InterserviceErrorName = "INTERSERVICE_ERROR"

// IsInterserviceError reports whether err is an upstream failure the payment
// processor attributed to the third-party side.
func IsInterserviceError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Name == InterserviceErrorName
}

package models

import (
	"errors"
	"fmt"
)

// ErrStateNotMatched is returned by stores when a conditional write matched no
// document: either the record is gone or it is no longer in the expected
// state. Callers re-fetch to decide which.
var ErrStateNotMatched = errors.New("no document matched the expected state")

// ValidationError flags malformed or out-of-bounds input. Nothing is
// persisted; the caller can correct the payload and retry.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError flags a role or branch mismatch. No state changes.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// NewAuthorizationError builds an AuthorizationError from a format string.
func NewAuthorizationError(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

// StateConflictError flags a transition attempted from the wrong status. The
// stored record is left untouched.
type StateConflictError struct {
	Current  Status
	Required Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("requisition is %q, operation requires %q", e.Current, e.Required)
}

// NotFoundError flags a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// TransferFailedError is returned when every item of a stock transfer failed.
// The requisition stays in-transit so the receive can be retried.
type TransferFailedError struct {
	Report *StockTransferReport
}

func (e *TransferFailedError) Error() string {
	n := 0
	if e.Report != nil {
		n = len(e.Report.Failed)
	}
	return fmt.Sprintf("stock transfer failed for all %d items", n)
}

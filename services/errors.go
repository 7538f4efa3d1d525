package services

import (
	"errors"
	"fmt"

	"refund-review-api/store"
)

// ErrorKind classifies failures reported to callers of the review core.
type ErrorKind string

const (
	KindAccessDenied   ErrorKind = "access_denied"
	KindScopeViolation ErrorKind = "scope_violation"
	KindNotFound       ErrorKind = "not_found"
	KindUnavailable    ErrorKind = "unavailable"
	KindPartialWrite   ErrorKind = "partial_write"
	KindInvalidInput   ErrorKind = "invalid_input"
)

// ReviewError carries a kind, the failing operation and a reason fit for display.
type ReviewError struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error

	// Set for KindPartialWrite.
	PrimaryCommitted bool
	AuditCommitted   bool
}

var (
	ErrAccessDenied   = &ReviewError{Kind: KindAccessDenied}
	ErrScopeViolation = &ReviewError{Kind: KindScopeViolation}
	ErrNotFound       = &ReviewError{Kind: KindNotFound}
	ErrUnavailable    = &ReviewError{Kind: KindUnavailable}
	ErrPartialWrite   = &ReviewError{Kind: KindPartialWrite}
	ErrInvalidInput   = &ReviewError{Kind: KindInvalidInput}
)

func (e *ReviewError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReviewError) Unwrap() error { return e.Err }

// Is matches sentinels by kind. A scope violation also matches ErrAccessDenied.
func (e *ReviewError) Is(target error) bool {
	t, ok := target.(*ReviewError)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindAccessDenied && e.Kind == KindScopeViolation
}

// DisplayReason is the message shown to the reviewer.
func (e *ReviewError) DisplayReason() string {
	if e.Reason != "" {
		return e.Reason
	}
	switch e.Kind {
	case KindAccessDenied:
		return "You do not have permission to perform this action"
	case KindScopeViolation:
		return "This record is outside your review scope"
	case KindNotFound:
		return "Record not found"
	case KindUnavailable:
		return "The review store is unavailable, please retry"
	case KindPartialWrite:
		return "The change was saved but its audit entry was not recorded"
	case KindInvalidInput:
		return "Invalid request"
	}
	return "Unexpected error"
}

func denied(op, reason string) error {
	return &ReviewError{Kind: KindAccessDenied, Op: op, Reason: reason}
}

func outOfScope(op string) error {
	return &ReviewError{Kind: KindScopeViolation, Op: op, Reason: "This record is outside your review scope"}
}

func invalid(op, format string, args ...interface{}) error {
	return &ReviewError{Kind: KindInvalidInput, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// fromStore maps a store error onto the review taxonomy.
func fromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *ReviewError
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return &ReviewError{Kind: KindNotFound, Op: op, Reason: "Record not found", Err: err}
	}
	return &ReviewError{Kind: KindUnavailable, Op: op, Reason: "The review store is unavailable, please retry", Err: err}
}

// ReasonOf extracts a display reason from any error.
func ReasonOf(err error) string {
	var re *ReviewError
	if errors.As(err, &re) {
		return re.DisplayReason()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" when it is not a ReviewError.
func KindOf(err error) ErrorKind {
	var re *ReviewError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

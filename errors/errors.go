// Package errors provides error handling for flowstate.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Markers that survive wrapping (used for the store's error taxonomy)
//
// Usage:
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Classify a backing-store failure
//	return errors.NewPersistenceError(err, "failed to update execution %d", id)
//
//	// Check errors
//	if errors.IsNotFoundError(err) {
//	    // stale or invalid identity
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef

	WithSecondaryError = crdb.WithSecondaryError
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	Mark          = crdb.Mark
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Sentinel errors forming the store's error taxonomy.
// Use these with errors.Is() for type-safe error checking.
var (
	// ErrNotFound indicates a point lookup found nothing where absence is meaningful
	ErrNotFound = New("not found")

	// ErrPersistence indicates a backing-store failure, an encode/decode failure
	// or an integrity violation
	ErrPersistence = New("persistence failure")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsPersistenceError checks if an error is or is marked as ErrPersistence.
func IsPersistenceError(err error) bool {
	return err != nil && Is(err, ErrPersistence)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error is or is marked as ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// NewPersistenceError wraps cause with a formatted context message and marks
// the result as ErrPersistence. The original cause stays reachable through
// Is/As. A nil cause produces a fresh persistence error carrying only the message.
func NewPersistenceError(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return Mark(Newf(format, args...), ErrPersistence)
	}
	return Mark(Wrapf(cause, format, args...), ErrPersistence)
}

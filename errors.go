package singleton

import (
	"errors"
	"fmt"
)

// ------------------------------------------------------------
// STORE-ERROR

// StoreError wraps a backend failure with the operation that
// produced it. Classification goes through errors.Is on the
// wrapped error, so backends wrap ErrServiceUnavailable or
// ErrConflict when they recognize one.
type StoreError struct {
	Op   string // The store operation, i.e. "write-conditional"
	Key  string // The record name
	Attr string // The attribute, if the operation had one
	Err  error
}

func (e *StoreError) Error() string {
	msg := e.Op + " " + e.Key
	if e.Attr != "" {
		msg += "." + e.Attr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError answers a StoreError that classifies as kind
// (nil for Other) while keeping cause in the message.
func NewStoreError(op, key, attr string, kind, cause error) error {
	var err error
	switch {
	case kind != nil && cause != nil:
		err = fmt.Errorf("%w: %v", kind, cause)
	case kind != nil:
		err = kind
	default:
		err = cause
	}
	return &StoreError{Op: op, Key: key, Attr: attr, Err: err}
}

// ------------------------------------------------------------
// CLASSIFICATION

// IsUnavailable answers true if err is a transient infrastructure failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsConflict answers true if err is a failed write precondition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryExhausted answers true if err came from a RetryPolicy
// running out of attempts.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// ------------------------------------------------------------
// UTIL

// MustErr is a simple utility to panic on errors.
func MustErr(err error) {
	if err != nil {
		panic(err)
	}
}

// MergeErr answers the first non-nil error.
func MergeErr(err ...error) error {
	for _, e := range err {
		if e != nil {
			return e
		}
	}
	return nil
}

// ------------------------------------------------------------
// CONST and VAR

var (
	ErrServiceUnavailable = errors.New("Service unavailable")
	ErrConflict           = errors.New("Conflict")
	ErrRetryExhausted     = errors.New("Retry exhausted")

	ErrBadRequest      = errors.New("Bad request")
	ErrNotInitialized  = errors.New("Lock record not initialized")
	ErrMalformedRecord = errors.New("Lock record malformed")
	ErrNegativeCounter = errors.New("Counter value is negative")
	ErrOracleRequired  = errors.New("Liveness oracle is required")
	ErrSelfRequired    = errors.New("Node identifier is required")
	ErrStoreRequired   = errors.New("Store is required")
)

package model

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify a failure.
var (
	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBusinessRule means a member eligibility rule rejected the request.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrConflict means the request lost an inventory race or hit a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrInvariantViolation means an internal invariant would break; it signals a bug or corrupt data.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidArgument means the input is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is a domain failure with a human-readable message and a kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

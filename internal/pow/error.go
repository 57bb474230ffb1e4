// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrCanceled indicates a search ended without a result because it was
	// canceled, either by the caller or by the workers noticing their
	// candidate became stale.
	ErrCanceled = ErrorKind("ErrCanceled")

	// ErrFarmShutDown indicates a proof was requested from a farm that has
	// been shut down.
	ErrFarmShutDown = ErrorKind("ErrFarmShutDown")

	// ErrInvalidConfig indicates a farm setting is out of range.
	ErrInvalidConfig = ErrorKind("ErrInvalidConfig")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a proof-of-work error.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bma

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrNotFound indicates the node has no resource matching the request.
	ErrNotFound = ErrorKind("ErrNotFound")

	// ErrNotMember indicates the requested identity exists but is not a
	// member of the web of trust.
	ErrNotMember = ErrorKind("ErrNotMember")

	// ErrRejected indicates the node refused a posted document.
	ErrRejected = ErrorKind("ErrRejected")

	// ErrBadResponse indicates the node answered with an unexpected status
	// or a body that could not be decoded.
	ErrBadResponse = ErrorKind("ErrBadResponse")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a node API error.  It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for the error by
// checking the underlying error.
//
// UCode is the error code returned by the node, or zero when the node did not
// return one.
type Error struct {
	Err         error
	Description string
	UCode       int
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

// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrProofCanceled indicates a proof computation was canceled,
	// typically because a new block was received.  It is a control flow
	// signal rather than a failure.
	ErrProofCanceled = ErrorKind("ErrProofCanceled")

	// ErrNoSelfPubkey indicates the node has no key pair to issue blocks
	// with.
	ErrNoSelfPubkey = ErrorKind("ErrNoSelfPubkey")

	// ErrNotMember indicates the node key is not a member of the web of
	// trust and thus may not issue blocks.
	ErrNotMember = ErrorKind("ErrNotMember")

	// ErrNoRootBlock indicates the chain has no block yet.
	ErrNoRootBlock = ErrorKind("ErrNoRootBlock")

	// ErrTooHighDifficulty indicates the personalized difficulty of the
	// node exceeds the minimum difficulty by more than the accepted
	// handicap.
	ErrTooHighDifficulty = ErrorKind("ErrTooHighDifficulty")

	// ErrInvalidProof indicates a proven block failed its own consistency
	// check.
	ErrInvalidProof = ErrorKind("ErrInvalidProof")

	// ErrSelfSubmission indicates the node rejected a block it proved.
	ErrSelfSubmission = ErrorKind("ErrSelfSubmission")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a prover error.  It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for the error by
// checking the underlying error.
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

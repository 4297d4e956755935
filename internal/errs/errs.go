package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification callers can branch on.
type Kind string

const (
	NotFound               Kind = "not_found"
	InvalidStateTransition Kind = "invalid_state_transition"
	HandleMismatch         Kind = "handle_mismatch"
	InsufficientFunds      Kind = "insufficient_funds"
	InsufficientGas        Kind = "insufficient_gas"
	TransactionNotFound    Kind = "transaction_not_found"
	TransactionTimeout     Kind = "transaction_timeout"
	ChainExecutionFailed   Kind = "chain_execution_failed"
	AmountMismatch         Kind = "amount_mismatch"
	ChainSubmissionError   Kind = "chain_submission_error"
	Unparsable             Kind = "unparsable"
	Invalid                Kind = "invalid"
)

// Error pairs a Kind with a human-readable detail and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a classified error with a formatted detail.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

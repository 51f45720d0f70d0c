// Package errors provides the unified structured error type used across every
// layer of the evidence engine.  Every package returns *AppError rather than
// a bare error so that callers can branch on ErrorCode without parsing
// strings, and so logging middleware can attach a stable code as a metric
// label.
package errors

import (
	"errors"
	"fmt"
)

// AppError is the single structured error type used throughout the evidence
// engine.  It satisfies the standard error interface and supports Go 1.13+
// wrapping so errors.Is / errors.As / errors.Unwrap work across layers.
type AppError struct {
	// Code classifies the failure.
	Code ErrorCode

	// Message is the primary human-readable description.
	Message string

	// Detail carries supplementary context (a week id, a chunk id, a file
	// path) that aids debugging.
	Detail string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is / errors.As to
// traverse the chain.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// New constructs a fresh AppError with no underlying cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf constructs a fresh AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an AppError wrapping an existing error. If err is nil, Wrap
// returns nil so it can be used inline in a return statement. If err is
// already an *AppError and code is CodeUnknown, the original code is
// preserved so context can be layered on without losing classification.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf constructs an AppError wrapping err with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError in err's chain,
// returning CodeOK for a nil error and CodeUnknown when no *AppError is
// present.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

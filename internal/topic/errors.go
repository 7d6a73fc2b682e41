package topic

import (
	"errors"
	"fmt"
)

// Error is the error type raised at the edges of the reconciliation engine.
//
// None of these errors is fatal. Each one degrades to "state temporarily
// inconsistent with the server, corrected on the next successful sync".
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the affected job, if known.
	Name string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeMalformedEvent marks a stream message with bad JSON, an unknown
	// type tag, or missing required fields. The message is dropped.
	ErrCodeMalformedEvent ErrorCode = "MALFORMED_EVENT"

	// ErrCodeMalformedRecord marks a snapshot record that could not be
	// normalized. The record is skipped; the rest of the snapshot is used.
	ErrCodeMalformedRecord ErrorCode = "MALFORMED_RECORD"

	// ErrCodeInvalidInput marks a rejected submission. No state changed.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeTransportFailure marks a failed snapshot fetch, submit call, or
	// stream connection.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"

	// ErrCodeStaleUpdate marks a progress regression. Only used for
	// reporting; the store treats stale updates as an outcome, not an error.
	ErrCodeStaleUpdate ErrorCode = "STALE_UPDATE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg = fmt.Sprintf("%s (name=%q)", msg, e.Name)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewMalformedEvent creates an Error for an unusable stream message.
func NewMalformedEvent(message string, err error) *Error {
	return &Error{Code: ErrCodeMalformedEvent, Message: message, Err: err}
}

// NewMalformedRecord creates an Error for an unusable snapshot record.
func NewMalformedRecord(message string, err error) *Error {
	return &Error{Code: ErrCodeMalformedRecord, Message: message, Err: err}
}

// NewInvalidInput creates an Error for a rejected submission.
func NewInvalidInput(name, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Name: name}
}

// NewTransportFailure wraps a transport error.
func NewTransportFailure(message string, err error) *Error {
	return &Error{Code: ErrCodeTransportFailure, Message: message, Err: err}
}

// CodeOf returns the ErrorCode of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsMalformed reports whether err is a malformed event or record error.
func IsMalformed(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeMalformedEvent || code == ErrCodeMalformedRecord
}

// IsInvalidInput reports whether err is an invalid input error.
func IsInvalidInput(err error) bool {
	return CodeOf(err) == ErrCodeInvalidInput
}

// IsTransportFailure reports whether err is a transport failure.
func IsTransportFailure(err error) bool {
	return CodeOf(err) == ErrCodeTransportFailure
}

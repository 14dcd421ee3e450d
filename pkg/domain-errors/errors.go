// Package domainerrors provides coded errors for the verifyd domain.
//
// Services return these so transport layers can translate outcomes into
// HTTP responses without string matching. Stores return sentinel errors
// (pkg/platform/sentinel) and services wrap them with a code here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for API consumers.
type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeInvalidInput     Code = "invalid_input"
	CodeUnauthorized     Code = "unauthorized"
	CodeNotFound         Code = "not_found"
	CodeNotCertified     Code = "not_certified"
	CodeAlreadyCertified Code = "already_certified"
	CodeQuotaExceeded    Code = "quota_exceeded"
	CodeStampingFailed   Code = "stamping_failed"
	CodeSourceMissing    Code = "source_missing"
	CodeConflict         Code = "conflict"
	CodeInternal         Code = "internal_error"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
// Returns nil if err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or any error in its chain) carries the code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from an error chain.
// Unknown errors map to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf extracts the safe, user-facing message from an error chain.
// Unknown errors yield an empty message so internals never leak.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return ""
}

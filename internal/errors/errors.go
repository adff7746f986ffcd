// Package errors provides structured application errors for the normalize service.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an application error. The HTTP layer maps codes to
// response statuses.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
)

// AppError carries a code, a human-readable message, an optional cause, and
// for validation errors the offending field. It participates in errors.Is and
// errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not_found error.
func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

// NotFoundf creates a not_found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError { return Newf(ErrCodeNotFound, format, args...) }

// Conflict creates a conflict error.
func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

// Conflictf creates a conflict error with a formatted message.
func Conflictf(format string, args ...any) *AppError { return Newf(ErrCodeConflict, format, args...) }

// Validation creates a validation error.
func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a validation error tied to a specific input field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates an internal error.
func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *AppError { return Newf(ErrCodeInternal, format, args...) }

// Wrap attaches a code and message to err, preserving it as the cause.
// Returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// GetCode extracts the ErrorCode from err, or "" when err is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField extracts the validation field from err, or "" when absent.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// IsNotFound reports whether err carries ErrCodeNotFound.
func IsNotFound(err error) bool { return GetCode(err) == ErrCodeNotFound }

// IsConflict reports whether err carries ErrCodeConflict.
func IsConflict(err error) bool { return GetCode(err) == ErrCodeConflict }

// IsValidation reports whether err carries ErrCodeValidation.
func IsValidation(err error) bool { return GetCode(err) == ErrCodeValidation }

// IsInternal reports whether err carries ErrCodeInternal.
func IsInternal(err error) bool { return GetCode(err) == ErrCodeInternal }

// IsTimeout reports whether err carries ErrCodeTimeout.
func IsTimeout(err error) bool { return GetCode(err) == ErrCodeTimeout }

// IsCanceled reports whether err carries ErrCodeCanceled.
func IsCanceled(err error) bool { return GetCode(err) == ErrCodeCanceled }

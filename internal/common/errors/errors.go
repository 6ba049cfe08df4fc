package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies an application error kind.
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Identity errors
	ErrCodeIdentityNotFound ErrorCode = "IDENTITY_NOT_FOUND"
	ErrCodeBadCredentials   ErrorCode = "BAD_CREDENTIALS"
	ErrCodeHandleTaken      ErrorCode = "HANDLE_TAKEN"
	ErrCodeCorruptPassport  ErrorCode = "CORRUPT_PASSPORT"

	// Social graph errors
	ErrCodeTargetNotFound    ErrorCode = "TARGET_NOT_FOUND"
	ErrCodeAlreadyFriends    ErrorCode = "ALREADY_FRIENDS"
	ErrCodeAlreadyPending    ErrorCode = "ALREADY_PENDING"
	ErrCodePartialGraphWrite ErrorCode = "PARTIAL_GRAPH_WRITE"

	// Remote store errors. RemoteUnavailable is recoverable and triggers
	// the local-cache fallback; ServiceUnavailable means the fallback
	// also failed.
	ErrCodeRemoteUnavailable  ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// External API errors
	ErrCodeOracle ErrorCode = "ORACLE_ERROR"
)

// AppError is a typed application error.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether the error is a confirmed-absence outcome.
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeIdentityNotFound || e.Code == ErrCodeTargetNotFound
}

// IsUnavailable reports whether the error stems from an unreachable store.
func (e *AppError) IsUnavailable() bool {
	return e.Code == ErrCodeRemoteUnavailable || e.Code == ErrCodeServiceUnavailable
}

// WithDetail attaches detail information to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new application error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a new application error with formatting.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf wraps an existing error with formatting.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Convenience constructors for the common outcomes.

func NewIdentityNotFound(code string) *AppError {
	return Newf(ErrCodeIdentityNotFound, "citizen not found: %s", code).
		WithDetail("code", code)
}

func NewBadCredentials() *AppError {
	return New(ErrCodeBadCredentials, "access phrase mismatch")
}

func NewHandleTaken(handle string) *AppError {
	return Newf(ErrCodeHandleTaken, "handle already claimed: %s", handle).
		WithDetail("handle", handle)
}

func NewCorruptPassport(err error) *AppError {
	return Wrap(err, ErrCodeCorruptPassport, "corrupted passport data")
}

func NewTargetNotFound(code string) *AppError {
	return Newf(ErrCodeTargetNotFound, "target citizen not found: %s", code).
		WithDetail("code", code)
}

func NewRemoteUnavailable(operation string, err error) *AppError {
	return Wrapf(err, ErrCodeRemoteUnavailable, "remote store unreachable: %s", operation).
		WithDetail("operation", operation)
}

func NewServiceUnavailable(operation string, err error) *AppError {
	return Wrapf(err, ErrCodeServiceUnavailable, "remote store and local cache both failed: %s", operation).
		WithDetail("operation", operation)
}

func NewPartialGraphWrite(ownCode, otherCode string, err error) *AppError {
	return Wrap(err, ErrCodePartialGraphWrite, "friendship write applied on one side only").
		WithDetail("own", ownCode).
		WithDetail("other", otherCode)
}

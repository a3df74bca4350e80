package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorIdentityUnavailable ErrorCode = "IDENTITY_UNAVAILABLE"
	ErrorContextStore        ErrorCode = "CONTEXT_STORE_ERROR"
	ErrorClassification      ErrorCode = "CLASSIFICATION_ERROR"
	ErrorHandler             ErrorCode = "HANDLER_ERROR"
	ErrorPanic               ErrorCode = "PANIC"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// asError classifies err, defaulting to a handler failure.
func asError(err error, reason string) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return newError(ErrorHandler, reason, err)
}

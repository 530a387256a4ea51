package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrorNotFound              ErrorCode = "NOT_FOUND"
	ErrorConversationBusy      ErrorCode = "CONVERSATION_BUSY"
	ErrorClassificationFailure ErrorCode = "CLASSIFICATION_FAILURE"
	ErrorStrategyFailure       ErrorCode = "STRATEGY_FAILURE"
	ErrorPersistenceFailure    ErrorCode = "PERSISTENCE_FAILURE"
	ErrorRateLimited           ErrorCode = "RATE_LIMITED"
	ErrorInternal              ErrorCode = "INTERNAL_ERROR"
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

// Retryable reports whether the same turn may succeed if the caller resends
// it. Nothing was persisted for a retryable failure.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case ErrorConversationBusy, ErrorClassificationFailure, ErrorStrategyFailure, ErrorRateLimited:
		return true
	}
	return false
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// upstreamError maps a capability failure to code unless the capability was
// rate limiting us.
func upstreamError(code ErrorCode, stage string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, stage+"_rate_limited", err)
	}
	return newError(code, stage+"_error", err)
}

// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf creates a new error with the same code and a formatted message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Predefined errors
var (
	// Validation errors
	ErrInvalidParameter  = &Error{Code: "INVALID_PARAMETER", Message: "invalid parameter"}
	ErrInvalidAction     = &Error{Code: "INVALID_ACTION", Message: "action must be LONG or SHORT"}
	ErrInvalidConfidence = &Error{Code: "INVALID_CONFIDENCE", Message: "confidence must be between 0 and 100"}
	ErrInvalidStatus     = &Error{Code: "INVALID_STATUS", Message: "unknown strategy status"}

	// Lifecycle errors
	ErrNotFound     = &Error{Code: "NOT_FOUND", Message: "strategy not found"}
	ErrInvalidState = &Error{Code: "INVALID_STATE", Message: "strategy not in required state"}
	ErrExpired      = &Error{Code: "EXPIRED", Message: "strategy expired"}

	// Execution errors
	ErrInsufficientBalance = &Error{Code: "INSUFFICIENT_BALANCE", Message: "insufficient balance"}
	ErrExchangeRejected    = &Error{Code: "EXCHANGE_REJECTED", Message: "order rejected by exchange"}
	ErrClockSkew           = &Error{Code: "CLOCK_SKEW", Message: "exchange clock skew retries exhausted"}
	ErrTransientNetwork    = &Error{Code: "TRANSIENT_NETWORK", Message: "transient network failure"}

	// Infrastructure errors
	ErrStoreFailed    = &Error{Code: "STORE_FAILED", Message: "strategy store operation failed"}
	ErrFeedFailed     = &Error{Code: "FEED_FAILED", Message: "indicator feed request failed"}
	ErrLLMFailed      = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}
	ErrConfigInvalid  = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing  = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

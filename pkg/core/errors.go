package core

import (
	"errors"
	"fmt"
)

// Error represents a service error surfaced to the engine.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{Type: ErrRateLimit, Message: message, RetryAfter: &retryAfter}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{Type: ErrOverloaded, Message: message}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{Type: ErrProvider, Message: fmt.Sprintf("%s: %v", provider, underlying)}
}

// IsRetryable returns true if the error is worth retrying.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// IsRateLimit reports whether err is a rate-limit or overload error, and
// extracts the server-suggested retry-after seconds when present.
func IsRateLimit(err error) (retryAfter int, ok bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	if e.Type != ErrRateLimit && e.Type != ErrOverloaded {
		return 0, false
	}
	if e.RetryAfter != nil {
		return *e.RetryAfter, true
	}
	return 0, true
}

package httpx

import (
	"fmt"
	"net/http"
)

// Business error codes
const (
	// Success
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001 // Not logged in / Token missing
	CodeInvalidToken = 1002 // Token invalid
	CodeTokenExpired = 1003 // Token expired
	CodeForbidden    = 1004 // No permission
	CodeLockedOut    = 1005 // Temporary lockout after repeated failures

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001 // Parameter missing
	CodeParamInvalid = 2002 // Parameter format error

	// Resource/Business errors (3000-3999)
	CodeNotFound          = 3001 // Resource not found
	CodeStateConflict     = 3002 // Current state does not allow operation
	CodeWorkerUnavailable = 3003 // No worker connected / worker offline
	CodeDuplicate         = 3004 // Idempotency key already processed

	// Throttling errors (4000-4099)
	CodeRateLimited = 4001 // Sliding-window limit exceeded

	// System errors (5000-5999)
	CodeInternalError = 5001 // Internal service error
	CodeStoreError    = 5002 // Persistence backend error
)

// AppError carries an HTTP status, a business code, and an optional internal
// error that is logged but never returned to the client.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Err        error
	Data       interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// WithData adds additional data to the error
func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// ErrUnauthorized creates a 401 unauthorized error
func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// ErrInvalidToken creates a 401 invalid token error
func ErrInvalidToken(message string) *AppError {
	if message == "" {
		message = "invalid token"
	}
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, message, nil)
}

// ErrTokenExpired creates a 401 token expired error
func ErrTokenExpired(message string) *AppError {
	if message == "" {
		message = "token expired"
	}
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, message, nil)
}

// ErrForbidden creates a 403 forbidden error
func ErrForbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return NewAppError(http.StatusForbidden, CodeForbidden, message, nil)
}

// ErrLockedOut creates a 423 lockout error carrying the remaining lockout seconds
func ErrLockedOut(message string, retryAfterSec int) *AppError {
	if message == "" {
		message = "temporarily locked out"
	}
	e := NewAppError(http.StatusLocked, CodeLockedOut, message, nil)
	return e.WithData(map[string]int{"retryAfterSec": retryAfterSec})
}

// ErrParamMissing creates a 400 parameter missing error
func ErrParamMissing(message string) *AppError {
	if message == "" {
		message = "parameter missing"
	}
	return NewAppError(http.StatusBadRequest, CodeParamMissing, message, nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	if message == "" {
		message = "parameter format error"
	}
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, message, nil)
}

// ErrNotFound creates a 404 not found error
func ErrNotFound(message string) *AppError {
	if message == "" {
		message = "resource not found"
	}
	return NewAppError(http.StatusNotFound, CodeNotFound, message, nil)
}

// ErrStateConflict creates a 409 state conflict error
func ErrStateConflict(message string) *AppError {
	if message == "" {
		message = "current state does not allow operation"
	}
	return NewAppError(http.StatusConflict, CodeStateConflict, message, nil)
}

// ErrWorkerUnavailable creates a 503 no-worker-available error
func ErrWorkerUnavailable(message string) *AppError {
	if message == "" {
		message = "no worker available"
	}
	return NewAppError(http.StatusServiceUnavailable, CodeWorkerUnavailable, message, nil)
}

// ErrRateLimited creates a 429 error carrying a retry-after hint in seconds
func ErrRateLimited(retryAfterSec int) *AppError {
	e := NewAppError(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil)
	return e.WithData(map[string]int{"retryAfterSec": retryAfterSec})
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	if message == "" {
		message = "internal error"
	}
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, err)
}

// ErrStoreError creates a 500 persistence error
func ErrStoreError(message string, err error) *AppError {
	if message == "" {
		message = "store error"
	}
	return NewAppError(http.StatusInternalServerError, CodeStoreError, message, err)
}

package utils

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Engagement core errors
	ErrValidation       = "VALIDATION_ERROR"
	ErrNotFound         = "NOT_FOUND"
	ErrInvalidOperation = "INVALID_OPERATION"
	ErrConflict         = "CONFLICT"    // Optimistic-concurrency failure reported by the store
	ErrUnavailable      = "UNAVAILABLE" // Store timeout, cancellation or unreachable backend

	// Boundary errors
	ErrDuplicate       = "DUPLICATE"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrInvalidToken    = "INVALID_TOKEN"
	ErrTooManyRequests = "TOO_MANY_REQUESTS"

	ErrInternal = "INTERNAL"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewUserNotFoundError(userID string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: "User not found: " + userID,
	}
}

func NewPostNotFoundError(postID string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: "Post not found: " + postID,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewUnavailableError(operation string, origin error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Message: operation + " unavailable",
		Origin:  origin,
	}
}

// ErrorCode returns the AppError code anywhere in err's chain, or ErrInternal.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AsAppError wraps unknown errors as internal errors so callers always receive a code.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(ErrInternal, "internal error", err)
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return 404 // http.StatusNotFound
	case ErrValidation, ErrInvalidOperation:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrConflict, ErrDuplicate:
		return 409 // http.StatusConflict
	case ErrTooManyRequests:
		return 429 // http.StatusTooManyRequests
	case ErrUnavailable:
		return 503 // http.StatusServiceUnavailable
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}

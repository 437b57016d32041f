// Package errors defines the categorized errors returned by the service layer
// and translated to HTTP responses by the API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryDatabase    ErrorCategory = "database"
	CategoryCache       ErrorCategory = "cache"
	CategoryUnavailable ErrorCategory = "unavailable"
	CategorySystem      ErrorCategory = "system"
)

// Error codes sent to clients
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeInvalidBody        = "INVALID_BODY"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeEmployeeNotFound   = "EMPLOYEE_NOT_FOUND"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeDatabase           = "DATABASE_ERROR"
	CodeCache              = "CACHE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error carrying per-field messages
func NewValidationError(fields map[string]string) *CategorizedError {
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    "request validation failed",
		Details:    details,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidBodyError creates an error for a request body that cannot be decoded
func NewInvalidBodyError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidBody,
		Message:    "invalid request body",
		Cause:      cause,
	}
}

// NewRequestTooLargeError creates an error for a request body over limit bytes
func NewRequestTooLargeError(limit int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       CodeRequestTooLarge,
		Message:    fmt.Sprintf("request body exceeds %d bytes", limit),
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// NewEmployeeNotFoundError creates a not found error for an employee ID
func NewEmployeeNotFoundError(id int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeEmployeeNotFound,
		Message:    fmt.Sprintf("employee not exist with id: %d", id),
		Details: map[string]interface{}{
			"id": id,
		},
	}
}

// NewDuplicateEmailError creates a conflict error for an email already in use
func NewDuplicateEmailError(email string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeDuplicateEmail,
		Message:    fmt.Sprintf("email already in use: %s", email),
		Details: map[string]interface{}{
			"emailId": email,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded, please try again later",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeCache,
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUnavailable,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeServiceUnavailable,
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize returns the CategorizedError in err's chain, or wraps err as an
// internal error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusOK
}

// IsRetryable determines if an error is worth retrying
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryDatabase, CategoryCache, CategoryUnavailable:
		return true
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 500
}

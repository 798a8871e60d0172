package utils

import (
	"errors"
	"fmt"
	"net/http"

	"riderx/models"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceErrorWithCause creates a service error that wraps another error
func NewServiceErrorWithCause(code, message string, cause error) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) (ServiceError, bool) {
	var serviceErr ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return ServiceError{}, false
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       models.ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewBadRequestError(message string, cause error) error {
	return ServiceError{
		Code:       models.ErrCodeValidation,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string, cause error) error {
	return ServiceError{
		Code:       models.ErrCodeConflict,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusConflict,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewUnavailableError(message string) error {
	return ServiceError{
		Code:       models.ErrCodeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// StatusForError maps domain errors to HTTP status codes.
func StatusForError(err error) int {
	if serviceErr, ok := GetServiceError(err); ok && serviceErr.StatusCode != 0 {
		return serviceErr.StatusCode
	}

	switch {
	case errors.Is(err, models.ErrInvalidFix),
		errors.Is(err, models.ErrInvalidReport),
		errors.Is(err, models.ErrInvalidContact),
		errors.Is(err, models.ErrInvalidRefuel):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrReportNotFound),
		errors.Is(err, models.ErrContactNotFound),
		errors.Is(err, models.ErrRideNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionClosed),
		errors.Is(err, models.ErrSessionNotStarted),
		errors.Is(err, models.ErrSessionAlreadyStarted),
		errors.Is(err, models.ErrConcurrentFix):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

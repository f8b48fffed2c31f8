package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotInitialized indicates the clinic queue document does not exist yet
	ErrorTypeNotInitialized ErrorType = "NOT_INITIALIZED"

	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeAmbiguousMatch indicates a name lookup matched more than one patient
	ErrorTypeAmbiguousMatch ErrorType = "AMBIGUOUS_MATCH"

	// ErrorTypePreconditionFailed indicates a lifecycle transition attempted out of order
	ErrorTypePreconditionFailed ErrorType = "PRECONDITION_FAILED"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a concurrent update conflict
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnavailable indicates the queue store cannot be reached
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// NewNotInitializedError creates a new not initialized error
func NewNotInitializedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotInitialized,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewAmbiguousMatchError creates a new ambiguous match error
func NewAmbiguousMatchError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeAmbiguousMatch,
		Message: message,
	}
}

// NewPreconditionFailedError creates a new precondition failed error
func NewPreconditionFailedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypePreconditionFailed,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnavailableError creates a new store unavailable error
func NewUnavailableError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

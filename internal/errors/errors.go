package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeNetwork             ErrorType = "network"
	ErrorTypeProcessing          ErrorType = "processing"
	ErrorTypeTimeout             ErrorType = "timeout"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeInternal            ErrorType = "internal"
	ErrorTypeUnavailableInput    ErrorType = "unavailable_input"
	ErrorTypeDecodeFailure       ErrorType = "decode_failure"
	ErrorTypeInvalidBuffer       ErrorType = "invalid_buffer"
	ErrorTypeMetadataUnavailable ErrorType = "metadata_unavailable"
)

var (
	// ErrUnavailableInput means asset bytes could not be fetched.
	ErrUnavailableInput = errors.New("asset preview unavailable")

	// ErrDecodeFailure means bytes were fetched but are not a decodable image.
	ErrDecodeFailure = errors.New("image decode failed")

	// ErrMetadataUnavailable means an optional metadata signal is missing.
	ErrMetadataUnavailable = errors.New("asset metadata unavailable")

	// ErrInvalidBuffer signals a pixel buffer that violates its structural
	// invariant. It points at a bug in the decoding collaborator.
	ErrInvalidBuffer = errors.New("invalid pixel buffer")
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newAppError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newAppError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// Classify maps a scoring pipeline error onto its AppError category.
// Errors that are already an *AppError are returned unchanged.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrUnavailableInput):
		return newAppError(ErrorTypeUnavailableInput, http.StatusNotFound, "asset preview unavailable", err)
	case errors.Is(err, ErrDecodeFailure):
		return newAppError(ErrorTypeDecodeFailure, http.StatusUnprocessableEntity, "image could not be decoded", err)
	case errors.Is(err, ErrInvalidBuffer):
		return newAppError(ErrorTypeInvalidBuffer, http.StatusInternalServerError, "decoder produced an invalid buffer", err)
	case errors.Is(err, ErrMetadataUnavailable):
		return newAppError(ErrorTypeMetadataUnavailable, http.StatusNotFound, "asset metadata unavailable", err)
	default:
		return NewInternalError("unexpected error", err)
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

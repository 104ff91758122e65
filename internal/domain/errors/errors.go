package errors

import (
	"errors"
	"fmt"
)

// Error types for the remediation pipeline
type ErrorType string

const (
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeAuthorization ErrorType = "authorization_denied"
	ErrorTypeDataIntegrity ErrorType = "data_integrity"
	ErrorTypeUnknownAction ErrorType = "unknown_action"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

// NewConfigError is fatal for the whole pass: it must surface before any
// ledger write happens.
func NewConfigError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfig,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewTransportError marks a transient external failure. The manifest that
// hit it stays staged and is retried on a later pass.
func NewTransportError(service, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeTransport,
		Code:      "TRANSPORT_ERROR",
		Message:   fmt.Sprintf("%s: %s", service, message),
		Retryable: true,
		Details:   map[string]interface{}{"service": service},
	}
}

// NewAuthorizationDeniedError means the caller lacks rights to enact the
// action. Fatal for the manifest: retrying cannot help, a human has to.
func NewAuthorizationDeniedError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeAuthorization,
		Code:      "AUTHORIZATION_DENIED",
		Message:   message,
		Retryable: false,
	}
}

// NewDataIntegrityError marks a manifest whose referenced entity no longer
// exists in the ledger. The manifest is dropped, never guessed around.
func NewDataIntegrityError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeDataIntegrity,
		Code:      "DATA_INTEGRITY",
		Message:   message,
		Retryable: false,
	}
}

func NewUnknownActionError(actionType string) *AppError {
	return &AppError{
		Type:      ErrorTypeUnknownAction,
		Code:      "UNKNOWN_ACTION_TYPE",
		Message:   fmt.Sprintf("unknown action type: %s", actionType),
		Retryable: false,
		Details:   map[string]interface{}{"action_type": actionType},
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConflict,
		Code:      "CONFLICT",
		Message:   message,
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// Predefined common errors
var (
	ErrEntityNotFound   = NewNotFoundError("entity")
	ErrManifestNotFound = NewNotFoundError("manifest")
	ErrManifestPending  = NewConflictError("a pending manifest already exists for this entity")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the taxonomy type of an error, or ErrorTypeInternal for
// errors outside the taxonomy.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

// LedgerError represents a standardized error response
type LedgerError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnsupported    = "UNSUPPORTED_OPERATION"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrVersionConflict       = errors.New("ledger version conflict")
	ErrUnknownAssessmentType = errors.New("unknown assessment type")
	ErrInvalidCondition      = errors.New("invalid trigger condition")
	ErrPersistence           = errors.New("ledger persistence failed")
	ErrUnsupported           = errors.New("operation not supported")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewLedgerError creates a new LedgerError with timestamp
func NewLedgerError(code, message, details, requestID string) *LedgerError {
	return &LedgerError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

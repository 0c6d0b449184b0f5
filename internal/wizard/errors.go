package wizard

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrInvalidFlow       = errors.New("invalid flow definition")
	ErrSessionNotFound   = errors.New("session not found")
	ErrKindActive        = errors.New("another session of this kind is in progress")
	ErrBusy              = errors.New("session busy")
	ErrAlreadyInProgress = errors.New("commit already in progress")
	ErrAlreadyCommitted  = errors.New("session already committed")
	ErrInvalidState      = errors.New("operation not allowed in current session state")
	ErrNoPreviousStep    = errors.New("already at the first step")
	ErrAbandoned         = errors.New("session abandoned")
)

// ValidationCode classifies a user-correctable step failure.
type ValidationCode string

// Validation codes.
const (
	CodeMissingField        ValidationCode = "MISSING_FIELD"
	CodeInvalidFormat       ValidationCode = "INVALID_FORMAT"
	CodeInvalidValue        ValidationCode = "INVALID_VALUE"
	CodeInsufficientBalance ValidationCode = "INSUFFICIENT_BALANCE"
	CodeUnsupportedBank     ValidationCode = "UNSUPPORTED_BANK_CODE"
	CodeReadOnlyField       ValidationCode = "READ_ONLY_FIELD"
	CodeUnavailable         ValidationCode = "REFERENCE_UNAVAILABLE"
)

// ValidationError is reported inline at the offending step. It never changes session state.
type ValidationError struct {
	Err     error
	Code    ValidationCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for field.
func NewValidationError(code ValidationCode, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// RequireFields returns a CodeMissingField error for the first empty key.
func RequireFields(d Draft, keys ...string) *ValidationError {
	for _, key := range keys {
		if d.Get(key) == "" {
			return NewValidationError(CodeMissingField, key, "required field missing")
		}
	}
	return nil
}

// CommitError wraps a downstream failure of a flow's commit operation.
type CommitError struct {
	Err       error
	SessionID string
	Message   string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit session %s: %s", e.SessionID, e.Message)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

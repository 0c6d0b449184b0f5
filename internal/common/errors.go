// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrLedgerMismatch    = errors.New("entry belongs to another ledger")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Review errors reported by the system of record.
	ErrAlreadyReviewed = errors.New("transaction already reviewed")

	// Bank backend errors.
	ErrBankUnavailable     = errors.New("bank backend unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage extracts the displayable message from err, falling back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}

// IsRetryable reports whether err is a transient backend failure: a rate
// limit, an unavailable bank, or a deadline. Errors marked Permanent, review
// conflicts, and duplicates never are. Anything else is treated as final.
func IsRetryable(err error) bool {
	switch {
	case err == nil, isPermanent(err):
		return false
	case errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrDuplicateEntry):
		return false
	}
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrBankUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

package reconcile

import (
	"errors"
	"fmt"
)

// Conflict sentinels. Match them with errors.Is against a *ConflictError.
var (
	ErrAlreadyReviewed      = errors.New("already reviewed")
	ErrPartiallyResolved    = errors.New("ledger entry created but review mark failed")
	ErrResolutionInProgress = errors.New("resolution already in progress")
	ErrNothingToRetry       = errors.New("no partially resolved entry to retry")
	ErrUnknownTarget        = errors.New("unknown classification target")
	ErrNoLedgerReader       = errors.New("no ledger reader configured")
	ErrTargetChanged        = errors.New("existing ledger entry is in another ledger")
)

// ConflictKind names the reconciliation conflict.
type ConflictKind string

// Conflict kinds.
const (
	ConflictAlreadyReviewed      ConflictKind = "ALREADY_REVIEWED"
	ConflictPartiallyResolved    ConflictKind = "PARTIALLY_RESOLVED"
	ConflictResolutionInProgress ConflictKind = "RESOLUTION_IN_PROGRESS"
)

// ConflictError ends the current classification attempt. The controller stays
// usable; the caller should refetch the transaction before trying again.
type ConflictError struct {
	Err           error
	Kind          ConflictKind
	TransactionID string
	// LinkedEntryID is the entry awaiting its review mark for PartiallyResolved.
	LinkedEntryID string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("transaction %s: %s", e.TransactionID, e.sentinel())
	if e.LinkedEntryID != "" {
		msg += fmt.Sprintf(" (entry %s)", e.LinkedEntryID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *ConflictError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ConflictError) sentinel() error {
	switch e.Kind {
	case ConflictAlreadyReviewed:
		return ErrAlreadyReviewed
	case ConflictPartiallyResolved:
		return ErrPartiallyResolved
	case ConflictResolutionInProgress:
		return ErrResolutionInProgress
	}
	return nil
}

func conflict(kind ConflictKind, id string, err error) *ConflictError {
	return &ConflictError{Kind: kind, TransactionID: id, Err: err}
}

// Package storage provides the SQLite persistence layer for the wedding ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrInvalidTransaction = errors.New("invalid pending transaction")
	ErrInvalidEntry       = errors.New("invalid ledger entry")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidAmount      = errors.New("amount must be positive")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func validatePending(txn *model.PendingTransaction) error {
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !txn.SourceDomain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidTransaction, txn.SourceDomain)
	}
	if err := validateAmount(txn.Amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

func validateEntry(entry *model.LedgerEntry) error {
	if entry.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidEntry)
	}
	if err := validateAmount(entry.Amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	switch entry.Ledger {
	case model.LedgerHousehold:
		if entry.Category == "" {
			return fmt.Errorf("%w: missing category", ErrInvalidEntry)
		}
	case model.LedgerGiftMoney:
		if entry.GiverName == "" {
			return fmt.Errorf("%w: missing giver name", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: unknown ledger %q", ErrInvalidEntry, entry.Ledger)
	}
	return nil
}

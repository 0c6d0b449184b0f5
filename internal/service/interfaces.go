// Package service defines the interfaces for all external collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/model"
)

// Verifier checks a short numeric credential against the backend.
// Implementations must not retain or log the code.
type Verifier interface {
	Verify(ctx context.Context, code []byte) (bool, error)
}

// AccountLookup returns the current state of an account.
type AccountLookup interface {
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// HolderLookup resolves the name of the holder of an external account.
type HolderLookup interface {
	ResolveHolder(ctx context.Context, bankCode, accountNumber string) (string, error)
}

// TransferService performs the terminal money movement of a transfer wizard.
// Failures should carry a user-displayable message via common.UserError.
type TransferService interface {
	CreateDeposit(ctx context.Context, req model.DepositRequest) error
	CreateWithdraw(ctx context.Context, req model.WithdrawRequest) error
}

// LedgerWriter creates entries in the downstream domain ledgers and returns the new entry id.
type LedgerWriter interface {
	CreateHouseholdEntry(ctx context.Context, fields model.HouseholdEntryFields) (string, error)
	CreateGiftMoneyEntry(ctx context.Context, fields model.GiftMoneyFields) (string, error)
}

// LedgerReader lists a domain's normal (non-review) entries.
type LedgerReader interface {
	ListEntries(ctx context.Context, ledger model.Ledger) ([]model.LedgerEntry, error)
}

// ReviewSource is the system of record for pending bank transactions.
type ReviewSource interface {
	ListPending(ctx context.Context, domain model.Domain) ([]model.PendingTransaction, error)
	GetPending(ctx context.Context, id string) (*model.PendingTransaction, error)
	MarkReviewed(ctx context.Context, id string, mark model.ReviewMark) error
}

// SlotStore is a named key-value record store, overwritten in place and not versioned.
type SlotStore interface {
	SaveSlot(ctx context.Context, key string, data []byte) error
	LoadSlot(ctx context.Context, key string) ([]byte, error)
	DeleteSlot(ctx context.Context, key string) error
}

// ReviewResolved describes a pending transaction that reached a terminal review outcome.
type ReviewResolved struct {
	ResolvedAt    time.Time           `json:"resolved_at"`
	LinkedEntryID *string             `json:"linked_entry_id,omitempty"`
	TransactionID string              `json:"transaction_id"`
	Domain        model.Domain        `json:"domain"`
	Outcome       model.ReviewOutcome `json:"outcome"`
}

// ReviewNotifier is told about every successful resolution.
type ReviewNotifier interface {
	PublishReviewResolved(ctx context.Context, event ReviewResolved) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Domain identifies which part of the wedding ledger a bank transaction was sourced for.
type Domain string

// Domain constants.
const (
	DomainHouseholdFinance Domain = "HOUSEHOLD_FINANCE"
	DomainGiftMoney        Domain = "GIFT_MONEY"
	DomainSafeAccount      Domain = "SAFE_ACCOUNT"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainHouseholdFinance, DomainGiftMoney, DomainSafeAccount:
		return true
	}
	return false
}

// ReviewStatus tracks whether a pending transaction still needs classification.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewReviewed ReviewStatus = "REVIEWED"
)

// ReviewOutcome is the terminal resolution recorded for a reviewed transaction.
type ReviewOutcome string

// Review outcome constants.
const (
	OutcomeNoEntry   ReviewOutcome = "REVIEWED_NO_ENTRY"
	OutcomeWithEntry ReviewOutcome = "REVIEWED_WITH_ENTRY"
)

// PendingTransaction is a bank-sourced money movement whose ledger classification is not decided yet.
type PendingTransaction struct {
	OccurredAt   time.Time
	ID           string
	Description  string
	AccountID    string
	Hash         string
	SourceDomain Domain
	ReviewStatus ReviewStatus
	Amount       decimal.Decimal
}

// IsPending reports whether the transaction may still be offered for classification.
func (t PendingTransaction) IsPending() bool {
	return t.ReviewStatus == ReviewPending
}

// GenerateHash creates a unique hash for duplicate detection on import.
func (t *PendingTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.OccurredAt.Format("2006-01-02"),
		t.Amount.String(),
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ReviewMark is sent to the system of record when a pending transaction is resolved.
// LinkedEntryID is nil for the no-entry outcome.
type ReviewMark struct {
	LinkedEntryID *string
	Status        ReviewStatus
	Outcome       ReviewOutcome
}

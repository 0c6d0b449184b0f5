package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger names a downstream ledger a pending transaction can be converted into.
type Ledger string

// Ledger constants.
const (
	LedgerHousehold Ledger = "HOUSEHOLD"
	LedgerGiftMoney Ledger = "GIFT_MONEY"
)

// EntryKind separates income from expense lines in the household ledger.
type EntryKind string

// Entry kind constants.
const (
	EntryIncome  EntryKind = "INCOME"
	EntryExpense EntryKind = "EXPENSE"
)

// WeddingSide records which family a gift came through.
type WeddingSide string

// Wedding side constants.
const (
	SideGroom WeddingSide = "GROOM"
	SideBride WeddingSide = "BRIDE"
)

// LedgerEntry is a line in one of the domain ledgers.
// SourceTransactionID back-references the pending transaction it was converted from, if any.
type LedgerEntry struct {
	OccurredAt          time.Time
	CreatedAt           time.Time
	SourceTransactionID *string
	ID                  string
	Ledger              Ledger
	Description         string
	Category            string
	Kind                EntryKind
	GiverName           string
	Relation            string
	Side                WeddingSide
	Amount              decimal.Decimal
}

// HouseholdEntryFields are the fields needed to create a household-finance entry.
type HouseholdEntryFields struct {
	OccurredAt          time.Time
	SourceTransactionID *string
	Description         string
	Category            string
	Kind                EntryKind
	Amount              decimal.Decimal
}

// GiftMoneyFields are the fields needed to create a gift-money record.
type GiftMoneyFields struct {
	OccurredAt          time.Time
	SourceTransactionID *string
	GiverName           string
	Relation            string
	Memo                string
	Side                WeddingSide
	Amount              decimal.Decimal
}

package model

import "github.com/shopspring/decimal"

// Account is a bank account as reported by the balance lookup.
type Account struct {
	ID            string
	Name          string
	AccountNumber string
	BankCode      string
	Balance       decimal.Decimal
	IsSafe        bool
}

// DepositRequest moves money from a linked account into the safe account.
type DepositRequest struct {
	SessionID     string
	FromAccountID string
	Memo          string
	Amount        decimal.Decimal
}

// WithdrawRequest moves money out of the safe account to an external account.
type WithdrawRequest struct {
	SessionID     string
	FromAccountID string
	BankCode      string
	AccountNumber string
	HolderName    string
	Memo          string
	Amount        decimal.Decimal
}

// Package flows defines the concrete wizard flows: deposit into the safe
// account, withdraw from it, and classify a pending transaction.
package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"github.com/shopspring/decimal"
)

// Flow kinds.
const (
	KindDeposit  = "deposit"
	KindWithdraw = "withdraw"
	KindClassify = "classify"
)

// Transfer draft keys.
const (
	KeyFromAccount     = "from_account_id"
	KeyFromAccountName = "from_account_name"
	KeyAmount          = "amount"
	KeyMemo            = "memo"
	KeyBankCode        = "bank_code"
	KeyBankName        = "bank_name"
	KeyAccountNumber   = "account_number"
	KeyHolderName      = "holder_name"
)

// MaxMemoLength is the longest memo a bank accepts, in characters.
const MaxMemoLength = 20

// TransferDeps are the collaborators of the deposit and withdraw flows.
type TransferDeps struct {
	Accounts  service.AccountLookup
	Holders   service.HolderLookup
	Transfers service.TransferService
	// SafeAccountID is the account withdrawals are drawn from.
	SafeAccountID string
}

// Deposit moves money from a linked account into the safe account.
func Deposit(deps TransferDeps) wizard.Flow {
	return wizard.Flow{
		Kind:                 KindDeposit,
		FirstEntryStep:       0,
		RequireAuthorization: true,
		Steps: []wizard.Step{
			{
				Name:     "select-account",
				Validate: selectAccount(deps.Accounts),
			},
			{
				Name: "amount",
				Prepare: func(ctx context.Context, d wizard.Draft) (any, error) {
					return balanceOf(ctx, deps.Accounts, d.Get(KeyFromAccount))
				},
				Validate: validateAmountMemo,
				SubSteps: []string{"amount", "memo"},
			},
			{
				Name:     "confirm",
				Validate: requireAll(KeyFromAccount, KeyAmount),
			},
		},
		Commit: func(ctx context.Context, cc wizard.CommitContext) (wizard.CommitOutcome, error) {
			amount, err := decimal.NewFromString(cc.Draft.Get(KeyAmount))
			if err != nil {
				return wizard.CommitOutcome{}, fmt.Errorf("draft amount: %w", err)
			}
			req := model.DepositRequest{
				SessionID:     cc.SessionID,
				FromAccountID: cc.Draft.Get(KeyFromAccount),
				Memo:          cc.Draft.Get(KeyMemo),
				Amount:        amount,
			}
			if err := deps.Transfers.CreateDeposit(ctx, req); err != nil {
				return wizard.CommitOutcome{}, err
			}
			return wizard.CommitOutcome{
				Message: fmt.Sprintf("deposited %s won into the safe account", model.FormatAmount(amount)),
			}, nil
		},
	}
}

// Withdraw sends money from the safe account to an external account.
func Withdraw(deps TransferDeps) wizard.Flow {
	return wizard.Flow{
		Kind:                 KindWithdraw,
		FirstEntryStep:       0,
		RequireAuthorization: true,
		Steps: []wizard.Step{
			{
				Name:     "recipient",
				Validate: validateRecipient(deps.Holders),
				SubSteps: []string{"bank", "account-number"},
			},
			{
				Name: "amount",
				Prepare: func(ctx context.Context, _ wizard.Draft) (any, error) {
					return balanceOf(ctx, deps.Accounts, deps.SafeAccountID)
				},
				Validate: validateAmountMemo,
				SubSteps: []string{"amount", "memo"},
			},
			{
				Name:     "confirm",
				Validate: requireAll(KeyBankCode, KeyAccountNumber, KeyHolderName, KeyAmount),
			},
		},
		Commit: func(ctx context.Context, cc wizard.CommitContext) (wizard.CommitOutcome, error) {
			amount, err := decimal.NewFromString(cc.Draft.Get(KeyAmount))
			if err != nil {
				return wizard.CommitOutcome{}, fmt.Errorf("draft amount: %w", err)
			}
			req := model.WithdrawRequest{
				SessionID:     cc.SessionID,
				FromAccountID: deps.SafeAccountID,
				BankCode:      cc.Draft.Get(KeyBankCode),
				AccountNumber: cc.Draft.Get(KeyAccountNumber),
				HolderName:    cc.Draft.Get(KeyHolderName),
				Memo:          cc.Draft.Get(KeyMemo),
				Amount:        amount,
			}
			if err := deps.Transfers.CreateWithdraw(ctx, req); err != nil {
				return wizard.CommitOutcome{}, err
			}
			return wizard.CommitOutcome{
				Message: fmt.Sprintf("sent %s won to %s", model.FormatAmount(amount), req.HolderName),
			}, nil
		},
	}
}

func selectAccount(accounts service.AccountLookup) wizard.ValidateFunc {
	return func(ctx context.Context, step wizard.StepContext) (wizard.Draft, error) {
		if verr := wizard.RequireFields(step.Draft, KeyFromAccount); verr != nil {
			return nil, verr
		}
		id := strings.TrimSpace(step.Draft.Get(KeyFromAccount))
		acct, err := accounts.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, wizard.NewValidationError(wizard.CodeInvalidValue, KeyFromAccount, "account not found")
			}
			return nil, err
		}
		if acct.IsSafe {
			return nil, wizard.NewValidationError(wizard.CodeInvalidValue, KeyFromAccount, "cannot deposit from the safe account into itself")
		}
		return wizard.Draft{KeyFromAccount: acct.ID, KeyFromAccountName: acct.Name}, nil
	}
}

func balanceOf(ctx context.Context, accounts service.AccountLookup, id string) (decimal.Decimal, error) {
	acct, err := accounts.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load balance of %s: %w", id, err)
	}
	return acct.Balance, nil
}

func validateAmountMemo(_ context.Context, step wizard.StepContext) (wizard.Draft, error) {
	if verr := wizard.RequireFields(step.Draft, KeyAmount); verr != nil {
		return nil, verr
	}
	amount, err := model.ParseAmount(step.Draft.Get(KeyAmount))
	if err != nil {
		return nil, wizard.NewValidationError(wizard.CodeInvalidFormat, KeyAmount, err.Error())
	}

	balance, ok := step.Reference.(decimal.Decimal)
	if !ok {
		return nil, fmt.Errorf("step %s has no balance", step.StepName)
	}
	if amount.GreaterThan(balance) {
		return nil, &wizard.ValidationError{
			Code:    wizard.CodeInsufficientBalance,
			Field:   KeyAmount,
			Message: fmt.Sprintf("amount exceeds balance of %s won", model.FormatAmount(balance)),
			Err:     common.ErrInsufficientBalance,
		}
	}

	memo := strings.TrimSpace(step.Draft.Get(KeyMemo))
	if utf8.RuneCountInString(memo) > MaxMemoLength {
		return nil, wizard.NewValidationError(wizard.CodeInvalidValue, KeyMemo,
			fmt.Sprintf("memo must be at most %d characters", MaxMemoLength))
	}

	return wizard.Draft{KeyAmount: amount.String(), KeyMemo: memo}, nil
}

func validateRecipient(holders service.HolderLookup) wizard.ValidateFunc {
	return func(ctx context.Context, step wizard.StepContext) (wizard.Draft, error) {
		if verr := wizard.RequireFields(step.Draft, KeyBankCode, KeyAccountNumber); verr != nil {
			return nil, verr
		}

		bank, ok := LookupBank(step.Draft.Get(KeyBankCode))
		if !ok {
			return nil, wizard.NewValidationError(wizard.CodeUnsupportedBank, KeyBankCode, "bank code unsupported")
		}

		number, verr := normalizeAccountNumber(step.Draft.Get(KeyAccountNumber))
		if verr != nil {
			return nil, verr
		}

		holder, err := holders.ResolveHolder(ctx, bank.Code, number)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, wizard.NewValidationError(wizard.CodeInvalidValue, KeyAccountNumber, "no account holder found")
			}
			return nil, err
		}

		return wizard.Draft{
			KeyBankCode:      bank.Code,
			KeyBankName:      bank.Name,
			KeyAccountNumber: number,
			KeyHolderName:    holder,
		}, nil
	}
}

func normalizeAccountNumber(raw string) (string, *wizard.ValidationError) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == ' ':
		default:
			return "", wizard.NewValidationError(wizard.CodeInvalidFormat, KeyAccountNumber, "account number must contain digits only")
		}
	}
	number := b.String()
	if len(number) < 10 || len(number) > 14 {
		return "", wizard.NewValidationError(wizard.CodeInvalidFormat, KeyAccountNumber, "account number must be 10 to 14 digits")
	}
	return number, nil
}

func requireAll(keys ...string) wizard.ValidateFunc {
	return func(_ context.Context, step wizard.StepContext) (wizard.Draft, error) {
		if verr := wizard.RequireFields(step.Draft, keys...); verr != nil {
			return nil, verr
		}
		return nil, nil
	}
}

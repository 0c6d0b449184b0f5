package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer directions.
const (
	DirectionDeposit  = "DEPOSIT"
	DirectionWithdraw = "WITHDRAW"
)

// ErrNoSafeAccount is returned when a transfer needs the safe account and none is configured.
var ErrNoSafeAccount = errors.New("no safe account configured")

// CreateDeposit moves req.Amount from a linked account into the safe account.
// Each session may create at most one transfer.
func (s *SQLiteStorage) CreateDeposit(ctx context.Context, req model.DepositRequest) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmount(req.Amount); err != nil {
		return common.NewUserError("The deposit amount is invalid.", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		safeID, err := safeAccountID(ctx, tx)
		if err != nil {
			return err
		}
		if err := debit(ctx, tx, req.FromAccountID, req.Amount); err != nil {
			return err
		}
		if err := credit(ctx, tx, safeID, req.Amount); err != nil {
			return err
		}
		return insertTransfer(ctx, tx, req.SessionID, DirectionDeposit, req.FromAccountID, req.Amount, req.Memo, "", "", "")
	})
}

// CreateWithdraw moves req.Amount out of req.FromAccountID to an external account.
func (s *SQLiteStorage) CreateWithdraw(ctx context.Context, req model.WithdrawRequest) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmount(req.Amount); err != nil {
		return common.NewUserError("The withdrawal amount is invalid.", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := debit(ctx, tx, req.FromAccountID, req.Amount); err != nil {
			return err
		}
		return insertTransfer(ctx, tx, req.SessionID, DirectionWithdraw, req.FromAccountID, req.Amount, req.Memo,
			req.BankCode, req.AccountNumber, req.HolderName)
	})
}

func safeAccountID(ctx context.Context, tx *sql.Tx) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE is_safe = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.NewUserError("No safe account is configured.", ErrNoSafeAccount)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find safe account: %w", err)
	}
	return id, nil
}

func balance(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, common.NewUserError("The account could not be found.",
			fmt.Errorf("account %s: %w", accountID, common.ErrNotFound))
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return bal, nil
}

func debit(ctx context.Context, tx *sql.Tx, accountID string, amount decimal.Decimal) error {
	bal, err := balance(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return common.NewUserError("The balance is insufficient for this transfer.", common.ErrInsufficientBalance)
	}
	return setBalance(ctx, tx, accountID, bal.Sub(amount))
}

func credit(ctx context.Context, tx *sql.Tx, accountID string, amount decimal.Decimal) error {
	bal, err := balance(ctx, tx, accountID)
	if err != nil {
		return err
	}
	return setBalance(ctx, tx, accountID, bal.Add(amount))
}

func setBalance(ctx context.Context, tx *sql.Tx, accountID string, bal decimal.Decimal) error {
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, bal.String(), accountID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func insertTransfer(ctx context.Context, tx *sql.Tx, sessionID, direction, accountID string,
	amount decimal.Decimal, memo, bankCode, accountNumber, payee string) error {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfers
			(id, session_id, direction, account_id, amount, memo, payee_bank_code, payee_account_number, payee_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, direction, accountID, amount.String(), memo, bankCode, accountNumber, payee)
	if isUniqueViolation(err) {
		return common.NewUserError("This transfer was already processed.",
			fmt.Errorf("transfer for session %s: %w", sessionID, common.ErrDuplicateEntry))
	}
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// TransferCount returns the number of recorded transfers for an account.
func (s *SQLiteStorage) TransferCount(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers WHERE account_id = ?`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return n, nil
}

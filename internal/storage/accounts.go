package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
)

// SaveAccount inserts or replaces an account. At most one account may be the safe account.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, acct *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if acct == nil || acct.ID == "" || acct.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidAccount)
	}
	if acct.Balance.IsNegative() {
		return fmt.Errorf("%w: negative balance", ErrInvalidAccount)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if acct.IsSafe {
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_safe = 0 WHERE id != ?`, acct.ID); err != nil {
				return fmt.Errorf("failed to clear safe account: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, account_number, bank_code, balance, is_safe)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				account_number = excluded.account_number,
				bank_code = excluded.bank_code,
				balance = excluded.balance,
				is_safe = excluded.is_safe`,
			acct.ID, acct.Name, acct.AccountNumber, acct.BankCode, acct.Balance.String(), acct.IsSafe)
		if err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
		return nil
	})
}

// GetAccount implements service.AccountLookup against the local accounts table.
func (s *SQLiteStorage) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, account_number, bank_code, balance, is_safe
		FROM accounts WHERE id = ?`, accountID)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	return acct, err
}

// SafeAccount returns the account flagged as the wedding safe account.
func (s *SQLiteStorage) SafeAccount(ctx context.Context) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, account_number, bank_code, balance, is_safe
		FROM accounts WHERE is_safe = 1`)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("safe account: %w", common.ErrNotFound)
	}
	return acct, err
}

// ListAccounts returns every account ordered by name.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, account_number, bank_code, balance, is_safe
		FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// SaveHolder records the holder name of an external account.
func (s *SQLiteStorage) SaveHolder(ctx context.Context, bankCode, accountNumber, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(name, "name"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holders (bank_code, account_number, holder_name) VALUES (?, ?, ?)
		ON CONFLICT(bank_code, account_number) DO UPDATE SET holder_name = excluded.holder_name`,
		bankCode, accountNumber, name)
	if err != nil {
		return fmt.Errorf("failed to save holder: %w", err)
	}
	return nil
}

// ResolveHolder implements service.HolderLookup.
func (s *SQLiteStorage) ResolveHolder(ctx context.Context, bankCode, accountNumber string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT holder_name FROM holders WHERE bank_code = ? AND account_number = ?`,
		bankCode, accountNumber).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("holder %s/%s: %w", bankCode, accountNumber, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve holder: %w", err)
	}
	return name, nil
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var acct model.Account
	err := row.Scan(&acct.ID, &acct.Name, &acct.AccountNumber, &acct.BankCode, &acct.Balance, &acct.IsSafe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &acct, nil
}

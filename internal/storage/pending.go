package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
)

// SavePendingTransactions stores imported bank transactions for review.
// Transactions whose hash already exists are skipped; the number of new rows is returned.
func (s *SQLiteStorage) SavePendingTransactions(ctx context.Context, txns []model.PendingTransaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO pending_transactions
				(id, hash, occurred_at, description, amount, account_id, source_domain, review_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range txns {
			txn := &txns[i]
			if err := validatePending(txn); err != nil {
				return err
			}
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}

			res, err := stmt.ExecContext(ctx,
				txn.ID, txn.Hash, txn.OccurredAt.UTC(), txn.Description,
				txn.Amount.String(), txn.AccountID, string(txn.SourceDomain), string(model.ReviewPending))
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListPending returns the transactions of a domain still awaiting review, oldest first.
func (s *SQLiteStorage) ListPending(ctx context.Context, domain model.Domain) ([]model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, occurred_at, description, amount, account_id, source_domain, review_status
		FROM pending_transactions
		WHERE source_domain = ? AND review_status = ?
		ORDER BY occurred_at, id`, string(domain), string(model.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.PendingTransaction
	for rows.Next() {
		txn, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// GetPending returns one transaction regardless of its review status.
func (s *SQLiteStorage) GetPending(ctx context.Context, id string) (*model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, hash, occurred_at, description, amount, account_id, source_domain, review_status
		FROM pending_transactions WHERE id = ?`, id)
	txn, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending transaction %s: %w", id, common.ErrNotFound)
	}
	return txn, err
}

// MarkReviewed records the terminal outcome of a pending transaction.
// The update only applies while the row is still pending, so a second mark
// fails with common.ErrAlreadyReviewed.
func (s *SQLiteStorage) MarkReviewed(ctx context.Context, id string, mark model.ReviewMark) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if mark.Outcome == model.OutcomeWithEntry && mark.LinkedEntryID == nil {
		return fmt.Errorf("%w: outcome %s requires a linked entry", ErrInvalidTransaction, mark.Outcome)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_transactions
			SET review_status = ?, review_outcome = ?, linked_entry_id = ?, reviewed_at = ?
			WHERE id = ? AND review_status = ?`,
			string(mark.Status), string(mark.Outcome), mark.LinkedEntryID, time.Now().UTC(),
			id, string(model.ReviewPending))
		if err != nil {
			return fmt.Errorf("failed to mark transaction reviewed: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx, `SELECT review_status FROM pending_transactions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("pending transaction %s: %w", id, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read review status: %w", err)
		}
		return fmt.Errorf("pending transaction %s: %w", id, common.ErrAlreadyReviewed)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*model.PendingTransaction, error) {
	var (
		txn    model.PendingTransaction
		domain string
		status string
	)
	err := row.Scan(&txn.ID, &txn.Hash, &txn.OccurredAt, &txn.Description, &txn.Amount,
		&txn.AccountID, &domain, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pending transaction: %w", err)
	}
	txn.SourceDomain = model.Domain(domain)
	txn.ReviewStatus = model.ReviewStatus(status)
	return &txn, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/google/uuid"
)

// CreateHouseholdEntry adds a line to the household ledger and returns its id.
func (s *SQLiteStorage) CreateHouseholdEntry(ctx context.Context, fields model.HouseholdEntryFields) (string, error) {
	return s.createEntry(ctx, &model.LedgerEntry{
		Ledger:              model.LedgerHousehold,
		OccurredAt:          fields.OccurredAt,
		Amount:              fields.Amount,
		Description:         fields.Description,
		Category:            fields.Category,
		Kind:                fields.Kind,
		SourceTransactionID: fields.SourceTransactionID,
	})
}

// CreateGiftMoneyEntry adds a record to the gift-money ledger and returns its id.
func (s *SQLiteStorage) CreateGiftMoneyEntry(ctx context.Context, fields model.GiftMoneyFields) (string, error) {
	return s.createEntry(ctx, &model.LedgerEntry{
		Ledger:              model.LedgerGiftMoney,
		OccurredAt:          fields.OccurredAt,
		Amount:              fields.Amount,
		Description:         fields.Memo,
		GiverName:           fields.GiverName,
		Relation:            fields.Relation,
		Side:                fields.Side,
		SourceTransactionID: fields.SourceTransactionID,
	})
}

// createEntry inserts entry. At most one entry may reference a pending
// transaction; a second insert returns the existing id with common.ErrDuplicateEntry,
// also wrapping common.ErrLedgerMismatch when the existing entry is in another ledger.
func (s *SQLiteStorage) createEntry(ctx context.Context, entry *model.LedgerEntry) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateEntry(entry); err != nil {
		return "", err
	}

	entry.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, ledger, occurred_at, amount, description, category, kind, giver_name, relation, side, source_transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Ledger), entry.OccurredAt.UTC(), entry.Amount.String(), entry.Description,
		entry.Category, string(entry.Kind), entry.GiverName, entry.Relation, string(entry.Side),
		entry.SourceTransactionID)
	if err == nil {
		return entry.ID, nil
	}
	if !isUniqueViolation(err) || entry.SourceTransactionID == nil {
		return "", fmt.Errorf("failed to create ledger entry: %w", err)
	}

	var existing, ledger string
	lookupErr := s.db.QueryRowContext(ctx,
		`SELECT id, ledger FROM ledger_entries WHERE source_transaction_id = ?`,
		*entry.SourceTransactionID).Scan(&existing, &ledger)
	if lookupErr != nil {
		return "", fmt.Errorf("entry for %s: %w", *entry.SourceTransactionID, common.ErrDuplicateEntry)
	}
	if model.Ledger(ledger) != entry.Ledger {
		return existing, fmt.Errorf("entry for %s is in the %s ledger: %w: %w",
			*entry.SourceTransactionID, ledger, common.ErrDuplicateEntry, common.ErrLedgerMismatch)
	}
	return existing, fmt.Errorf("entry for %s: %w", *entry.SourceTransactionID, common.ErrDuplicateEntry)
}

// ListEntries returns all entries of one ledger, oldest first.
func (s *SQLiteStorage) ListEntries(ctx context.Context, ledger model.Ledger) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ledger, occurred_at, created_at, amount, description, category, kind,
			giver_name, relation, side, source_transaction_id
		FROM ledger_entries
		WHERE ledger = ?
		ORDER BY occurred_at, created_at`, string(ledger))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			entry               model.LedgerEntry
			ledgerName, kind    string
			side                string
			sourceTransactionID sql.NullString
		)
		if err := rows.Scan(&entry.ID, &ledgerName, &entry.OccurredAt, &entry.CreatedAt, &entry.Amount,
			&entry.Description, &entry.Category, &kind, &entry.GiverName, &entry.Relation, &side,
			&sourceTransactionID); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Ledger = model.Ledger(ledgerName)
		entry.Kind = model.EntryKind(kind)
		entry.Side = model.WeddingSide(side)
		if sourceTransactionID.Valid {
			entry.SourceTransactionID = &sourceTransactionID.String
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEntryForTransaction returns the entry created from a pending transaction.
func (s *SQLiteStorage) GetEntryForTransaction(ctx context.Context, transactionID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM ledger_entries WHERE source_transaction_id = ?`, transactionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("entry for %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query ledger entry: %w", err)
	}
	return id, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS pending_transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					occurred_at DATETIME NOT NULL,
					description TEXT NOT NULL,
					amount TEXT NOT NULL,
					account_id TEXT NOT NULL DEFAULT '',
					source_domain TEXT NOT NULL,
					review_status TEXT NOT NULL DEFAULT 'PENDING',
					review_outcome TEXT,
					linked_entry_id TEXT,
					reviewed_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_pending_domain_status ON pending_transactions(source_domain, review_status)`,

				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					ledger TEXT NOT NULL,
					occurred_at DATETIME NOT NULL,
					amount TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL DEFAULT '',
					giver_name TEXT NOT NULL DEFAULT '',
					relation TEXT NOT NULL DEFAULT '',
					side TEXT NOT NULL DEFAULT '',
					source_transaction_id TEXT UNIQUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_ledger_entries_ledger ON ledger_entries(ledger, occurred_at)`,

				`CREATE TABLE IF NOT EXISTS draft_slots (
					key TEXT PRIMARY KEY,
					data BLOB NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add accounts, holders, and transfers for offline banking",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					account_number TEXT NOT NULL,
					bank_code TEXT NOT NULL,
					balance TEXT NOT NULL DEFAULT '0',
					is_safe INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS holders (
					bank_code TEXT NOT NULL,
					account_number TEXT NOT NULL,
					holder_name TEXT NOT NULL,
					PRIMARY KEY (bank_code, account_number)
				)`,
				`CREATE TABLE IF NOT EXISTS transfers (
					id TEXT PRIMARY KEY,
					session_id TEXT UNIQUE NOT NULL,
					direction TEXT NOT NULL,
					account_id TEXT NOT NULL REFERENCES accounts(id),
					amount TEXT NOT NULL,
					memo TEXT NOT NULL DEFAULT '',
					payee_bank_code TEXT NOT NULL DEFAULT '',
					payee_account_number TEXT NOT NULL DEFAULT '',
					payee_name TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Index transfers by account",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_transfers_account ON transfers(account_id, created_at)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate runs all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the database's PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

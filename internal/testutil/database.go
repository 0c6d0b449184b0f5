// Package testutil provides shared fixtures and in-memory fakes for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

// SafeAccountID is the id of the safe account seeded by WithSafeAccount.
const SafeAccountID = "safe-1"

// TestDB wraps a migrated in-memory database.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOption seeds a test database.
type TestDBOption func(ctx context.Context, t *testing.T, s *storage.SQLiteStorage)

// WithAccounts seeds accounts.
func WithAccounts(accounts ...model.Account) TestDBOption {
	return func(ctx context.Context, t *testing.T, s *storage.SQLiteStorage) {
		t.Helper()
		for i := range accounts {
			if err := s.SaveAccount(ctx, &accounts[i]); err != nil {
				t.Fatalf("failed to seed account %q: %v", accounts[i].ID, err)
			}
		}
	}
}

// WithSafeAccount seeds the safe account with the given balance.
func WithSafeAccount(balance int64) TestDBOption {
	return WithAccounts(model.Account{
		ID:            SafeAccountID,
		Name:          "Wedding Safe",
		AccountNumber: "3333012345678",
		BankCode:      "090",
		Balance:       decimal.NewFromInt(balance),
		IsSafe:        true,
	})
}

// WithPending seeds pending transactions.
func WithPending(txns ...model.PendingTransaction) TestDBOption {
	return func(ctx context.Context, t *testing.T, s *storage.SQLiteStorage) {
		t.Helper()
		if _, err := s.SavePendingTransactions(ctx, txns); err != nil {
			t.Fatalf("failed to seed pending transactions: %v", err)
		}
	}
}

// SetupTestDB creates a migrated in-memory database and closes it on cleanup.
func SetupTestDB(t *testing.T, opts ...TestDBOption) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, opt := range opts {
		opt(ctx, t, store)
	}

	return &TestDB{Storage: store, t: t}
}

// Pending builds a pending transaction fixture.
func Pending(id string, domain model.Domain, amount int64, description string) model.PendingTransaction {
	txn := model.PendingTransaction{
		ID:           id,
		OccurredAt:   time.Date(2025, 5, 17, 12, 0, 0, 0, time.UTC),
		Description:  description,
		AccountID:    SafeAccountID,
		SourceDomain: domain,
		ReviewStatus: model.ReviewPending,
		Amount:       decimal.NewFromInt(amount),
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

// MustBalance returns an account's balance or fails the test.
func (db *TestDB) MustBalance(accountID string) decimal.Decimal {
	db.t.Helper()
	acct, err := db.Storage.GetAccount(context.Background(), accountID)
	if err != nil {
		db.t.Fatalf("failed to load account %q: %v", accountID, err)
	}
	return acct.Balance
}

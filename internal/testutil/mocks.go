package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/service"
)

// MockVerifier is a test implementation of service.Verifier.
// It accepts Valid and records a copy of every submitted code.
type MockVerifier struct {
	Err   error
	Block chan struct{}
	Valid string
	codes []string
	mu    sync.Mutex
}

// NewMockVerifier creates a verifier accepting valid.
func NewMockVerifier(valid string) *MockVerifier {
	return &MockVerifier{Valid: valid}
}

// Verify implements service.Verifier.
func (m *MockVerifier) Verify(_ context.Context, code []byte) (bool, error) {
	m.mu.Lock()
	m.codes = append(m.codes, string(code))
	block, err, valid := m.Block, m.Err, m.Valid
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return false, err
	}
	return string(code) == valid, nil
}

// Calls returns how many times Verify ran.
func (m *MockVerifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

// Codes returns the codes Verify observed, in order.
func (m *MockVerifier) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.codes...)
}

// MockBank implements the account, holder, and transfer ports in memory.
type MockBank struct {
	Accounts    map[string]*model.Account
	Holders     map[string]string
	DepositErr  error
	WithdrawErr error
	LookupErr   error
	Block       chan struct{}
	Deposits    []model.DepositRequest
	Withdrawals []model.WithdrawRequest
	lookups     int
	mu          sync.Mutex
}

// NewMockBank creates a bank seeded with accounts.
func NewMockBank(accounts ...model.Account) *MockBank {
	b := &MockBank{
		Accounts: make(map[string]*model.Account),
		Holders:  make(map[string]string),
	}
	for i := range accounts {
		acct := accounts[i]
		b.Accounts[acct.ID] = &acct
	}
	return b
}

// GetAccount implements service.AccountLookup.
func (b *MockBank) GetAccount(_ context.Context, accountID string) (*model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lookups++
	if b.LookupErr != nil {
		return nil, b.LookupErr
	}
	acct, ok := b.Accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	out := *acct
	return &out, nil
}

// ResolveHolder implements service.HolderLookup.
func (b *MockBank) ResolveHolder(_ context.Context, bankCode, accountNumber string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lookups++
	if b.LookupErr != nil {
		return "", b.LookupErr
	}
	name, ok := b.Holders[bankCode+":"+accountNumber]
	if !ok {
		return "", fmt.Errorf("holder %s/%s: %w", bankCode, accountNumber, common.ErrNotFound)
	}
	return name, nil
}

// CreateDeposit implements service.TransferService.
func (b *MockBank) CreateDeposit(_ context.Context, req model.DepositRequest) error {
	b.wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DepositErr != nil {
		return b.DepositErr
	}
	b.Deposits = append(b.Deposits, req)
	return nil
}

// CreateWithdraw implements service.TransferService.
func (b *MockBank) CreateWithdraw(_ context.Context, req model.WithdrawRequest) error {
	b.wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.WithdrawErr != nil {
		return b.WithdrawErr
	}
	b.Withdrawals = append(b.Withdrawals, req)
	return nil
}

// Lookups returns how many account or holder lookups ran.
func (b *MockBank) Lookups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookups
}

// SetLookupErr replaces the lookup error.
func (b *MockBank) SetLookupErr(err error) {
	b.mu.Lock()
	b.LookupErr = err
	b.mu.Unlock()
}

// DepositCount returns the number of recorded deposits.
func (b *MockBank) DepositCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Deposits)
}

func (b *MockBank) wait() {
	b.mu.Lock()
	block := b.Block
	b.mu.Unlock()
	if block != nil {
		<-block
	}
}

// MockLedger implements service.LedgerWriter, service.LedgerReader, and
// service.ReviewSource over in-memory maps.
type MockLedger struct {
	CreateErr error
	Block     chan struct{}
	pending   map[string]*model.PendingTransaction
	entries   map[string]model.LedgerEntry
	markErrs  []error
	creates   int
	marks     int
	lists     int
	nextID    int
	mu        sync.Mutex
}

// NewMockLedger creates a ledger holding pending.
func NewMockLedger(pending ...model.PendingTransaction) *MockLedger {
	l := &MockLedger{
		pending: make(map[string]*model.PendingTransaction),
		entries: make(map[string]model.LedgerEntry),
	}
	for i := range pending {
		txn := pending[i]
		if txn.ReviewStatus == "" {
			txn.ReviewStatus = model.ReviewPending
		}
		l.pending[txn.ID] = &txn
	}
	return l
}

// FailMarks makes the next MarkReviewed calls return errs in order.
func (l *MockLedger) FailMarks(errs ...error) {
	l.mu.Lock()
	l.markErrs = append(l.markErrs, errs...)
	l.mu.Unlock()
}

// CreateHouseholdEntry implements service.LedgerWriter.
func (l *MockLedger) CreateHouseholdEntry(_ context.Context, fields model.HouseholdEntryFields) (string, error) {
	return l.create(model.LedgerEntry{
		Ledger:              model.LedgerHousehold,
		OccurredAt:          fields.OccurredAt,
		SourceTransactionID: fields.SourceTransactionID,
		Description:         fields.Description,
		Category:            fields.Category,
		Kind:                fields.Kind,
		Amount:              fields.Amount,
	})
}

// CreateGiftMoneyEntry implements service.LedgerWriter.
func (l *MockLedger) CreateGiftMoneyEntry(_ context.Context, fields model.GiftMoneyFields) (string, error) {
	return l.create(model.LedgerEntry{
		Ledger:              model.LedgerGiftMoney,
		OccurredAt:          fields.OccurredAt,
		SourceTransactionID: fields.SourceTransactionID,
		Description:         fields.Memo,
		GiverName:           fields.GiverName,
		Relation:            fields.Relation,
		Side:                fields.Side,
		Amount:              fields.Amount,
	})
}

func (l *MockLedger) create(entry model.LedgerEntry) (string, error) {
	l.mu.Lock()
	block := l.Block
	l.mu.Unlock()
	if block != nil {
		<-block
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.creates++
	if l.CreateErr != nil {
		return "", l.CreateErr
	}
	if entry.SourceTransactionID != nil {
		for _, existing := range l.entries {
			if existing.SourceTransactionID != nil && *existing.SourceTransactionID == *entry.SourceTransactionID {
				if existing.Ledger != entry.Ledger {
					return existing.ID, fmt.Errorf("entry for %s is in the %s ledger: %w: %w",
						*entry.SourceTransactionID, existing.Ledger, common.ErrDuplicateEntry, common.ErrLedgerMismatch)
				}
				return existing.ID, fmt.Errorf("entry for %s: %w", *entry.SourceTransactionID, common.ErrDuplicateEntry)
			}
		}
	}
	l.nextID++
	entry.ID = fmt.Sprintf("entry-%d", l.nextID)
	l.entries[entry.ID] = entry
	return entry.ID, nil
}

// ListEntries implements service.LedgerReader.
func (l *MockLedger) ListEntries(_ context.Context, ledger model.Ledger) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.LedgerEntry
	for _, entry := range l.entries {
		if entry.Ledger == ledger {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListPending implements service.ReviewSource.
func (l *MockLedger) ListPending(_ context.Context, domain model.Domain) ([]model.PendingTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lists++
	var out []model.PendingTransaction
	for _, txn := range l.pending {
		if txn.SourceDomain == domain && txn.IsPending() {
			out = append(out, *txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPending implements service.ReviewSource.
func (l *MockLedger) GetPending(_ context.Context, id string) (*model.PendingTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.pending[id]
	if !ok {
		return nil, fmt.Errorf("pending transaction %s: %w", id, common.ErrNotFound)
	}
	out := *txn
	return &out, nil
}

// MarkReviewed implements service.ReviewSource.
func (l *MockLedger) MarkReviewed(_ context.Context, id string, _ model.ReviewMark) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.marks++
	if len(l.markErrs) > 0 {
		err := l.markErrs[0]
		l.markErrs = l.markErrs[1:]
		if err != nil {
			return err
		}
	}
	txn, ok := l.pending[id]
	if !ok {
		return fmt.Errorf("pending transaction %s: %w", id, common.ErrNotFound)
	}
	if !txn.IsPending() {
		return fmt.Errorf("pending transaction %s: %w", id, common.ErrAlreadyReviewed)
	}
	txn.ReviewStatus = model.ReviewReviewed
	return nil
}

// Creates returns how many ledger creates ran.
func (l *MockLedger) Creates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates
}

// Marks returns how many review marks ran.
func (l *MockLedger) Marks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.marks
}

// Lists returns how many ListPending calls ran.
func (l *MockLedger) Lists() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lists
}

// EntryCount returns the number of created ledger entries.
func (l *MockLedger) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// MockNotifier records published review events.
type MockNotifier struct {
	Err    error
	events []service.ReviewResolved
	mu     sync.Mutex
}

// PublishReviewResolved implements service.ReviewNotifier.
func (n *MockNotifier) PublishReviewResolved(_ context.Context, event service.ReviewResolved) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.events = append(n.events, event)
	return nil
}

// Events returns the published events.
func (n *MockNotifier) Events() []service.ReviewResolved {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.ReviewResolved(nil), n.events...)
}

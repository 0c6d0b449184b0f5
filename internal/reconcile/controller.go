// Package reconcile resolves bank-sourced pending transactions to exactly one
// terminal review outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"golang.org/x/sync/singleflight"
)

// Seeded draft keys of a classification session. All are read-only.
const (
	KeyPendingID   = "pending_id"
	KeyAmount      = "amount"
	KeyDescription = "description"
	KeyOccurredAt  = "occurred_at"
	KeyDomain      = "source_domain"
)

// DefaultRetryOptions governs review-mark retries.
var DefaultRetryOptions = service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
}

// Result describes a successful resolution.
type Result struct {
	ResolvedAt    time.Time
	LinkedEntryID *string
	TransactionID string
	Domain        model.Domain
	Outcome       model.ReviewOutcome
}

// Controller owns the pending queue of every domain.
type Controller struct {
	source   service.ReviewSource
	ledgers  service.LedgerWriter
	reader   service.LedgerReader
	notifier service.ReviewNotifier
	engine   *wizard.Engine
	now      func() time.Time
	cache    map[model.Domain][]model.PendingTransaction
	resolved map[string]model.ReviewOutcome
	partial  map[string]partialEntry
	inflight map[string]bool
	modes    map[model.Domain]Mode
	group    singleflight.Group
	retry    service.RetryOptions
	mu       sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier publishes an event after every successful resolution.
func WithNotifier(n service.ReviewNotifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLedgerReader enables the normal-mode view.
func WithLedgerReader(r service.LedgerReader) Option {
	return func(c *Controller) { c.reader = r }
}

// WithRetryOptions overrides DefaultRetryOptions.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(c *Controller) { c.retry = opts }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller. engine is used to open classification sessions.
func New(source service.ReviewSource, ledgers service.LedgerWriter, engine *wizard.Engine, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		ledgers:  ledgers,
		engine:   engine,
		now:      time.Now,
		retry:    DefaultRetryOptions,
		cache:    make(map[model.Domain][]model.PendingTransaction),
		resolved: make(map[string]model.ReviewOutcome),
		partial:  make(map[string]partialEntry),
		inflight: make(map[string]bool),
		modes:    make(map[model.Domain]Mode),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPending fetches the domain's unreviewed transactions. Concurrent refreshes
// of one domain share a single fetch, and ids resolved through this controller
// are never returned even if the source has not caught up.
func (c *Controller) ListPending(ctx context.Context, domain model.Domain) ([]model.PendingTransaction, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}

	v, err, shared := c.group.Do(string(domain), func() (any, error) {
		txns, err := c.source.ListPending(context.WithoutCancel(ctx), domain)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[domain] = txns
		c.mu.Unlock()
		return txns, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending %s transactions: %w", domain, err)
	}
	if shared {
		slog.Debug("Shared pending refresh", "domain", domain)
	}

	txns, ok := v.([]model.PendingTransaction)
	if !ok {
		return nil, fmt.Errorf("unexpected pending list type %T", v)
	}
	return c.filter(txns), nil
}

// Cached returns the last fetched pending list without contacting the source.
func (c *Controller) Cached(domain model.Domain) []model.PendingTransaction {
	c.mu.Lock()
	txns := c.cache[domain]
	c.mu.Unlock()
	return c.filter(txns)
}

func (c *Controller) filter(txns []model.PendingTransaction) []model.PendingTransaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.PendingTransaction, 0, len(txns))
	for _, txn := range txns {
		if !txn.IsPending() {
			continue
		}
		if _, done := c.resolved[txn.ID]; done {
			continue
		}
		out = append(out, txn)
	}
	return out
}

// StartClassification opens a wizard session for one pending transaction. The
// transaction's amount, description, and date are seeded as read-only fields.
func (c *Controller) StartClassification(ctx context.Context, id string, flow wizard.Flow) (string, error) {
	txn, err := c.pending(ctx, id)
	if err != nil {
		return "", err
	}

	seed := wizard.Draft{
		KeyPendingID:   txn.ID,
		KeyAmount:      txn.Amount.String(),
		KeyDescription: txn.Description,
		KeyOccurredAt:  txn.OccurredAt.Format(time.DateOnly),
		KeyDomain:      string(txn.SourceDomain),
	}
	sessionID, err := c.engine.Start(ctx, flow, seed,
		wizard.WithReadOnly(KeyPendingID, KeyAmount, KeyDescription, KeyOccurredAt, KeyDomain),
		wizard.WithOrigin(txn.ID))
	if err != nil {
		return "", err
	}

	slog.Info("Classification started", "transaction_id", id, "session_id", sessionID, "domain", txn.SourceDomain)
	return sessionID, nil
}

// ResolveByLedgerEntry marks id reviewed and linked to entryID. The mark is
// retried; if retries run out the transaction is PartiallyResolved and Retry
// reissues only the mark.
func (c *Controller) ResolveByLedgerEntry(ctx context.Context, id, entryID string) (Result, error) {
	release, err := c.reserve(id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	txn, err := c.pending(ctx, id)
	if err != nil {
		return Result{}, err
	}
	c.mu.Lock()
	existing, hasPartial := c.partial[id]
	c.mu.Unlock()
	if hasPartial && existing.entryID != entryID {
		return Result{}, &ConflictError{
			Kind:          ConflictPartiallyResolved,
			TransactionID: id,
			LinkedEntryID: existing.entryID,
			Err:           fmt.Errorf("entry %s already created for this transaction", existing.entryID),
		}
	}
	return c.markWithEntry(ctx, txn, entryID, existing.ledger)
}

// ResolveWithoutEntry marks id reviewed with no ledger entry.
func (c *Controller) ResolveWithoutEntry(ctx context.Context, id string) (Result, error) {
	release, err := c.reserve(id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	c.mu.Lock()
	existing, hasPartial := c.partial[id]
	c.mu.Unlock()
	if hasPartial {
		return Result{}, &ConflictError{
			Kind:          ConflictPartiallyResolved,
			TransactionID: id,
			LinkedEntryID: existing.entryID,
			Err:           errors.New("a ledger entry exists; retry the review mark instead"),
		}
	}

	txn, err := c.pending(ctx, id)
	if err != nil {
		return Result{}, err
	}

	mark := model.ReviewMark{Status: model.ReviewReviewed, Outcome: model.OutcomeNoEntry}
	if err := c.mark(ctx, id, mark); err != nil {
		if errors.Is(err, common.ErrAlreadyReviewed) {
			return Result{}, c.alreadyReviewed(id, err)
		}
		return Result{}, fmt.Errorf("failed to mark %s reviewed: %w", id, err)
	}
	return c.finish(ctx, txn, nil, model.OutcomeNoEntry), nil
}

// Retry reissues the review mark of a PartiallyResolved transaction.
func (c *Controller) Retry(ctx context.Context, id string) (Result, error) {
	c.mu.Lock()
	existing, ok := c.partial[id]
	c.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("transaction %s: %w", id, ErrNothingToRetry)
	}
	return c.ResolveByLedgerEntry(ctx, id, existing.entryID)
}

// Partial returns the transactions whose entry exists but whose mark is outstanding.
func (c *Controller) Partial() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.partial))
	for id, p := range c.partial {
		out[id] = p.entryID
	}
	return out
}

// markWithEntry links entryID to the transaction. ledger is where the entry
// lives, or empty when the caller does not know.
func (c *Controller) markWithEntry(ctx context.Context, txn *model.PendingTransaction, entryID string, ledger model.Ledger) (Result, error) {
	linked := entryID
	mark := model.ReviewMark{LinkedEntryID: &linked, Status: model.ReviewReviewed, Outcome: model.OutcomeWithEntry}

	if err := c.mark(ctx, txn.ID, mark); err != nil {
		if errors.Is(err, common.ErrAlreadyReviewed) {
			// Reviewed elsewhere after the entry was written; nothing links it now.
			slog.Error("Ledger entry orphaned: transaction was reviewed elsewhere",
				"transaction_id", txn.ID,
				"entry_id", entryID,
				"ledger", ledger)
			return Result{}, c.alreadyReviewed(txn.ID, err)
		}

		c.mu.Lock()
		c.partial[txn.ID] = partialEntry{entryID: entryID, ledger: ledger}
		c.mu.Unlock()

		slog.Error("Ledger entry created but review mark failed",
			"transaction_id", txn.ID,
			"entry_id", entryID,
			"error", err)
		return Result{}, &ConflictError{
			Kind:          ConflictPartiallyResolved,
			TransactionID: txn.ID,
			LinkedEntryID: entryID,
			Err:           err,
		}
	}

	return c.finish(ctx, txn, &linked, model.OutcomeWithEntry), nil
}

func (c *Controller) mark(ctx context.Context, id string, mark model.ReviewMark) error {
	callCtx := context.WithoutCancel(ctx)
	return common.WithRetry(callCtx, func() error {
		err := c.source.MarkReviewed(callCtx, id, mark)
		if errors.Is(err, common.ErrAlreadyReviewed) || errors.Is(err, common.ErrNotFound) {
			return common.Permanent(err)
		}
		return err
	}, c.retry)
}

func (c *Controller) finish(ctx context.Context, txn *model.PendingTransaction, entryID *string, outcome model.ReviewOutcome) Result {
	res := Result{
		ResolvedAt:    c.now(),
		LinkedEntryID: entryID,
		TransactionID: txn.ID,
		Domain:        txn.SourceDomain,
		Outcome:       outcome,
	}

	c.mu.Lock()
	c.resolved[txn.ID] = outcome
	delete(c.partial, txn.ID)
	c.cache[txn.SourceDomain] = slices.DeleteFunc(slices.Clone(c.cache[txn.SourceDomain]), func(p model.PendingTransaction) bool {
		return p.ID == txn.ID
	})
	c.mu.Unlock()

	slog.Info("Transaction resolved",
		"transaction_id", txn.ID,
		"domain", txn.SourceDomain,
		"outcome", outcome)

	if c.notifier != nil {
		event := service.ReviewResolved{
			ResolvedAt:    res.ResolvedAt,
			LinkedEntryID: entryID,
			TransactionID: txn.ID,
			Domain:        txn.SourceDomain,
			Outcome:       outcome,
		}
		if err := c.notifier.PublishReviewResolved(context.WithoutCancel(ctx), event); err != nil {
			slog.Warn("Failed to publish review event", "transaction_id", txn.ID, "error", err)
		}
	}
	return res
}

// pending fetches id and fails with AlreadyReviewed unless it is still pending.
func (c *Controller) pending(ctx context.Context, id string) (*model.PendingTransaction, error) {
	c.mu.Lock()
	_, done := c.resolved[id]
	c.mu.Unlock()
	if done {
		return nil, conflict(ConflictAlreadyReviewed, id, nil)
	}

	txn, err := c.source.GetPending(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transaction %s: %w", id, err)
	}
	if !txn.IsPending() {
		return nil, c.alreadyReviewed(id, nil)
	}
	return txn, nil
}

func (c *Controller) alreadyReviewed(id string, err error) *ConflictError {
	c.mu.Lock()
	if _, ok := c.resolved[id]; !ok {
		c.resolved[id] = ""
	}
	c.mu.Unlock()
	return conflict(ConflictAlreadyReviewed, id, err)
}

func (c *Controller) reserve(id string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.resolved[id]; done {
		return nil, conflict(ConflictAlreadyReviewed, id, nil)
	}
	if c.inflight[id] {
		return nil, conflict(ConflictResolutionInProgress, id, nil)
	}
	c.inflight[id] = true
	return func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}, nil
}

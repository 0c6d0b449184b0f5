package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/auth"
	"github.com/Veraticus/wedding-ledger/internal/bankapi"
	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/config"
	"github.com/Veraticus/wedding-ledger/internal/draft"
	"github.com/Veraticus/wedding-ledger/internal/events"
	"github.com/Veraticus/wedding-ledger/internal/flows"
	"github.com/Veraticus/wedding-ledger/internal/reconcile"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/Veraticus/wedding-ledger/internal/storage"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// bankBackend is everything the transfer flows need from a backend.
type bankBackend interface {
	service.AccountLookup
	service.HolderLookup
	service.TransferService
}

type app struct {
	store      *storage.SQLiteStorage
	bank       bankBackend
	verifier   service.Verifier
	publisher  *events.Publisher
	engine     *wizard.Engine
	gate       *wizard.PinGate
	drafts     *draft.Store
	controller *reconcile.Controller
	safeID     string
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// newApp wires storage, the bank backend, and the wizard stack.
func newApp(ctx context.Context) (*app, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{store: store}
	if err := a.wireBank(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if cfg.AMQP.URL != "" {
		pub, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			// Events are best effort; reconciliation works without them.
			slog.Warn("Review events disabled", "error", err)
		} else {
			a.publisher = pub
		}
	}

	snapshots := draft.NewSnapshots(store)
	a.engine = wizard.New(wizard.WithPersister(snapshots))
	a.gate = wizard.NewPinGate(a.engine, a.verifier)
	a.drafts = draft.NewStore(a.engine, snapshots)

	opts := []reconcile.Option{
		reconcile.WithLedgerReader(store),
		reconcile.WithRetryOptions(service.RetryOptions{
			MaxAttempts:  cfg.Review.MarkAttempts,
			InitialDelay: cfg.Review.MarkInitialDelay,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		}),
	}
	if a.publisher != nil {
		opts = append(opts, reconcile.WithNotifier(a.publisher))
	}
	a.controller = reconcile.New(store, store, a.engine, opts...)

	return a, nil
}

func (a *app) wireBank(ctx context.Context) error {
	switch cfg.Backend {
	case config.BackendRemote:
		client, err := bankapi.NewClient(cfg.BankAPI.BaseURL, cfg.BankAPI.Token,
			bankapi.WithTimeout(cfg.BankAPI.Timeout))
		if err != nil {
			return fmt.Errorf("failed to create bank client: %w", err)
		}
		a.bank = client
		a.verifier = client
		a.safeID = cfg.BankAPI.SafeAccountID
	default:
		a.bank = a.store
		if cfg.PIN.Hash != "" {
			v, err := auth.NewBcryptVerifier(cfg.PIN.Hash)
			if err != nil {
				return fmt.Errorf("invalid pin.hash: %w", err)
			}
			a.verifier = v
		}
		safe, err := a.store.SafeAccount(ctx)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if safe != nil {
			a.safeID = safe.ID
		}
	}
	slog.Debug("Bank backend ready", "backend", cfg.Backend, "safe_account", a.safeID)
	return nil
}

func (a *app) transferDeps() flows.TransferDeps {
	return flows.TransferDeps{
		Accounts:      a.bank,
		Holders:       a.bank,
		Transfers:     a.bank,
		SafeAccountID: a.safeID,
	}
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			slog.Warn("Failed to close event publisher", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// requireTransfers reports why transfers cannot run, if they cannot.
func (a *app) requireTransfers() error {
	if a.verifier == nil {
		return common.NewUserError("No PIN is configured. Run `wedge pin hash` and set pin.hash in your config.", errNoPIN)
	}
	if a.safeID == "" {
		return common.NewUserError("No safe account is configured.", storage.ErrNoSafeAccount)
	}
	return nil
}

var errNoPIN = errors.New("no PIN configured")

package reconcile

import (
	"context"
	"fmt"

	"github.com/Veraticus/wedding-ledger/internal/model"
)

// Mode selects which listing a domain screen shows.
type Mode string

// Modes.
const (
	ModeNormal Mode = "NORMAL"
	ModeReview Mode = "REVIEW"
)

// View is what a domain screen shows in its current mode.
type View struct {
	Mode    Mode
	Domain  model.Domain
	Pending []model.PendingTransaction
	Entries []model.LedgerEntry
}

// SetMode switches a domain between review and normal listing. It never
// touches transaction state.
func (c *Controller) SetMode(domain model.Domain, mode Mode) error {
	if !domain.Valid() {
		return fmt.Errorf("unknown domain %q", domain)
	}
	if mode != ModeNormal && mode != ModeReview {
		return fmt.Errorf("unknown mode %q", mode)
	}

	c.mu.Lock()
	c.modes[domain] = mode
	c.mu.Unlock()
	return nil
}

// Mode returns the domain's mode. Domains start in normal mode.
func (c *Controller) Mode(domain model.Domain) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.modes[domain]; ok {
		return mode
	}
	return ModeNormal
}

// View runs the query of the domain's current mode.
func (c *Controller) View(ctx context.Context, domain model.Domain) (View, error) {
	mode := c.Mode(domain)
	view := View{Mode: mode, Domain: domain}

	if mode == ModeReview {
		pending, err := c.ListPending(ctx, domain)
		if err != nil {
			return View{}, err
		}
		view.Pending = pending
		return view, nil
	}

	if c.reader == nil {
		return View{}, ErrNoLedgerReader
	}
	entries, err := c.reader.ListEntries(ctx, LedgerFor(domain))
	if err != nil {
		return View{}, fmt.Errorf("failed to list %s entries: %w", domain, err)
	}
	view.Entries = entries
	return view, nil
}

// LedgerFor maps a source domain to the ledger its normal view lists. The safe
// account holds gift money, so it shares the gift ledger.
func LedgerFor(domain model.Domain) model.Ledger {
	if domain == model.DomainHouseholdFinance {
		return model.LedgerHousehold
	}
	return model.LedgerGiftMoney
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
)

// Target is where a classification sends a pending transaction.
type Target string

// Classification targets.
const (
	TargetHousehold Target = "household"
	TargetGift      Target = "gift"
	TargetNone      Target = "none"
)

// ParseTarget accepts a target name case-insensitively.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetHousehold, TargetGift, TargetNone:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Ledger returns the ledger a target writes to, or empty for TargetNone.
func (t Target) Ledger() model.Ledger {
	switch t {
	case TargetHousehold:
		return model.LedgerHousehold
	case TargetGift:
		return model.LedgerGiftMoney
	}
	return ""
}

// partialEntry is a created entry whose review mark is still outstanding.
// ledger is empty when the entry was not created by this controller.
type partialEntry struct {
	entryID string
	ledger  model.Ledger
}

// Draft keys collected by a classification session.
const (
	KeyTarget    = "target"
	KeyCategory  = "category"
	KeyEntryKind = "entry_kind"
	KeyGiverName = "giver_name"
	KeyRelation  = "relation"
	KeySide      = "side"
	KeyMemo      = "memo"
)

// ClassifyCommit returns the commit operation of a classification flow. A
// household or gift target creates the ledger entry and links it; none marks
// the transaction reviewed with no entry. If an earlier attempt left the
// transaction PartiallyResolved, the existing entry is reused when it is in the
// chosen ledger; otherwise the commit fails with a PartiallyResolved conflict.
func (c *Controller) ClassifyCommit() wizard.CommitFunc {
	return func(ctx context.Context, cc wizard.CommitContext) (wizard.CommitOutcome, error) {
		id := cc.Origin
		if id == "" {
			id = cc.Draft.Get(KeyPendingID)
		}
		if id == "" {
			return wizard.CommitOutcome{}, fmt.Errorf("session %s is not linked to a pending transaction", cc.SessionID)
		}

		target, err := ParseTarget(cc.Draft.Get(KeyTarget))
		if err != nil {
			return wizard.CommitOutcome{}, err
		}

		if target == TargetNone {
			if _, err := c.ResolveWithoutEntry(ctx, id); err != nil {
				return wizard.CommitOutcome{}, err
			}
			return wizard.CommitOutcome{Message: "marked reviewed with no ledger entry"}, nil
		}

		res, err := c.classifyIntoLedger(ctx, id, target, cc.Draft)
		if err != nil {
			return wizard.CommitOutcome{}, err
		}
		return wizard.CommitOutcome{
			EntryID: *res.LinkedEntryID,
			Message: fmt.Sprintf("%s entry created", target),
		}, nil
	}
}

func (c *Controller) classifyIntoLedger(ctx context.Context, id string, target Target, draft wizard.Draft) (Result, error) {
	release, err := c.reserve(id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	txn, err := c.pending(ctx, id)
	if err != nil {
		return Result{}, err
	}

	ledger := target.Ledger()
	c.mu.Lock()
	existing, reuse := c.partial[id]
	c.mu.Unlock()

	if !reuse {
		entryID, err := c.createEntry(ctx, txn, target, draft)
		if err != nil {
			return Result{}, err
		}
		return c.markWithEntry(ctx, txn, entryID, ledger)
	}

	if existing.ledger != ledger {
		return Result{}, &ConflictError{
			Kind:          ConflictPartiallyResolved,
			TransactionID: id,
			LinkedEntryID: existing.entryID,
			Err:           fmt.Errorf("%w: entry %s cannot be reused for %s", ErrTargetChanged, existing.entryID, target),
		}
	}
	slog.Info("Reusing ledger entry from partial resolution", "transaction_id", id, "entry_id", existing.entryID)
	return c.markWithEntry(ctx, txn, existing.entryID, ledger)
}

func (c *Controller) createEntry(ctx context.Context, txn *model.PendingTransaction, target Target, draft wizard.Draft) (string, error) {
	callCtx := context.WithoutCancel(ctx)

	var (
		entryID string
		err     error
	)
	switch target {
	case TargetHousehold:
		fields, buildErr := HouseholdFields(txn, draft)
		if buildErr != nil {
			return "", buildErr
		}
		entryID, err = c.ledgers.CreateHouseholdEntry(callCtx, fields)
	case TargetGift:
		fields, buildErr := GiftFields(txn, draft)
		if buildErr != nil {
			return "", buildErr
		}
		entryID, err = c.ledgers.CreateGiftMoneyEntry(callCtx, fields)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	if err != nil {
		// The transaction already has an entry in the other ledger. It stays
		// outstanding until retried.
		if errors.Is(err, common.ErrLedgerMismatch) && entryID != "" {
			c.mu.Lock()
			c.partial[txn.ID] = partialEntry{entryID: entryID}
			c.mu.Unlock()
			return "", &ConflictError{
				Kind:          ConflictPartiallyResolved,
				TransactionID: txn.ID,
				LinkedEntryID: entryID,
				Err:           fmt.Errorf("%w: %w", ErrTargetChanged, err),
			}
		}
		// An entry left behind by an earlier run is linked instead of duplicated.
		if errors.Is(err, common.ErrDuplicateEntry) && entryID != "" {
			slog.Warn("Ledger entry already exists for transaction", "transaction_id", txn.ID, "entry_id", entryID)
			return entryID, nil
		}
		return "", fmt.Errorf("failed to create %s entry for %s: %w", target, txn.ID, err)
	}
	return entryID, nil
}

// HouseholdFields builds a household entry from the transaction and the collected draft.
func HouseholdFields(txn *model.PendingTransaction, draft wizard.Draft) (model.HouseholdEntryFields, error) {
	category := strings.TrimSpace(draft.Get(KeyCategory))
	if category == "" {
		return model.HouseholdEntryFields{}, wizard.NewValidationError(wizard.CodeMissingField, KeyCategory, "required field missing")
	}

	kind, err := ParseEntryKind(draft.Get(KeyEntryKind))
	if err != nil {
		return model.HouseholdEntryFields{}, err
	}

	description := strings.TrimSpace(draft.Get(KeyMemo))
	if description == "" {
		description = txn.Description
	}

	source := txn.ID
	return model.HouseholdEntryFields{
		OccurredAt:          txn.OccurredAt,
		SourceTransactionID: &source,
		Description:         description,
		Category:            category,
		Kind:                kind,
		Amount:              txn.Amount,
	}, nil
}

// GiftFields builds a gift-money record from the transaction and the collected draft.
func GiftFields(txn *model.PendingTransaction, draft wizard.Draft) (model.GiftMoneyFields, error) {
	giver := strings.TrimSpace(draft.Get(KeyGiverName))
	if giver == "" {
		return model.GiftMoneyFields{}, wizard.NewValidationError(wizard.CodeMissingField, KeyGiverName, "required field missing")
	}

	side, err := ParseSide(draft.Get(KeySide))
	if err != nil {
		return model.GiftMoneyFields{}, err
	}

	source := txn.ID
	return model.GiftMoneyFields{
		OccurredAt:          txn.OccurredAt,
		SourceTransactionID: &source,
		GiverName:           giver,
		Relation:            strings.TrimSpace(draft.Get(KeyRelation)),
		Memo:                strings.TrimSpace(draft.Get(KeyMemo)),
		Side:                side,
		Amount:              txn.Amount,
	}, nil
}

// ParseEntryKind defaults to income, since reviewed transactions are deposits.
func ParseEntryKind(s string) (model.EntryKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(model.EntryIncome):
		return model.EntryIncome, nil
	case string(model.EntryExpense):
		return model.EntryExpense, nil
	}
	return "", wizard.NewValidationError(wizard.CodeInvalidValue, KeyEntryKind, "must be INCOME or EXPENSE")
}

// ParseSide accepts GROOM or BRIDE.
func ParseSide(s string) (model.WeddingSide, error) {
	switch side := model.WeddingSide(strings.ToUpper(strings.TrimSpace(s))); side {
	case model.SideGroom, model.SideBride:
		return side, nil
	}
	return "", wizard.NewValidationError(wizard.CodeInvalidValue, KeySide, "must be GROOM or BRIDE")
}

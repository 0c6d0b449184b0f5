package reconcile

import (
	"context"
	"testing"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/testutil"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleFlow(c *Controller) wizard.Flow {
	return wizard.Flow{
		Kind: "classify",
		Steps: []wizard.Step{{
			Name: "target",
			Validate: func(_ context.Context, step wizard.StepContext) (wizard.Draft, error) {
				target, err := ParseTarget(step.Draft.Get(KeyTarget))
				if err != nil {
					return nil, wizard.NewValidationError(wizard.CodeInvalidValue, KeyTarget, err.Error())
				}
				return wizard.Draft{KeyTarget: string(target)}, nil
			},
		}},
		Commit: c.ClassifyCommit(),
	}
}

func TestClassificationSession(t *testing.T) {
	ledger := testutil.NewMockLedger(pendingTxn("42", model.DomainGiftMoney, 300000))
	engine := wizard.New()
	c := New(ledger, ledger, engine, WithRetryOptions(fastRetry))
	ctx := context.Background()

	id, err := c.StartClassification(ctx, "42", simpleFlow(c))
	require.NoError(t, err)

	st, err := engine.State(id)
	require.NoError(t, err)
	assert.Equal(t, "42", st.Origin)
	assert.Equal(t, "300000", st.Draft.Get(KeyAmount))
	assert.Equal(t, "2026-04-11", st.Draft.Get(KeyOccurredAt))
	assert.Equal(t, "KIM MINJI", st.Draft.Get(KeyDescription))
	assert.ElementsMatch(t, []string{KeyPendingID, KeyAmount, KeyDescription, KeyOccurredAt, KeyDomain}, st.ReadOnly)

	res, err := engine.SubmitStep(ctx, id, wizard.Draft{KeyTarget: "NONE", KeyAmount: "1"})
	require.NoError(t, err)
	require.False(t, res.OK)
	assert.Equal(t, wizard.CodeReadOnlyField, res.Error.Code)

	res, err = engine.SubmitStep(ctx, id, wizard.Draft{KeyTarget: "NONE"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, wizard.StatusCommitting, res.Status)

	commit, err := engine.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusSucceeded, commit.Status)
	assert.Empty(t, commit.EntryID)

	pending, err := c.ListPending(ctx, model.DomainGiftMoney)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = c.ResolveByLedgerEntry(ctx, "42", "entry-1")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Zero(t, ledger.EntryCount())
}

func TestClassificationSessionCreatesEntry(t *testing.T) {
	ledger := testutil.NewMockLedger(pendingTxn("43", model.DomainHouseholdFinance, 120000))
	engine := wizard.New()
	c := New(ledger, ledger, engine, WithRetryOptions(fastRetry))
	ctx := context.Background()

	flow := simpleFlow(c)
	id, err := c.StartClassification(ctx, "43", flow)
	require.NoError(t, err)

	_, err = c.StartClassification(ctx, "43", flow)
	require.ErrorIs(t, err, wizard.ErrKindActive)

	_, err = engine.SubmitStep(ctx, id, wizard.Draft{KeyTarget: "household", KeyCategory: "Furniture"})
	require.NoError(t, err)

	commit, err := engine.Commit(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, commit.EntryID)

	entries, err := ledger.ListEntries(ctx, model.LedgerHousehold)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "43", *entries[0].SourceTransactionID)
	assert.Equal(t, "Furniture", entries[0].Category)
	assert.Equal(t, model.EntryIncome, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(pendingTxn("43", "", 120000).Amount))
}

func TestClassificationCommitFailureKeepsSession(t *testing.T) {
	ledger := testutil.NewMockLedger(pendingTxn("44", model.DomainGiftMoney, 50000))
	ledger.FailMarks(common.ErrBankUnavailable, common.ErrBankUnavailable, common.ErrBankUnavailable)
	engine := wizard.New()
	c := New(ledger, ledger, engine, WithRetryOptions(fastRetry))
	ctx := context.Background()

	id, err := c.StartClassification(ctx, "44", simpleFlow(c))
	require.NoError(t, err)
	_, err = engine.SubmitStep(ctx, id, wizard.Draft{KeyTarget: "gift", KeyGiverName: "Han", KeySide: "GROOM"})
	require.NoError(t, err)

	_, err = engine.Commit(ctx, id)
	require.ErrorIs(t, err, ErrPartiallyResolved)

	st, err := engine.State(id)
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusFailed, st.Status)
	assert.Equal(t, "Han", st.Draft.Get(KeyGiverName))

	_, err = engine.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	commit, err := engine.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusSucceeded, commit.Status)
	assert.Equal(t, 1, ledger.Creates())
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input   string
		want    Target
		wantErr bool
	}{
		{input: "household", want: TargetHousehold},
		{input: " Gift ", want: TargetGift},
		{input: "NONE", want: TargetNone},
		{input: "", wantErr: true},
		{input: "safe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTarget(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldBuilders(t *testing.T) {
	txn := pendingTxn("50", model.DomainHouseholdFinance, 99000)

	_, err := HouseholdFields(&txn, wizard.Draft{})
	var verr *wizard.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KeyCategory, verr.Field)

	fields, err := HouseholdFields(&txn, wizard.Draft{KeyCategory: "Hall", KeyEntryKind: "expense"})
	require.NoError(t, err)
	assert.Equal(t, model.EntryExpense, fields.Kind)
	assert.Equal(t, "KIM MINJI", fields.Description)
	assert.Equal(t, "50", *fields.SourceTransactionID)

	_, err = HouseholdFields(&txn, wizard.Draft{KeyCategory: "Hall", KeyEntryKind: "refund"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KeyEntryKind, verr.Field)

	_, err = GiftFields(&txn, wizard.Draft{KeyGiverName: "Yoon", KeySide: "uncle"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KeySide, verr.Field)

	gift, err := GiftFields(&txn, wizard.Draft{KeyGiverName: " Yoon ", KeySide: "groom", KeyRelation: "coworker"})
	require.NoError(t, err)
	assert.Equal(t, "Yoon", gift.GiverName)
	assert.Equal(t, model.SideGroom, gift.Side)
	assert.Equal(t, "coworker", gift.Relation)
}

func TestClassificationSessionLocalBackend(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.WithPending(
		testutil.Pending("gift-7", model.DomainGiftMoney, 200000, "PARK JIYEON"),
	))
	store := db.Storage
	engine := wizard.New()
	c := New(store, store, engine, WithRetryOptions(fastRetry), WithLedgerReader(store))
	ctx := context.Background()

	id, err := c.StartClassification(ctx, "gift-7", simpleFlow(c))
	require.NoError(t, err)
	_, err = engine.SubmitStep(ctx, id, wizard.Draft{
		KeyTarget:    "gift",
		KeyGiverName: "Park Jiyeon",
		KeySide:      "BRIDE",
		KeyRelation:  "aunt",
	})
	require.NoError(t, err)

	commit, err := engine.Commit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, wizard.StatusSucceeded, commit.Status)

	entryID, err := store.GetEntryForTransaction(ctx, "gift-7")
	require.NoError(t, err)
	assert.Equal(t, commit.EntryID, entryID)

	txn, err := store.GetPending(ctx, "gift-7")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewReviewed, txn.ReviewStatus)

	view, err := c.View(ctx, model.DomainGiftMoney)
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "Park Jiyeon", view.Entries[0].GiverName)

	// A second controller sees the stored review state.
	other := New(store, store, wizard.New(), WithRetryOptions(fastRetry))
	_, err = other.StartClassification(ctx, "gift-7", simpleFlow(other))
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

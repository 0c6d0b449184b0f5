package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	saved   map[string]State
	deleted []string
	mu      sync.Mutex
}

func newRecordingPersister() *recordingPersister {
	return &recordingPersister{saved: make(map[string]State)}
}

func (p *recordingPersister) Save(_ context.Context, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[state.Kind] = state
	return nil
}

func (p *recordingPersister) Delete(_ context.Context, kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.saved, kind)
	p.deleted = append(p.deleted, kind)
	return nil
}

func (p *recordingPersister) get(kind string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.saved[kind]
	return st, ok
}

type transferHarness struct {
	commitErr error
	block     chan struct{}
	started   chan struct{}
	balance   decimal.Decimal
	prepares  int
	commits   int
	mu        sync.Mutex
}

func (h *transferHarness) flow(requireAuth bool) Flow {
	return Flow{
		Kind:                 "transfer",
		FirstEntryStep:       0,
		RequireAuthorization: requireAuth,
		Steps: []Step{
			{
				Name: "select-account",
				Validate: func(_ context.Context, step StepContext) (Draft, error) {
					if verr := RequireFields(step.Draft, "account_id"); verr != nil {
						return nil, verr
					}
					return nil, nil
				},
			},
			{
				Name: "amount",
				Prepare: func(_ context.Context, _ Draft) (any, error) {
					h.mu.Lock()
					defer h.mu.Unlock()
					h.prepares++
					return h.balance, nil
				},
				Validate: func(_ context.Context, step StepContext) (Draft, error) {
					amount, err := model.ParseAmount(step.Draft.Get("amount"))
					if err != nil {
						return nil, NewValidationError(CodeInvalidFormat, "amount", err.Error())
					}
					balance, ok := step.Reference.(decimal.Decimal)
					if !ok {
						return nil, errors.New("balance missing")
					}
					if amount.GreaterThan(balance) {
						return nil, NewValidationError(CodeInsufficientBalance, "amount", "amount exceeds balance")
					}
					return Draft{"amount": amount.String()}, nil
				},
			},
			{
				Name: "confirm",
				Validate: func(_ context.Context, _ StepContext) (Draft, error) {
					return nil, nil
				},
			},
		},
		Commit: func(_ context.Context, _ CommitContext) (CommitOutcome, error) {
			h.mu.Lock()
			block, started := h.block, h.started
			h.started = nil
			h.mu.Unlock()
			if started != nil {
				close(started)
			}
			if block != nil {
				<-block
			}

			h.mu.Lock()
			defer h.mu.Unlock()
			h.commits++
			if h.commitErr != nil {
				return CommitOutcome{}, h.commitErr
			}
			return CommitOutcome{EntryID: "transfer-1", Message: "done"}, nil
		},
	}
}

func (h *transferHarness) commitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

func newHarness() *transferHarness {
	return &transferHarness{balance: decimal.NewFromInt(1000000)}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestEngine(opts ...Option) *Engine {
	fixed := time.Date(2026, 5, 16, 12, 0, 0, 0, time.UTC)
	base := []Option{
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(sequentialIDs()),
	}
	return New(append(base, opts...)...)
}

func advanceToCommitting(t *testing.T, e *Engine, id string) {
	t.Helper()
	ctx := context.Background()

	res, err := e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)

	res, err = e.SubmitStep(ctx, id, Draft{"amount": "1,200,000"})
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)

	res, err = e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)
}

func TestEngine_Start(t *testing.T) {
	h := newHarness()
	e := newTestEngine()

	id, err := e.Start(context.Background(), h.flow(false), Draft{"memo": "dress"})
	require.NoError(t, err)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st.Status)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, "select-account", st.StepName)
	assert.Empty(t, st.Completed)
	assert.Equal(t, "dress", st.Draft.Get("memo"))
}

func TestEngine_StartRejectsInvalidFlow(t *testing.T) {
	tests := []struct {
		name string
		flow Flow
	}{
		{name: "missing kind", flow: Flow{Steps: []Step{{Name: "a", Validate: noopValidate}}, Commit: noopCommit}},
		{name: "no steps", flow: Flow{Kind: "x", Commit: noopCommit}},
		{name: "no commit", flow: Flow{Kind: "x", Steps: []Step{{Name: "a", Validate: noopValidate}}}},
		{name: "entry step out of range", flow: Flow{Kind: "x", Steps: []Step{{Name: "a", Validate: noopValidate}}, Commit: noopCommit, FirstEntryStep: 3}},
		{name: "step without validator", flow: Flow{Kind: "x", Steps: []Step{{Name: "a"}}, Commit: noopCommit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().Start(context.Background(), tt.flow, nil)
			assert.ErrorIs(t, err, ErrInvalidFlow)
		})
	}
}

func TestEngine_InsufficientBalanceKeepsStep(t *testing.T) {
	h := newHarness()
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(true), nil)
	require.NoError(t, err)

	res, err := e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)
	require.True(t, res.OK)

	before, err := e.State(id)
	require.NoError(t, err)

	h.mu.Lock()
	h.balance = decimal.NewFromInt(1000000)
	h.mu.Unlock()

	res, err = e.SubmitStep(ctx, id, Draft{"amount": "1,200,000"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeInsufficientBalance, res.Error.Code)
	assert.Equal(t, 1, res.StepIndex)

	after, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, after.Draft.Get("amount"))
}

func TestEngine_ReferenceFetchedOncePerActivation(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)

	for _, amount := range []string{"abc", "0", "10,000,000"} {
		res, submitErr := e.SubmitStep(ctx, id, Draft{"amount": amount})
		require.NoError(t, submitErr)
		assert.False(t, res.OK, amount)
	}

	h.mu.Lock()
	assert.Equal(t, 1, h.prepares)
	h.mu.Unlock()

	res, err := e.SubmitStep(ctx, id, Draft{"amount": "1,200,000"})
	require.NoError(t, err)
	require.True(t, res.OK)

	require.NoError(t, e.Back(ctx, id))
	h.mu.Lock()
	assert.Equal(t, 2, h.prepares)
	h.mu.Unlock()
}

func TestEngine_NormalizedValuesMerged(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, Draft{"amount": "1,200,000"})
	require.NoError(t, err)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, "1200000", st.Draft.Get("amount"))
	assert.Equal(t, []int{0, 1}, st.Completed)
	assert.Equal(t, 2, st.StepIndex)
}

func TestEngine_LastStepTransition(t *testing.T) {
	tests := []struct {
		name        string
		want        Status
		requireAuth bool
	}{
		{name: "gated flow awaits authorization", requireAuth: true, want: StatusAwaitingAuthorization},
		{name: "ungated flow goes to committing", requireAuth: false, want: StatusCommitting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.balance = decimal.NewFromInt(5000000)
			e := newTestEngine()

			id, err := e.Start(context.Background(), h.flow(tt.requireAuth), nil)
			require.NoError(t, err)
			advanceToCommitting(t, e, id)

			st, err := e.State(id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			assert.Equal(t, 2, st.StepIndex)
		})
	}
}

func TestEngine_Back(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)

	require.ErrorIs(t, e.Back(ctx, id), ErrNoPreviousStep)

	_, err = e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, Draft{"amount": "300000"})
	require.NoError(t, err)

	require.NoError(t, e.Back(ctx, id))
	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, "300000", st.Draft.Get("amount"), "revisited step keeps previous input")
	assert.True(t, st.IsCompleted(1))

	_, err = e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)

	err = e.Back(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidState, "back is only legal while in progress")
}

func TestEngine_StepIndexBounded(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)

	inputs := []Draft{
		{"account_id": "acct-1"},
		{"amount": "bad"},
		{"amount": "10000"},
		nil,
		nil,
		nil,
	}
	last := 0
	for _, input := range inputs {
		_, _ = e.SubmitStep(ctx, id, input)
		st, stateErr := e.State(id)
		require.NoError(t, stateErr)
		assert.GreaterOrEqual(t, st.StepIndex, last)
		assert.LessOrEqual(t, st.StepIndex, 2)
		last = st.StepIndex
	}
}

func TestEngine_CommitOnce(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	persister := newRecordingPersister()
	e := newTestEngine(WithPersister(persister))
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	advanceToCommitting(t, e, id)

	res, err := e.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "transfer-1", res.EntryID)

	_, err = e.Commit(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.Equal(t, 1, h.commitCount())

	_, ok := persister.get("transfer")
	assert.False(t, ok, "snapshot must not survive a successful commit")

	_, ok = e.Active("transfer")
	assert.False(t, ok)
}

func TestEngine_CommitRequiresCommitting(t *testing.T) {
	h := newHarness()
	e := newTestEngine()

	id, err := e.Start(context.Background(), h.flow(true), nil)
	require.NoError(t, err)

	_, err = e.Commit(context.Background(), id)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, h.commitCount())
}

func TestEngine_ConcurrentCommitRejected(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	h.block = make(chan struct{})
	h.started = make(chan struct{})
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	advanceToCommitting(t, e, id)

	done := make(chan error, 1)
	go func() {
		_, commitErr := e.Commit(ctx, id)
		done <- commitErr
	}()
	<-h.started

	_, err = e.Commit(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	_, err = e.SubmitStep(ctx, id, nil)
	require.ErrorIs(t, err, ErrInvalidState)

	close(h.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.commitCount())
}

func TestEngine_OverlappingSubmitIsBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	flow := Flow{
		Kind: "slow",
		Steps: []Step{{
			Name: "only",
			Validate: func(_ context.Context, _ StepContext) (Draft, error) {
				close(entered)
				<-release
				return nil, nil
			},
		}},
		Commit: noopCommit,
	}
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, flow, nil)
	require.NoError(t, err)

	done := make(chan StepResult, 1)
	go func() {
		res, _ := e.SubmitStep(ctx, id, nil)
		done <- res
	}()
	<-entered

	_, err = e.SubmitStep(ctx, id, nil)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, e.Back(ctx, id), ErrBusy)

	close(release)
	res := <-done
	assert.True(t, res.OK)
}

func TestEngine_CommitFailureReturnsToEntryStep(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	h.commitErr = common.NewUserError("bank unavailable", common.ErrBankUnavailable)
	persister := newRecordingPersister()
	e := newTestEngine(WithPersister(persister))
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	advanceToCommitting(t, e, id)

	res, err := e.Commit(ctx, id)
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, common.ErrBankUnavailable)
	assert.Equal(t, "bank unavailable", cerr.Message)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 0, res.StepIndex)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "1200000", st.Draft.Get("amount"))
	assert.Equal(t, "acct-1", st.Draft.Get("account_id"))
	assert.Equal(t, 0, st.StepIndex)

	saved, ok := persister.get("transfer")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, saved.Status)

	// The user walks forward again without retyping and the retry succeeds.
	h.mu.Lock()
	h.commitErr = nil
	h.mu.Unlock()

	stepRes, err := e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, stepRes.OK)
	assert.Equal(t, StatusInProgress, stepRes.Status)

	_, err = e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)

	res, err = e.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 2, h.commitCount())
}

func TestEngine_KindActive(t *testing.T) {
	h := newHarness()
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)

	_, err = e.Start(ctx, h.flow(false), nil)
	require.ErrorIs(t, err, ErrKindActive)

	require.NoError(t, e.Abandon(ctx, id))

	_, err = e.Start(ctx, h.flow(false), nil)
	assert.NoError(t, err)
}

func TestEngine_ReadOnlyFields(t *testing.T) {
	h := newHarness()
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), Draft{"amount": "50000", "account_id": "acct-9"}, WithReadOnly("amount"))
	require.NoError(t, err)

	res, err := e.SubmitStep(ctx, id, Draft{"amount": "90000"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeReadOnlyField, res.Error.Code)
	assert.Equal(t, "amount", res.Error.Field)

	res, err = e.SubmitStep(ctx, id, Draft{"amount": "50000"})
	require.NoError(t, err)
	assert.True(t, res.OK, "resubmitting the seeded value is allowed")

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"amount"}, st.ReadOnly)
	assert.Equal(t, "50000", st.Draft.Get("amount"))
}

func TestEngine_PrepareRetriedOnSubmit(t *testing.T) {
	var mu sync.Mutex
	failures := 1
	calls := 0
	flow := Flow{
		Kind: "lookup",
		Steps: []Step{{
			Name: "balance",
			Prepare: func(_ context.Context, _ Draft) (any, error) {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if failures > 0 {
					failures--
					return nil, common.ErrBankUnavailable
				}
				return "ready", nil
			},
			Validate: func(_ context.Context, step StepContext) (Draft, error) {
				if step.Reference != "ready" {
					return nil, errors.New("reference not passed")
				}
				return nil, nil
			},
		}},
		Commit: noopCommit,
	}
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, flow, nil)
	require.NoError(t, err, "prepare failure does not block start")

	res, err := e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestEngine_PrepareUnavailableOnSubmit(t *testing.T) {
	flow := Flow{
		Kind: "lookup",
		Steps: []Step{{
			Name: "balance",
			Prepare: func(_ context.Context, _ Draft) (any, error) {
				return nil, common.ErrBankUnavailable
			},
			Validate: noopValidate,
		}},
		Commit: noopCommit,
	}
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, flow, nil)
	require.NoError(t, err)

	res, err := e.SubmitStep(ctx, id, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnavailable, res.Error.Code)
	assert.ErrorIs(t, res.Error, common.ErrBankUnavailable)
}

func TestEngine_AbandonDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	flow := Flow{
		Kind: "slow",
		Steps: []Step{{
			Name: "only",
			Validate: func(_ context.Context, _ StepContext) (Draft, error) {
				close(entered)
				<-release
				return Draft{"late": "value"}, nil
			},
		}},
		Commit: noopCommit,
	}
	persister := newRecordingPersister()
	e := newTestEngine(WithPersister(persister))
	ctx, cancel := context.WithCancel(context.Background())

	id, err := e.Start(ctx, flow, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, submitErr := e.SubmitStep(ctx, id, nil)
		done <- submitErr
	}()
	<-entered

	cancel()
	require.NoError(t, e.Abandon(context.Background(), id))
	close(release)

	require.ErrorIs(t, <-done, ErrAbandoned)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, st.Status)
	assert.Empty(t, st.Draft.Get("late"))

	_, ok := persister.get("slow")
	assert.False(t, ok)
}

func TestEngine_PersistsOnStartAndSubmit(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	persister := newRecordingPersister()
	e := newTestEngine(WithPersister(persister))
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(true), nil)
	require.NoError(t, err)

	saved, ok := persister.get("transfer")
	require.True(t, ok)
	assert.Equal(t, id, saved.ID)
	assert.Equal(t, 0, saved.StepIndex)

	_, err = e.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)

	saved, ok = persister.get("transfer")
	require.True(t, ok)
	assert.Equal(t, 1, saved.StepIndex)
	assert.Equal(t, "acct-1", saved.Draft.Get("account_id"))

	// Failed validation leaves the snapshot alone.
	_, err = e.SubmitStep(ctx, id, Draft{"amount": "nope"})
	require.NoError(t, err)
	again, ok := persister.get("transfer")
	require.True(t, ok)
	assert.Equal(t, saved, again)
}

func TestEngine_Reset(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	e := newTestEngine()
	ctx := context.Background()

	id, err := e.Start(ctx, h.flow(false), Draft{"memo": "hall"})
	require.NoError(t, err)
	_, err = e.SubmitStep(ctx, id, Draft{"account_id": "acct-1", "memo": "venue"})
	require.NoError(t, err)

	require.NoError(t, e.Reset(ctx, id))

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, 0, st.StepIndex)
	assert.Empty(t, st.Completed)
	assert.Equal(t, Draft{"memo": "hall"}, st.Draft)
}

func TestEngine_Resume(t *testing.T) {
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)
	persister := newRecordingPersister()
	first := newTestEngine(WithPersister(persister))
	ctx := context.Background()

	id, err := first.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	_, err = first.SubmitStep(ctx, id, Draft{"account_id": "acct-1"})
	require.NoError(t, err)

	saved, ok := persister.get("transfer")
	require.True(t, ok)

	second := newTestEngine()
	resumed, err := second.Resume(ctx, h.flow(false), saved)
	require.NoError(t, err)
	assert.Equal(t, id, resumed)

	st, err := second.State(resumed)
	require.NoError(t, err)
	assert.Equal(t, saved.Draft, st.Draft)
	assert.Equal(t, saved.StepIndex, st.StepIndex)
	assert.Equal(t, saved.Completed, st.Completed)

	res, err := second.SubmitStep(ctx, resumed, Draft{"amount": "20000"})
	require.NoError(t, err)
	assert.True(t, res.OK, "reference data is fetched again on resume")

	_, err = second.Resume(ctx, h.flow(false), saved)
	assert.ErrorIs(t, err, ErrKindActive)
}

func TestEngine_ResumeInterruptedCommit(t *testing.T) {
	h := newHarness()
	persister := newRecordingPersister()
	first := newTestEngine(WithPersister(persister))
	ctx := context.Background()

	id, err := first.Start(ctx, h.flow(false), nil)
	require.NoError(t, err)
	for _, input := range []Draft{{"account_id": "acct-1"}, {"amount": "20000"}, nil} {
		res, submitErr := first.SubmitStep(ctx, id, input)
		require.NoError(t, submitErr)
		require.True(t, res.OK)
	}

	// The process stops before Commit is dispatched.
	saved, ok := persister.get("transfer")
	require.True(t, ok)
	require.Equal(t, StatusCommitting, saved.Status)

	second := newTestEngine(WithPersister(persister))
	resumed, err := second.Resume(ctx, h.flow(false), saved)
	require.NoError(t, err)

	st, err := second.State(resumed)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitting, st.Status)

	res, err := second.Commit(ctx, resumed)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 1, h.commitCount())

	_, ok = persister.get("transfer")
	assert.False(t, ok, "a successful commit forgets the snapshot")
}

func TestEngine_ResumeRejectsBadSnapshot(t *testing.T) {
	h := newHarness()

	tests := []struct {
		want        error
		name        string
		state       State
		requireAuth bool
	}{
		{name: "kind mismatch", state: State{ID: "s", Kind: "other", Status: StatusInProgress}, want: ErrInvalidFlow},
		{name: "index out of range", state: State{ID: "s", Kind: "transfer", Status: StatusInProgress, StepIndex: 9}, want: ErrInvalidState},
		{name: "terminal status", state: State{ID: "s", Kind: "transfer", Status: StatusSucceeded}, want: ErrInvalidState},
		{name: "committing before last step", state: State{ID: "s", Kind: "transfer", Status: StatusCommitting}, want: ErrInvalidState},
		{
			name:        "committing behind authorization",
			state:       State{ID: "s", Kind: "transfer", Status: StatusCommitting, StepIndex: 2},
			requireAuth: true,
			want:        ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().Resume(context.Background(), h.flow(tt.requireAuth), tt.state)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEngine_UnknownSession(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.SubmitStep(ctx, "missing", nil)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Commit(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, e.Back(ctx, "missing"), ErrSessionNotFound)
	require.ErrorIs(t, e.Abandon(ctx, "missing"), ErrSessionNotFound)
	_, err = e.State("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func noopValidate(_ context.Context, _ StepContext) (Draft, error) {
	return nil, nil
}

func noopCommit(_ context.Context, _ CommitContext) (CommitOutcome, error) {
	return CommitOutcome{}, nil
}

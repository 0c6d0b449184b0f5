package wizard

import (
	"context"
	"testing"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitingSession(t *testing.T, e *Engine) string {
	t.Helper()
	h := newHarness()
	h.balance = decimal.NewFromInt(5000000)

	id, err := e.Start(context.Background(), h.flow(true), nil)
	require.NoError(t, err)
	advanceToCommitting(t, e, id)

	st, err := e.State(id)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingAuthorization, st.Status)
	return id
}

func TestPinGate_RejectsMalformedLocally(t *testing.T) {
	tests := []struct {
		want error
		name string
		code string
	}{
		{name: "five digits", code: "12345", want: ErrInvalidLength},
		{name: "seven digits", code: "1234567", want: ErrInvalidLength},
		{name: "empty", code: "", want: ErrInvalidLength},
		{name: "letters", code: "12a456", want: ErrInvalidFormat},
		{name: "full width digits", code: "１２", want: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			verifier := testutil.NewMockVerifier("123456")
			gate := NewPinGate(e, verifier)
			id := awaitingSession(t, e)

			code := []byte(tt.code)
			outcome, err := gate.SubmitCode(context.Background(), id, code)
			require.NoError(t, err)

			assert.ErrorIs(t, outcome.Err, tt.want)
			assert.False(t, outcome.Verified)
			assert.Equal(t, AttemptPending, outcome.Attempt.Result)
			assert.Equal(t, StatusAwaitingAuthorization, outcome.Status)
			assert.Zero(t, verifier.Calls())
			for _, b := range code {
				assert.Zero(t, b)
			}
		})
	}
}

func TestPinGate_Verified(t *testing.T) {
	e := newTestEngine()
	verifier := testutil.NewMockVerifier("123456")
	gate := NewPinGate(e, verifier)
	id := awaitingSession(t, e)

	attempt, err := gate.RequestAuthorization(id)
	require.NoError(t, err)
	assert.Equal(t, AttemptPending, attempt.Result)
	assert.Equal(t, id, attempt.SessionID)

	again, err := gate.RequestAuthorization(id)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, again.ID, "pending attempt is reused")

	code := []byte("123456")
	outcome, err := gate.SubmitCode(context.Background(), id, code)
	require.NoError(t, err)
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Verified)
	assert.Equal(t, AttemptVerified, outcome.Attempt.Result)
	assert.Equal(t, attempt.ID, outcome.Attempt.ID)
	assert.Equal(t, StatusCommitting, outcome.Status)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, code)
	assert.Equal(t, 1, verifier.Calls())

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitting, st.Status)
	for key, value := range st.Draft {
		assert.NotEqual(t, "123456", value, "code leaked into draft key %s", key)
	}

	_, err = gate.RequestAuthorization(id)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPinGate_RejectedAllowsResubmit(t *testing.T) {
	e := newTestEngine()
	verifier := testutil.NewMockVerifier("123456")
	gate := NewPinGate(e, verifier)
	id := awaitingSession(t, e)
	ctx := context.Background()

	first, err := gate.RequestAuthorization(id)
	require.NoError(t, err)

	outcome, err := gate.SubmitCode(ctx, id, []byte("000000"))
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Err, ErrRejected)
	assert.Equal(t, AttemptRejected, outcome.Attempt.Result)
	assert.Equal(t, first.ID, outcome.Attempt.ID)
	assert.Equal(t, StatusAwaitingAuthorization, outcome.Status)

	second, err := gate.RequestAuthorization(id)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "rejected attempt is discarded")

	outcome, err = gate.SubmitCode(ctx, id, []byte("123456"))
	require.NoError(t, err)
	assert.True(t, outcome.Verified)
	assert.Equal(t, 2, verifier.Calls())
}

func TestPinGate_TransportFailureIsRejection(t *testing.T) {
	e := newTestEngine()
	verifier := testutil.NewMockVerifier("123456")
	verifier.Err = common.ErrBankUnavailable
	gate := NewPinGate(e, verifier)
	id := awaitingSession(t, e)

	outcome, err := gate.SubmitCode(context.Background(), id, []byte("123456"))
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Err, ErrRejected)
	assert.ErrorIs(t, outcome.Err, common.ErrBankUnavailable)
	assert.Equal(t, AttemptRejected, outcome.Attempt.Result)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAuthorization, st.Status)
}

func TestPinGate_OneVerifierCallPerSubmission(t *testing.T) {
	e := newTestEngine()
	verifier := testutil.NewMockVerifier("999999")
	gate := NewPinGate(e, verifier)
	id := awaitingSession(t, e)

	for range 3 {
		_, err := gate.SubmitCode(context.Background(), id, []byte("111111"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, verifier.Calls())
	assert.Equal(t, []string{"111111", "111111", "111111"}, verifier.Codes())
}

func TestPinGate_Dismiss(t *testing.T) {
	e := newTestEngine()
	gate := NewPinGate(e, testutil.NewMockVerifier("123456"))
	id := awaitingSession(t, e)

	first, err := gate.RequestAuthorization(id)
	require.NoError(t, err)

	code := []byte("12")
	require.NoError(t, gate.Dismiss(id, code))
	assert.Equal(t, []byte{0, 0}, code)

	st, err := e.State(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAuthorization, st.Status)

	next, err := gate.RequestAuthorization(id)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestPinGate_WrongState(t *testing.T) {
	e := newTestEngine()
	verifier := testutil.NewMockVerifier("123456")
	gate := NewPinGate(e, verifier)
	h := newHarness()

	id, err := e.Start(context.Background(), h.flow(true), nil)
	require.NoError(t, err)

	code := []byte("123456")
	_, err = gate.SubmitCode(context.Background(), id, code)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, make([]byte, 6), code)
	assert.Zero(t, verifier.Calls())

	_, err = gate.SubmitCode(context.Background(), "missing", []byte("123456"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

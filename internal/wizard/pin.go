package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/service"
)

// CodeLength is the number of digits in an authorization code.
const CodeLength = 6

// AttemptResult is the state of one authorization attempt.
type AttemptResult string

// Attempt results.
const (
	AttemptPending  AttemptResult = "PENDING"
	AttemptVerified AttemptResult = "VERIFIED"
	AttemptRejected AttemptResult = "REJECTED"
)

// Authorization errors. They are reported in VerificationOutcome.Err and never
// move the session out of StatusAwaitingAuthorization.
var (
	ErrInvalidLength = errors.New("code must be 6 digits")
	ErrInvalidFormat = errors.New("code must contain digits only")
	ErrRejected      = errors.New("code rejected")
)

// AuthorizationAttempt records one gate check. It never holds the code itself.
type AuthorizationAttempt struct {
	CreatedAt time.Time
	ID        string
	SessionID string
	Result    AttemptResult
}

// VerificationOutcome reports the result of SubmitCode.
type VerificationOutcome struct {
	Err      error
	Attempt  AuthorizationAttempt
	Status   Status
	Verified bool
}

// PinGate gates a session's commit behind an externally verified numeric code.
type PinGate struct {
	engine   *Engine
	verifier service.Verifier
}

// NewPinGate creates a gate over engine's sessions.
func NewPinGate(engine *Engine, verifier service.Verifier) *PinGate {
	return &PinGate{engine: engine, verifier: verifier}
}

// RequestAuthorization opens an attempt for a session awaiting authorization.
// An attempt that is still pending is returned as is.
func (g *PinGate) RequestAuthorization(id string) (AuthorizationAttempt, error) {
	e := g.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookup(id)
	if err != nil {
		return AuthorizationAttempt{}, err
	}
	if s.status != StatusAwaitingAuthorization {
		return AuthorizationAttempt{}, fmt.Errorf("%w: authorization requested while %s", ErrInvalidState, s.status)
	}
	if s.op != opNone {
		return AuthorizationAttempt{}, ErrBusy
	}
	return *g.ensureAttemptLocked(s), nil
}

// SubmitCode checks code with the verifier. Malformed codes are rejected locally
// without a verifier call. The code buffer is zeroed before SubmitCode returns.
func (g *PinGate) SubmitCode(ctx context.Context, id string, code []byte) (VerificationOutcome, error) {
	defer clear(code)

	e := g.engine
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return VerificationOutcome{}, err
	}
	if s.status != StatusAwaitingAuthorization {
		status := s.status
		e.mu.Unlock()
		return VerificationOutcome{Status: status}, fmt.Errorf("%w: code submitted while %s", ErrInvalidState, status)
	}
	if s.op != opNone {
		e.mu.Unlock()
		return VerificationOutcome{Status: s.status}, ErrBusy
	}

	attempt := *g.ensureAttemptLocked(s)
	if formatErr := checkCode(code); formatErr != nil {
		e.mu.Unlock()
		return VerificationOutcome{Err: formatErr, Attempt: attempt, Status: StatusAwaitingAuthorization}, nil
	}
	s.op = opAuthorize
	e.mu.Unlock()
	defer e.release(s)

	valid, verifyErr := g.verifier.Verify(context.WithoutCancel(ctx), code)

	e.mu.Lock()
	if s.status == StatusAbandoned {
		e.mu.Unlock()
		return VerificationOutcome{Status: StatusAbandoned}, ErrAbandoned
	}
	s.attempt = nil

	if verifyErr != nil || !valid {
		attempt.Result = AttemptRejected
		e.mu.Unlock()

		outcome := VerificationOutcome{Attempt: attempt, Status: StatusAwaitingAuthorization, Err: ErrRejected}
		if verifyErr != nil {
			outcome.Err = fmt.Errorf("%w: %w", ErrRejected, verifyErr)
			slog.Warn("Authorization verifier failed", "session_id", id, "attempt_id", attempt.ID, "error", verifyErr)
		} else {
			slog.Info("Authorization rejected", "session_id", id, "attempt_id", attempt.ID)
		}
		return outcome, nil
	}

	attempt.Result = AttemptVerified
	s.status = StatusCommitting
	s.updatedAt = e.now()
	e.mu.Unlock()

	slog.Info("Authorization verified", "session_id", id, "attempt_id", attempt.ID)
	return VerificationOutcome{Attempt: attempt, Status: StatusCommitting, Verified: true}, nil
}

// Dismiss discards the pending attempt without changing the session status.
func (g *PinGate) Dismiss(id string, code []byte) error {
	clear(code)

	e := g.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	if s.op != opAuthorize {
		s.attempt = nil
	}
	return nil
}

func (g *PinGate) ensureAttemptLocked(s *session) *AuthorizationAttempt {
	if s.attempt == nil {
		s.attempt = &AuthorizationAttempt{
			CreatedAt: g.engine.now(),
			ID:        g.engine.newID(),
			SessionID: s.id,
			Result:    AttemptPending,
		}
	}
	return s.attempt
}

func checkCode(code []byte) error {
	if len(code) != CodeLength {
		return ErrInvalidLength
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return ErrInvalidFormat
		}
	}
	return nil
}

// Package wizard drives guarded multi-step transaction sessions: ordered steps with
// validation gates, optional PIN authorization, and exactly one terminal commit.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/google/uuid"
)

type opKind int

const (
	opNone opKind = iota
	opSubmit
	opNavigate
	opAuthorize
	opCommit
)

// Persister stores the single in-progress snapshot per flow kind.
type Persister interface {
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context, kind string) error
}

type session struct {
	createdAt      time.Time
	updatedAt      time.Time
	reference      any
	attempt        *AuthorizationAttempt
	draft          Draft
	initial        Draft
	completed      map[int]bool
	readOnly       map[string]bool
	id             string
	origin         string
	status         Status
	flow           Flow
	index          int
	op             opKind
	referenceReady bool
}

// Engine owns every live session. Operations on one session are serialized:
// an overlapping call is rejected rather than queued.
type Engine struct {
	persister Persister
	sessions  map[string]*session
	active    map[string]string
	now       func() time.Time
	newID     func() string
	mu        sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersister snapshots sessions on start and every successful step.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides session and attempt id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		sessions: make(map[string]*session),
		active:   make(map[string]string),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartOption customizes a new session.
type StartOption func(*session)

// WithReadOnly marks seeded draft keys as immutable for the session's lifetime.
func WithReadOnly(keys ...string) StartOption {
	return func(s *session) {
		for _, key := range keys {
			s.readOnly[key] = true
		}
	}
}

// WithOrigin records the id of the pending transaction a session was opened for.
func WithOrigin(transactionID string) StartOption {
	return func(s *session) { s.origin = transactionID }
}

// Start creates a session at step 0 and snapshots it.
func (e *Engine) Start(ctx context.Context, flow Flow, initial Draft, opts ...StartOption) (string, error) {
	if err := flow.validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	if activeID, ok := e.active[flow.Kind]; ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s (session %s)", ErrKindActive, flow.Kind, activeID)
	}

	now := e.now()
	s := &session{
		id:        e.newID(),
		flow:      flow,
		draft:     initial.Clone(),
		initial:   initial.Clone(),
		completed: make(map[int]bool),
		readOnly:  make(map[string]bool),
		status:    StatusInProgress,
		createdAt: now,
		updatedAt: now,
		op:        opNavigate,
	}
	for _, opt := range opts {
		opt(s)
	}
	e.sessions[s.id] = s
	e.active[flow.Kind] = s.id
	e.mu.Unlock()
	defer e.release(s)

	e.activate(ctx, s)
	e.persist(ctx, e.state(s))

	slog.Info("Session started",
		"session_id", s.id,
		"kind", flow.Kind,
		"steps", len(flow.Steps),
		"origin", s.origin)

	return s.id, nil
}

// Resume rebuilds a session from a persisted snapshot.
func (e *Engine) Resume(ctx context.Context, flow Flow, st State) (string, error) {
	if err := flow.validate(); err != nil {
		return "", err
	}
	if st.Kind != flow.Kind {
		return "", fmt.Errorf("%w: snapshot kind %s does not match flow %s", ErrInvalidFlow, st.Kind, flow.Kind)
	}
	if st.StepIndex < 0 || st.StepIndex >= len(flow.Steps) {
		return "", fmt.Errorf("%w: snapshot step %d out of range", ErrInvalidState, st.StepIndex)
	}
	if !resumable(flow, st) {
		return "", fmt.Errorf("%w: cannot resume a %s session", ErrInvalidState, st.Status)
	}

	e.mu.Lock()
	if activeID, ok := e.active[flow.Kind]; ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s (session %s)", ErrKindActive, flow.Kind, activeID)
	}
	if existing, ok := e.sessions[st.ID]; ok && !existing.status.Terminal() {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: session %s is live", ErrKindActive, st.ID)
	}

	s := &session{
		id:        st.ID,
		flow:      flow,
		draft:     st.Draft.Clone(),
		initial:   st.Initial.Clone(),
		completed: make(map[int]bool, len(st.Completed)),
		readOnly:  make(map[string]bool, len(st.ReadOnly)),
		origin:    st.Origin,
		status:    st.Status,
		index:     st.StepIndex,
		createdAt: st.UpdatedAt,
		updatedAt: st.UpdatedAt,
		op:        opNavigate,
	}
	for _, i := range st.Completed {
		s.completed[i] = true
	}
	for _, key := range st.ReadOnly {
		s.readOnly[key] = true
	}
	e.sessions[s.id] = s
	e.active[flow.Kind] = s.id
	e.mu.Unlock()
	defer e.release(s)

	e.activate(ctx, s)

	slog.Info("Session resumed", "session_id", s.id, "kind", flow.Kind, "step_index", s.index)
	return s.id, nil
}

// resumable reports whether st can be picked up again. Without an
// authorization gate, the final submit saves Committing before the commit
// runs, so that snapshot resumes ready to commit.
func resumable(flow Flow, st State) bool {
	switch {
	case st.Status.HasUnsavedWork(), st.Status == StatusFailed:
		return true
	case st.Status == StatusCommitting:
		return !flow.RequireAuthorization && st.StepIndex == len(flow.Steps)-1
	}
	return false
}

// SubmitStep validates input for the active step against the draft merged with it.
// A validation failure is returned in the result and leaves the session untouched.
func (e *Engine) SubmitStep(ctx context.Context, id string, input Draft) (StepResult, error) {
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return StepResult{}, err
	}
	if s.status != StatusInProgress && s.status != StatusFailed {
		res := s.result()
		e.mu.Unlock()
		return res, fmt.Errorf("%w: submit while %s", ErrInvalidState, s.status)
	}
	if s.op != opNone {
		res := s.result()
		e.mu.Unlock()
		return res, ErrBusy
	}
	if key := s.readOnlyViolation(input); key != "" {
		res := s.failure(NewValidationError(CodeReadOnlyField, key, "field is read-only"))
		e.mu.Unlock()
		return res, nil
	}

	s.op = opSubmit
	index := s.index
	step := s.flow.Steps[index]
	merged := s.draft.Merge(input)
	ref, ready := s.reference, s.referenceReady
	e.mu.Unlock()
	defer e.release(s)

	callCtx := context.WithoutCancel(ctx)

	if !ready {
		fetched, prepErr := step.Prepare(callCtx, merged)
		if prepErr != nil {
			slog.Warn("Reference data unavailable", "session_id", id, "step", step.Name, "error", prepErr)
			return e.failure(s, &ValidationError{
				Code:    CodeUnavailable,
				Message: "reference data unavailable",
				Err:     prepErr,
			}), nil
		}
		ref = fetched
		e.mu.Lock()
		if s.index == index {
			s.reference = fetched
			s.referenceReady = true
		}
		e.mu.Unlock()
	}

	normalized, validateErr := step.Validate(callCtx, StepContext{
		Reference: ref,
		Draft:     merged.Clone(),
		SessionID: id,
		StepName:  step.Name,
	})

	e.mu.Lock()
	if s.status == StatusAbandoned {
		e.mu.Unlock()
		return StepResult{Status: StatusAbandoned, Reason: ErrAbandoned.Error()}, ErrAbandoned
	}
	if validateErr != nil {
		res := s.failure(asValidationError(validateErr))
		e.mu.Unlock()
		slog.Debug("Step validation failed", "session_id", id, "step", step.Name, "reason", res.Reason)
		return res, nil
	}

	for key := range s.readOnly {
		delete(normalized, key)
	}
	s.draft = merged.Merge(normalized)
	s.completed[index] = true
	if s.status == StatusFailed {
		s.status = StatusInProgress
	}

	advanced := false
	switch {
	case index < len(s.flow.Steps)-1:
		s.index++
		advanced = true
	case s.flow.RequireAuthorization:
		s.status = StatusAwaitingAuthorization
	default:
		s.status = StatusCommitting
	}
	s.updatedAt = e.now()
	e.mu.Unlock()

	if advanced {
		e.activate(ctx, s)
	}

	state := e.state(s)
	e.persist(ctx, state)

	slog.Debug("Step completed",
		"session_id", id,
		"step", step.Name,
		"next_index", state.StepIndex,
		"status", state.Status)

	return StepResult{
		OK:        true,
		StepIndex: state.StepIndex,
		StepName:  state.StepName,
		Status:    state.Status,
	}, nil
}

// Back returns to the previous step. Collected draft fields are kept so the step is pre-filled.
func (e *Engine) Back(ctx context.Context, id string) error {
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if s.status != StatusInProgress {
		e.mu.Unlock()
		return fmt.Errorf("%w: back while %s", ErrInvalidState, s.status)
	}
	if s.op != opNone {
		e.mu.Unlock()
		return ErrBusy
	}
	if s.index == 0 {
		e.mu.Unlock()
		return ErrNoPreviousStep
	}
	s.index--
	s.op = opNavigate
	s.updatedAt = e.now()
	e.mu.Unlock()
	defer e.release(s)

	e.activate(ctx, s)
	e.persist(ctx, e.state(s))
	return nil
}

// Commit runs the flow's single finalize operation. It is only legal from
// StatusCommitting; a concurrent second call is rejected with ErrAlreadyInProgress.
// On downstream failure the session becomes Failed and returns to the flow's first
// data-entry step with the draft intact.
func (e *Engine) Commit(ctx context.Context, id string) (CommitResult, error) {
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return CommitResult{}, err
	}

	var stateErr error
	switch {
	case s.status == StatusSucceeded:
		stateErr = ErrAlreadyCommitted
	case s.op == opCommit:
		stateErr = ErrAlreadyInProgress
	case s.op != opNone:
		stateErr = ErrBusy
	case s.status != StatusCommitting:
		stateErr = fmt.Errorf("%w: commit while %s", ErrInvalidState, s.status)
	}
	if stateErr != nil {
		res := CommitResult{Status: s.status, StepIndex: s.index}
		e.mu.Unlock()
		return res, stateErr
	}

	s.op = opCommit
	commit := s.flow.Commit
	cc := CommitContext{
		Draft:     s.draft.Clone(),
		SessionID: s.id,
		Kind:      s.flow.Kind,
		Origin:    s.origin,
	}
	e.mu.Unlock()
	defer e.release(s)

	outcome, commitErr := commit(context.WithoutCancel(ctx), cc)

	e.mu.Lock()
	if s.status == StatusAbandoned {
		e.mu.Unlock()
		slog.Warn("Discarding commit result for abandoned session", "session_id", id, "error", commitErr)
		return CommitResult{Status: StatusAbandoned}, ErrAbandoned
	}

	if commitErr != nil {
		cerr := &CommitError{
			Err:       commitErr,
			SessionID: s.id,
			Message:   common.UserMessage(commitErr),
		}
		s.status = StatusFailed
		s.index = s.flow.FirstEntryStep
		s.attempt = nil
		s.updatedAt = e.now()
		e.mu.Unlock()

		slog.Warn("Commit failed",
			"session_id", id,
			"kind", cc.Kind,
			"error", commitErr)

		e.activate(ctx, s)
		state := e.state(s)
		e.persist(ctx, state)

		return CommitResult{
			Err:       cerr,
			Message:   cerr.Message,
			Status:    state.Status,
			StepIndex: state.StepIndex,
		}, cerr
	}

	s.status = StatusSucceeded
	s.updatedAt = e.now()
	if e.active[s.flow.Kind] == s.id {
		delete(e.active, s.flow.Kind)
	}
	res := CommitResult{
		EntryID:   outcome.EntryID,
		Message:   outcome.Message,
		Status:    s.status,
		StepIndex: s.index,
	}
	e.mu.Unlock()

	e.forget(ctx, cc.Kind)

	slog.Info("Session committed", "session_id", id, "kind", cc.Kind, "entry_id", outcome.EntryID)
	return res, nil
}

// Abandon ends a session without committing. Results of calls still in flight are discarded.
func (e *Engine) Abandon(ctx context.Context, id string) error {
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	switch s.status {
	case StatusAbandoned:
		e.mu.Unlock()
		return nil
	case StatusSucceeded:
		e.mu.Unlock()
		return fmt.Errorf("%w: session already committed", ErrInvalidState)
	}
	s.status = StatusAbandoned
	s.attempt = nil
	s.updatedAt = e.now()
	kind := s.flow.Kind
	if e.active[kind] == s.id {
		delete(e.active, kind)
	}
	e.mu.Unlock()

	e.forget(ctx, kind)

	slog.Info("Session abandoned", "session_id", id, "kind", kind)
	return nil
}

// Reset returns a live session to step 0 with its initial draft.
func (e *Engine) Reset(ctx context.Context, id string) error {
	e.mu.Lock()
	s, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if s.status.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("%w: reset while %s", ErrInvalidState, s.status)
	}
	if s.op != opNone {
		e.mu.Unlock()
		return ErrBusy
	}
	s.draft = s.initial.Clone()
	s.index = 0
	s.completed = make(map[int]bool)
	s.status = StatusInProgress
	s.attempt = nil
	s.op = opNavigate
	s.updatedAt = e.now()
	e.mu.Unlock()
	defer e.release(s)

	e.activate(ctx, s)
	return nil
}

// State returns a copy of the session.
func (e *Engine) State(id string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookup(id)
	if err != nil {
		return State{}, err
	}
	return s.stateLocked(), nil
}

// Active returns the live session id for a flow kind.
func (e *Engine) Active(kind string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.active[kind]
	return id, ok
}

func (e *Engine) lookup(id string) (*session, error) {
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// activate fetches reference data for the current step. The caller holds the op slot.
func (e *Engine) activate(ctx context.Context, s *session) {
	e.mu.Lock()
	index := s.index
	step := s.flow.Steps[index]
	s.reference = nil
	s.referenceReady = step.Prepare == nil
	draft := s.draft.Clone()
	e.mu.Unlock()

	if step.Prepare == nil {
		return
	}

	ref, err := step.Prepare(context.WithoutCancel(ctx), draft)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		slog.Warn("Failed to prepare step, will retry on submit",
			"session_id", s.id,
			"step", step.Name,
			"error", err)
		return
	}
	if s.index == index && s.status != StatusAbandoned {
		s.reference = ref
		s.referenceReady = true
	}
}

func (e *Engine) release(s *session) {
	e.mu.Lock()
	s.op = opNone
	e.mu.Unlock()
}

func (e *Engine) state(s *session) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.stateLocked()
}

func (e *Engine) failure(s *session, verr *ValidationError) StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.failure(verr)
}

func (e *Engine) persist(ctx context.Context, state State) {
	if e.persister == nil || state.Status.Terminal() {
		return
	}
	if err := e.persister.Save(context.WithoutCancel(ctx), state); err != nil {
		slog.Warn("Failed to snapshot session", "session_id", state.ID, "kind", state.Kind, "error", err)
	}
}

func (e *Engine) forget(ctx context.Context, kind string) {
	if e.persister == nil {
		return
	}
	if err := e.persister.Delete(context.WithoutCancel(ctx), kind); err != nil {
		slog.Error("Failed to delete session snapshot", "kind", kind, "error", err)
	}
}

func (s *session) stateLocked() State {
	completed := make([]int, 0, len(s.completed))
	for i := range s.completed {
		completed = append(completed, i)
	}
	slices.Sort(completed)

	return State{
		UpdatedAt: s.updatedAt,
		Draft:     s.draft.Clone(),
		Initial:   s.initial.Clone(),
		ID:        s.id,
		Kind:      s.flow.Kind,
		Origin:    s.origin,
		Status:    s.status,
		StepName:  s.flow.Steps[s.index].Name,
		Completed: completed,
		ReadOnly:  slices.Sorted(maps.Keys(s.readOnly)),
		StepIndex: s.index,
	}
}

func (s *session) result() StepResult {
	return StepResult{
		Status:    s.status,
		StepIndex: s.index,
		StepName:  s.flow.Steps[s.index].Name,
	}
}

func (s *session) failure(verr *ValidationError) StepResult {
	res := s.result()
	res.Error = verr
	res.Reason = verr.Error()
	return res
}

func (s *session) readOnlyViolation(input Draft) string {
	for _, key := range slices.Sorted(maps.Keys(input)) {
		if s.readOnly[key] && input[key] != s.draft[key] {
			return key
		}
	}
	return ""
}

func asValidationError(err error) *ValidationError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &ValidationError{
		Code:    CodeUnavailable,
		Message: err.Error(),
		Err:     err,
	}
}

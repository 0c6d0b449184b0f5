// Package draft persists the in-progress wizard of each kind and guards
// navigation that would silently discard it.
package draft

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/wedding-ledger/internal/wizard"
)

// Decision is the answer to a leave request.
type Decision struct {
	// MustConfirm is set when leaving would discard unsaved work.
	MustConfirm bool
	// Proceed is set when the caller may navigate away.
	Proceed bool
}

// ConfirmFunc asks the user whether to discard state. It is only called when
// confirmation is required.
type ConfirmFunc func(ctx context.Context, state wizard.State) (bool, error)

// Store binds an engine to its snapshot slots.
type Store struct {
	engine    *wizard.Engine
	snapshots *Snapshots
}

// NewStore creates a draft store. The engine should have been built with
// wizard.WithPersister(snapshots) so snapshots follow every step.
func NewStore(engine *wizard.Engine, snapshots *Snapshots) *Store {
	return &Store{engine: engine, snapshots: snapshots}
}

// Snapshot writes the session's current state to its kind's slot.
func (s *Store) Snapshot(ctx context.Context, sessionID string) error {
	state, err := s.engine.State(sessionID)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return fmt.Errorf("%w: cannot snapshot a %s session", wizard.ErrInvalidState, state.Status)
	}
	return s.snapshots.Save(ctx, state)
}

// Restore resumes the saved session of flow's kind.
func (s *Store) Restore(ctx context.Context, flow wizard.Flow) (string, error) {
	state, savedAt, err := s.snapshots.Load(ctx, flow.Kind)
	if err != nil {
		return "", err
	}

	id, err := s.engine.Resume(ctx, flow, state)
	if err != nil {
		return "", fmt.Errorf("failed to restore draft %s: %w", flow.Kind, err)
	}

	slog.Info("Draft restored",
		"session_id", id,
		"kind", flow.Kind,
		"step_index", state.StepIndex,
		"saved_at", savedAt)
	return id, nil
}

// Saved returns the persisted state of kind, if any.
func (s *Store) Saved(ctx context.Context, kind string) (wizard.State, error) {
	state, _, err := s.snapshots.Load(ctx, kind)
	return state, err
}

// Clear deletes the session's snapshot and resets it to its initial draft.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	state, err := s.engine.State(sessionID)
	if err != nil {
		return err
	}
	if err := s.snapshots.Delete(ctx, state.Kind); err != nil {
		return err
	}
	if state.Status.Terminal() {
		return nil
	}
	return s.engine.Reset(ctx, sessionID)
}

// ClearKind deletes the saved draft of kind without touching live sessions.
func (s *Store) ClearKind(ctx context.Context, kind string) error {
	return s.snapshots.Delete(ctx, kind)
}

// GuardNavigation decides whether the caller may leave the session. When the
// session holds unsaved work, confirm is asked. A confirmed leave deletes the
// snapshot and abandons the session. A declined leave, or a nil confirm,
// changes nothing.
func (s *Store) GuardNavigation(ctx context.Context, sessionID string, confirm ConfirmFunc) (Decision, error) {
	state, err := s.engine.State(sessionID)
	if err != nil {
		return Decision{}, err
	}
	if !state.Status.HasUnsavedWork() {
		return Decision{Proceed: true}, nil
	}

	decision := Decision{MustConfirm: true}
	if confirm == nil {
		return decision, nil
	}

	leave, err := confirm(ctx, state)
	if err != nil {
		return decision, fmt.Errorf("leave confirmation failed: %w", err)
	}
	if !leave {
		return decision, nil
	}

	if err := s.snapshots.Delete(ctx, state.Kind); err != nil {
		return decision, err
	}
	if err := s.engine.Abandon(ctx, sessionID); err != nil {
		return decision, err
	}

	slog.Info("Draft discarded on leave", "session_id", sessionID, "kind", state.Kind)
	decision.Proceed = true
	return decision, nil
}

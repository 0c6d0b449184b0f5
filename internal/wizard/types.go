package wizard

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a wizard session.
type Status string

// Session status constants.
const (
	StatusInProgress            Status = "IN_PROGRESS"
	StatusAwaitingAuthorization Status = "AWAITING_AUTHORIZATION"
	StatusCommitting            Status = "COMMITTING"
	StatusSucceeded             Status = "SUCCEEDED"
	StatusFailed                Status = "FAILED"
	StatusAbandoned             Status = "ABANDONED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusAbandoned
}

// HasUnsavedWork reports whether leaving the session would lose collected input.
func (s Status) HasUnsavedWork() bool {
	return s == StatusInProgress || s == StatusAwaitingAuthorization
}

// Draft holds the field values collected so far. Values are kept as normalized
// strings so a snapshot round-trips without loss.
type Draft map[string]string

// Clone returns an independent copy of d.
func (d Draft) Clone() Draft {
	if d == nil {
		return Draft{}
	}
	return maps.Clone(d)
}

// Merge returns a new draft with other's values layered over d's.
func (d Draft) Merge(other Draft) Draft {
	out := d.Clone()
	maps.Copy(out, other)
	return out
}

// Get returns the value stored under key, or "".
func (d Draft) Get(key string) string {
	return d[key]
}

// StepContext is what a validator sees: the draft merged with the new input and
// the reference data fetched when the step became active.
type StepContext struct {
	Reference any
	Draft     Draft
	SessionID string
	StepName  string
}

// PrepareFunc fetches reference data for a step when it becomes active.
type PrepareFunc func(ctx context.Context, draft Draft) (any, error)

// ValidateFunc checks a step's input. It may return normalized values to merge
// over the raw input. A returned error that is not a *ValidationError is reported
// as CodeUnavailable.
type ValidateFunc func(ctx context.Context, step StepContext) (Draft, error)

// Step is one ordered stage of a flow.
type Step struct {
	Prepare  PrepareFunc
	Validate ValidateFunc
	Name     string
	SubSteps []string
}

// CommitContext is passed to a flow's commit operation.
type CommitContext struct {
	Draft     Draft
	SessionID string
	Kind      string
	Origin    string
}

// CommitOutcome is what a successful commit reports back.
type CommitOutcome struct {
	EntryID string
	Message string
}

// CommitFunc performs the single external finalize operation of a flow.
type CommitFunc func(ctx context.Context, c CommitContext) (CommitOutcome, error)

// Flow parameterizes the generic engine with a step list and a commit operation.
type Flow struct {
	Commit CommitFunc
	Kind   string
	Steps  []Step
	// FirstEntryStep is where a failed commit returns the user.
	FirstEntryStep       int
	RequireAuthorization bool
}

func (f Flow) validate() error {
	if f.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidFlow)
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("%w: flow %s has no steps", ErrInvalidFlow, f.Kind)
	}
	if f.Commit == nil {
		return fmt.Errorf("%w: flow %s has no commit operation", ErrInvalidFlow, f.Kind)
	}
	if f.FirstEntryStep < 0 || f.FirstEntryStep >= len(f.Steps) {
		return fmt.Errorf("%w: flow %s first entry step %d out of range", ErrInvalidFlow, f.Kind, f.FirstEntryStep)
	}
	for i, step := range f.Steps {
		if step.Name == "" || step.Validate == nil {
			return fmt.Errorf("%w: flow %s step %d needs a name and validator", ErrInvalidFlow, f.Kind, i)
		}
	}
	return nil
}

// StepResult reports the outcome of SubmitStep.
type StepResult struct {
	Error     *ValidationError
	Reason    string
	StepName  string
	Status    Status
	StepIndex int
	OK        bool
}

// CommitResult reports the outcome of Commit.
type CommitResult struct {
	Err       *CommitError
	EntryID   string
	Message   string
	Status    Status
	StepIndex int
}

// State is an exported copy of a session, suitable for persisting.
type State struct {
	UpdatedAt time.Time `json:"updated_at"`
	Draft     Draft     `json:"draft"`
	Initial   Draft     `json:"initial"`
	ID        string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin,omitempty"`
	Status    Status    `json:"status"`
	StepName  string    `json:"step_name"`
	Completed []int     `json:"completed"`
	ReadOnly  []string  `json:"read_only,omitempty"`
	StepIndex int       `json:"step_index"`
}

// IsCompleted reports whether step index i has passed validation at least once.
func (s State) IsCompleted(i int) bool {
	return slices.Contains(s.Completed, i)
}

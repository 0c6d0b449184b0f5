package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
)

// ErrNoSnapshot is returned when a kind has no saved draft.
var ErrNoSnapshot = errors.New("no saved draft")

const slotPrefix = "draft/"

// SlotKey returns the slot holding the draft of a wizard kind.
func SlotKey(kind string) string {
	return slotPrefix + kind
}

type record struct {
	SavedAt   time.Time     `json:"saved_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Draft     wizard.Draft  `json:"draft"`
	Initial   wizard.Draft  `json:"initial,omitempty"`
	SessionID string        `json:"session_id"`
	Kind      string        `json:"kind"`
	Origin    string        `json:"origin,omitempty"`
	Status    wizard.Status `json:"status"`
	StepName  string        `json:"step_name"`
	Completed []int         `json:"completed"`
	ReadOnly  []string      `json:"read_only,omitempty"`
	StepIndex int           `json:"step_index"`
}

// Snapshots keeps one persisted wizard state per kind. It implements wizard.Persister.
type Snapshots struct {
	slots service.SlotStore
	now   func() time.Time
}

// NewSnapshots creates a snapshot store over slots.
func NewSnapshots(slots service.SlotStore) *Snapshots {
	return &Snapshots{slots: slots, now: time.Now}
}

// Save overwrites the slot for state's kind.
func (p *Snapshots) Save(ctx context.Context, state wizard.State) error {
	data, err := json.Marshal(record{
		SavedAt:   p.now(),
		UpdatedAt: state.UpdatedAt,
		Draft:     state.Draft,
		Initial:   state.Initial,
		SessionID: state.ID,
		Kind:      state.Kind,
		Origin:    state.Origin,
		Status:    state.Status,
		StepName:  state.StepName,
		Completed: state.Completed,
		ReadOnly:  state.ReadOnly,
		StepIndex: state.StepIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to encode draft %s: %w", state.Kind, err)
	}
	if err := p.slots.SaveSlot(ctx, SlotKey(state.Kind), data); err != nil {
		return fmt.Errorf("failed to save draft %s: %w", state.Kind, err)
	}
	return nil
}

// Delete removes the slot for kind.
func (p *Snapshots) Delete(ctx context.Context, kind string) error {
	if err := p.slots.DeleteSlot(ctx, SlotKey(kind)); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", kind, err)
	}
	return nil
}

// Load reads the saved state of kind and the time it was written.
func (p *Snapshots) Load(ctx context.Context, kind string) (wizard.State, time.Time, error) {
	data, err := p.slots.LoadSlot(ctx, SlotKey(kind))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return wizard.State{}, time.Time{}, fmt.Errorf("%w: %s", ErrNoSnapshot, kind)
		}
		return wizard.State{}, time.Time{}, fmt.Errorf("failed to load draft %s: %w", kind, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return wizard.State{}, time.Time{}, fmt.Errorf("draft %s: %w: %w", kind, common.ErrDatabaseCorrupted, err)
	}
	if rec.Kind != kind {
		return wizard.State{}, time.Time{}, fmt.Errorf("draft slot %s holds kind %q: %w", kind, rec.Kind, common.ErrDatabaseCorrupted)
	}

	return wizard.State{
		UpdatedAt: rec.UpdatedAt,
		Draft:     rec.Draft,
		Initial:   rec.Initial,
		ID:        rec.SessionID,
		Kind:      rec.Kind,
		Origin:    rec.Origin,
		Status:    rec.Status,
		StepName:  rec.StepName,
		Completed: rec.Completed,
		ReadOnly:  rec.ReadOnly,
		StepIndex: rec.StepIndex,
	}, rec.SavedAt, nil
}

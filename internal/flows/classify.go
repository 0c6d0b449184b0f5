package flows

import (
	"context"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/reconcile"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
)

// Classify resolves one pending transaction into a ledger or into no entry.
// Sessions must be opened with reconcile.Controller.StartClassification so the
// transaction fields are seeded and read-only. No authorization is required.
func Classify(controller *reconcile.Controller) wizard.Flow {
	return wizard.Flow{
		Kind:           KindClassify,
		FirstEntryStep: 0,
		Steps: []wizard.Step{
			{Name: "target", Validate: validateTarget},
			{Name: "details", Validate: validateDetails},
			{Name: "confirm", Validate: requireAll(reconcile.KeyPendingID, reconcile.KeyTarget)},
		},
		Commit: controller.ClassifyCommit(),
	}
}

func validateTarget(_ context.Context, step wizard.StepContext) (wizard.Draft, error) {
	if verr := wizard.RequireFields(step.Draft, reconcile.KeyPendingID, reconcile.KeyTarget); verr != nil {
		return nil, verr
	}
	target, err := reconcile.ParseTarget(step.Draft.Get(reconcile.KeyTarget))
	if err != nil {
		return nil, wizard.NewValidationError(wizard.CodeInvalidValue, reconcile.KeyTarget, "choose household, gift, or none")
	}
	return wizard.Draft{reconcile.KeyTarget: string(target)}, nil
}

func validateDetails(_ context.Context, step wizard.StepContext) (wizard.Draft, error) {
	memo := strings.TrimSpace(step.Draft.Get(reconcile.KeyMemo))

	switch reconcile.Target(step.Draft.Get(reconcile.KeyTarget)) {
	case reconcile.TargetHousehold:
		if verr := wizard.RequireFields(step.Draft, reconcile.KeyCategory); verr != nil {
			return nil, verr
		}
		kind, err := reconcile.ParseEntryKind(step.Draft.Get(reconcile.KeyEntryKind))
		if err != nil {
			return nil, err
		}
		return wizard.Draft{
			reconcile.KeyCategory:  strings.TrimSpace(step.Draft.Get(reconcile.KeyCategory)),
			reconcile.KeyEntryKind: string(kind),
			reconcile.KeyMemo:      memo,
		}, nil

	case reconcile.TargetGift:
		if verr := wizard.RequireFields(step.Draft, reconcile.KeyGiverName, reconcile.KeySide); verr != nil {
			return nil, verr
		}
		side, err := reconcile.ParseSide(step.Draft.Get(reconcile.KeySide))
		if err != nil {
			return nil, err
		}
		return wizard.Draft{
			reconcile.KeyGiverName: strings.TrimSpace(step.Draft.Get(reconcile.KeyGiverName)),
			reconcile.KeyRelation:  strings.TrimSpace(step.Draft.Get(reconcile.KeyRelation)),
			reconcile.KeySide:      string(side),
			reconcile.KeyMemo:      memo,
		}, nil

	case reconcile.TargetNone:
		return nil, nil
	}

	return nil, wizard.NewValidationError(wizard.CodeMissingField, reconcile.KeyTarget, "choose a target first")
}

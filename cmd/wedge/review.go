package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/draft"
	"github.com/Veraticus/wedding-ledger/internal/flows"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/reconcile"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"github.com/spf13/cobra"
)

var domainAliases = map[string]model.Domain{
	"household": model.DomainHouseholdFinance,
	"gift":      model.DomainGiftMoney,
	"safe":      model.DomainSafeAccount,
}

func parseDomain(s string) (model.Domain, error) {
	if d, ok := domainAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	if d := model.Domain(strings.ToUpper(strings.TrimSpace(s))); d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("unknown domain %q: use household, gift, or safe", s)
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Reconcile imported transactions into the ledgers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions awaiting review",
		Args:  cobra.NoArgs,
		RunE:  runReviewList,
	}
	listCmd.Flags().String("domain", "household", "Domain to list (household, gift, safe)")

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "List the ledger entries of a domain",
		Args:  cobra.NoArgs,
		RunE:  runLedgerList,
	}
	ledgerCmd.Flags().String("domain", "household", "Domain to list (household, gift, safe)")

	cmd.AddCommand(listCmd, ledgerCmd,
		&cobra.Command{
			Use:   "classify <transaction-id>",
			Short: "Classify a transaction into a ledger",
			Args:  cobra.ExactArgs(1),
			RunE:  runClassify,
		},
		&cobra.Command{
			Use:   "dismiss <transaction-id>",
			Short: "Mark a transaction reviewed without creating an entry",
			Args:  cobra.ExactArgs(1),
			RunE:  runDismiss,
		},
		&cobra.Command{
			Use:   "retry <transaction-id>",
			Short: "Reissue the review mark of a transaction whose entry already exists",
			Args:  cobra.ExactArgs(1),
			RunE:  runRetry,
		},
	)
	return cmd
}

func showView(cmd *cobra.Command, mode reconcile.Mode) error {
	raw, _ := cmd.Flags().GetString("domain")
	domain, err := parseDomain(raw)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.controller.SetMode(domain, mode); err != nil {
		return err
	}
	view, err := a.controller.View(cmd.Context(), domain)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s (%s)", view.Domain, view.Mode)))

	if view.Mode == reconcile.ModeReview {
		if len(view.Pending) == 0 {
			fmt.Fprintln(out, cli.FormatSuccess("Nothing to review."))
			return nil
		}
		rows := make([][]string, 0, len(view.Pending))
		for _, txn := range view.Pending {
			rows = append(rows, []string{
				txn.ID,
				txn.OccurredAt.Format(time.DateOnly),
				model.FormatAmount(txn.Amount),
				txn.Description,
			})
		}
		fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Date", "Amount", "Description"}, rows))
		return nil
	}

	if len(view.Entries) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No entries yet."))
		return nil
	}
	rows := make([][]string, 0, len(view.Entries))
	for _, e := range view.Entries {
		label := e.Category
		if e.Ledger == model.LedgerGiftMoney {
			label = e.GiverName
		}
		rows = append(rows, []string{
			e.OccurredAt.Format(time.DateOnly),
			model.FormatAmount(e.Amount),
			label,
			e.Description,
		})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Date", "Amount", "Category / Giver", "Description"}, rows))
	return nil
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	return showView(cmd, reconcile.ModeReview)
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	return showView(cmd, reconcile.ModeNormal)
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	// A crashed classification leaves an entry behind; link it instead of asking again.
	if entryID, err := a.store.GetEntryForTransaction(cmd.Context(), args[0]); err == nil {
		return reportResult(cmd, a.resolveExisting(cmd.Context(), args[0], entryID))
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	ctx := cli.NewInterruptHandler(os.Stderr).HandleInterrupts(cmd.Context(), "wedge review classify "+args[0])
	id, err := a.openClassification(ctx, args[0])
	if err != nil {
		return err
	}

	runner := cli.NewSessionRunner(a.engine, a.gate, a.drafts, cmd.InOrStdin(), cmd.OutOrStdout())
	res, err := runner.Run(ctx, id, classifyScript)
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(res.Message))
		return nil
	}
	return finishSession(cmd, flows.KindClassify, res, err)
}

// openClassification resumes a saved classification of txnID, or starts one.
// A saved draft for another transaction is replaced.
func (a *app) openClassification(ctx context.Context, txnID string) (string, error) {
	flow := flows.Classify(a.controller)
	saved, err := a.drafts.Saved(ctx, flows.KindClassify)
	switch {
	case err == nil && saved.Origin == txnID:
		return a.drafts.Restore(ctx, flow)
	case err != nil && !errors.Is(err, draft.ErrNoSnapshot):
		return "", err
	}
	return a.controller.StartClassification(ctx, txnID, flow)
}

func runDismiss(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.controller.ResolveWithoutEntry(cmd.Context(), args[0])
	return reportResult(cmd, err)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.controller.Retry(cmd.Context(), args[0])
	if errors.Is(err, reconcile.ErrNothingToRetry) {
		// Partial state does not outlive the process; look the entry up instead.
		entryID, lookupErr := a.store.GetEntryForTransaction(cmd.Context(), args[0])
		if lookupErr != nil {
			return fmt.Errorf("transaction %s has no ledger entry to link: %w", args[0], err)
		}
		err = a.resolveExisting(cmd.Context(), args[0], entryID)
	}
	return reportResult(cmd, err)
}

func (a *app) resolveExisting(ctx context.Context, id, entryID string) error {
	_, err := a.controller.ResolveByLedgerEntry(ctx, id, entryID)
	return err
}

func reportResult(cmd *cobra.Command, err error) error {
	out := cmd.OutOrStdout()
	var conflict *reconcile.ConflictError
	switch {
	case err == nil:
		fmt.Fprintln(out, cli.FormatSuccess("Marked reviewed."))
		return nil
	case errors.As(err, &conflict) && conflict.Kind == reconcile.ConflictAlreadyReviewed:
		fmt.Fprintln(out, cli.FormatWarning("Already reviewed elsewhere. Refresh the list."))
		return nil
	case errors.As(err, &conflict) && conflict.Kind == reconcile.ConflictPartiallyResolved:
		return fmt.Errorf("entry %s was created but the review mark failed; run `wedge review retry %s`: %w",
			conflict.LinkedEntryID, conflict.TransactionID, err)
	}
	return err
}

// classifyScript asks for the details matching the chosen target.
func classifyScript(st wizard.State) []cli.Field {
	switch st.StepName {
	case "target":
		return []cli.Field{{
			Key:   reconcile.KeyTarget,
			Label: "Target",
			Hint: fmt.Sprintf("%s won on %s: %s. Choose household, gift, or none.",
				st.Draft.Get(reconcile.KeyAmount), st.Draft.Get(reconcile.KeyOccurredAt), st.Draft.Get(reconcile.KeyDescription)),
		}}
	case "details":
		switch reconcile.Target(st.Draft.Get(reconcile.KeyTarget)) {
		case reconcile.TargetHousehold:
			return []cli.Field{
				{Key: reconcile.KeyCategory, Label: "Category"},
				{Key: reconcile.KeyEntryKind, Label: "Kind", Hint: "INCOME or EXPENSE (default INCOME).", Optional: true},
				{Key: reconcile.KeyMemo, Label: "Memo", Optional: true},
			}
		case reconcile.TargetGift:
			return []cli.Field{
				{Key: reconcile.KeyGiverName, Label: "Giver"},
				{Key: reconcile.KeyRelation, Label: "Relation", Optional: true},
				{Key: reconcile.KeySide, Label: "Side", Hint: "GROOM or BRIDE."},
				{Key: reconcile.KeyMemo, Label: "Memo", Optional: true},
			}
		}
	}
	return nil
}

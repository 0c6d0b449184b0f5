package main

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/Veraticus/wedding-ledger/internal/draft"
	"github.com/Veraticus/wedding-ledger/internal/flows"
	"github.com/spf13/cobra"
)

var draftKinds = []string{flows.KindDeposit, flows.KindWithdraw, flows.KindClassify}

func draftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect or discard saved wizard drafts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the saved drafts",
			Args:  cobra.NoArgs,
			RunE:  runDraftShow,
		},
		&cobra.Command{
			Use:       "clear <kind>",
			Short:     "Discard the saved draft of a wizard",
			Args:      cobra.ExactArgs(1),
			ValidArgs: draftKinds,
			RunE:      runDraftClear,
		},
	)
	return cmd
}

func runDraftShow(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var rows [][]string
	for _, kind := range draftKinds {
		st, err := a.drafts.Saved(cmd.Context(), kind)
		if errors.Is(err, draft.ErrNoSnapshot) {
			continue
		}
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			kind,
			fmt.Sprintf("%d (%s)", st.StepIndex+1, st.StepName),
			string(st.Status),
			st.UpdatedAt.Local().Format(time.DateTime),
		})
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No saved drafts."))
		return nil
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Wizard", "Step", "Status", "Saved"}, rows))
	return nil
}

func runDraftClear(cmd *cobra.Command, args []string) error {
	kind := args[0]
	if !slices.Contains(draftKinds, kind) {
		return fmt.Errorf("unknown wizard %q: use deposit, withdraw, or classify", kind)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.drafts.ClearKind(cmd.Context(), kind); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Draft cleared: "+kind))
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/Veraticus/wedding-ledger/internal/config"
	"github.com/Veraticus/wedding-ledger/internal/draft"
	"github.com/Veraticus/wedding-ledger/internal/flows"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"github.com/spf13/cobra"
)

func depositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Move money from a linked account into the safe account",
		Long: `Start (or resume) a deposit into the wedding safe account.

At any prompt, type :back to return to the previous step, :save to stop and
keep the draft, or :quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransfer(cmd, flows.KindDeposit)
		},
	}
	cmd.Flags().Bool("fresh", false, "Discard any saved draft and start over")
	return cmd
}

func withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Send money from the safe account to another account",
		Long: `Start (or resume) a withdrawal from the wedding safe account.

At any prompt, type :back to return to the previous step, :save to stop and
keep the draft, or :quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransfer(cmd, flows.KindWithdraw)
		},
	}
	cmd.Flags().Bool("fresh", false, "Discard any saved draft and start over")
	return cmd
}

func runTransfer(cmd *cobra.Command, kind string) error {
	fresh, _ := cmd.Flags().GetBool("fresh")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireTransfers(); err != nil {
		return err
	}

	var flow wizard.Flow
	var script cli.Script
	switch kind {
	case flows.KindDeposit:
		flow = flows.Deposit(a.transferDeps())
		script = depositScript(a.accountHint(cmd.Context()))
	default:
		flow = flows.Withdraw(a.transferDeps())
		script = withdrawScript()
	}

	ctx := cli.NewInterruptHandler(os.Stderr).HandleInterrupts(cmd.Context(), "wedge "+kind)
	id, err := a.openSession(ctx, flow, fresh)
	if err != nil {
		return err
	}

	runner := cli.NewSessionRunner(a.engine, a.gate, a.drafts, cmd.InOrStdin(), cmd.OutOrStdout(),
		cli.WithSummary(transferSummary))
	res, err := runner.Run(ctx, id, script)
	return finishSession(cmd, kind, res, err)
}

// openSession resumes the saved draft of flow's kind, or starts a new one.
func (a *app) openSession(ctx context.Context, flow wizard.Flow, fresh bool) (string, error) {
	if fresh {
		if err := a.drafts.ClearKind(ctx, flow.Kind); err != nil {
			return "", err
		}
	} else {
		id, err := a.drafts.Restore(ctx, flow)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, draft.ErrNoSnapshot) {
			return "", err
		}
	}
	return a.engine.Start(ctx, flow, nil)
}

func finishSession(cmd *cobra.Command, kind string, res wizard.CommitResult, err error) error {
	out := cmd.OutOrStdout()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cli.ErrSuspended):
		fmt.Fprintln(out, cli.FormatInfo("Draft saved. Resume with: wedge "+kind))
		return nil
	case errors.Is(err, cli.ErrLeft), errors.Is(err, wizard.ErrAbandoned):
		fmt.Fprintln(out, cli.FormatInfo("Left without saving."))
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("%s failed: %w", kind, err)
	}
	return err
}

func (a *app) accountHint(ctx context.Context) string {
	if cfg.Backend == config.BackendRemote {
		return "Enter the account ID from your bank."
	}
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil || len(accounts) == 0 {
		return "Enter the account ID."
	}
	rows := make([][]string, 0, len(accounts))
	for _, acct := range accounts {
		if acct.IsSafe {
			continue
		}
		rows = append(rows, []string{acct.ID, acct.Name, model.FormatAmount(acct.Balance)})
	}
	return cli.RenderTable([]string{"ID", "Account", "Balance"}, rows)
}

func depositScript(accountHint string) cli.Script {
	return cli.StepFields(map[string][]cli.Field{
		"select-account": {
			{Key: flows.KeyFromAccount, Label: "From account", Hint: accountHint},
		},
		"amount": amountFields(),
	})
}

func withdrawScript() cli.Script {
	banks := flows.SupportedBanks()
	names := make([]string, 0, len(banks))
	for _, b := range banks {
		names = append(names, b.Code+" "+b.Name)
	}
	return cli.StepFields(map[string][]cli.Field{
		"recipient": {
			{Key: flows.KeyBankCode, Label: "Bank code", Hint: strings.Join(names, ", ")},
			{Key: flows.KeyAccountNumber, Label: "Account number", Hint: "Digits only; dashes are ignored."},
		},
		"amount": amountFields(),
	})
}

func amountFields() []cli.Field {
	return []cli.Field{
		{Key: flows.KeyAmount, Label: "Amount (won)"},
		{Key: flows.KeyMemo, Label: "Memo", Hint: fmt.Sprintf("Up to %d characters.", flows.MaxMemoLength), Optional: true},
	}
}

func transferSummary(st wizard.State) string {
	d := st.Draft
	var rows [][]string
	if name := d.Get(flows.KeyFromAccountName); name != "" {
		rows = append(rows, []string{"From", name})
	}
	if holder := d.Get(flows.KeyHolderName); holder != "" {
		rows = append(rows,
			[]string{"To", holder},
			[]string{"Bank", d.Get(flows.KeyBankName)},
			[]string{"Account", d.Get(flows.KeyAccountNumber)})
	}
	if amount, err := model.ParseAmount(d.Get(flows.KeyAmount)); err == nil {
		rows = append(rows, []string{"Amount", model.FormatAmount(amount) + " won"})
	}
	if memo := d.Get(flows.KeyMemo); memo != "" {
		rows = append(rows, []string{"Memo", memo})
	}
	return cli.RenderTable([]string{"Field", "Value"}, rows)
}

package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/Veraticus/wedding-ledger/internal/config"
	"github.com/Veraticus/wedding-ledger/internal/flows"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the accounts of the local backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd, args); err != nil {
				return err
			}
			if cfg.Backend != config.BackendLocal {
				return fmt.Errorf("accounts are managed by the bank on the %s backend", cfg.Backend)
			}
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountAdd,
	}
	addCmd.Flags().String("id", "", "Account ID (default: generated)")
	addCmd.Flags().String("number", "", "Account number")
	addCmd.Flags().String("bank", "", "Bank code")
	addCmd.Flags().String("balance", "0", "Opening balance in won")
	addCmd.Flags().Bool("safe", false, "Make this the wedding safe account")

	holderCmd := &cobra.Command{
		Use:   "holder <bank-code> <account-number> <name>",
		Short: "Register the holder name of an external account",
		Args:  cobra.ExactArgs(3),
		RunE:  runHolderAdd,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounts and balances",
		Args:  cobra.NoArgs,
		RunE:  runAccountList,
	}, addCmd, holderCmd)
	return cmd
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	accounts, err := store.ListAccounts(cmd.Context())
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(accounts))
	for _, acct := range accounts {
		safe := ""
		if acct.IsSafe {
			safe = cli.LockIcon
		}
		rows = append(rows, []string{acct.ID, acct.Name, acct.BankCode, acct.AccountNumber, model.FormatAmount(acct.Balance), safe})
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "Name", "Bank", "Number", "Balance", "Safe"}, rows))
	return nil
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	number, _ := cmd.Flags().GetString("number")
	bankCode, _ := cmd.Flags().GetString("bank")
	rawBalance, _ := cmd.Flags().GetString("balance")
	safe, _ := cmd.Flags().GetBool("safe")

	if bankCode != "" {
		if _, ok := flows.LookupBank(bankCode); !ok {
			return fmt.Errorf("unsupported bank code %q", bankCode)
		}
	}
	balance, err := decimal.NewFromString(rawBalance)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", rawBalance, err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	acct := &model.Account{
		ID:            id,
		Name:          args[0],
		AccountNumber: number,
		BankCode:      bankCode,
		Balance:       balance,
		IsSafe:        safe,
	}
	if err := store.SaveAccount(cmd.Context(), acct); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved account %s (%s).", acct.Name, acct.ID)))
	return nil
}

func runHolderAdd(cmd *cobra.Command, args []string) error {
	if _, ok := flows.LookupBank(args[0]); !ok {
		return fmt.Errorf("unsupported bank code %q", args[0])
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Stored the way the withdraw flow looks it up.
	number := strings.NewReplacer("-", "", " ", "").Replace(args[1])
	if err := store.SaveHolder(cmd.Context(), args[0], number, args[2]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Saved holder "+args[2]+"."))
	return nil
}

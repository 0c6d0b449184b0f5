package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Veraticus/wedding-ledger/internal/auth"
	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/spf13/cobra"
)

const pinLength = 6

func pinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the transfer PIN of the local backend",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash",
		Short: "Hash a new PIN for the pin.hash setting",
		Long: `Read a 6-digit PIN twice and print its bcrypt hash.

Put the hash in your config file as pin.hash, or export it as WEDGE_PIN_HASH.
The PIN itself is never stored.`,
		Args: cobra.NoArgs,
		RunE: runPINHash,
	})
	return cmd
}

func runPINHash(cmd *cobra.Command, _ []string) error {
	reader := cli.NewNonBlockingReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprint(out, cli.FormatPrompt("New PIN"))
	first, err := reader.ReadSecret(cmd.Context())
	if err != nil {
		return err
	}
	defer clear(first)
	if err := checkPIN(first); err != nil {
		return err
	}

	fmt.Fprint(out, cli.FormatPrompt("Repeat PIN"))
	second, err := reader.ReadSecret(cmd.Context())
	if err != nil {
		return err
	}
	defer clear(second)
	if !bytes.Equal(first, second) {
		return errors.New("the PINs do not match")
	}

	hash, err := auth.HashPIN(second)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func checkPIN(code []byte) error {
	if len(code) != pinLength {
		return fmt.Errorf("the PIN must be exactly %d digits", pinLength)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return fmt.Errorf("the PIN must be exactly %d digits", pinLength)
		}
	}
	return nil
}

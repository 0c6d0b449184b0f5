package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/wedding-ledger/internal/cli"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/ofx"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import bank activity from OFX/QFX files into the review queue",
		Long: `Import transactions from OFX or QFX statements. Each transaction lands in
the review queue of the chosen domain; transactions seen before are skipped.

Examples:
  wedge import --domain household ~/Downloads/joint_2026_09.ofx
  wedge import --domain gift ~/Downloads/gift_*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}
	cmd.Flags().String("domain", "household", "Review domain (household, gift, safe)")
	cmd.Flags().BoolP("dry-run", "d", false, "Parse files without saving")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	raw, _ := cmd.Flags().GetString("domain")
	domain, err := parseDomain(raw)
	if err != nil {
		return err
	}

	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	parser, err := ofx.NewParser(domain)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Parsing statements"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())

	var txns []model.PendingTransaction
	for _, path := range files {
		parsed, err := parseStatement(ctx, parser, path)
		_ = bar.Add(1)
		if err != nil {
			slog.Error("Failed to parse statement", "file", path, "error", err)
			continue
		}
		slog.Debug("Parsed statement", "file", filepath.Base(path), "transactions", len(parsed))
		txns = append(txns, parsed...)
	}
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	if len(txns) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found."))
		return nil
	}
	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved.", len(txns))))
		return nil
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	inserted, err := store.SavePendingTransactions(ctx, txns)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	slog.Info("Import complete",
		"domain", domain,
		"files", len(files),
		"parsed", len(txns),
		"inserted", inserted)
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d already known).",
		inserted, len(txns)-inserted)))
	return nil
}

func parseStatement(ctx context.Context, parser *ofx.Parser, path string) ([]model.PendingTransaction, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(ctx, f)
}

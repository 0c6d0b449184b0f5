// Package ofx imports OFX/QFX bank statements as pending transactions.
package ofx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// ErrUnknownDomain is returned when the import target is not a known domain.
var ErrUnknownDomain = errors.New("unknown import domain")

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML-style files sometimes drop the closing bracket of a bare tag line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser converts statements into pending transactions for one domain.
type Parser struct {
	domain model.Domain
}

// NewParser creates a parser that tags every transaction with domain.
func NewParser(domain model.Domain) (*Parser, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return &Parser{domain: domain}, nil
}

func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX statement. Zero-amount lines are skipped.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.PendingTransaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var txns []model.PendingTransaction
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		txns = append(txns, p.convertAll(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))...)
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		txns = append(txns, p.convertAll(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))...)
	}

	slog.InfoContext(ctx, "Parsed OFX file",
		"domain", p.domain,
		"transactions", len(txns))

	return txns, nil
}

func (p *Parser) convertAll(list []ofxgo.Transaction, accountID string) []model.PendingTransaction {
	txns := make([]model.PendingTransaction, 0, len(list))
	for _, ofxTx := range list {
		txn, err := p.convert(ofxTx, accountID)
		if err != nil {
			slog.Warn("Skipping OFX transaction",
				"fitid", string(ofxTx.FiTID),
				"account", accountID,
				"error", err)
			continue
		}
		if txn.Amount.IsZero() {
			continue
		}
		txns = append(txns, txn)
	}
	return txns
}

func (p *Parser) convert(ofxTx ofxgo.Transaction, accountID string) (model.PendingTransaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(2))
	if err != nil {
		return model.PendingTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	txn := model.PendingTransaction{
		ID:           accountID + ":" + string(ofxTx.FiTID),
		OccurredAt:   ofxTx.DtPosted.Time,
		Description:  description(ofxTx),
		AccountID:    accountID,
		SourceDomain: p.domain,
		ReviewStatus: model.ReviewPending,
		Amount:       amount.Abs(),
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// description prefers the payee, then the name, then the memo.
func description(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	name := strings.TrimSpace(string(tx.Name))
	if name == "" || isGeneric(name) {
		if memo := strings.TrimSpace(string(tx.Memo)); memo != "" {
			return memo
		}
	}
	return name
}

func isGeneric(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "DEPOSIT", "TRANSFER", "PAYMENT":
		return true
	}
	return false
}

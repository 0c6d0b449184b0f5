package ofx

import (
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const safeAccountOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250520120000[0:GMT]
<LANGUAGE>KOR
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>KRW
<BANKACCTFROM>
<BANKID>090
<ACCTID>3333012345678
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250501000000[0:GMT]
<DTEND>20250520000000[0:GMT]
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250517120000[0:GMT]
<TRNAMT>100000
<FITID>20250517001
<NAME>KIM MINJI
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250518090000[0:GMT]
<TRNAMT>-3500000
<FITID>20250518001
<NAME>TRANSFER
<MEMO>GRAND HALL BALANCE
</STMTTRN>
<STMTTRN>
<TRNTYPE>OTHER
<DTPOSTED>20250519090000[0:GMT]
<TRNAMT>0
<FITID>20250519001
<NAME>ACCOUNT CHECK
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1500000
<DTASOF>20250520000000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestNewParser_UnknownDomain(t *testing.T) {
	_, err := NewParser("HONEYMOON")
	require.ErrorIs(t, err, ErrUnknownDomain)
}

func TestParseFile(t *testing.T) {
	p, err := NewParser(model.DomainGiftMoney)
	require.NoError(t, err)

	txns, err := p.ParseFile(context.Background(), strings.NewReader("\n\n"+safeAccountOFX))
	require.NoError(t, err)
	require.Len(t, txns, 2, "zero-amount line is skipped")

	gift := txns[0]
	assert.Equal(t, "3333012345678:20250517001", gift.ID)
	assert.Equal(t, "KIM MINJI", gift.Description)
	assert.Equal(t, "3333012345678", gift.AccountID)
	assert.Equal(t, model.DomainGiftMoney, gift.SourceDomain)
	assert.True(t, gift.IsPending())
	assert.True(t, gift.Amount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 2025, gift.OccurredAt.Year())
	assert.NotEmpty(t, gift.Hash)

	venue := txns[1]
	assert.Equal(t, "GRAND HALL BALANCE", venue.Description, "generic name falls back to memo")
	assert.True(t, venue.Amount.Equal(decimal.NewFromInt(3500000)), "debits are stored unsigned")
}

func TestParseFile_Deterministic(t *testing.T) {
	p, err := NewParser(model.DomainHouseholdFinance)
	require.NoError(t, err)

	first, err := p.ParseFile(context.Background(), strings.NewReader(safeAccountOFX))
	require.NoError(t, err)
	second, err := p.ParseFile(context.Background(), strings.NewReader(safeAccountOFX))
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Hash, second[i].Hash)
	}
}

func TestParseFile_Invalid(t *testing.T) {
	p, err := NewParser(model.DomainGiftMoney)
	require.NoError(t, err)

	_, err = p.ParseFile(context.Background(), strings.NewReader("not an ofx file"))
	require.Error(t, err)
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name string
		want string
		tx   ofxgo.Transaction
	}{
		{
			name: "payee wins",
			tx:   ofxgo.Transaction{Name: "POS 1234", Payee: &ofxgo.Payee{Name: "Studio Lumiere"}},
			want: "Studio Lumiere",
		},
		{
			name: "plain name",
			tx:   ofxgo.Transaction{Name: " PARK JIHOON "},
			want: "PARK JIHOON",
		},
		{
			name: "generic name uses memo",
			tx:   ofxgo.Transaction{Name: "DEPOSIT", Memo: "gift from uncle"},
			want: "gift from uncle",
		},
		{
			name: "generic name without memo",
			tx:   ofxgo.Transaction{Name: "DEBIT"},
			want: "DEBIT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, description(tt.tx))
		})
	}
}

func TestPreprocess(t *testing.T) {
	got := preprocess("\n  <SEVERITY>Warn</SEVERITY>\n<BANKTRANLIST")
	assert.Equal(t, "<SEVERITY>WARN</SEVERITY>\n<BANKTRANLIST>", got)
}

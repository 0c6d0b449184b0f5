package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		input   string
		want    int64
	}{
		{name: "grouped", input: "1,200,000", want: 1200000},
		{name: "plain", input: "1200000", want: 1200000},
		{name: "currency suffix", input: " 50,000원 ", want: 50000},
		{name: "leading zeros", input: "007", want: 7},
		{name: "empty", input: "", wantErr: ErrInvalidAmount},
		{name: "zero", input: "0", wantErr: ErrInvalidAmount},
		{name: "negative", input: "-100", wantErr: ErrInvalidAmount},
		{name: "fractional", input: "100.50", wantErr: ErrInvalidAmount},
		{name: "letters", input: "12a", wantErr: ErrInvalidAmount},
		{name: "full width digits", input: "１２", wantErr: ErrInvalidAmount},
		{name: "too long", input: "1234567890123456", wantErr: ErrAmountTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s", got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		want  string
		input int64
	}{
		{input: 0, want: "0"},
		{input: 999, want: "999"},
		{input: 1000, want: "1,000"},
		{input: 1200000, want: "1,200,000"},
		{input: -123, want: "-123"},
		{input: -1200, want: "-1,200"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(decimal.NewFromInt(tt.input)))
		})
	}
}

func TestPendingTransaction_GenerateHash(t *testing.T) {
	txn := PendingTransaction{
		Description: "KIM MINJI",
		AccountID:   "safe-1",
		Amount:      decimal.NewFromInt(100000),
	}
	other := txn
	other.Amount = decimal.NewFromInt(100001)

	assert.Equal(t, txn.GenerateHash(), txn.GenerateHash())
	assert.NotEqual(t, txn.GenerateHash(), other.GenerateHash())
	assert.Len(t, txn.GenerateHash(), 64)
}

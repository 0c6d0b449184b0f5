package model

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Amount parsing errors.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrAmountTooLong = errors.New("amount has too many digits")
)

// maxAmountDigits bounds user input well below int64 range.
const maxAmountDigits = 15

// ParseAmount parses a won amount as typed by a user.
//
// Thousands separators and a trailing currency unit are accepted, so "1,200,000",
// "1200000" and "1,200,000원" all parse to 1200000. Won has no minor unit; fractional,
// signed, empty and zero amounts are rejected with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	s = strings.TrimLeft(s, "0")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(s) > maxAmountDigits {
		return decimal.Zero, ErrAmountTooLong
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// FormatAmount renders an amount with thousands separators, e.g. "1,200,000".
func FormatAmount(d decimal.Decimal) string {
	digits := d.Truncate(0).Abs().String()

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 && !(b.Len() == 1 && d.IsNegative()) {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

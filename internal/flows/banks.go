package flows

import (
	"slices"
	"strings"
)

// Bank is a Korean bank a withdrawal can be sent to.
type Bank struct {
	Code string
	Name string
}

var supportedBanks = []Bank{
	{Code: "003", Name: "IBK"},
	{Code: "004", Name: "KB Kookmin"},
	{Code: "011", Name: "NongHyup"},
	{Code: "020", Name: "Woori"},
	{Code: "081", Name: "Hana"},
	{Code: "088", Name: "Shinhan"},
	{Code: "089", Name: "K Bank"},
	{Code: "090", Name: "Kakao Bank"},
	{Code: "092", Name: "Toss Bank"},
}

// SupportedBanks returns the banks accepted by the withdraw flow, ordered by code.
func SupportedBanks() []Bank {
	return slices.Clone(supportedBanks)
}

// LookupBank finds a supported bank by code.
func LookupBank(code string) (Bank, bool) {
	code = strings.TrimSpace(code)
	i := slices.IndexFunc(supportedBanks, func(b Bank) bool { return b.Code == code })
	if i < 0 {
		return Bank{}, false
	}
	return supportedBanks[i], true
}

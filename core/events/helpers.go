package events

import (
	"math/big"
	"strconv"
	"strings"

	"augmint/crypto"
)

func normalizeSymbol(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr crypto.Address) string {
	return addr.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

package token

import (
	"strings"

	"augmint/crypto"
)

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func feeParamsKey(symbol string) []byte {
	return []byte("token/" + normalizeSymbol(symbol) + "/fees")
}

func allowanceKey(symbol string, owner, spender crypto.Address) []byte {
	prefix := []byte("token/" + normalizeSymbol(symbol) + "/allowance/")
	key := make([]byte, 0, len(prefix)+2*crypto.AddressLength)
	key = append(key, prefix...)
	key = append(key, owner.Bytes()...)
	key = append(key, spender.Bytes()...)
	return key
}

package events

import (
	"math/big"

	"augmint/core/types"
)

const TypeRateChanged = "rates.changed"

type RateChanged struct {
	Symbol  string
	NewRate *big.Int
}

func (RateChanged) EventType() string { return TypeRateChanged }

func (e RateChanged) Event() *types.Event {
	return &types.Event{Type: TypeRateChanged, Attributes: map[string]string{
		"symbol":  normalizeSymbol(e.Symbol),
		"newRate": formatAmount(e.NewRate),
	}}
}

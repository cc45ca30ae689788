package events

import (
	"math/big"
	"strconv"

	"augmint/core/types"
	"augmint/crypto"
)

const (
	TypeAcceptedLegacyTokenChanged = "supervisor.acceptedLegacyTokenChanged"
	TypeLegacyTokenConverted       = "supervisor.legacyTokenConverted"
	TypeLtdParamsChanged           = "supervisor.ltdParamsChanged"
	TypeKPIsAdjusted               = "supervisor.kpisAdjusted"
)

type AcceptedLegacyAugmintTokenChanged struct {
	TokenAddress     crypto.Address
	NewAcceptedState bool
}

func (AcceptedLegacyAugmintTokenChanged) EventType() string { return TypeAcceptedLegacyTokenChanged }

func (e AcceptedLegacyAugmintTokenChanged) Event() *types.Event {
	return &types.Event{Type: TypeAcceptedLegacyTokenChanged, Attributes: map[string]string{
		"augmintTokenAddress": formatAddress(e.TokenAddress),
		"newAcceptedState":    strconv.FormatBool(e.NewAcceptedState),
	}}
}

type LegacyTokenConverted struct {
	OldTokenAddress crypto.Address
	Account         crypto.Address
	Amount          *big.Int
}

func (LegacyTokenConverted) EventType() string { return TypeLegacyTokenConverted }

func (e LegacyTokenConverted) Event() *types.Event {
	return &types.Event{Type: TypeLegacyTokenConverted, Attributes: map[string]string{
		"oldTokenAddress": formatAddress(e.OldTokenAddress),
		"account":         formatAddress(e.Account),
		"amount":          formatAmount(e.Amount),
	}}
}

type LtdParamsChanged struct {
	LockDifferenceLimit uint64
	LoanDifferenceLimit uint64
	AllowedDifference   *big.Int
}

func (LtdParamsChanged) EventType() string { return TypeLtdParamsChanged }

func (e LtdParamsChanged) Event() *types.Event {
	return &types.Event{Type: TypeLtdParamsChanged, Attributes: map[string]string{
		"ltdLockDifferenceLimit":     formatUint(e.LockDifferenceLimit),
		"ltdLoanDifferenceLimit":     formatUint(e.LoanDifferenceLimit),
		"allowedLtdDifferenceAmount": formatAmount(e.AllowedDifference),
	}}
}

type KPIsAdjusted struct {
	TotalLoanAmountAdjustment   *big.Int
	TotalLockedAmountAdjustment *big.Int
}

func (KPIsAdjusted) EventType() string { return TypeKPIsAdjusted }

func (e KPIsAdjusted) Event() *types.Event {
	return &types.Event{Type: TypeKPIsAdjusted, Attributes: map[string]string{
		"totalLoanAmountAdjustment":   formatAmount(e.TotalLoanAmountAdjustment),
		"totalLockedAmountAdjustment": formatAmount(e.TotalLockedAmountAdjustment),
	}}
}

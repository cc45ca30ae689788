package events

import (
	"math/big"
	"strings"

	"augmint/core/types"
	"augmint/crypto"
)

const (
	// TypeTransfer mirrors the plain ERC20 style transfer record.
	TypeTransfer = "token.transfer"
	// TypeAugmintTransfer carries the fee and narrative of a transfer.
	TypeAugmintTransfer = "token.augmintTransfer"
	// TypeApproval is emitted whenever an allowance is set.
	TypeApproval = "token.approval"
	// TypeTransferFeesChanged is emitted when fee parameters are updated.
	TypeTransferFeesChanged = "token.transferFeesChanged"
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

type Transfer struct {
	Token  string
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"token":  normalizeSymbol(e.Token),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

type AugmintTransfer struct {
	Token     string
	From      crypto.Address
	To        crypto.Address
	Amount    *big.Int
	Fee       *big.Int
	Narrative string
}

func (AugmintTransfer) EventType() string { return TypeAugmintTransfer }

func (e AugmintTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  normalizeSymbol(e.Token),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
		"fee":    formatAmount(e.Fee),
	}
	if narrative := strings.TrimSpace(e.Narrative); narrative != "" {
		attrs["narrative"] = narrative
	}
	return &types.Event{Type: TypeAugmintTransfer, Attributes: attrs}
}

type Approval struct {
	Token   string
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{Type: TypeApproval, Attributes: map[string]string{
		"token":   normalizeSymbol(e.Token),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

type TransferFeesChanged struct {
	Token  string
	FeePt  uint64
	FeeMin *big.Int
	FeeMax *big.Int
}

func (TransferFeesChanged) EventType() string { return TypeTransferFeesChanged }

func (e TransferFeesChanged) Event() *types.Event {
	return &types.Event{Type: TypeTransferFeesChanged, Attributes: map[string]string{
		"token":  normalizeSymbol(e.Token),
		"feePt":  formatUint(e.FeePt),
		"feeMin": formatAmount(e.FeeMin),
		"feeMax": formatAmount(e.FeeMax),
	}}
}

// TokenSupply captures a supply delta for a fungible token.
type TokenSupply struct {
	Token  string
	Total  *big.Int
	Delta  *big.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

func (e TokenSupply) Event() *types.Event {
	token := normalizeSymbol(e.Token)
	if token == "" {
		token = "UNKNOWN"
	}
	attrs := map[string]string{
		"token": token,
		"total": formatAmount(e.Total),
	}
	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}

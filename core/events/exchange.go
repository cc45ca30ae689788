package events

import (
	"math/big"

	"augmint/core/types"
	"augmint/crypto"
)

const (
	TypeNewOrder       = "exchange.newOrder"
	TypeOrderFill      = "exchange.orderFill"
	TypeCancelledOrder = "exchange.cancelledOrder"
)

type NewOrder struct {
	OrderID   uint64
	Maker     crypto.Address
	OrderType string
	Price     *big.Int
	Amount    *big.Int
}

func (NewOrder) EventType() string { return TypeNewOrder }

func (e NewOrder) Event() *types.Event {
	return &types.Event{Type: TypeNewOrder, Attributes: map[string]string{
		"orderId":   formatUint(e.OrderID),
		"maker":     formatAddress(e.Maker),
		"orderType": e.OrderType,
		"price":     formatAmount(e.Price),
		"amount":    formatAmount(e.Amount),
	}}
}

type OrderFill struct {
	Buyer       crypto.Address
	Seller      crypto.Address
	BuyOrderID  uint64
	SellOrderID uint64
	Price       *big.Int
	WeiAmount   *big.Int
	TokenAmount *big.Int
}

func (OrderFill) EventType() string { return TypeOrderFill }

func (e OrderFill) Event() *types.Event {
	return &types.Event{Type: TypeOrderFill, Attributes: map[string]string{
		"buyer":       formatAddress(e.Buyer),
		"seller":      formatAddress(e.Seller),
		"buyOrderId":  formatUint(e.BuyOrderID),
		"sellOrderId": formatUint(e.SellOrderID),
		"price":       formatAmount(e.Price),
		"weiAmount":   formatAmount(e.WeiAmount),
		"tokenAmount": formatAmount(e.TokenAmount),
	}}
}

type CancelledOrder struct {
	OrderID     uint64
	Maker       crypto.Address
	TokenAmount *big.Int
	WeiAmount   *big.Int
}

func (CancelledOrder) EventType() string { return TypeCancelledOrder }

func (e CancelledOrder) Event() *types.Event {
	return &types.Event{Type: TypeCancelledOrder, Attributes: map[string]string{
		"orderId":     formatUint(e.OrderID),
		"maker":       formatAddress(e.Maker),
		"tokenAmount": formatAmount(e.TokenAmount),
		"weiAmount":   formatAmount(e.WeiAmount),
	}}
}

package exchange

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"augmint/crypto"
)

type OrderType uint8

const (
	OrderBuy OrderType = iota
	OrderSell
)

func (t OrderType) String() string {
	switch t {
	case OrderBuy:
		return "BUY"
	case OrderSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func ParseOrderType(raw string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return OrderBuy, nil
	case "SELL":
		return OrderSell, nil
	default:
		return 0, fmt.Errorf("exchange: unknown order type %q", raw)
	}
}

// PricingRule selects the settlement price of a crossing pair.
type PricingRule uint8

const (
	// PriceMidpoint settles at (buy + sell) / 2, rounded down.
	PriceMidpoint PricingRule = iota
	// PriceSell settles at the sell order's price.
	PriceSell
)

func (r PricingRule) String() string {
	if r == PriceSell {
		return "sell"
	}
	return "midpoint"
}

func ParsePricingRule(raw string) (PricingRule, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "midpoint", "mid":
		return PriceMidpoint, nil
	case "sell":
		return PriceSell, nil
	default:
		return 0, fmt.Errorf("exchange: unknown pricing rule %q", raw)
	}
}

// Order is an open order. BUY amounts are wei, SELL amounts are token units;
// Price is token units per 1 ETH.
type Order struct {
	ID        uint64
	Maker     crypto.Address
	Type      OrderType
	Amount    *big.Int
	Price     *big.Int
	AddedTime time.Time
}

// Fill describes one settled match.
type Fill struct {
	BuyOrderID  uint64
	SellOrderID uint64
	Buyer       crypto.Address
	Seller      crypto.Address
	Price       *big.Int
	WeiAmount   *big.Int
	TokenAmount *big.Int
}

type Config struct {
	Address crypto.Address
	Pricing PricingRule
	// MatchBudget caps the pairs matched per MatchMultipleOrders call; zero means no cap.
	MatchBudget int
}

type orderRecord struct {
	ID        uint64
	Maker     []byte
	Type      uint8
	Amount    *big.Int
	Price     *big.Int
	AddedTime uint64
}

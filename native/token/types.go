package token

import (
	"math/big"

	"augmint/crypto"
)

// FeeParams configure the transfer fee charged on top of the transferred amount.
// FeePt is expressed in parts per million.
type FeeParams struct {
	FeePt  uint64
	FeeMin *big.Int
	FeeMax *big.Int
}

// DefaultFeeParams mirrors the A-EUR deployment: 0.2% bounded to [0.02, 5] A-EUR.
func DefaultFeeParams() FeeParams {
	return FeeParams{
		FeePt:  2000,
		FeeMin: big.NewInt(200),
		FeeMax: big.NewInt(50000),
	}
}

// Clone returns a deep copy of the parameters.
func (p FeeParams) Clone() FeeParams {
	out := FeeParams{FeePt: p.FeePt}
	if p.FeeMin != nil {
		out.FeeMin = new(big.Int).Set(p.FeeMin)
	}
	if p.FeeMax != nil {
		out.FeeMax = new(big.Int).Set(p.FeeMax)
	}
	return out
}

// Config describes one token ledger instance.
type Config struct {
	Symbol       string
	Name         string
	PeggedSymbol string
	Decimals     uint8
	// Address identifies the token itself, e.g. when a legacy token notifies the supervisor.
	Address    crypto.Address
	FeeAccount crypto.Address
	Fees       FeeParams
}

// Receiver is implemented by modules that accept TransferAndNotify calls.
type Receiver interface {
	TransferNotification(token, from crypto.Address, amount *big.Int, data uint64) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(token, from crypto.Address, amount *big.Int, data uint64) error

func (f ReceiverFunc) TransferNotification(token, from crypto.Address, amount *big.Int, data uint64) error {
	return f(token, from, amount, data)
}

package supervisor

import (
	"math/big"

	"augmint/crypto"
)

// Params bound the loan-to-deposit ratio. Limits are parts per million of the
// locked total; AllowedLtdDifferenceAmount is an absolute floor in token units
// that lets the system bootstrap while totals are small.
type Params struct {
	LtdLockDifferenceLimit     uint64
	LtdLoanDifferenceLimit     uint64
	AllowedLtdDifferenceAmount *big.Int
}

func DefaultParams() Params {
	return Params{
		LtdLockDifferenceLimit:     200000,
		LtdLoanDifferenceLimit:     200000,
		AllowedLtdDifferenceAmount: big.NewInt(50000000),
	}
}

func (p Params) Clone() Params {
	out := p
	if p.AllowedLtdDifferenceAmount != nil {
		out.AllowedLtdDifferenceAmount = new(big.Int).Set(p.AllowedLtdDifferenceAmount)
	} else {
		out.AllowedLtdDifferenceAmount = big.NewInt(0)
	}
	return out
}

// Totals are the system-wide KPIs guarded by the LTD invariant.
type Totals struct {
	TotalLoanAmount   *big.Int
	TotalLockedAmount *big.Int
}

func (t Totals) Clone() Totals {
	out := Totals{TotalLoanAmount: big.NewInt(0), TotalLockedAmount: big.NewInt(0)}
	if t.TotalLoanAmount != nil {
		out.TotalLoanAmount.Set(t.TotalLoanAmount)
	}
	if t.TotalLockedAmount != nil {
		out.TotalLockedAmount.Set(t.TotalLockedAmount)
	}
	return out
}

// Config wires the supervisor to its accounts.
type Config struct {
	// Address is the supervisor's own account; it must hold MonetarySupervisor
	// and NoFeeTransferContracts on the token ledgers it drives.
	Address        crypto.Address
	Reserve        crypto.Address
	InterestEarned crypto.Address
	Params         Params
}

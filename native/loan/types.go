package loan

import (
	"math/big"
	"time"

	"augmint/crypto"
)

// State is the lifecycle position of a loan. Repaid and Defaulted are terminal.
type State uint8

const (
	StateOpen State = iota
	StateRepaid
	StateDefaulted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRepaid:
		return "repaid"
	case StateDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Product is a loan offering. Rates are parts per million; Term is in seconds.
type Product struct {
	ID                 uint32
	Term               uint64
	DiscountRate       uint64
	CollateralRatio    uint64
	MinDisbursedAmount *big.Int
	DefaultingFeePt    uint64
	Active             bool
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	out := *p
	if p.MinDisbursedAmount != nil {
		out.MinDisbursedAmount = new(big.Int).Set(p.MinDisbursedAmount)
	} else {
		out.MinDisbursedAmount = big.NewInt(0)
	}
	return &out
}

// Loan is an ETH-collateralised token loan. Amounts are token units except
// CollateralAmount, which is wei.
type Loan struct {
	ID               uint64
	Borrower         crypto.Address
	State            State
	CollateralAmount *big.Int
	RepaymentAmount  *big.Int
	LoanAmount       *big.Int
	InterestAmount   *big.Int
	ProductID        uint32
	ProductTerm      uint64
	DisbursementTime time.Time
	MaturityTime     time.Time
	DefaultingFeePt  uint64
}

// Terms are the amounts derived from a collateral deposit.
type Terms struct {
	TokenValue      *big.Int
	RepaymentAmount *big.Int
	LoanAmount      *big.Int
	InterestAmount  *big.Int
}

// Config names the accounts the loan manager settles against.
type Config struct {
	Address        crypto.Address
	Reserve        crypto.Address
	InterestEarned crypto.Address
}

// CollectResult reports the outcome of one collected loan.
type CollectResult struct {
	LoanID              uint64
	CollectedCollateral *big.Int
	ReleasedCollateral  *big.Int
	DefaultingFee       *big.Int
}

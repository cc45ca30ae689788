package events

import (
	"math/big"
	"strconv"

	"augmint/core/types"
	"augmint/crypto"
)

const (
	TypeNewLoan                       = "loan.new"
	TypeLoanRepayed                   = "loan.repayed"
	TypeLoanCollected                 = "loan.collected"
	TypeLoanProductAdded              = "loan.productAdded"
	TypeLoanProductActiveStateChanged = "loan.productActiveStateChanged"
)

type NewLoan struct {
	LoanID           uint64
	ProductID        uint32
	Borrower         crypto.Address
	CollateralAmount *big.Int
	LoanAmount       *big.Int
	RepaymentAmount  *big.Int
	MaturityTime     int64
}

func (NewLoan) EventType() string { return TypeNewLoan }

func (e NewLoan) Event() *types.Event {
	return &types.Event{Type: TypeNewLoan, Attributes: map[string]string{
		"loanId":           formatUint(e.LoanID),
		"productId":        formatUint(uint64(e.ProductID)),
		"borrower":         formatAddress(e.Borrower),
		"collateralAmount": formatAmount(e.CollateralAmount),
		"loanAmount":       formatAmount(e.LoanAmount),
		"repaymentAmount":  formatAmount(e.RepaymentAmount),
		"maturity":         strconv.FormatInt(e.MaturityTime, 10),
	}}
}

type LoanRepayed struct {
	LoanID   uint64
	Borrower crypto.Address
}

func (LoanRepayed) EventType() string { return TypeLoanRepayed }

func (e LoanRepayed) Event() *types.Event {
	return &types.Event{Type: TypeLoanRepayed, Attributes: map[string]string{
		"loanId":   formatUint(e.LoanID),
		"borrower": formatAddress(e.Borrower),
	}}
}

type LoanCollected struct {
	LoanID              uint64
	Borrower            crypto.Address
	CollectedCollateral *big.Int
	ReleasedCollateral  *big.Int
	DefaultingFee       *big.Int
}

func (LoanCollected) EventType() string { return TypeLoanCollected }

func (e LoanCollected) Event() *types.Event {
	return &types.Event{Type: TypeLoanCollected, Attributes: map[string]string{
		"loanId":              formatUint(e.LoanID),
		"borrower":            formatAddress(e.Borrower),
		"collectedCollateral": formatAmount(e.CollectedCollateral),
		"releasedCollateral":  formatAmount(e.ReleasedCollateral),
		"defaultingFee":       formatAmount(e.DefaultingFee),
	}}
}

type LoanProductAdded struct {
	ProductID uint32
}

func (LoanProductAdded) EventType() string { return TypeLoanProductAdded }

func (e LoanProductAdded) Event() *types.Event {
	return &types.Event{Type: TypeLoanProductAdded, Attributes: map[string]string{
		"productId": formatUint(uint64(e.ProductID)),
	}}
}

type LoanProductActiveStateChanged struct {
	ProductID uint32
	Active    bool
}

func (LoanProductActiveStateChanged) EventType() string { return TypeLoanProductActiveStateChanged }

func (e LoanProductActiveStateChanged) Event() *types.Event {
	return &types.Event{Type: TypeLoanProductActiveStateChanged, Attributes: map[string]string{
		"productId": formatUint(uint64(e.ProductID)),
		"newState":  strconv.FormatBool(e.Active),
	}}
}

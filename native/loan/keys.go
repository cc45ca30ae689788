package loan

import (
	"encoding/binary"
	"math/big"
	"time"

	"augmint/crypto"
)

var (
	productCountKey = []byte("loan/products/count")
	loanCountKey    = []byte("loan/loans/count")
	openLoansKey    = []byte("loan/loans/open")
)

func productKey(id uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return append([]byte("loan/products/"), buf...)
}

func loanKey(id uint64) []byte {
	return append([]byte("loan/loans/"), encodeID(id)...)
}

func borrowerIndexKey(addr crypto.Address) []byte {
	return append([]byte("loan/borrower/"), addr.Bytes()...)
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// loanRecord is the RLP layout of a Loan.
type loanRecord struct {
	ID               uint64
	Borrower         []byte
	State            uint8
	CollateralAmount *big.Int
	RepaymentAmount  *big.Int
	LoanAmount       *big.Int
	InterestAmount   *big.Int
	ProductID        uint32
	ProductTerm      uint64
	DisbursementTime uint64
	MaturityTime     uint64
	DefaultingFeePt  uint64
}

func newLoanRecord(l *Loan) loanRecord {
	return loanRecord{
		ID:               l.ID,
		Borrower:         l.Borrower.Bytes(),
		State:            uint8(l.State),
		CollateralAmount: l.CollateralAmount,
		RepaymentAmount:  l.RepaymentAmount,
		LoanAmount:       l.LoanAmount,
		InterestAmount:   l.InterestAmount,
		ProductID:        l.ProductID,
		ProductTerm:      l.ProductTerm,
		DisbursementTime: uint64(l.DisbursementTime.Unix()),
		MaturityTime:     uint64(l.MaturityTime.Unix()),
		DefaultingFeePt:  l.DefaultingFeePt,
	}
}

func (r loanRecord) toLoan() (*Loan, error) {
	borrower, err := crypto.NewAddress(crypto.AugmintPrefix, r.Borrower)
	if err != nil {
		return nil, err
	}
	return &Loan{
		ID:               r.ID,
		Borrower:         borrower,
		State:            State(r.State),
		CollateralAmount: orZero(r.CollateralAmount),
		RepaymentAmount:  orZero(r.RepaymentAmount),
		LoanAmount:       orZero(r.LoanAmount),
		InterestAmount:   orZero(r.InterestAmount),
		ProductID:        r.ProductID,
		ProductTerm:      r.ProductTerm,
		DisbursementTime: time.Unix(int64(r.DisbursementTime), 0).UTC(),
		MaturityTime:     time.Unix(int64(r.MaturityTime), 0).UTC(),
		DefaultingFeePt:  r.DefaultingFeePt,
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

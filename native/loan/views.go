package loan

import (
	"fmt"
	"sort"
	"time"

	"augmint/crypto"
)

func (m *Manager) Product(id uint32) (*Product, error) {
	if m.state == nil {
		return nil, fmt.Errorf("loan: manager not configured")
	}
	var product Product
	ok, err := m.state.KVGet(productKey(id), &product)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return product.Clone(), nil
}

func (m *Manager) Products() ([]*Product, error) {
	if m.state == nil {
		return nil, fmt.Errorf("loan: manager not configured")
	}
	var count uint32
	if _, err := m.state.KVGet(productCountKey, &count); err != nil {
		return nil, err
	}
	out := make([]*Product, 0, count)
	for id := uint32(0); id < count; id++ {
		product, err := m.Product(id)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}
	return out, nil
}

func (m *Manager) Loan(id uint64) (*Loan, error) {
	if m.state == nil {
		return nil, fmt.Errorf("loan: manager not configured")
	}
	var rec loanRecord
	ok, err := m.state.KVGet(loanKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return rec.toLoan()
}

func (m *Manager) LoanCount() (uint64, error) {
	if m.state == nil {
		return 0, fmt.Errorf("loan: manager not configured")
	}
	var count uint64
	if _, err := m.state.KVGet(loanCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// LoansForAddress returns every loan taken by addr, oldest first.
func (m *Manager) LoansForAddress(addr crypto.Address) ([]*Loan, error) {
	if m.state == nil {
		return nil, fmt.Errorf("loan: manager not configured")
	}
	var ids [][]byte
	if err := m.state.KVGetList(borrowerIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(ids))
	for _, raw := range ids {
		loan, err := m.Loan(decodeID(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

// OpenMaturedLoans lists up to limit open loans whose maturity is before now,
// in id order. A non-positive limit means no limit.
func (m *Manager) OpenMaturedLoans(now time.Time, limit int) ([]uint64, error) {
	if m.state == nil {
		return nil, fmt.Errorf("loan: manager not configured")
	}
	var ids [][]byte
	if err := m.state.KVGetList(openLoansKey, &ids); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for _, raw := range ids {
		loan, err := m.Loan(decodeID(raw))
		if err != nil {
			return nil, err
		}
		if loan.State == StateOpen && now.After(loan.MaturityTime) {
			out = append(out, loan.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

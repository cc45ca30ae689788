package loan

import (
	"fmt"
	"math/big"
	"time"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/token"
)

var (
	ErrProductNotFound = coreerrors.New(coreerrors.ErrInvalidState, "loan: product not found")
	ErrProductInactive = coreerrors.New(coreerrors.ErrInvalidState, "loan: product not active")
	ErrInvalidProduct  = coreerrors.New(coreerrors.ErrArithmeticBounds, "loan: invalid product parameters")
	ErrZeroCollateral  = coreerrors.New(coreerrors.ErrArithmeticBounds, "loan: collateral must be positive")
	ErrBelowMinimum    = coreerrors.New(coreerrors.ErrArithmeticBounds, "loan: amount below product minimum")
	ErrLoanNotFound    = coreerrors.New(coreerrors.ErrInvalidState, "loan: loan not found")
	ErrLoanNotOpen     = coreerrors.New(coreerrors.ErrInvalidState, "loan: loan is not open")
	ErrLoanMatured     = coreerrors.New(coreerrors.ErrInvalidState, "loan: loan is past maturity")
	ErrLoanNotMatured  = coreerrors.New(coreerrors.ErrInvalidState, "loan: loan has not matured")
	ErrNotBorrower     = coreerrors.New(coreerrors.ErrPermissionDenied, "loan: only the borrower can repay")
	ErrRepaymentAmount = coreerrors.New(coreerrors.ErrArithmeticBounds, "loan: repayment must equal the repayment amount")
	ErrUnexpectedToken = coreerrors.New(coreerrors.ErrPermissionDenied, "loan: notification from unexpected token")
	ErrEmptyBatch      = coreerrors.New(coreerrors.ErrInvalidState, "loan: no loans to collect")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	WeiBalance(addr crypto.Address) (*big.Int, error)
	SetWeiBalance(addr crypto.Address, amount *big.Int) error
	HasPermission(addr crypto.Address, permission string) bool
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

type tokenLedger interface {
	Address() crypto.Address
	PeggedSymbol() string
	Burn(caller crypto.Address, amount *big.Int) error
	TransferNoFee(caller, from, to crypto.Address, amount *big.Int, narrative string) error
	RegisterReceiver(addr crypto.Address, r token.Receiver)
}

type rateSource interface {
	ConvertFromWei(symbol string, wei *big.Int) (*big.Int, error)
	ConvertToWei(symbol string, value *big.Int) (*big.Int, error)
}

type monetarySupervisor interface {
	IssueLoan(caller, borrower crypto.Address, amount *big.Int) error
	LoanRepaymentNotification(caller crypto.Address, loanAmount *big.Int) error
	LoanCollectionNotification(caller crypto.Address, loanAmount *big.Int) error
}

// Manager issues, repays and collects ETH-backed loans.
type Manager struct {
	cfg        Config
	token      tokenLedger
	rates      rateSource
	supervisor monetarySupervisor
	state      engineState
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() time.Time
}

// NewManager wires the loan manager and registers it as the repayment
// receiver on the token ledger.
func NewManager(cfg Config, ledger tokenLedger, rates rateSource, supervisor monetarySupervisor) *Manager {
	m := &Manager{
		cfg:        cfg,
		token:      ledger,
		rates:      rates,
		supervisor: supervisor,
		emitter:    events.NoopEmitter{},
		nowFn:      time.Now,
	}
	if ledger != nil {
		ledger.RegisterReceiver(cfg.Address, m)
	}
	return m
}

func (m *Manager) SetState(state engineState) { m.state = state }

func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Manager) SetPauses(p nativecommon.PauseView) { m.pauses = p }

// SetNowFunc overrides the clock. Passing nil restores time.Now.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now == nil {
		m.nowFn = time.Now
		return
	}
	m.nowFn = now
}

func (m *Manager) Address() crypto.Address { return m.cfg.Address }

func (m *Manager) guard() error {
	if m.state == nil || m.token == nil || m.rates == nil || m.supervisor == nil {
		return fmt.Errorf("loan: manager not configured")
	}
	return nativecommon.Guard(m.pauses, nativecommon.ModuleLoan)
}

// AddLoanProduct registers a new product and returns its id. Requires StabilityBoard.
func (m *Manager) AddLoanProduct(caller crypto.Address, product Product) (uint32, error) {
	if err := m.guard(); err != nil {
		return 0, err
	}
	if err := nativecommon.RequirePermission(m.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return 0, err
	}
	if product.Term == 0 || product.Term > nativecommon.MaxDurationSecs || product.CollateralRatio == 0 || product.DiscountRate == 0 || product.DiscountRate > nativecommon.PPM {
		return 0, ErrInvalidProduct
	}
	if product.MinDisbursedAmount != nil && product.MinDisbursedAmount.Sign() < 0 {
		return 0, ErrInvalidProduct
	}
	var count uint32
	if _, err := m.state.KVGet(productCountKey, &count); err != nil {
		return 0, err
	}
	stored := product.Clone()
	stored.ID = count
	if err := m.state.KVPut(productKey(stored.ID), stored); err != nil {
		return 0, err
	}
	if err := m.state.KVPut(productCountKey, count+1); err != nil {
		return 0, err
	}
	m.emitter.Emit(events.LoanProductAdded{ProductID: stored.ID})
	return stored.ID, nil
}

// SetLoanProductActiveState toggles whether new loans may use the product.
func (m *Manager) SetLoanProductActiveState(caller crypto.Address, productID uint32, active bool) error {
	if err := m.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(m.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	product, err := m.Product(productID)
	if err != nil {
		return err
	}
	product.Active = active
	if err := m.state.KVPut(productKey(productID), product); err != nil {
		return err
	}
	m.emitter.Emit(events.LoanProductActiveStateChanged{ProductID: productID, Active: active})
	return nil
}

// CalculateTerms derives the loan amounts for a collateral deposit. Balances
// round half up to two decimals; the discount multiplier rounds down.
func (m *Manager) CalculateTerms(product *Product, collateralWei *big.Int) (*Terms, error) {
	tokenValue, err := m.rates.ConvertFromWei(m.token.PeggedSymbol(), collateralWei)
	if err != nil {
		return nil, err
	}
	hundred := big.NewInt(100)
	scale := big.NewInt(100000000)

	repayment, err := nativecommon.MulDiv(tokenValue, new(big.Int).SetUint64(product.CollateralRatio), scale, nativecommon.RoundHalfUp)
	if err != nil {
		return nil, err
	}
	repayment.Mul(repayment, hundred)

	mul, err := nativecommon.MulDiv(
		new(big.Int).SetUint64(product.CollateralRatio),
		new(big.Int).SetUint64(product.DiscountRate),
		nativecommon.PPMDivisor(),
		nativecommon.RoundDown,
	)
	if err != nil {
		return nil, err
	}
	loanAmount, err := nativecommon.MulDiv(mul, tokenValue, scale, nativecommon.RoundHalfUp)
	if err != nil {
		return nil, err
	}
	loanAmount.Mul(loanAmount, hundred)

	interest := new(big.Int).Sub(repayment, loanAmount)
	if interest.Sign() < 0 {
		return nil, ErrInvalidProduct
	}
	return &Terms{
		TokenValue:      tokenValue,
		RepaymentAmount: repayment,
		LoanAmount:      loanAmount,
		InterestAmount:  interest,
	}, nil
}

// NewEthBackedLoan locks collateralWei from the borrower and disburses a loan
// under productID. Returns the new loan id.
func (m *Manager) NewEthBackedLoan(borrower crypto.Address, productID uint32, collateralWei *big.Int) (uint64, error) {
	if err := m.guard(); err != nil {
		return 0, err
	}
	var id uint64
	err := m.atomic(func() error {
		var err error
		id, err = m.newLoan(borrower, productID, collateralWei)
		return err
	})
	return id, err
}

func (m *Manager) newLoan(borrower crypto.Address, productID uint32, collateralWei *big.Int) (uint64, error) {
	if collateralWei == nil || collateralWei.Sign() <= 0 {
		return 0, ErrZeroCollateral
	}
	product, err := m.Product(productID)
	if err != nil {
		return 0, err
	}
	if !product.Active {
		return 0, ErrProductInactive
	}
	terms, err := m.CalculateTerms(product, collateralWei)
	if err != nil {
		return 0, err
	}
	if terms.LoanAmount.Sign() <= 0 || terms.LoanAmount.Cmp(product.MinDisbursedAmount) < 0 {
		return 0, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, terms.LoanAmount, product.MinDisbursedAmount)
	}

	if err := nativecommon.MoveWei(m.state, borrower, m.cfg.Address, collateralWei); err != nil {
		return 0, err
	}
	if err := m.supervisor.IssueLoan(m.cfg.Address, borrower, terms.LoanAmount); err != nil {
		return 0, err
	}

	var count uint64
	if _, err := m.state.KVGet(loanCountKey, &count); err != nil {
		return 0, err
	}
	now := m.nowFn().UTC().Truncate(time.Second)
	loan := &Loan{
		ID:               count,
		Borrower:         borrower,
		State:            StateOpen,
		CollateralAmount: new(big.Int).Set(collateralWei),
		RepaymentAmount:  terms.RepaymentAmount,
		LoanAmount:       terms.LoanAmount,
		InterestAmount:   terms.InterestAmount,
		ProductID:        product.ID,
		ProductTerm:      product.Term,
		DisbursementTime: now,
		MaturityTime:     now.Add(time.Duration(product.Term) * time.Second),
		DefaultingFeePt:  product.DefaultingFeePt,
	}
	if err := m.putLoan(loan); err != nil {
		return 0, err
	}
	if err := m.state.KVPut(loanCountKey, count+1); err != nil {
		return 0, err
	}
	if err := m.state.KVAppend(borrowerIndexKey(borrower), encodeID(loan.ID)); err != nil {
		return 0, err
	}
	if err := m.state.KVAppend(openLoansKey, encodeID(loan.ID)); err != nil {
		return 0, err
	}
	m.emitter.Emit(events.NewLoan{
		LoanID:           loan.ID,
		ProductID:        loan.ProductID,
		Borrower:         borrower,
		CollateralAmount: new(big.Int).Set(loan.CollateralAmount),
		LoanAmount:       new(big.Int).Set(loan.LoanAmount),
		RepaymentAmount:  new(big.Int).Set(loan.RepaymentAmount),
		MaturityTime:     loan.MaturityTime.Unix(),
	})
	return loan.ID, nil
}

// TransferNotification handles repayments sent with TransferAndNotify; data
// carries the loan id. The tokens have already been credited to the manager.
func (m *Manager) TransferNotification(tokenAddr, from crypto.Address, amount *big.Int, data uint64) error {
	if err := m.guard(); err != nil {
		return err
	}
	if !tokenAddr.Equal(m.token.Address()) {
		return ErrUnexpectedToken
	}
	loan, err := m.Loan(data)
	if err != nil {
		return err
	}
	if loan.State != StateOpen {
		return ErrLoanNotOpen
	}
	if m.nowFn().After(loan.MaturityTime) {
		return ErrLoanMatured
	}
	if !loan.Borrower.Equal(from) {
		return ErrNotBorrower
	}
	if amount == nil || amount.Cmp(loan.RepaymentAmount) != 0 {
		return ErrRepaymentAmount
	}

	if err := m.supervisor.LoanRepaymentNotification(m.cfg.Address, loan.LoanAmount); err != nil {
		return err
	}
	if err := m.token.Burn(m.cfg.Address, loan.LoanAmount); err != nil {
		return err
	}
	if loan.InterestAmount.Sign() > 0 {
		if err := m.token.TransferNoFee(m.cfg.Address, m.cfg.Address, m.cfg.InterestEarned, loan.InterestAmount, "loan interest"); err != nil {
			return err
		}
	}
	if err := nativecommon.MoveWei(m.state, m.cfg.Address, loan.Borrower, loan.CollateralAmount); err != nil {
		return err
	}
	loan.State = StateRepaid
	if err := m.closeLoan(loan); err != nil {
		return err
	}
	m.emitter.Emit(events.LoanRepayed{LoanID: loan.ID, Borrower: loan.Borrower})
	return nil
}

// Collect settles matured open loans. Each id is collected atomically;
// ineligible ids are skipped. When nothing could be collected the first
// failure is returned. Anyone may collect.
func (m *Manager) Collect(loanIDs []uint64) ([]CollectResult, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}
	if len(loanIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	results := make([]CollectResult, 0, len(loanIDs))
	var firstErr error
	for _, id := range loanIDs {
		var res *CollectResult
		err := m.atomic(func() error {
			var err error
			res, err = m.collectOne(id)
			return err
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("loan %d: %w", id, err)
			}
			continue
		}
		results = append(results, *res)
	}
	if len(results) == 0 {
		return nil, firstErr
	}
	return results, nil
}

func (m *Manager) collectOne(id uint64) (*CollectResult, error) {
	loan, err := m.Loan(id)
	if err != nil {
		return nil, err
	}
	if loan.State != StateOpen {
		return nil, ErrLoanNotOpen
	}
	if !m.nowFn().After(loan.MaturityTime) {
		return nil, ErrLoanNotMatured
	}
	res, err := m.CollectionAmounts(loan)
	if err != nil {
		return nil, err
	}

	if err := nativecommon.MoveWei(m.state, m.cfg.Address, m.cfg.Reserve, res.CollectedCollateral); err != nil {
		return nil, err
	}
	if err := nativecommon.MoveWei(m.state, m.cfg.Address, loan.Borrower, res.ReleasedCollateral); err != nil {
		return nil, err
	}
	if err := m.supervisor.LoanCollectionNotification(m.cfg.Address, loan.LoanAmount); err != nil {
		return nil, err
	}
	loan.State = StateDefaulted
	if err := m.closeLoan(loan); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.LoanCollected{
		LoanID:              loan.ID,
		Borrower:            loan.Borrower,
		CollectedCollateral: new(big.Int).Set(res.CollectedCollateral),
		ReleasedCollateral:  new(big.Int).Set(res.ReleasedCollateral),
		DefaultingFee:       new(big.Int).Set(res.DefaultingFee),
	})
	return res, nil
}

// CollectionAmounts splits a defaulted loan's collateral between the reserve
// and the borrower at the current rate.
func (m *Manager) CollectionAmounts(loan *Loan) (*CollectResult, error) {
	symbol := m.token.PeggedSymbol()
	targetCollection, err := nativecommon.MulDiv(loan.RepaymentAmount, new(big.Int).SetUint64(nativecommon.PPM+loan.DefaultingFeePt), nativecommon.PPMDivisor(), nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	targetFee, err := nativecommon.ApplyPPM(loan.RepaymentAmount, loan.DefaultingFeePt, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	targetCollectionWei, err := m.rates.ConvertToWei(symbol, targetCollection)
	if err != nil {
		return nil, err
	}
	targetFeeWei, err := m.rates.ConvertToWei(symbol, targetFee)
	if err != nil {
		return nil, err
	}
	released := new(big.Int).Sub(loan.CollateralAmount, targetCollectionWei)
	if released.Sign() < 0 {
		released.SetInt64(0)
	}
	collected := new(big.Int).Sub(loan.CollateralAmount, released)
	return &CollectResult{
		LoanID:              loan.ID,
		CollectedCollateral: collected,
		ReleasedCollateral:  released,
		DefaultingFee:       nativecommon.Min(targetFeeWei, collected),
	}, nil
}

// atomic runs fn inside a state snapshot and event journal mark, undoing both
// when fn fails.
func (m *Manager) atomic(fn func() error) error {
	snap := m.state.Snapshot()
	journal, hasJournal := m.emitter.(events.Journal)
	mark := 0
	if hasJournal {
		mark = journal.Mark()
	}
	if err := fn(); err != nil {
		m.state.RevertToSnapshot(snap)
		if hasJournal {
			journal.Rewind(mark)
		}
		return err
	}
	m.state.DiscardSnapshot(snap)
	return nil
}

func (m *Manager) putLoan(loan *Loan) error {
	return m.state.KVPut(loanKey(loan.ID), newLoanRecord(loan))
}

func (m *Manager) closeLoan(loan *Loan) error {
	if err := m.putLoan(loan); err != nil {
		return err
	}
	return m.state.KVRemove(openLoansKey, encodeID(loan.ID))
}

package supervisor

import (
	"fmt"
	"math/big"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/token"
)

var (
	ErrLtdLimit          = coreerrors.New(coreerrors.ErrInvariantViolation, "supervisor: loan to deposit ratio limit exceeded")
	ErrTotalsUnderflow   = coreerrors.New(coreerrors.ErrArithmeticBounds, "supervisor: totals would become negative")
	ErrLegacyNotAccepted = coreerrors.New(coreerrors.ErrPermissionDenied, "supervisor: legacy token not accepted")
	ErrInvalidParams     = coreerrors.New(coreerrors.ErrArithmeticBounds, "supervisor: invalid ltd params")
	ErrZeroAmount        = coreerrors.New(coreerrors.ErrArithmeticBounds, "supervisor: amount must be positive")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	HasPermission(addr crypto.Address, permission string) bool
}

// tokenLedger is the subset of the token ledger the supervisor drives.
type tokenLedger interface {
	Address() crypto.Address
	Issue(caller, to crypto.Address, amount *big.Int) error
	Burn(caller crypto.Address, amount *big.Int) error
	TransferNoFee(caller, from, to crypto.Address, amount *big.Int, narrative string) error
	RegisterReceiver(addr crypto.Address, r token.Receiver)
}

// Supervisor is the monetary control module: it gates issuance against the
// LTD invariant, owns the reserve and converts accepted legacy tokens.
type Supervisor struct {
	cfg     Config
	token   tokenLedger
	legacy  map[[crypto.AddressLength]byte]tokenLedger
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

func New(cfg Config, ledger tokenLedger) *Supervisor {
	if cfg.Params.AllowedLtdDifferenceAmount == nil && cfg.Params.LtdLoanDifferenceLimit == 0 && cfg.Params.LtdLockDifferenceLimit == 0 {
		cfg.Params = DefaultParams()
	}
	cfg.Params = cfg.Params.Clone()
	return &Supervisor{
		cfg:     cfg,
		token:   ledger,
		legacy:  make(map[[crypto.AddressLength]byte]tokenLedger),
		emitter: events.NoopEmitter{},
	}
}

func (s *Supervisor) SetState(state engineState) { s.state = state }

func (s *Supervisor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Supervisor) SetPauses(p nativecommon.PauseView) { s.pauses = p }

func (s *Supervisor) Address() crypto.Address { return s.cfg.Address }

func (s *Supervisor) Reserve() crypto.Address { return s.cfg.Reserve }

func (s *Supervisor) InterestEarned() crypto.Address { return s.cfg.InterestEarned }

func (s *Supervisor) guard() error {
	if s.state == nil || s.token == nil {
		return fmt.Errorf("supervisor: not configured")
	}
	return nativecommon.Guard(s.pauses, nativecommon.ModuleSupervisor)
}

var (
	totalsKey = []byte("supervisor/totals")
	paramsKey = []byte("supervisor/params")
)

func legacyKey(addr crypto.Address) []byte {
	return append([]byte("supervisor/legacy/"), addr.Bytes()...)
}

// Totals returns the current loan and lock totals.
func (s *Supervisor) Totals() (Totals, error) {
	if s.state == nil {
		return Totals{}, fmt.Errorf("supervisor: not configured")
	}
	var totals Totals
	ok, err := s.state.KVGet(totalsKey, &totals)
	if err != nil {
		return Totals{}, err
	}
	if !ok {
		return Totals{}.Clone(), nil
	}
	return totals.Clone(), nil
}

func (s *Supervisor) putTotals(totals Totals) error {
	if totals.TotalLoanAmount.Sign() < 0 || totals.TotalLockedAmount.Sign() < 0 {
		return ErrTotalsUnderflow
	}
	return s.state.KVPut(totalsKey, totals)
}

// Params returns the LTD parameters in force.
func (s *Supervisor) Params() (Params, error) {
	if s.state == nil {
		return Params{}, fmt.Errorf("supervisor: not configured")
	}
	var params Params
	ok, err := s.state.KVGet(paramsKey, &params)
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return s.cfg.Params.Clone(), nil
	}
	return params.Clone(), nil
}

// CheckLtdInvariant reports whether applying the deltas keeps
// |loan - locked| <= max(allowed, locked * limit / 1e6). Loan-side requests use
// the loan limit, lock-side requests the lock limit.
func (s *Supervisor) CheckLtdInvariant(loanDelta, lockDelta *big.Int) error {
	totals, err := s.Totals()
	if err != nil {
		return err
	}
	params, err := s.Params()
	if err != nil {
		return err
	}
	loan := new(big.Int).Add(totals.TotalLoanAmount, nativecommon.CopyOrZero(loanDelta))
	locked := new(big.Int).Add(totals.TotalLockedAmount, nativecommon.CopyOrZero(lockDelta))
	if loan.Sign() < 0 || locked.Sign() < 0 {
		return ErrTotalsUnderflow
	}
	limit := params.LtdLockDifferenceLimit
	if loanDelta != nil && loanDelta.Sign() != 0 {
		limit = params.LtdLoanDifferenceLimit
	}
	relative, err := nativecommon.ApplyPPM(locked, limit, nativecommon.RoundDown)
	if err != nil {
		return err
	}
	bound := nativecommon.Max(params.AllowedLtdDifferenceAmount, relative)
	diff := new(big.Int).Sub(loan, locked)
	if diff.Abs(diff).Cmp(bound) > 0 {
		return fmt.Errorf("%w: loans %s, locked %s, bound %s", ErrLtdLimit, loan, locked, bound)
	}
	return nil
}

// MaxLoanAmount returns the largest loan that currently passes the LTD check.
func (s *Supervisor) MaxLoanAmount() (*big.Int, error) {
	totals, err := s.Totals()
	if err != nil {
		return nil, err
	}
	params, err := s.Params()
	if err != nil {
		return nil, err
	}
	relative, err := nativecommon.ApplyPPM(totals.TotalLockedAmount, params.LtdLoanDifferenceLimit, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	bound := nativecommon.Max(params.AllowedLtdDifferenceAmount, relative)
	headroom := new(big.Int).Add(bound, totals.TotalLockedAmount)
	headroom.Sub(headroom, totals.TotalLoanAmount)
	if headroom.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return headroom, nil
}

// IssueLoan authorises a disbursement against the LTD invariant and mints it
// to the borrower. Requires LoanManager.
func (s *Supervisor) IssueLoan(caller, borrower crypto.Address, amount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermLoanManager); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := s.CheckLtdInvariant(amount, nil); err != nil {
		return err
	}
	if err := s.token.Issue(s.cfg.Address, borrower, amount); err != nil {
		return err
	}
	return s.adjustTotals(amount, nil)
}

// LoanRepaymentNotification records that loanAmount left circulation on repay.
func (s *Supervisor) LoanRepaymentNotification(caller crypto.Address, loanAmount *big.Int) error {
	return s.loanClosed(caller, loanAmount)
}

// LoanCollectionNotification records that a defaulted loan left the books.
func (s *Supervisor) LoanCollectionNotification(caller crypto.Address, loanAmount *big.Int) error {
	return s.loanClosed(caller, loanAmount)
}

func (s *Supervisor) loanClosed(caller crypto.Address, loanAmount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermLoanManager); err != nil {
		return err
	}
	return s.adjustTotals(new(big.Int).Neg(nativecommon.CopyOrZero(loanAmount)), nil)
}

// RequestInterest books a new lock and pays its interest from the
// interest-earned account to the locker. Requires Locker.
func (s *Supervisor) RequestInterest(caller crypto.Address, amountToLock, interestAmount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermLocker); err != nil {
		return err
	}
	if amountToLock == nil || amountToLock.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := s.CheckLtdInvariant(nil, amountToLock); err != nil {
		return err
	}
	if interestAmount != nil && interestAmount.Sign() > 0 {
		if err := s.token.TransferNoFee(s.cfg.Address, s.cfg.InterestEarned, caller, interestAmount, "lock interest"); err != nil {
			return err
		}
	}
	return s.adjustTotals(nil, amountToLock)
}

// ReleaseFundsNotification records that a lock has been paid out. Requires Locker.
func (s *Supervisor) ReleaseFundsNotification(caller crypto.Address, lockedAmount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermLocker); err != nil {
		return err
	}
	return s.adjustTotals(nil, new(big.Int).Neg(nativecommon.CopyOrZero(lockedAmount)))
}

func (s *Supervisor) adjustTotals(loanDelta, lockDelta *big.Int) error {
	totals, err := s.Totals()
	if err != nil {
		return err
	}
	if loanDelta != nil {
		totals.TotalLoanAmount.Add(totals.TotalLoanAmount, loanDelta)
	}
	if lockDelta != nil {
		totals.TotalLockedAmount.Add(totals.TotalLockedAmount, lockDelta)
	}
	return s.putTotals(totals)
}

// IssueToReserve mints amount into the reserve. Requires MonetaryBoard.
func (s *Supervisor) IssueToReserve(caller crypto.Address, amount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermMonetaryBoard); err != nil {
		return err
	}
	return s.token.Issue(s.cfg.Address, s.cfg.Reserve, amount)
}

// BurnFromReserve destroys amount held by the reserve. Requires MonetaryBoard.
func (s *Supervisor) BurnFromReserve(caller crypto.Address, amount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermMonetaryBoard); err != nil {
		return err
	}
	return s.token.Burn(s.cfg.Reserve, amount)
}

// WithdrawFromReserve moves reserve tokens to to without a fee. Requires MonetaryBoard.
func (s *Supervisor) WithdrawFromReserve(caller, to crypto.Address, amount *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermMonetaryBoard); err != nil {
		return err
	}
	return s.token.TransferNoFee(s.cfg.Address, s.cfg.Reserve, to, amount, "reserve withdrawal")
}

// SetLtdParams replaces the LTD parameters. Requires StabilityBoard.
func (s *Supervisor) SetLtdParams(caller crypto.Address, params Params) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	params = params.Clone()
	if params.AllowedLtdDifferenceAmount.Sign() < 0 {
		return ErrInvalidParams
	}
	if err := s.state.KVPut(paramsKey, params); err != nil {
		return err
	}
	s.emitter.Emit(events.LtdParamsChanged{
		LockDifferenceLimit: params.LtdLockDifferenceLimit,
		LoanDifferenceLimit: params.LtdLoanDifferenceLimit,
		AllowedDifference:   new(big.Int).Set(params.AllowedLtdDifferenceAmount),
	})
	return nil
}

// AdjustKPIs shifts the totals, e.g. when loans or locks migrate from a
// previous deployment. Requires StabilityBoard.
func (s *Supervisor) AdjustKPIs(caller crypto.Address, loanAdjustment, lockedAdjustment *big.Int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	loanAdj := nativecommon.CopyOrZero(loanAdjustment)
	lockAdj := nativecommon.CopyOrZero(lockedAdjustment)
	if err := s.adjustTotals(loanAdj, lockAdj); err != nil {
		return err
	}
	s.emitter.Emit(events.KPIsAdjusted{TotalLoanAmountAdjustment: loanAdj, TotalLockedAmountAdjustment: lockAdj})
	return nil
}

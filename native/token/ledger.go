package token

import (
	"fmt"
	"math/big"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
)

var (
	ErrZeroAmount            = coreerrors.New(coreerrors.ErrArithmeticBounds, "token: amount must be positive")
	ErrInsufficientBalance   = coreerrors.New(coreerrors.ErrArithmeticBounds, "token: insufficient balance")
	ErrInsufficientAllowance = coreerrors.New(coreerrors.ErrArithmeticBounds, "token: insufficient allowance")
	ErrInvalidFees           = coreerrors.New(coreerrors.ErrArithmeticBounds, "token: fee minimum exceeds maximum")
	ErrZeroRecipient         = coreerrors.New(coreerrors.ErrInvalidState, "token: transfer to the zero address")
	ErrNoReceiver            = coreerrors.New(coreerrors.ErrInvalidState, "token: target does not accept notifications")
	ErrNotifyInProgress      = coreerrors.New(coreerrors.ErrInvalidState, "token: transfer notification already in progress")
)

type engineState interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	SetTokenSupply(symbol string, amount *big.Int) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	HasPermission(addr crypto.Address, permission string) bool
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Ledger keeps balances, allowances and supply of one token symbol.
type Ledger struct {
	cfg       Config
	state     engineState
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	receivers map[[crypto.AddressLength]byte]Receiver
	notifying bool
}

func NewLedger(cfg Config) *Ledger {
	cfg.Symbol = normalizeSymbol(cfg.Symbol)
	cfg.PeggedSymbol = normalizeSymbol(cfg.PeggedSymbol)
	if cfg.Fees.FeeMin == nil && cfg.Fees.FeeMax == nil && cfg.Fees.FeePt == 0 {
		cfg.Fees = DefaultFeeParams()
	}
	cfg.Fees = cfg.Fees.Clone()
	return &Ledger{
		cfg:       cfg,
		emitter:   events.NoopEmitter{},
		receivers: make(map[[crypto.AddressLength]byte]Receiver),
	}
}

func (l *Ledger) SetState(state engineState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

// RegisterReceiver routes TransferAndNotify calls targeting addr to r.
func (l *Ledger) RegisterReceiver(addr crypto.Address, r Receiver) {
	if r == nil {
		delete(l.receivers, addr.Array())
		return
	}
	l.receivers[addr.Array()] = r
}

func (l *Ledger) Symbol() string             { return l.cfg.Symbol }
func (l *Ledger) Name() string               { return l.cfg.Name }
func (l *Ledger) PeggedSymbol() string       { return l.cfg.PeggedSymbol }
func (l *Ledger) Decimals() uint8            { return l.cfg.Decimals }
func (l *Ledger) Address() crypto.Address    { return l.cfg.Address }
func (l *Ledger) FeeAccount() crypto.Address { return l.cfg.FeeAccount }

func (l *Ledger) emit(evt events.Event) {
	if l.emitter != nil && evt != nil {
		l.emitter.Emit(evt)
	}
}

func (l *Ledger) guard() error {
	if l.state == nil {
		return fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	return nativecommon.Guard(l.pauses, nativecommon.ModuleToken)
}

// TotalSupply returns the circulating supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l.state == nil {
		return nil, fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	return l.state.TokenSupply(l.cfg.Symbol)
}

func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	return l.state.Balance(addr.Bytes(), l.cfg.Symbol)
}

func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	amount := new(big.Int)
	ok, err := l.state.KVGet(allowanceKey(l.cfg.Symbol, owner, spender), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

type feeRecord struct {
	FeePt  uint64
	FeeMin *big.Int
	FeeMax *big.Int
}

// TransferFees returns the fee parameters in force.
func (l *Ledger) TransferFees() (FeeParams, error) {
	if l.state == nil {
		return FeeParams{}, fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	var rec feeRecord
	ok, err := l.state.KVGet(feeParamsKey(l.cfg.Symbol), &rec)
	if err != nil {
		return FeeParams{}, err
	}
	if !ok {
		return l.cfg.Fees.Clone(), nil
	}
	return FeeParams{FeePt: rec.FeePt, FeeMin: rec.FeeMin, FeeMax: rec.FeeMax}.Clone(), nil
}

// SetTransferFees replaces the fee parameters. Requires MonetaryBoard or StabilityBoard.
func (l *Ledger) SetTransferFees(caller crypto.Address, params FeeParams) error {
	if err := l.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(l.state, caller, nativecommon.PermMonetaryBoard, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	params = params.Clone()
	if params.FeeMin == nil {
		params.FeeMin = big.NewInt(0)
	}
	if params.FeeMax == nil {
		params.FeeMax = big.NewInt(0)
	}
	if params.FeeMin.Sign() < 0 || params.FeeMax.Sign() < 0 || params.FeeMin.Cmp(params.FeeMax) > 0 {
		return ErrInvalidFees
	}
	if params.FeePt > nativecommon.PPM {
		return ErrInvalidFees
	}
	rec := feeRecord{FeePt: params.FeePt, FeeMin: params.FeeMin, FeeMax: params.FeeMax}
	if err := l.state.KVPut(feeParamsKey(l.cfg.Symbol), rec); err != nil {
		return err
	}
	l.emit(events.TransferFeesChanged{Token: l.cfg.Symbol, FeePt: params.FeePt, FeeMin: params.FeeMin, FeeMax: params.FeeMax})
	return nil
}

// CalculateTransferFee returns the fee charged to from for moving amount to to.
func (l *Ledger) CalculateTransferFee(from, to crypto.Address, amount *big.Int) (*big.Int, error) {
	if l.state == nil {
		return nil, fmt.Errorf("token %s: state not configured", l.cfg.Symbol)
	}
	if l.state.HasPermission(from, nativecommon.PermNoFeeTransferContracts) ||
		l.state.HasPermission(to, nativecommon.PermNoFeeTransferContracts) {
		return big.NewInt(0), nil
	}
	params, err := l.TransferFees()
	if err != nil {
		return nil, err
	}
	fee, err := nativecommon.ApplyPPM(amount, params.FeePt, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if fee.Cmp(params.FeeMin) < 0 {
		fee = new(big.Int).Set(params.FeeMin)
	} else if fee.Cmp(params.FeeMax) > 0 {
		fee = new(big.Int).Set(params.FeeMax)
	}
	return fee, nil
}

func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	return l.TransferWithNarrative(from, to, amount, "")
}

func (l *Ledger) TransferWithNarrative(from, to crypto.Address, amount *big.Int, narrative string) error {
	if err := l.guard(); err != nil {
		return err
	}
	return l.transferWithFee(from, to, amount, narrative)
}

func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	return l.TransferFromWithNarrative(spender, from, to, amount, "")
}

// TransferFromWithNarrative spends spender's allowance over from's balance.
// The allowance shrinks by exactly amount; the fee is charged to from.
func (l *Ledger) TransferFromWithNarrative(spender, from, to crypto.Address, amount *big.Int, narrative string) error {
	if err := l.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	snap := l.state.Snapshot()
	if err := l.transferWithFee(from, to, amount, narrative); err != nil {
		l.state.RevertToSnapshot(snap)
		return err
	}
	if err := l.storeAllowance(from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		l.state.RevertToSnapshot(snap)
		return err
	}
	l.state.DiscardSnapshot(snap)
	return nil
}

// TransferNoFee moves tokens without charging a fee. Only accounts holding
// NoFeeTransferContracts may call it; modules use it to settle on behalf of users.
func (l *Ledger) TransferNoFee(caller, from, to crypto.Address, amount *big.Int, narrative string) error {
	if err := l.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(l.state, caller, nativecommon.PermNoFeeTransferContracts); err != nil {
		return err
	}
	return l.move(from, to, amount, big.NewInt(0), narrative)
}

// TransferAndNotify transfers amount to target and then invokes target's
// registered Receiver with data. The balance change is applied before the
// receiver runs; a receiver error rolls the transfer back.
func (l *Ledger) TransferAndNotify(from, target crypto.Address, amount *big.Int, data uint64) error {
	if err := l.guard(); err != nil {
		return err
	}
	if l.notifying {
		return ErrNotifyInProgress
	}
	receiver, ok := l.receivers[target.Array()]
	if !ok || receiver == nil {
		return ErrNoReceiver
	}

	snap := l.state.Snapshot()
	journal, hasJournal := l.emitter.(events.Journal)
	mark := 0
	if hasJournal {
		mark = journal.Mark()
	}
	rollback := func() {
		l.state.RevertToSnapshot(snap)
		if hasJournal {
			journal.Rewind(mark)
		}
	}

	if err := l.transferWithFee(from, target, amount, ""); err != nil {
		rollback()
		return err
	}

	l.notifying = true
	err := receiver.TransferNotification(l.cfg.Address, from, new(big.Int).Set(amount), data)
	l.notifying = false
	if err != nil {
		rollback()
		return err
	}
	l.state.DiscardSnapshot(snap)
	return nil
}

func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if err := l.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmount
	}
	return l.writeAllowance(owner, spender, amount)
}

func (l *Ledger) IncreaseApproval(owner, spender crypto.Address, added *big.Int) error {
	if err := l.guard(); err != nil {
		return err
	}
	if added == nil || added.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	return l.writeAllowance(owner, spender, current.Add(current, added))
}

// DecreaseApproval lowers the allowance, flooring at zero.
func (l *Ledger) DecreaseApproval(owner, spender crypto.Address, subtracted *big.Int) error {
	if err := l.guard(); err != nil {
		return err
	}
	if subtracted == nil || subtracted.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(current, subtracted)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return l.writeAllowance(owner, spender, next)
}

// Issue mints amount to to. Requires MonetarySupervisor.
func (l *Ledger) Issue(caller, to crypto.Address, amount *big.Int) error {
	if err := l.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(l.state, caller, nativecommon.PermMonetarySupervisor); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if to.IsZero() {
		return ErrZeroRecipient
	}
	supply, err := l.state.TokenSupply(l.cfg.Symbol)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if err := l.state.SetTokenSupply(l.cfg.Symbol, supply); err != nil {
		return err
	}
	if err := l.credit(to, amount); err != nil {
		return err
	}
	zero := crypto.ZeroAddress()
	l.emit(events.Transfer{Token: l.cfg.Symbol, From: zero, To: to, Amount: new(big.Int).Set(amount)})
	l.emit(events.AugmintTransfer{Token: l.cfg.Symbol, From: zero, To: to, Amount: new(big.Int).Set(amount), Fee: big.NewInt(0)})
	l.emit(events.TokenSupply{Token: l.cfg.Symbol, Total: supply, Delta: new(big.Int).Set(amount), Reason: events.SupplyReasonMint})
	return nil
}

// Burn destroys amount from caller's own balance.
func (l *Ledger) Burn(caller crypto.Address, amount *big.Int) error {
	if err := l.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	supply, err := l.state.TokenSupply(l.cfg.Symbol)
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.debit(caller, amount); err != nil {
		return err
	}
	supply.Sub(supply, amount)
	if err := l.state.SetTokenSupply(l.cfg.Symbol, supply); err != nil {
		return err
	}
	zero := crypto.ZeroAddress()
	l.emit(events.Transfer{Token: l.cfg.Symbol, From: caller, To: zero, Amount: new(big.Int).Set(amount)})
	l.emit(events.AugmintTransfer{Token: l.cfg.Symbol, From: caller, To: zero, Amount: new(big.Int).Set(amount), Fee: big.NewInt(0)})
	l.emit(events.TokenSupply{Token: l.cfg.Symbol, Total: supply, Delta: new(big.Int).Neg(amount), Reason: events.SupplyReasonBurn})
	return nil
}

func (l *Ledger) transferWithFee(from, to crypto.Address, amount *big.Int, narrative string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	fee, err := l.CalculateTransferFee(from, to, amount)
	if err != nil {
		return err
	}
	return l.move(from, to, amount, fee, narrative)
}

// move debits amount+fee from from, credits amount to to and fee to the fee
// account, then emits the transfer events. Balances are checked before any write.
func (l *Ledger) move(from, to crypto.Address, amount, fee *big.Int, narrative string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if to.IsZero() {
		return ErrZeroRecipient
	}
	balance, err := l.state.Balance(from.Bytes(), l.cfg.Symbol)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(amount, fee)
	if balance.Cmp(total) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.String(), balance, total)
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	if err := l.credit(to, amount); err != nil {
		return err
	}
	l.emit(events.Transfer{Token: l.cfg.Symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	if fee.Sign() > 0 {
		if err := l.debit(from, fee); err != nil {
			return err
		}
		if err := l.credit(l.cfg.FeeAccount, fee); err != nil {
			return err
		}
		l.emit(events.Transfer{Token: l.cfg.Symbol, From: from, To: l.cfg.FeeAccount, Amount: new(big.Int).Set(fee)})
	}
	l.emit(events.AugmintTransfer{
		Token:     l.cfg.Symbol,
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Fee:       new(big.Int).Set(fee),
		Narrative: narrative,
	})
	return nil
}

func (l *Ledger) debit(addr crypto.Address, amount *big.Int) error {
	balance, err := l.state.Balance(addr.Bytes(), l.cfg.Symbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.state.SetBalance(addr.Bytes(), l.cfg.Symbol, balance.Sub(balance, amount))
}

func (l *Ledger) credit(addr crypto.Address, amount *big.Int) error {
	balance, err := l.state.Balance(addr.Bytes(), l.cfg.Symbol)
	if err != nil {
		return err
	}
	return l.state.SetBalance(addr.Bytes(), l.cfg.Symbol, balance.Add(balance, amount))
}

func (l *Ledger) storeAllowance(owner, spender crypto.Address, amount *big.Int) error {
	key := allowanceKey(l.cfg.Symbol, owner, spender)
	if amount.Sign() == 0 {
		return l.state.KVDelete(key)
	}
	return l.state.KVPut(key, amount)
}

func (l *Ledger) writeAllowance(owner, spender crypto.Address, amount *big.Int) error {
	if err := l.storeAllowance(owner, spender, amount); err != nil {
		return err
	}
	l.emit(events.Approval{Token: l.cfg.Symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

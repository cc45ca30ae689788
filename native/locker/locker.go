package locker

import (
	"encoding/binary"
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
	ErrProductNotFound = coreerrors.New(coreerrors.ErrInvalidState, "locker: lock product not found")
	ErrProductInactive = coreerrors.New(coreerrors.ErrInvalidState, "locker: lock product not active")
	ErrInvalidProduct  = coreerrors.New(coreerrors.ErrArithmeticBounds, "locker: invalid lock product")
	ErrBelowMinimum    = coreerrors.New(coreerrors.ErrArithmeticBounds, "locker: amount below minimum lock amount")
	ErrLockNotFound    = coreerrors.New(coreerrors.ErrInvalidState, "locker: lock not found")
	ErrLockReleased    = coreerrors.New(coreerrors.ErrInvalidState, "locker: lock already released")
	ErrStillLocked     = coreerrors.New(coreerrors.ErrInvalidState, "locker: funds are still locked")
	ErrUnexpectedToken = coreerrors.New(coreerrors.ErrPermissionDenied, "locker: notification from unexpected token")
)

// LockProduct is a fixed-term deposit offering. PerTermInterest is parts per million.
type LockProduct struct {
	ID                uint32
	PerTermInterest   uint64
	DurationInSecs    uint64
	MinimumLockAmount *big.Int
	Active            bool
}

// Lock is a deposit of tokens held until LockedUntil.
type Lock struct {
	ID             uint64
	Owner          crypto.Address
	ProductID      uint32
	AmountLocked   *big.Int
	InterestEarned *big.Int
	LockedUntil    time.Time
	Active         bool
}

type lockRecord struct {
	ID             uint64
	Owner          []byte
	ProductID      uint32
	AmountLocked   *big.Int
	InterestEarned *big.Int
	LockedUntil    uint64
	Active         bool
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	HasPermission(addr crypto.Address, permission string) bool
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

type tokenLedger interface {
	Address() crypto.Address
	TransferNoFee(caller, from, to crypto.Address, amount *big.Int, narrative string) error
	RegisterReceiver(addr crypto.Address, r token.Receiver)
}

type interestSource interface {
	RequestInterest(caller crypto.Address, amountToLock, interestAmount *big.Int) error
	ReleaseFundsNotification(caller crypto.Address, lockedAmount *big.Int) error
}

var (
	productCountKey = []byte("locker/products/count")
	lockCountKey    = []byte("locker/locks/count")
)

func productKey(id uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return append([]byte("locker/products/"), buf...)
}

func lockKey(id uint64) []byte {
	return append([]byte("locker/locks/"), encodeID(id)...)
}

func ownerIndexKey(addr crypto.Address) []byte {
	return append([]byte("locker/owner/"), addr.Bytes()...)
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// Locker holds token deposits for a fixed term and pays interest up front
// from the interest-earned account.
type Locker struct {
	addr       crypto.Address
	token      tokenLedger
	supervisor interestSource
	state      engineState
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() time.Time
}

// New wires the locker and registers it as a receiver on the token ledger.
func New(addr crypto.Address, ledger tokenLedger, supervisor interestSource) *Locker {
	l := &Locker{
		addr:       addr,
		token:      ledger,
		supervisor: supervisor,
		emitter:    events.NoopEmitter{},
		nowFn:      time.Now,
	}
	if ledger != nil {
		ledger.RegisterReceiver(addr, l)
	}
	return l
}

func (l *Locker) SetState(state engineState) { l.state = state }

func (l *Locker) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Locker) SetPauses(p nativecommon.PauseView) { l.pauses = p }

func (l *Locker) SetNowFunc(now func() time.Time) {
	if now == nil {
		l.nowFn = time.Now
		return
	}
	l.nowFn = now
}

func (l *Locker) Address() crypto.Address { return l.addr }

func (l *Locker) guard() error {
	if l.state == nil || l.token == nil || l.supervisor == nil {
		return fmt.Errorf("locker: not configured")
	}
	return nativecommon.Guard(l.pauses, nativecommon.ModuleLocker)
}

// AddLockProduct registers a lock product. Requires StabilityBoard.
func (l *Locker) AddLockProduct(caller crypto.Address, product LockProduct) (uint32, error) {
	if err := l.guard(); err != nil {
		return 0, err
	}
	if err := nativecommon.RequirePermission(l.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return 0, err
	}
	if product.DurationInSecs == 0 || product.DurationInSecs > nativecommon.MaxDurationSecs {
		return 0, ErrInvalidProduct
	}
	minimum := nativecommon.CopyOrZero(product.MinimumLockAmount)
	if minimum.Sign() < 0 {
		return 0, ErrInvalidProduct
	}
	var count uint32
	if _, err := l.state.KVGet(productCountKey, &count); err != nil {
		return 0, err
	}
	product.ID = count
	product.MinimumLockAmount = minimum
	if err := l.state.KVPut(productKey(product.ID), product); err != nil {
		return 0, err
	}
	if err := l.state.KVPut(productCountKey, count+1); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.NewLockProduct{
		ProductID:         product.ID,
		PerTermInterest:   product.PerTermInterest,
		DurationInSecs:    product.DurationInSecs,
		MinimumLockAmount: new(big.Int).Set(minimum),
		Active:            product.Active,
	})
	return product.ID, nil
}

func (l *Locker) SetLockProductActiveState(caller crypto.Address, productID uint32, active bool) error {
	if err := l.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(l.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	product, err := l.LockProduct(productID)
	if err != nil {
		return err
	}
	product.Active = active
	if err := l.state.KVPut(productKey(productID), product); err != nil {
		return err
	}
	l.emitter.Emit(events.LockProductActiveStateChanged{ProductID: productID, Active: active})
	return nil
}

// TransferNotification opens a lock for tokens sent with TransferAndNotify;
// data carries the lock product id.
func (l *Locker) TransferNotification(tokenAddr, from crypto.Address, amount *big.Int, data uint64) error {
	if err := l.guard(); err != nil {
		return err
	}
	if !tokenAddr.Equal(l.token.Address()) {
		return ErrUnexpectedToken
	}
	if data > uint64(^uint32(0)) {
		return ErrProductNotFound
	}
	product, err := l.LockProduct(uint32(data))
	if err != nil {
		return err
	}
	if !product.Active {
		return ErrProductInactive
	}
	if amount == nil || amount.Cmp(product.MinimumLockAmount) < 0 {
		return ErrBelowMinimum
	}
	interest, err := nativecommon.ApplyPPM(amount, product.PerTermInterest, nativecommon.RoundDown)
	if err != nil {
		return err
	}
	if err := l.supervisor.RequestInterest(l.addr, amount, interest); err != nil {
		return err
	}

	var count uint64
	if _, err := l.state.KVGet(lockCountKey, &count); err != nil {
		return err
	}
	lockedUntil := l.nowFn().UTC().Truncate(time.Second).Add(time.Duration(product.DurationInSecs) * time.Second)
	lock := &Lock{
		ID:             count,
		Owner:          from,
		ProductID:      product.ID,
		AmountLocked:   new(big.Int).Set(amount),
		InterestEarned: interest,
		LockedUntil:    lockedUntil,
		Active:         true,
	}
	if err := l.putLock(lock); err != nil {
		return err
	}
	if err := l.state.KVPut(lockCountKey, count+1); err != nil {
		return err
	}
	if err := l.state.KVAppend(ownerIndexKey(from), encodeID(lock.ID)); err != nil {
		return err
	}
	l.emitter.Emit(events.NewLock{
		LockOwner:       from,
		LockID:          lock.ID,
		AmountLocked:    new(big.Int).Set(amount),
		InterestEarned:  new(big.Int).Set(interest),
		LockedUntil:     lockedUntil.Unix(),
		PerTermInterest: product.PerTermInterest,
		DurationInSecs:  product.DurationInSecs,
	})
	return nil
}

// ReleaseFunds pays a matured lock's principal and interest to its owner.
// Anyone may trigger the release.
func (l *Locker) ReleaseFunds(lockID uint64) error {
	if err := l.guard(); err != nil {
		return err
	}
	lock, err := l.Lock(lockID)
	if err != nil {
		return err
	}
	if !lock.Active {
		return ErrLockReleased
	}
	if l.nowFn().Before(lock.LockedUntil) {
		return ErrStillLocked
	}
	snap := l.state.Snapshot()
	journal, hasJournal := l.emitter.(events.Journal)
	mark := 0
	if hasJournal {
		mark = journal.Mark()
	}
	lock.Active = false
	payout := new(big.Int).Add(lock.AmountLocked, lock.InterestEarned)
	err = l.putLock(lock)
	if err == nil {
		err = l.token.TransferNoFee(l.addr, l.addr, lock.Owner, payout, "funds released from lock")
	}
	if err == nil {
		err = l.supervisor.ReleaseFundsNotification(l.addr, lock.AmountLocked)
	}
	if err != nil {
		l.state.RevertToSnapshot(snap)
		if hasJournal {
			journal.Rewind(mark)
		}
		return err
	}
	l.state.DiscardSnapshot(snap)
	l.emitter.Emit(events.LockReleased{LockOwner: lock.Owner, LockID: lock.ID})
	return nil
}

func (l *Locker) putLock(lock *Lock) error {
	return l.state.KVPut(lockKey(lock.ID), lockRecord{
		ID:             lock.ID,
		Owner:          lock.Owner.Bytes(),
		ProductID:      lock.ProductID,
		AmountLocked:   lock.AmountLocked,
		InterestEarned: lock.InterestEarned,
		LockedUntil:    uint64(lock.LockedUntil.Unix()),
		Active:         lock.Active,
	})
}

func (l *Locker) LockProduct(id uint32) (*LockProduct, error) {
	if l.state == nil {
		return nil, fmt.Errorf("locker: not configured")
	}
	var product LockProduct
	ok, err := l.state.KVGet(productKey(id), &product)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	product.MinimumLockAmount = nativecommon.CopyOrZero(product.MinimumLockAmount)
	return &product, nil
}

func (l *Locker) LockProducts() ([]*LockProduct, error) {
	if l.state == nil {
		return nil, fmt.Errorf("locker: not configured")
	}
	var count uint32
	if _, err := l.state.KVGet(productCountKey, &count); err != nil {
		return nil, err
	}
	out := make([]*LockProduct, 0, count)
	for id := uint32(0); id < count; id++ {
		product, err := l.LockProduct(id)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}
	return out, nil
}

// LockCount returns the number of locks ever opened; the next lock gets this id.
func (l *Locker) LockCount() (uint64, error) {
	if l.state == nil {
		return 0, fmt.Errorf("locker: not configured")
	}
	var count uint64
	if _, err := l.state.KVGet(lockCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (l *Locker) Lock(id uint64) (*Lock, error) {
	if l.state == nil {
		return nil, fmt.Errorf("locker: not configured")
	}
	var rec lockRecord
	ok, err := l.state.KVGet(lockKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotFound
	}
	owner, err := crypto.NewAddress(crypto.AugmintPrefix, rec.Owner)
	if err != nil {
		return nil, err
	}
	return &Lock{
		ID:             rec.ID,
		Owner:          owner,
		ProductID:      rec.ProductID,
		AmountLocked:   nativecommon.CopyOrZero(rec.AmountLocked),
		InterestEarned: nativecommon.CopyOrZero(rec.InterestEarned),
		LockedUntil:    time.Unix(int64(rec.LockedUntil), 0).UTC(),
		Active:         rec.Active,
	}, nil
}

// LocksForAddress returns every lock opened by addr, oldest first.
func (l *Locker) LocksForAddress(addr crypto.Address) ([]*Lock, error) {
	if l.state == nil {
		return nil, fmt.Errorf("locker: not configured")
	}
	var ids [][]byte
	if err := l.state.KVGetList(ownerIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	out := make([]*Lock, 0, len(ids))
	for _, raw := range ids {
		lock, err := l.Lock(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, lock)
	}
	return out, nil
}

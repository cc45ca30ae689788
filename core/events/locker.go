package events

import (
	"math/big"
	"strconv"

	"augmint/core/types"
	"augmint/crypto"
)

const (
	TypeNewLockProduct                = "locker.newLockProduct"
	TypeLockProductActiveStateChanged = "locker.lockProductActiveStateChanged"
	TypeNewLock                       = "locker.newLock"
	TypeLockReleased                  = "locker.lockReleased"
)

type NewLockProduct struct {
	ProductID         uint32
	PerTermInterest   uint64
	DurationInSecs    uint64
	MinimumLockAmount *big.Int
	Active            bool
}

func (NewLockProduct) EventType() string { return TypeNewLockProduct }

func (e NewLockProduct) Event() *types.Event {
	return &types.Event{Type: TypeNewLockProduct, Attributes: map[string]string{
		"lockProductId":     formatUint(uint64(e.ProductID)),
		"perTermInterest":   formatUint(e.PerTermInterest),
		"durationInSecs":    formatUint(e.DurationInSecs),
		"minimumLockAmount": formatAmount(e.MinimumLockAmount),
		"isActive":          strconv.FormatBool(e.Active),
	}}
}

type LockProductActiveStateChanged struct {
	ProductID uint32
	Active    bool
}

func (LockProductActiveStateChanged) EventType() string { return TypeLockProductActiveStateChanged }

func (e LockProductActiveStateChanged) Event() *types.Event {
	return &types.Event{Type: TypeLockProductActiveStateChanged, Attributes: map[string]string{
		"lockProductId": formatUint(uint64(e.ProductID)),
		"newState":      strconv.FormatBool(e.Active),
	}}
}

type NewLock struct {
	LockOwner       crypto.Address
	LockID          uint64
	AmountLocked    *big.Int
	InterestEarned  *big.Int
	LockedUntil     int64
	PerTermInterest uint64
	DurationInSecs  uint64
}

func (NewLock) EventType() string { return TypeNewLock }

func (e NewLock) Event() *types.Event {
	return &types.Event{Type: TypeNewLock, Attributes: map[string]string{
		"lockOwner":       formatAddress(e.LockOwner),
		"lockId":          formatUint(e.LockID),
		"amountLocked":    formatAmount(e.AmountLocked),
		"interestEarned":  formatAmount(e.InterestEarned),
		"lockedUntil":     strconv.FormatInt(e.LockedUntil, 10),
		"perTermInterest": formatUint(e.PerTermInterest),
		"durationInSecs":  formatUint(e.DurationInSecs),
	}}
}

type LockReleased struct {
	LockOwner crypto.Address
	LockID    uint64
}

func (LockReleased) EventType() string { return TypeLockReleased }

func (e LockReleased) Event() *types.Event {
	return &types.Event{Type: TypeLockReleased, Attributes: map[string]string{
		"lockOwner": formatAddress(e.LockOwner),
		"lockId":    formatUint(e.LockID),
	}}
}

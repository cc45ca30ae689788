package common

import (
	"fmt"
	"math/big"

	coreerrors "augmint/core/errors"
	"augmint/crypto"
)

var ErrInsufficientWei = coreerrors.New(coreerrors.ErrArithmeticBounds, "insufficient wei balance")

type WeiLedger interface {
	WeiBalance(addr crypto.Address) (*big.Int, error)
	SetWeiBalance(addr crypto.Address, amount *big.Int) error
}

// MoveWei transfers native collateral between two accounts. The debit is
// checked before either balance is written.
func MoveWei(st WeiLedger, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegative
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	fromBal, err := st.WeiBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientWei, from.String(), fromBal, amount)
	}
	if err := st.SetWeiBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := st.WeiBalance(to)
	if err != nil {
		return err
	}
	return st.SetWeiBalance(to, toBal.Add(toBal, amount))
}

package common

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "augmint/core/errors"
)

// Rounding selects how a quotient remainder is resolved.
type Rounding uint8

const (
	RoundDown Rounding = iota
	RoundHalfUp
)

const (
	// PPM is the parts-per-million denominator used by every ratio parameter.
	PPM = 1_000_000
	// MaxDurationSecs bounds product terms so a term added to a timestamp
	// stays within time.Duration.
	MaxDurationSecs = math.MaxUint32
)

var (
	ErrOverflow       = coreerrors.New(coreerrors.ErrArithmeticBounds, "fixed point: overflow")
	ErrDivisionByZero = coreerrors.New(coreerrors.ErrArithmeticBounds, "fixed point: division by zero")
	ErrNegative       = coreerrors.New(coreerrors.ErrArithmeticBounds, "fixed point: negative operand")

	ppmDivisor  = big.NewInt(PPM)
	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// PPMDivisor returns a fresh copy of 1e6.
func PPMDivisor() *big.Int { return new(big.Int).Set(ppmDivisor) }

// WeiPerEther returns a fresh copy of 1e18.
func WeiPerEther() *big.Int { return new(big.Int).Set(weiPerEther) }

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegative
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDiv computes a*b/d over 256-bit unsigned integers. The product is held at
// 512 bits so only a quotient that does not fit 256 bits overflows.
func MulDiv(a, b, d *big.Int, mode Rounding) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	z, err := toUint256(d)
	if err != nil {
		return nil, err
	}
	if z.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, ErrOverflow
	}
	if mode == RoundHalfUp {
		rem := new(uint256.Int).MulMod(x, y, z)
		// rem >= z - rem is 2*rem >= z without the doubling overflowing.
		if !rem.IsZero() && !rem.Lt(new(uint256.Int).Sub(z, rem)) {
			if _, carry := quotient.AddOverflow(quotient, uint256.NewInt(1)); carry {
				return nil, ErrOverflow
			}
		}
	}
	return quotient.ToBig(), nil
}

// Div divides a by d with the given rounding.
func Div(a, d *big.Int, mode Rounding) (*big.Int, error) {
	return MulDiv(a, big.NewInt(1), d, mode)
}

// Mul multiplies a and b, failing when the product exceeds 256 bits.
func Mul(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return product.ToBig(), nil
}

// ApplyPPM returns amount*ppm/1e6.
func ApplyPPM(amount *big.Int, ppm uint64, mode Rounding) (*big.Int, error) {
	return MulDiv(amount, new(big.Int).SetUint64(ppm), ppmDivisor, mode)
}

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger operand.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// CopyOrZero clones v, mapping nil to zero.
func CopyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

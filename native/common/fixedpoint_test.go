package common

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "augmint/core/errors"
	"augmint/crypto"
)

func TestMulDivRounding(t *testing.T) {
	cases := []struct {
		name string
		a, b int64
		d    int64
		mode Rounding
		want int64
	}{
		{"exact", 10, 10, 4, RoundDown, 25},
		{"down truncates", 7, 1, 2, RoundDown, 3},
		{"half up rounds half", 7, 1, 2, RoundHalfUp, 4},
		{"half up below half", 10, 1, 3, RoundHalfUp, 3},
		{"half up above half", 20, 1, 3, RoundHalfUp, 7},
	}
	for _, tc := range cases {
		got, err := MulDiv(big.NewInt(tc.a), big.NewInt(tc.b), big.NewInt(tc.d), tc.mode)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.Int64() != tc.want {
			t.Fatalf("%s: got %s want %d", tc.name, got, tc.want)
		}
	}
}

func TestMulDivWideIntermediate(t *testing.T) {
	// (2^200 * 2^100) / 2^100 needs a 512-bit product.
	a := new(big.Int).Lsh(big.NewInt(1), 200)
	b := new(big.Int).Lsh(big.NewInt(1), 100)
	got, err := MulDiv(a, b, b, RoundDown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(a) != 0 {
		t.Fatalf("got %s want %s", got, a)
	}
}

func TestMulDivErrorsAreArithmeticBounds(t *testing.T) {
	big255 := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := MulDiv(big255, big.NewInt(4), big.NewInt(1), RoundDown); !errors.Is(err, coreerrors.ErrArithmeticBounds) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Div(big.NewInt(1), big.NewInt(0), RoundDown); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := Mul(big.NewInt(-1), big.NewInt(1)); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative operand error, got %v", err)
	}
	if _, err := Mul(big255, big.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestApplyPPM(t *testing.T) {
	got, err := ApplyPPM(big.NewInt(1_000_000), 2000, RoundDown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 2000 {
		t.Fatalf("got %s", got)
	}
}

type stubPauses map[string]bool

func (s stubPauses) IsPaused(module string) bool { return s[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, ModuleExchange); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(stubPauses{ModuleExchange: true}, ModuleExchange); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("expected paused error, got %v", err)
	}
}

type stubPermissions map[string]bool

func (s stubPermissions) HasPermission(_ crypto.Address, permission string) bool {
	return s[permission]
}

func TestRequirePermission(t *testing.T) {
	addr := crypto.ModuleAddress("board")
	if err := RequirePermission(stubPermissions{PermStabilityBoard: true}, addr, PermMonetaryBoard, PermStabilityBoard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := RequirePermission(stubPermissions{}, addr, PermMonetaryBoard)
	if !errors.Is(err, coreerrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

package types

import (
	"math/big"
	"sort"
	"strings"
)

// Account is the address-keyed record for native collateral and permissions.
// Token balances live in the per-symbol balance table of the state manager.
type Account struct {
	BalanceWei  *big.Int `json:"balanceWei"`
	Permissions []string `json:"permissions"`
}

// NewAccount returns an empty account with a zero wei balance.
func NewAccount() *Account {
	return &Account{BalanceWei: big.NewInt(0), Permissions: []string{}}
}

// EnsureDefaults replaces nil fields left behind by RLP decoding.
func (a *Account) EnsureDefaults() {
	if a.BalanceWei == nil {
		a.BalanceWei = big.NewInt(0)
	}
	if a.Permissions == nil {
		a.Permissions = []string{}
	}
}

// HasPermission reports whether the permission label has been granted.
func (a *Account) HasPermission(permission string) bool {
	label := strings.TrimSpace(permission)
	idx := sort.SearchStrings(a.Permissions, label)
	return idx < len(a.Permissions) && a.Permissions[idx] == label
}

// Grant adds the label, keeping the set sorted. It reports whether the set changed.
func (a *Account) Grant(permission string) bool {
	label := strings.TrimSpace(permission)
	if label == "" || a.HasPermission(label) {
		return false
	}
	a.Permissions = append(a.Permissions, label)
	sort.Strings(a.Permissions)
	return true
}

// Revoke removes the label. It reports whether the set changed.
func (a *Account) Revoke(permission string) bool {
	label := strings.TrimSpace(permission)
	idx := sort.SearchStrings(a.Permissions, label)
	if idx >= len(a.Permissions) || a.Permissions[idx] != label {
		return false
	}
	a.Permissions = append(a.Permissions[:idx], a.Permissions[idx+1:]...)
	return true
}

package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"augmint/core/types"
	"augmint/crypto"
)

var accountPrefix = []byte("account:")

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

// GetAccount loads the account record, returning an empty account when absent.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	data, err := m.trie.Get(accountKey(addr.Bytes()))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return types.NewAccount(), nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount persists the account record.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	account.EnsureDefaults()
	if account.BalanceWei.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.trie.Update(accountKey(addr.Bytes()), encoded)
}

// WeiBalance returns the native collateral balance of addr.
func (m *Manager) WeiBalance(addr crypto.Address) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.BalanceWei), nil
}

// SetWeiBalance overwrites the native collateral balance of addr.
func (m *Manager) SetWeiBalance(addr crypto.Address, amount *big.Int) error {
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	account.BalanceWei = new(big.Int).Set(amount)
	return m.PutAccount(addr, account)
}

// GrantPermission adds a permission label to addr.
func (m *Manager) GrantPermission(addr crypto.Address, permission string) error {
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if !account.Grant(permission) {
		return nil
	}
	return m.PutAccount(addr, account)
}

// RevokePermission removes a permission label from addr.
func (m *Manager) RevokePermission(addr crypto.Address, permission string) error {
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if !account.Revoke(permission) {
		return nil
	}
	return m.PutAccount(addr, account)
}

// HasPermission reports whether addr holds the permission label. Read errors
// are treated as a missing permission.
func (m *Manager) HasPermission(addr crypto.Address, permission string) bool {
	account, err := m.GetAccount(addr)
	if err != nil {
		return false
	}
	return account.HasPermission(permission)
}

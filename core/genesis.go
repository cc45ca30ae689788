package core

import (
	"context"
	"fmt"
	"math/big"

	coreerrors "augmint/core/errors"
	"augmint/core/genesis"
	nativecommon "augmint/native/common"
	"augmint/native/token"
)

var ErrGenesisApplied = coreerrors.New(coreerrors.ErrInvalidState, "core: genesis already applied")

var genesisMarkerKey = []byte("node/genesis")

// genesisPermissions are held by the genesis account only while the document
// is applied, so products, rates and fees go through the regular module paths.
var genesisPermissions = []string{
	nativecommon.PermStabilityBoard,
	nativecommon.PermMonetaryBoard,
	nativecommon.PermRatesFeeder,
}

// GenesisApplied reports whether a genesis document has been committed.
func (n *Node) GenesisApplied() (bool, error) {
	var applied bool
	err := n.view(func() error {
		_, err := n.state.KVGet(genesisMarkerKey, &applied)
		return err
	})
	return applied, err
}

// ApplyGenesis applies plan in one operation. It can only run once per store.
func (n *Node) ApplyGenesis(ctx context.Context, plan *genesis.Plan) error {
	if plan == nil {
		return fmt.Errorf("core: genesis plan must be provided")
	}
	return n.execute(ctx, "genesis", func() error {
		var applied bool
		if _, err := n.state.KVGet(genesisMarkerKey, &applied); err != nil {
			return err
		}
		if applied {
			return ErrGenesisApplied
		}
		admin := n.accounts.Genesis
		for _, perm := range genesisPermissions {
			if err := n.state.GrantPermission(admin, perm); err != nil {
				return err
			}
		}

		for _, grant := range plan.Roles {
			if err := n.state.GrantPermission(grant.Address, grant.Permission); err != nil {
				return err
			}
		}
		for _, alloc := range plan.Wei {
			if err := n.state.SetWeiBalance(alloc.Address, alloc.Amount); err != nil {
				return err
			}
		}
		for _, symbol := range plan.TokenSymbols() {
			ledger, err := n.ledgerFor(symbol)
			if err != nil {
				return err
			}
			for _, alloc := range plan.Tokens[symbol] {
				if alloc.Amount.Sign() == 0 {
					continue
				}
				if err := ledger.Issue(n.accounts.Supervisor, alloc.Address, alloc.Amount); err != nil {
					return fmt.Errorf("genesis %s allocation: %w", symbol, err)
				}
			}
		}
		if len(plan.Rates) > 0 {
			symbols := make([]string, 0, len(plan.Rates))
			for _, rate := range plan.Rates {
				symbols = append(symbols, rate.Symbol)
			}
			values := make([]*big.Int, 0, len(plan.Rates))
			for _, rate := range plan.Rates {
				values = append(values, rate.Value)
			}
			if err := n.rates.SetMultipleRates(admin, symbols, values); err != nil {
				return err
			}
		}
		if plan.TransferFees != nil {
			if err := n.token.SetTransferFees(admin, *plan.TransferFees); err != nil {
				return err
			}
		}
		for _, product := range plan.LoanProducts {
			if _, err := n.loans.AddLoanProduct(admin, product); err != nil {
				return err
			}
		}
		for _, product := range plan.LockProducts {
			if _, err := n.locker.AddLockProduct(admin, product); err != nil {
				return err
			}
		}
		for _, symbol := range plan.AcceptedLegacyTokens {
			ledger, err := n.legacyLedger(symbol)
			if err != nil {
				return err
			}
			if err := n.supervisor.SetAcceptedLegacyAugmintToken(admin, ledger.Address(), true); err != nil {
				return err
			}
		}

		for _, perm := range genesisPermissions {
			if err := n.state.RevokePermission(admin, perm); err != nil {
				return err
			}
		}
		return n.state.KVPut(genesisMarkerKey, true)
	})
}

func (n *Node) ledgerFor(symbol string) (*token.Ledger, error) {
	if normalizeSymbol(symbol) == n.token.Symbol() {
		return n.token, nil
	}
	return n.legacyLedger(symbol)
}

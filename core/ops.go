package core

import (
	"context"
	"fmt"
	"math/big"

	coreerrors "augmint/core/errors"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/supervisor"
	"augmint/native/token"
)

var (
	ErrUnknownToken      = coreerrors.New(coreerrors.ErrInvalidState, "core: unknown token")
	ErrUnknownModule     = coreerrors.New(coreerrors.ErrInvalidState, "core: unknown module")
	ErrUnknownPermission = coreerrors.New(coreerrors.ErrInvalidState, "core: unknown permission")
)

// Token ledger.

func (n *Node) Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int, narrative string) error {
	return n.execute(ctx, "token.transfer", func() error {
		return n.token.TransferWithNarrative(from, to, amount, narrative)
	})
}

func (n *Node) TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int, narrative string) error {
	return n.execute(ctx, "token.transferFrom", func() error {
		return n.token.TransferFromWithNarrative(spender, from, to, amount, narrative)
	})
}

func (n *Node) Approve(ctx context.Context, owner, spender crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "token.approve", func() error {
		return n.token.Approve(owner, spender, amount)
	})
}

func (n *Node) IncreaseApproval(ctx context.Context, owner, spender crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "token.increaseApproval", func() error {
		return n.token.IncreaseApproval(owner, spender, amount)
	})
}

func (n *Node) DecreaseApproval(ctx context.Context, owner, spender crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "token.decreaseApproval", func() error {
		return n.token.DecreaseApproval(owner, spender, amount)
	})
}

// TransferAndNotify moves tokens to target and invokes the receiver registered
// there with data, all in one operation.
func (n *Node) TransferAndNotify(ctx context.Context, from, target crypto.Address, amount *big.Int, data uint64) error {
	return n.execute(ctx, "token.transferAndNotify", func() error {
		return n.token.TransferAndNotify(from, target, amount, data)
	})
}

func (n *Node) SetTransferFees(ctx context.Context, caller crypto.Address, params token.FeeParams) error {
	return n.execute(ctx, "token.setTransferFees", func() error {
		return n.token.SetTransferFees(caller, params)
	})
}

// ConvertLegacyTokens sends amount of the legacy token symbol to the supervisor,
// which burns it and issues the same amount of the current token.
func (n *Node) ConvertLegacyTokens(ctx context.Context, symbol string, from crypto.Address, amount *big.Int) error {
	ledger, err := n.legacyLedger(symbol)
	if err != nil {
		return err
	}
	return n.execute(ctx, "supervisor.convertLegacy", func() error {
		return ledger.TransferAndNotify(from, n.accounts.Supervisor, amount, 0)
	})
}

func (n *Node) legacyLedger(symbol string) (*token.Ledger, error) {
	ledger, ok := n.legacy[normalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return ledger, nil
}

// Rates.

func (n *Node) SetRate(ctx context.Context, caller crypto.Address, symbol string, rate *big.Int) error {
	return n.execute(ctx, "rates.set", func() error {
		return n.rates.SetRate(caller, symbol, rate)
	})
}

func (n *Node) SetMultipleRates(ctx context.Context, caller crypto.Address, symbols []string, values []*big.Int) error {
	return n.execute(ctx, "rates.setMultiple", func() error {
		return n.rates.SetMultipleRates(caller, symbols, values)
	})
}

// Loans.

func (n *Node) AddLoanProduct(ctx context.Context, caller crypto.Address, product loan.Product) (uint32, error) {
	var id uint32
	err := n.execute(ctx, "loan.addProduct", func() error {
		var err error
		id, err = n.loans.AddLoanProduct(caller, product)
		return err
	})
	return id, err
}

func (n *Node) SetLoanProductActiveState(ctx context.Context, caller crypto.Address, productID uint32, active bool) error {
	return n.execute(ctx, "loan.setProductActive", func() error {
		return n.loans.SetLoanProductActiveState(caller, productID, active)
	})
}

// NewEthBackedLoan locks collateralWei from borrower and disburses a loan.
func (n *Node) NewEthBackedLoan(ctx context.Context, borrower crypto.Address, productID uint32, collateralWei *big.Int) (uint64, error) {
	var id uint64
	err := n.execute(ctx, "loan.new", func() error {
		var err error
		id, err = n.loans.NewEthBackedLoan(borrower, productID, collateralWei)
		return err
	})
	return id, err
}

// RepayLoan pays the loan's full repayment amount through TransferAndNotify.
func (n *Node) RepayLoan(ctx context.Context, borrower crypto.Address, loanID uint64) error {
	return n.execute(ctx, "loan.repay", func() error {
		l, err := n.loans.Loan(loanID)
		if err != nil {
			return err
		}
		if l.State != loan.StateOpen {
			return loan.ErrLoanNotOpen
		}
		return n.token.TransferAndNotify(borrower, n.accounts.LoanManager, l.RepaymentAmount, loanID)
	})
}

// CollectLoans collects every eligible defaulted loan in loanIDs. Ineligible
// ids are skipped; the call fails only when nothing was collected.
func (n *Node) CollectLoans(ctx context.Context, loanIDs []uint64) ([]loan.CollectResult, error) {
	var results []loan.CollectResult
	err := n.execute(ctx, "loan.collect", func() error {
		var err error
		results, err = n.loans.Collect(loanIDs)
		return err
	})
	return results, err
}

// Exchange.

func (n *Node) NewOrder(ctx context.Context, maker crypto.Address, orderType exchange.OrderType, amount, price *big.Int) (uint64, error) {
	var id uint64
	err := n.execute(ctx, "exchange.newOrder", func() error {
		var err error
		id, err = n.exchange.NewOrder(maker, orderType, amount, price)
		return err
	})
	return id, err
}

func (n *Node) MatchOrders(ctx context.Context, buyID, sellID uint64) (*exchange.Fill, error) {
	var fill *exchange.Fill
	err := n.execute(ctx, "exchange.match", func() error {
		var err error
		fill, err = n.exchange.MatchOrders(buyID, sellID)
		return err
	})
	return fill, err
}

func (n *Node) MatchMultipleOrders(ctx context.Context, buyIDs, sellIDs []uint64) ([]*exchange.Fill, error) {
	var fills []*exchange.Fill
	err := n.execute(ctx, "exchange.matchMultiple", func() error {
		var err error
		fills, err = n.exchange.MatchMultipleOrders(buyIDs, sellIDs)
		return err
	})
	return fills, err
}

func (n *Node) CancelOrder(ctx context.Context, caller crypto.Address, orderID uint64) error {
	return n.execute(ctx, "exchange.cancel", func() error {
		return n.exchange.CancelOrder(caller, orderID)
	})
}

// Monetary supervisor.

func (n *Node) SetAcceptedLegacyAugmintToken(ctx context.Context, caller crypto.Address, symbol string, accepted bool) error {
	ledger, err := n.legacyLedger(symbol)
	if err != nil {
		return err
	}
	return n.execute(ctx, "supervisor.setAcceptedLegacy", func() error {
		return n.supervisor.SetAcceptedLegacyAugmintToken(caller, ledger.Address(), accepted)
	})
}

func (n *Node) SetLtdParams(ctx context.Context, caller crypto.Address, params supervisor.Params) error {
	return n.execute(ctx, "supervisor.setLtdParams", func() error {
		return n.supervisor.SetLtdParams(caller, params)
	})
}

func (n *Node) AdjustKPIs(ctx context.Context, caller crypto.Address, loanAdjustment, lockedAdjustment *big.Int) error {
	return n.execute(ctx, "supervisor.adjustKPIs", func() error {
		return n.supervisor.AdjustKPIs(caller, loanAdjustment, lockedAdjustment)
	})
}

func (n *Node) IssueToReserve(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "supervisor.issueToReserve", func() error {
		return n.supervisor.IssueToReserve(caller, amount)
	})
}

func (n *Node) BurnFromReserve(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "supervisor.burnFromReserve", func() error {
		return n.supervisor.BurnFromReserve(caller, amount)
	})
}

func (n *Node) WithdrawFromReserve(ctx context.Context, caller, to crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "supervisor.withdrawFromReserve", func() error {
		return n.supervisor.WithdrawFromReserve(caller, to, amount)
	})
}

// Locker.

func (n *Node) AddLockProduct(ctx context.Context, caller crypto.Address, product locker.LockProduct) (uint32, error) {
	var id uint32
	err := n.execute(ctx, "locker.addProduct", func() error {
		var err error
		id, err = n.locker.AddLockProduct(caller, product)
		return err
	})
	return id, err
}

func (n *Node) SetLockProductActiveState(ctx context.Context, caller crypto.Address, productID uint32, active bool) error {
	return n.execute(ctx, "locker.setProductActive", func() error {
		return n.locker.SetLockProductActiveState(caller, productID, active)
	})
}

// LockTokens deposits amount into lock product productID and returns the lock id.
func (n *Node) LockTokens(ctx context.Context, owner crypto.Address, productID uint32, amount *big.Int) (uint64, error) {
	var id uint64
	err := n.execute(ctx, "locker.lock", func() error {
		next, err := n.locker.LockCount()
		if err != nil {
			return err
		}
		if err := n.token.TransferAndNotify(owner, n.accounts.Locker, amount, uint64(productID)); err != nil {
			return err
		}
		id = next
		return nil
	})
	return id, err
}

func (n *Node) ReleaseFunds(ctx context.Context, lockID uint64) error {
	return n.execute(ctx, "locker.release", func() error {
		return n.locker.ReleaseFunds(lockID)
	})
}

// Administration.

// GrantPermission adds a permission label to addr. Requires StabilityBoard.
func (n *Node) GrantPermission(ctx context.Context, caller, addr crypto.Address, permission string) error {
	if !knownPermission(permission) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, permission)
	}
	return n.execute(ctx, "admin.grant", func() error {
		if err := nativecommon.RequirePermission(n.state, caller, nativecommon.PermStabilityBoard); err != nil {
			return err
		}
		return n.state.GrantPermission(addr, permission)
	})
}

func (n *Node) RevokePermission(ctx context.Context, caller, addr crypto.Address, permission string) error {
	if !knownPermission(permission) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, permission)
	}
	return n.execute(ctx, "admin.revoke", func() error {
		if err := nativecommon.RequirePermission(n.state, caller, nativecommon.PermStabilityBoard); err != nil {
			return err
		}
		return n.state.RevokePermission(addr, permission)
	})
}

// SetPaused toggles the pause switch of one module. Requires StabilityBoard.
func (n *Node) SetPaused(ctx context.Context, caller crypto.Address, module string, paused bool) error {
	if !knownModule(module) {
		return fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	return n.execute(ctx, "admin.pause", func() error {
		if err := nativecommon.RequirePermission(n.state, caller, nativecommon.PermStabilityBoard); err != nil {
			return err
		}
		return n.state.SetPaused(module, paused)
	})
}

func knownPermission(permission string) bool {
	for _, known := range nativecommon.KnownPermissions() {
		if known == permission {
			return true
		}
	}
	return false
}

func knownModule(module string) bool {
	switch module {
	case nativecommon.ModuleToken, nativecommon.ModuleExchange, nativecommon.ModuleLoan,
		nativecommon.ModuleSupervisor, nativecommon.ModuleRates, nativecommon.ModuleLocker:
		return true
	}
	return false
}

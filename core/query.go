package core

import (
	"math/big"
	"strings"

	"augmint/crypto"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/rates"
	"augmint/native/supervisor"
	"augmint/native/token"
)

// AccountView summarises one address across the native and token ledgers.
type AccountView struct {
	Address     crypto.Address
	Wei         *big.Int
	Balances    map[string]*big.Int
	Permissions []string
}

// SupervisorView reports the monetary KPIs and the legacy token whitelist.
type SupervisorView struct {
	Totals         supervisor.Totals
	Params         supervisor.Params
	MaxLoanAmount  *big.Int
	TotalSupply    *big.Int
	ReserveBalance *big.Int
	InterestEarned *big.Int
	LegacyTokens   map[string]bool
}

// TokenInfo describes the current token ledger.
type TokenInfo struct {
	Symbol       string
	Name         string
	PeggedSymbol string
	Decimals     uint8
	Address      crypto.Address
	TotalSupply  *big.Int
	Fees         token.FeeParams
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (n *Node) Account(addr crypto.Address) (*AccountView, error) {
	var out *AccountView
	err := n.view(func() error {
		account, err := n.state.GetAccount(addr)
		if err != nil {
			return err
		}
		view := &AccountView{
			Address:     addr,
			Wei:         new(big.Int).Set(account.BalanceWei),
			Balances:    make(map[string]*big.Int),
			Permissions: append([]string(nil), account.Permissions...),
		}
		for _, ledger := range append([]*token.Ledger{n.token}, n.legacyLedgers()...) {
			balance, err := ledger.BalanceOf(addr)
			if err != nil {
				return err
			}
			view.Balances[ledger.Symbol()] = balance
		}
		out = view
		return nil
	})
	return out, err
}

func (n *Node) TokenInfo() (*TokenInfo, error) {
	var out *TokenInfo
	err := n.view(func() error {
		supply, err := n.token.TotalSupply()
		if err != nil {
			return err
		}
		fees, err := n.token.TransferFees()
		if err != nil {
			return err
		}
		out = &TokenInfo{
			Symbol:       n.token.Symbol(),
			Name:         n.token.Name(),
			PeggedSymbol: n.token.PeggedSymbol(),
			Decimals:     n.token.Decimals(),
			Address:      n.token.Address(),
			TotalSupply:  supply,
			Fees:         fees,
		}
		return nil
	})
	return out, err
}

func (n *Node) BalanceOf(addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.token.BalanceOf(addr)
		return err
	})
	return out, err
}

func (n *Node) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.token.Allowance(owner, spender)
		return err
	})
	return out, err
}

func (n *Node) TransferFee(from, to crypto.Address, amount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.token.CalculateTransferFee(from, to, amount)
		return err
	})
	return out, err
}

func (n *Node) Rate(symbol string) (rates.Rate, error) {
	var out rates.Rate
	err := n.view(func() error {
		var err error
		out, err = n.rates.Rate(symbol)
		return err
	})
	return out, err
}

func (n *Node) Supervisor() (*SupervisorView, error) {
	var out *SupervisorView
	err := n.view(func() error {
		totals, err := n.supervisor.Totals()
		if err != nil {
			return err
		}
		params, err := n.supervisor.Params()
		if err != nil {
			return err
		}
		maxLoan, err := n.supervisor.MaxLoanAmount()
		if err != nil {
			return err
		}
		supply, err := n.token.TotalSupply()
		if err != nil {
			return err
		}
		reserve, err := n.token.BalanceOf(n.accounts.Reserve)
		if err != nil {
			return err
		}
		interest, err := n.token.BalanceOf(n.accounts.InterestEarned)
		if err != nil {
			return err
		}
		legacy := make(map[string]bool, len(n.legacy))
		for symbol, ledger := range n.legacy {
			legacy[symbol] = n.supervisor.IsAcceptedLegacyToken(ledger.Address())
		}
		out = &SupervisorView{
			Totals:         totals,
			Params:         params,
			MaxLoanAmount:  maxLoan,
			TotalSupply:    supply,
			ReserveBalance: reserve,
			InterestEarned: interest,
			LegacyTokens:   legacy,
		}
		return nil
	})
	return out, err
}

func (n *Node) LoanProducts() ([]*loan.Product, error) {
	var out []*loan.Product
	err := n.view(func() error {
		var err error
		out, err = n.loans.Products()
		return err
	})
	return out, err
}

func (n *Node) Loan(id uint64) (*loan.Loan, error) {
	var out *loan.Loan
	err := n.view(func() error {
		var err error
		out, err = n.loans.Loan(id)
		return err
	})
	return out, err
}

func (n *Node) LoansForAddress(addr crypto.Address) ([]*loan.Loan, error) {
	var out []*loan.Loan
	err := n.view(func() error {
		var err error
		out, err = n.loans.LoansForAddress(addr)
		return err
	})
	return out, err
}

// OpenMaturedLoans lists up to limit open loans whose maturity has passed.
func (n *Node) OpenMaturedLoans(limit int) ([]uint64, error) {
	var out []uint64
	err := n.view(func() error {
		var err error
		out, err = n.loans.OpenMaturedLoans(n.now(), limit)
		return err
	})
	return out, err
}

func (n *Node) Order(id uint64) (*exchange.Order, error) {
	var out *exchange.Order
	err := n.view(func() error {
		var err error
		out, err = n.exchange.Order(id)
		return err
	})
	return out, err
}

// OrderBook returns a page of each side of the book in matching priority.
func (n *Node) OrderBook(offset, limit int) (buys, sells []*exchange.Order, err error) {
	err = n.view(func() error {
		var err error
		if buys, err = n.exchange.BuyOrders(offset, limit); err != nil {
			return err
		}
		sells, err = n.exchange.SellOrders(offset, limit)
		return err
	})
	return buys, sells, err
}

func (n *Node) OrderCounts() (buyCount, sellCount int, err error) {
	err = n.view(func() error {
		var err error
		buyCount, sellCount, err = n.exchange.OrderCounts()
		return err
	})
	return buyCount, sellCount, err
}

func (n *Node) LockProducts() ([]*locker.LockProduct, error) {
	var out []*locker.LockProduct
	err := n.view(func() error {
		var err error
		out, err = n.locker.LockProducts()
		return err
	})
	return out, err
}

func (n *Node) Lock(id uint64) (*locker.Lock, error) {
	var out *locker.Lock
	err := n.view(func() error {
		var err error
		out, err = n.locker.Lock(id)
		return err
	})
	return out, err
}

func (n *Node) LocksForAddress(addr crypto.Address) ([]*locker.Lock, error) {
	var out []*locker.Lock
	err := n.view(func() error {
		var err error
		out, err = n.locker.LocksForAddress(addr)
		return err
	})
	return out, err
}

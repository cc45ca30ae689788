package core

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/core/genesis"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/storage"
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

type harness struct {
	node     *Node
	db       storage.Database
	sink     *recordingSink
	clock    *time.Time
	board    crypto.Address
	feeder   crypto.Address
	borrower crypto.Address
	seller   crypto.Address
}

func testOptions(clock *time.Time) Options {
	return Options{
		LegacyTokens: []TokenOptions{{Symbol: "AEURV1", Name: "Augmint Euro v1", PeggedSymbol: "EUR", Decimals: 4}},
		Now:          func() time.Time { return *clock },
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	clock := time.Unix(1700000000, 0).UTC()
	node, err := NewNode(db, testOptions(&clock))
	require.NoError(t, err)

	h := &harness{
		node:     node,
		db:       db,
		sink:     &recordingSink{},
		clock:    &clock,
		board:    crypto.ModuleAddress("board"),
		feeder:   crypto.ModuleAddress("feeder"),
		borrower: crypto.ModuleAddress("borrower"),
		seller:   crypto.ModuleAddress("seller"),
	}
	node.AddSink(h.sink)

	plan := &genesis.Plan{
		Roles: []genesis.RoleGrant{
			{Permission: nativecommon.PermStabilityBoard, Address: h.board},
			{Permission: nativecommon.PermMonetaryBoard, Address: h.board},
			{Permission: nativecommon.PermRatesFeeder, Address: h.feeder},
		},
		Wei: []genesis.Allocation{
			{Address: h.borrower, Amount: mustBig("1000000000000000000")},
			{Address: h.seller, Amount: mustBig("2000000000000000000")},
		},
		Tokens: map[string][]genesis.Allocation{
			"AEUR": {
				{Address: h.borrower, Amount: big.NewInt(500000)},
				{Address: h.seller, Amount: big.NewInt(10000000)},
				{Address: node.Accounts().InterestEarned, Amount: big.NewInt(100000)},
			},
			"AEURV1": {{Address: h.borrower, Amount: big.NewInt(1000)}},
		},
		Rates: []genesis.Rate{{Symbol: "EUR", Value: big.NewInt(10000000)}},
		LoanProducts: []loan.Product{{
			Term:               86400,
			DiscountRate:       854701,
			CollateralRatio:    550000,
			MinDisbursedAmount: big.NewInt(1000),
			DefaultingFeePt:    50000,
			Active:             true,
		}},
		LockProducts: []locker.LockProduct{{
			PerTermInterest:   8334,
			DurationInSecs:    30 * 86400,
			MinimumLockAmount: big.NewInt(1000),
			Active:            true,
		}},
		AcceptedLegacyTokens: []string{"AEURV1"},
	}
	require.NoError(t, node.ApplyGenesis(context.Background(), plan))
	return h
}

func (h *harness) balance(t *testing.T, addr crypto.Address) int64 {
	t.Helper()
	bal, err := h.node.BalanceOf(addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestGenesisAppliesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	applied, err := h.node.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)

	err = h.node.ApplyGenesis(ctx, &genesis.Plan{})
	require.ErrorIs(t, err, ErrGenesisApplied)

	admin, err := h.node.Account(h.node.Accounts().Genesis)
	require.NoError(t, err)
	require.Empty(t, admin.Permissions)

	products, err := h.node.LoanProducts()
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, int64(500000), h.balance(t, h.borrower))

	sup, err := h.node.Supervisor()
	require.NoError(t, err)
	require.True(t, sup.LegacyTokens["AEURV1"])
	require.Equal(t, int64(10600000), sup.TotalSupply.Int64())
	require.Zero(t, sup.Totals.TotalLoanAmount.Sign())
}

func TestLoanLifecycleThroughNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	collateral := mustBig("500000000000000000")

	loanID, err := h.node.NewEthBackedLoan(ctx, h.borrower, 0, collateral)
	require.NoError(t, err)
	require.Equal(t, uint64(0), loanID)
	require.Equal(t, int64(500000+2350400), h.balance(t, h.borrower))
	require.Contains(t, h.sink.types(), events.TypeNewLoan)

	sup, err := h.node.Supervisor()
	require.NoError(t, err)
	require.Equal(t, int64(2350400), sup.Totals.TotalLoanAmount.Int64())

	require.NoError(t, h.node.RepayLoan(ctx, h.borrower, loanID))
	require.Equal(t, int64(500000+2350400-2750000), h.balance(t, h.borrower))
	require.Contains(t, h.sink.types(), events.TypeLoanRepayed)

	l, err := h.node.Loan(loanID)
	require.NoError(t, err)
	require.Equal(t, loan.StateRepaid, l.State)

	account, err := h.node.Account(h.borrower)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", account.Wei.String())

	err = h.node.RepayLoan(ctx, h.borrower, loanID)
	require.ErrorIs(t, err, coreerrors.ErrInvalidState)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := h.node.Root()
	before := len(h.sink.types())

	_, err := h.node.NewEthBackedLoan(ctx, h.borrower, 7, mustBig("500000000000000000"))
	require.ErrorIs(t, err, loan.ErrProductNotFound)

	_, err = h.node.NewOrder(ctx, h.borrower, exchange.OrderSell, big.NewInt(100000000), big.NewInt(1000000))
	require.Error(t, err)

	require.Equal(t, root, h.node.Root())
	require.Len(t, h.sink.types(), before)
	require.Equal(t, int64(500000), h.balance(t, h.borrower))
}

func TestCancelledContextSkipsOperation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.node.Transfer(ctx, h.borrower, h.seller, big.NewInt(1000), "")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(500000), h.balance(t, h.borrower))
}

func TestExchangeMatchThroughNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	buyID, err := h.node.NewOrder(ctx, h.borrower, exchange.OrderBuy, mustBig("535367000000000000"), big.NewInt(11000000))
	require.NoError(t, err)
	sellID, err := h.node.NewOrder(ctx, h.seller, exchange.OrderSell, big.NewInt(9558237), big.NewInt(9000000))
	require.NoError(t, err)

	fill, err := h.node.MatchOrders(ctx, buyID, sellID)
	require.NoError(t, err)
	require.Equal(t, "5353670", fill.TokenAmount.String())

	buys, sells, err := h.node.OrderCounts()
	require.NoError(t, err)
	require.Equal(t, 0, buys)
	require.Equal(t, 1, sells)
	require.Contains(t, h.sink.types(), events.TypeOrderFill)
}

func TestLegacyConversionThroughNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.node.ConvertLegacyTokens(ctx, "aeurv1", h.borrower, big.NewInt(1000)))
	account, err := h.node.Account(h.borrower)
	require.NoError(t, err)
	require.Equal(t, int64(501000), account.Balances["AEUR"].Int64())
	require.Zero(t, account.Balances["AEURV1"].Sign())

	err = h.node.ConvertLegacyTokens(ctx, "AEURV9", h.borrower, big.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownToken)

	require.NoError(t, h.node.SetAcceptedLegacyAugmintToken(ctx, h.board, "AEURV1", false))
	sup, err := h.node.Supervisor()
	require.NoError(t, err)
	require.False(t, sup.LegacyTokens["AEURV1"])
}

func TestLockAndReleaseThroughNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lockID, err := h.node.LockTokens(ctx, h.seller, 0, big.NewInt(1000000))
	require.NoError(t, err)
	require.Equal(t, uint64(0), lockID)

	lock, err := h.node.Lock(lockID)
	require.NoError(t, err)
	require.Equal(t, int64(8334), lock.InterestEarned.Int64())
	require.Equal(t, int64(9000000), h.balance(t, h.seller))

	err = h.node.ReleaseFunds(ctx, lockID)
	require.ErrorIs(t, err, locker.ErrStillLocked)

	*h.clock = h.clock.Add(30*24*time.Hour + time.Second)
	require.NoError(t, h.node.ReleaseFunds(ctx, lockID))
	require.Equal(t, int64(10008334), h.balance(t, h.seller))

	sup, err := h.node.Supervisor()
	require.NoError(t, err)
	require.Zero(t, sup.Totals.TotalLockedAmount.Sign())
}

func TestAdministrationRequiresStabilityBoard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.node.SetPaused(ctx, h.borrower, nativecommon.ModuleExchange, true)
	require.ErrorIs(t, err, coreerrors.ErrPermissionDenied)
	require.ErrorIs(t, h.node.SetPaused(ctx, h.board, "bogus", true), ErrUnknownModule)

	require.NoError(t, h.node.SetPaused(ctx, h.board, nativecommon.ModuleExchange, true))
	_, err = h.node.NewOrder(ctx, h.seller, exchange.OrderSell, big.NewInt(1000), big.NewInt(9000000))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	require.NoError(t, h.node.GrantPermission(ctx, h.board, h.feeder, nativecommon.PermStabilityBoard))
	require.NoError(t, h.node.SetPaused(ctx, h.feeder, nativecommon.ModuleExchange, false))
	require.ErrorIs(t, h.node.GrantPermission(ctx, h.board, h.feeder, "Emperor"), ErrUnknownPermission)
}

func TestReopenResumesCommittedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.node.Transfer(ctx, h.seller, h.borrower, big.NewInt(100000), "rent"))
	root := h.node.Root()

	reopened, err := NewNode(h.db, testOptions(h.clock))
	require.NoError(t, err)
	require.Equal(t, root, reopened.Root())

	applied, err := reopened.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)
	bal, err := reopened.BalanceOf(h.borrower)
	require.NoError(t, err)
	require.Equal(t, int64(600000), bal.Int64())
}

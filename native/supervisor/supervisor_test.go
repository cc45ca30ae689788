package supervisor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/core/state"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/token"
	"augmint/storage"
	"augmint/storage/trie"
)

type fixture struct {
	sup         *Supervisor
	ledger      *token.Ledger
	legacy      *token.Ledger
	state       *state.Manager
	events      *events.Buffer
	self        crypto.Address
	loanManager crypto.Address
	locker      crypto.Address
	board       crypto.Address
	alice       crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)

	f := &fixture{
		state:       mgr,
		events:      events.NewBuffer(),
		self:        crypto.ModuleAddress("supervisor"),
		loanManager: crypto.ModuleAddress("loanmanager"),
		locker:      crypto.ModuleAddress("locker"),
		board:       crypto.ModuleAddress("board"),
		alice:       crypto.ModuleAddress("alice"),
	}
	for addr, perms := range map[crypto.Address][]string{
		f.self:        {nativecommon.PermMonetarySupervisor, nativecommon.PermNoFeeTransferContracts},
		f.loanManager: {nativecommon.PermLoanManager},
		f.locker:      {nativecommon.PermLocker},
		f.board:       {nativecommon.PermMonetaryBoard, nativecommon.PermStabilityBoard},
	} {
		for _, perm := range perms {
			require.NoError(t, mgr.GrantPermission(addr, perm))
		}
	}

	f.ledger = newLedger(t, mgr, f.events, "AEUR", "token/aeur")
	f.legacy = newLedger(t, mgr, f.events, "AEURV1", "token/aeurv1")

	f.sup = New(Config{
		Address:        f.self,
		Reserve:        crypto.ModuleAddress("reserve"),
		InterestEarned: crypto.ModuleAddress("interestearned"),
	}, f.ledger)
	f.sup.SetState(mgr)
	f.sup.SetEmitter(f.events)
	f.sup.RegisterLegacyToken(f.legacy)
	return f
}

func newLedger(t *testing.T, mgr *state.Manager, buf *events.Buffer, symbol, name string) *token.Ledger {
	t.Helper()
	addr := crypto.ModuleAddress(name)
	require.NoError(t, mgr.RegisterToken(symbol, symbol, 4, addr.Bytes()))
	l := token.NewLedger(token.Config{
		Symbol:       symbol,
		PeggedSymbol: "EUR",
		Decimals:     4,
		Address:      addr,
		FeeAccount:   crypto.ModuleAddress("feeaccount"),
	})
	l.SetState(mgr)
	l.SetEmitter(buf)
	return l
}

func balance(t *testing.T, l *token.Ledger, addr crypto.Address) int64 {
	t.Helper()
	bal, err := l.BalanceOf(addr)
	require.NoError(t, err)
	return bal.Int64()
}

func totals(t *testing.T, s *Supervisor) (int64, int64) {
	t.Helper()
	tot, err := s.Totals()
	require.NoError(t, err)
	return tot.TotalLoanAmount.Int64(), tot.TotalLockedAmount.Int64()
}

func TestIssueLoanRespectsLtdLimit(t *testing.T) {
	f := newFixture(t)

	room, err := f.sup.MaxLoanAmount()
	require.NoError(t, err)
	require.Equal(t, int64(50000000), room.Int64())

	require.NoError(t, f.sup.IssueLoan(f.loanManager, f.alice, big.NewInt(50000000)))
	require.Equal(t, int64(50000000), balance(t, f.ledger, f.alice))

	err = f.sup.IssueLoan(f.loanManager, f.alice, big.NewInt(1))
	require.ErrorIs(t, err, ErrLtdLimit)
	require.True(t, errors.Is(coreerrors.Kind(err), coreerrors.ErrInvariantViolation))

	room, err = f.sup.MaxLoanAmount()
	require.NoError(t, err)
	require.Zero(t, room.Sign())

	// Locking deposits opens room for further loans.
	require.NoError(t, f.sup.RequestInterest(f.locker, big.NewInt(100000000), nil))
	room, err = f.sup.MaxLoanAmount()
	require.NoError(t, err)
	require.Equal(t, int64(100000000), room.Int64())
	require.NoError(t, f.sup.IssueLoan(f.loanManager, f.alice, room))

	loan, locked := totals(t, f.sup)
	require.Equal(t, int64(150000000), loan)
	require.Equal(t, int64(100000000), locked)
}

func TestPrivilegedOperationsRequirePermission(t *testing.T) {
	f := newFixture(t)
	one := big.NewInt(1)

	for name, call := range map[string]func() error{
		"issueLoan":       func() error { return f.sup.IssueLoan(f.alice, f.alice, one) },
		"repayNotify":     func() error { return f.sup.LoanRepaymentNotification(f.locker, one) },
		"requestInterest": func() error { return f.sup.RequestInterest(f.loanManager, one, nil) },
		"releaseNotify":   func() error { return f.sup.ReleaseFundsNotification(f.alice, one) },
		"issueToReserve":  func() error { return f.sup.IssueToReserve(f.loanManager, one) },
		"setLtdParams":    func() error { return f.sup.SetLtdParams(f.alice, DefaultParams()) },
		"adjustKPIs":      func() error { return f.sup.AdjustKPIs(f.locker, one, nil) },
		"acceptLegacy":    func() error { return f.sup.SetAcceptedLegacyAugmintToken(f.alice, f.legacy.Address(), true) },
	} {
		err := call()
		require.ErrorIs(t, err, coreerrors.ErrPermissionDenied, name)
	}
}

func TestLoanNotificationsReduceTotals(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sup.IssueLoan(f.loanManager, f.alice, big.NewInt(30000)))
	require.NoError(t, f.sup.LoanRepaymentNotification(f.loanManager, big.NewInt(10000)))
	require.NoError(t, f.sup.LoanCollectionNotification(f.loanManager, big.NewInt(5000)))

	loan, _ := totals(t, f.sup)
	require.Equal(t, int64(15000), loan)

	err := f.sup.LoanCollectionNotification(f.loanManager, big.NewInt(15001))
	require.ErrorIs(t, err, ErrTotalsUnderflow)
}

func TestRequestInterestPaysFromInterestEarned(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Issue(f.self, f.sup.InterestEarned(), big.NewInt(1000)))

	require.NoError(t, f.sup.RequestInterest(f.locker, big.NewInt(10000), big.NewInt(150)))
	require.Equal(t, int64(150), balance(t, f.ledger, f.locker))
	require.Equal(t, int64(850), balance(t, f.ledger, f.sup.InterestEarned()))

	_, locked := totals(t, f.sup)
	require.Equal(t, int64(10000), locked)

	require.NoError(t, f.sup.ReleaseFundsNotification(f.locker, big.NewInt(10000)))
	_, locked = totals(t, f.sup)
	require.Zero(t, locked)

	err := f.sup.RequestInterest(f.locker, big.NewInt(10000), big.NewInt(5000))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
}

func TestReserveOperations(t *testing.T) {
	f := newFixture(t)
	reserve := f.sup.Reserve()

	require.NoError(t, f.sup.IssueToReserve(f.board, big.NewInt(1000)))
	require.NoError(t, f.sup.WithdrawFromReserve(f.board, f.alice, big.NewInt(300)))
	require.NoError(t, f.sup.BurnFromReserve(f.board, big.NewInt(200)))

	require.Equal(t, int64(500), balance(t, f.ledger, reserve))
	require.Equal(t, int64(300), balance(t, f.ledger, f.alice))
	supply, err := f.ledger.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, int64(800), supply.Int64())

	err = f.sup.BurnFromReserve(f.board, big.NewInt(501))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
}

func TestLegacyConversion(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.legacy.Issue(f.self, f.alice, big.NewInt(1000)))
	f.events.Drain()

	err := f.legacy.TransferAndNotify(f.alice, f.self, big.NewInt(400), 0)
	require.ErrorIs(t, err, ErrLegacyNotAccepted)
	require.Equal(t, int64(1000), balance(t, f.legacy, f.alice))
	require.Empty(t, f.events.Drain())

	require.NoError(t, f.sup.SetAcceptedLegacyAugmintToken(f.board, f.legacy.Address(), true))
	require.True(t, f.sup.IsAcceptedLegacyToken(f.legacy.Address()))
	f.events.Drain()

	require.NoError(t, f.legacy.TransferAndNotify(f.alice, f.self, big.NewInt(400), 0))
	require.Equal(t, int64(600), balance(t, f.legacy, f.alice))
	require.Zero(t, balance(t, f.legacy, f.self))
	require.Equal(t, int64(400), balance(t, f.ledger, f.alice))

	legacySupply, err := f.legacy.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, int64(600), legacySupply.Int64())

	evts := f.events.Drain()
	require.NotEmpty(t, evts)
	last, ok := evts[len(evts)-1].(events.LegacyTokenConverted)
	require.True(t, ok)
	require.True(t, last.Account.Equal(f.alice))
	require.Equal(t, int64(400), last.Amount.Int64())

	require.NoError(t, f.sup.SetAcceptedLegacyAugmintToken(f.board, f.legacy.Address(), false))
	require.False(t, f.sup.IsAcceptedLegacyToken(f.legacy.Address()))
}

func TestSetLtdParamsAndAdjustKPIs(t *testing.T) {
	f := newFixture(t)
	params := Params{LtdLockDifferenceLimit: 300000, LtdLoanDifferenceLimit: 100000, AllowedLtdDifferenceAmount: big.NewInt(1000)}
	require.NoError(t, f.sup.SetLtdParams(f.board, params))

	got, err := f.sup.Params()
	require.NoError(t, err)
	require.Equal(t, uint64(100000), got.LtdLoanDifferenceLimit)
	require.Equal(t, int64(1000), got.AllowedLtdDifferenceAmount.Int64())

	require.NoError(t, f.sup.AdjustKPIs(f.board, big.NewInt(500), big.NewInt(20000)))
	loan, locked := totals(t, f.sup)
	require.Equal(t, int64(500), loan)
	require.Equal(t, int64(20000), locked)

	// bound = max(1000, 20000*10%) = 2000, so loans may reach 22000.
	room, err := f.sup.MaxLoanAmount()
	require.NoError(t, err)
	require.Equal(t, int64(21500), room.Int64())

	require.ErrorIs(t, f.sup.AdjustKPIs(f.board, big.NewInt(-501), nil), ErrTotalsUnderflow)

	evts := f.events.Drain()
	require.Len(t, evts, 2)
	require.Equal(t, events.TypeLtdParamsChanged, evts[0].EventType())
	require.Equal(t, events.TypeKPIsAdjusted, evts[1].EventType())
}

func TestPausedSupervisorRejectsCalls(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.SetPaused(nativecommon.ModuleSupervisor, true))
	f.sup.SetPauses(f.state)
	require.ErrorIs(t, f.sup.IssueToReserve(f.board, big.NewInt(1)), nativecommon.ErrModulePaused)
}

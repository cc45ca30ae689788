package collector

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"augmint/core"
	"augmint/core/genesis"
	"augmint/crypto"
	"augmint/native/loan"
	"augmint/storage"
)

func newNode(t *testing.T, clock *time.Time) (*core.Node, crypto.Address) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{Now: func() time.Time { return *clock }})
	require.NoError(t, err)

	borrower := crypto.ModuleAddress("collector-borrower")
	wei, _ := new(big.Int).SetString("2000000000000000000", 10)
	require.NoError(t, node.ApplyGenesis(context.Background(), &genesis.Plan{
		Wei:   []genesis.Allocation{{Address: borrower, Amount: wei}},
		Rates: []genesis.Rate{{Symbol: "EUR", Value: big.NewInt(10000000)}},
		LoanProducts: []loan.Product{{
			Term:               86400,
			DiscountRate:       854701,
			CollateralRatio:    550000,
			MinDisbursedAmount: big.NewInt(1000),
			DefaultingFeePt:    50000,
			Active:             true,
		}},
	}))
	return node, borrower
}

func TestRunOnceCollectsMaturedLoans(t *testing.T) {
	clock := time.Unix(1700000000, 0).UTC()
	node, borrower := newNode(t, &clock)
	ctx := context.Background()
	collateral, _ := new(big.Int).SetString("500000000000000000", 10)
	for i := 0; i < 3; i++ {
		_, err := node.NewEthBackedLoan(ctx, borrower, 0, collateral)
		require.NoError(t, err)
	}

	svc, err := New(Config{Schedule: "@every 1m", BatchSize: 2}, node, nil)
	require.NoError(t, err)

	ids, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	clock = clock.Add(86400*time.Second + time.Second)
	ids, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)

	ids, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, ids)

	l, err := node.Loan(2)
	require.NoError(t, err)
	require.Equal(t, loan.StateDefaulted, l.State)
}

type failingNode struct{}

func (failingNode) OpenMaturedLoans(int) ([]uint64, error) { return []uint64{7}, nil }

func (failingNode) CollectLoans(context.Context, []uint64) ([]loan.CollectResult, error) {
	return nil, loan.ErrLoanNotFound
}

func TestRunOnceReportsFailures(t *testing.T) {
	svc, err := New(Config{Schedule: "@every 1m", BatchSize: 10}, failingNode{}, nil)
	require.NoError(t, err)
	_, err = svc.RunOnce(context.Background())
	require.True(t, errors.Is(err, loan.ErrLoanNotFound))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Schedule: "@every 1m"}, failingNode{}, nil)
	require.Error(t, err)
	_, err = New(Config{Schedule: "whenever", BatchSize: 1}, failingNode{}, nil)
	require.Error(t, err)
	_, err = New(Config{Schedule: "@every 1m", BatchSize: 1}, nil, nil)
	require.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	svc, err := New(Config{Schedule: "@every 1h", BatchSize: 1}, failingNode{}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}

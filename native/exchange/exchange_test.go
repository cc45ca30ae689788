package exchange

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"augmint/core/events"
	"augmint/core/state"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/token"
	"augmint/storage"
	"augmint/storage/trie"
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

type fixture struct {
	ex     *Exchange
	ledger *token.Ledger
	state  *state.Manager
	events *events.Buffer
	minter crypto.Address
	buyer  crypto.Address
	seller crypto.Address
}

func newFixture(t *testing.T, rule PricingRule) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	st := state.NewManager(tr)

	f := &fixture{
		state:  st,
		events: events.NewBuffer(),
		minter: crypto.ModuleAddress("supervisor"),
		buyer:  crypto.ModuleAddress("buyer"),
		seller: crypto.ModuleAddress("seller"),
	}
	exAddr := crypto.ModuleAddress("exchange")
	require.NoError(t, st.GrantPermission(f.minter, nativecommon.PermMonetarySupervisor))
	require.NoError(t, st.GrantPermission(exAddr, nativecommon.PermNoFeeTransferContracts))

	tokenAddr := crypto.ModuleAddress("token/aeur")
	require.NoError(t, st.RegisterToken("AEUR", "Augmint Euro", 4, tokenAddr.Bytes()))
	f.ledger = token.NewLedger(token.Config{Symbol: "AEUR", PeggedSymbol: "EUR", Decimals: 4, Address: tokenAddr, FeeAccount: crypto.ModuleAddress("feeaccount")})
	f.ledger.SetState(st)
	f.ledger.SetEmitter(f.events)

	f.ex = New(Config{Address: exAddr, Pricing: rule}, f.ledger)
	f.ex.SetState(st)
	f.ex.SetEmitter(f.events)

	require.NoError(t, st.SetWeiBalance(f.buyer, mustBig("10000000000000000000")))
	require.NoError(t, f.ledger.Issue(f.minter, f.seller, big.NewInt(100000000)))
	f.events.Drain()
	return f
}

func (f *fixture) buy(t *testing.T, wei string, price int64) uint64 {
	t.Helper()
	id, err := f.ex.NewOrder(f.buyer, OrderBuy, mustBig(wei), big.NewInt(price))
	require.NoError(t, err)
	return id
}

func (f *fixture) sell(t *testing.T, tokens, price int64) uint64 {
	t.Helper()
	id, err := f.ex.NewOrder(f.seller, OrderSell, big.NewInt(tokens), big.NewInt(price))
	require.NoError(t, err)
	return id
}

func (f *fixture) counts(t *testing.T) (int, int) {
	t.Helper()
	buys, sells, err := f.ex.OrderCounts()
	require.NoError(t, err)
	return buys, sells
}

func TestMatchFillsBuySide(t *testing.T) {
	f := newFixture(t, PriceSell)
	buyID := f.buy(t, "535367000000000000", 11000000)
	sellID := f.sell(t, 9558237, 9000000)

	fill, err := f.ex.MatchOrders(buyID, sellID)
	require.NoError(t, err)
	require.Equal(t, int64(9000000), fill.Price.Int64())
	require.Equal(t, int64(4818303), fill.TokenAmount.Int64())
	require.Equal(t, 0, fill.WeiAmount.Cmp(mustBig("535367000000000000")))

	buys, sells := f.counts(t)
	require.Equal(t, 0, buys)
	require.Equal(t, 1, sells)

	rest, err := f.ex.Order(sellID)
	require.NoError(t, err)
	require.Equal(t, int64(9558237-4818303), rest.Amount.Int64())

	bal, err := f.ledger.BalanceOf(f.buyer)
	require.NoError(t, err)
	require.Equal(t, int64(4818303), bal.Int64())
	wei, err := f.state.WeiBalance(f.seller)
	require.NoError(t, err)
	require.Equal(t, 0, wei.Cmp(mustBig("535367000000000000")))
}

func TestMatchFillsSellSide(t *testing.T) {
	f := newFixture(t, PriceSell)
	buyID := f.buy(t, "1750401000000000000", 11000000)
	sellID := f.sell(t, 5614113, 9000000)

	fill, err := f.ex.MatchOrders(buyID, sellID)
	require.NoError(t, err)
	require.Equal(t, int64(5614113), fill.TokenAmount.Int64())
	// 5614113 / 9000000 ETH, rounded half up to the wei.
	require.Equal(t, 0, fill.WeiAmount.Cmp(mustBig("623790333333333333")))

	buys, sells := f.counts(t)
	require.Equal(t, 1, buys)
	require.Equal(t, 0, sells)

	rest, err := f.ex.Order(buyID)
	require.NoError(t, err)
	require.Equal(t, 0, rest.Amount.Cmp(mustBig("1126610666666666667")))
}

func TestMatchOrdersFromSameAccount(t *testing.T) {
	f := newFixture(t, PriceMidpoint)
	require.NoError(t, f.state.SetWeiBalance(f.seller, mustBig("1000000000000000000")))

	buyID, err := f.ex.NewOrder(f.seller, OrderBuy, mustBig("1000000000000000000"), big.NewInt(11000000))
	require.NoError(t, err)
	sellID, err := f.ex.NewOrder(f.seller, OrderSell, big.NewInt(10000000), big.NewInt(9000000))
	require.NoError(t, err)

	fill, err := f.ex.MatchOrders(buyID, sellID)
	require.NoError(t, err)
	require.True(t, fill.Buyer.Equal(fill.Seller))
	require.Equal(t, int64(10000000), fill.TokenAmount.Int64())

	buys, sells := f.counts(t)
	require.Zero(t, buys)
	require.Zero(t, sells)

	bal, err := f.ledger.BalanceOf(f.seller)
	require.NoError(t, err)
	require.Equal(t, int64(100000000), bal.Int64())
	wei, err := f.state.WeiBalance(f.seller)
	require.NoError(t, err)
	require.Equal(t, 0, wei.Cmp(mustBig("1000000000000000000")))

	bal, err = f.ledger.BalanceOf(f.ex.Address())
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
	wei, err = f.state.WeiBalance(f.ex.Address())
	require.NoError(t, err)
	require.Zero(t, wei.Sign())
}

func TestMatchRejectsNonCrossingPrices(t *testing.T) {
	f := newFixture(t, PriceSell)
	buyID := f.buy(t, "1000000000000000000", 11000)
	sellID := f.sell(t, 1000, 11500)
	f.events.Drain()
	root := f.state.Root()

	_, err := f.ex.MatchOrders(buyID, sellID)
	require.ErrorIs(t, err, ErrNoCross)
	require.Equal(t, root, f.state.Root())
	require.Empty(t, f.events.Drain())

	buy, err := f.ex.Order(buyID)
	require.NoError(t, err)
	require.Equal(t, 0, buy.Amount.Cmp(mustBig("1000000000000000000")))

	_, err = f.ex.MatchOrders(sellID, buyID)
	require.ErrorIs(t, err, ErrWrongSide)
	_, err = f.ex.MatchOrders(buyID, 99)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMidpointPricingFillsBothSides(t *testing.T) {
	f := newFixture(t, PriceMidpoint)
	buyID := f.buy(t, "1000000000000000000", 11000000)
	sellID := f.sell(t, 10000000, 9000000)

	fill, err := f.ex.MatchOrders(buyID, sellID)
	require.NoError(t, err)
	require.Equal(t, int64(10000000), fill.Price.Int64())
	require.Equal(t, int64(10000000), fill.TokenAmount.Int64())

	buys, sells := f.counts(t)
	require.Zero(t, buys)
	require.Zero(t, sells)

	evts := f.events.Drain()
	fillEvt, ok := evts[len(evts)-1].(events.OrderFill)
	require.True(t, ok)
	require.Equal(t, buyID, fillEvt.BuyOrderID)
	require.Equal(t, sellID, fillEvt.SellOrderID)
}

func TestDefaultPricingMatchCases(t *testing.T) {
	rule, err := ParsePricingRule("")
	require.NoError(t, err)
	require.Equal(t, PriceMidpoint, rule)

	cases := []struct {
		name       string
		buyWei     string
		sellTokens int64
		tokens     int64
		buys       int
		sells      int
	}{
		{"both filled", "1000000000000000000", 10000000, 10000000, 0, 0},
		{"buy filled", "535367000000000000", 9558237, 5353670, 0, 1},
		{"sell filled", "1750401000000000000", 5614113, 5614113, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var zero PricingRule
			f := newFixture(t, zero)
			buyID := f.buy(t, tc.buyWei, 11000000)
			sellID := f.sell(t, tc.sellTokens, 9000000)

			fill, err := f.ex.MatchOrders(buyID, sellID)
			require.NoError(t, err)
			require.Equal(t, int64(10000000), fill.Price.Int64())
			require.Equal(t, tc.tokens, fill.TokenAmount.Int64())

			buys, sells := f.counts(t)
			require.Equal(t, tc.buys, buys)
			require.Equal(t, tc.sells, sells)
		})
	}
}

func TestMatchMultipleOrdersStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, PriceSell)
	b1 := f.buy(t, "100000000000000000", 10000000)
	b2 := f.buy(t, "100000000000000000", 8000000)
	s1 := f.sell(t, 1000000, 9000000)
	s2 := f.sell(t, 1000000, 9000000)

	fills, err := f.ex.MatchMultipleOrders([]uint64{b1, b2}, []uint64{s1, s2})
	require.NoError(t, err)
	require.Len(t, fills, 1)

	_, err = f.ex.MatchMultipleOrders([]uint64{b2}, []uint64{s2})
	require.ErrorIs(t, err, ErrNothingMatched)

	_, err = f.ex.MatchMultipleOrders([]uint64{b2}, nil)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestMatchMultipleOrdersHonoursBudget(t *testing.T) {
	f := newFixture(t, PriceSell)
	f.ex.cfg.MatchBudget = 1
	b1 := f.buy(t, "100000000000000000", 10000000)
	b2 := f.buy(t, "100000000000000000", 10000000)
	s1 := f.sell(t, 1000, 9000000)
	s2 := f.sell(t, 1000, 9000000)

	fills, err := f.ex.MatchMultipleOrders([]uint64{b1, b2}, []uint64{s1, s2})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	_, err = f.ex.Order(s2)
	require.NoError(t, err)
}

func TestCancelOrderRefundsMaker(t *testing.T) {
	f := newFixture(t, PriceSell)
	sellID := f.sell(t, 5000, 9000000)
	buyID := f.buy(t, "2000000000000000000", 9000000)

	require.ErrorIs(t, f.ex.CancelOrder(f.buyer, sellID), ErrNotMaker)

	require.NoError(t, f.ex.CancelOrder(f.seller, sellID))
	bal, err := f.ledger.BalanceOf(f.seller)
	require.NoError(t, err)
	require.Equal(t, int64(100000000), bal.Int64())

	require.NoError(t, f.ex.CancelOrder(f.buyer, buyID))
	wei, err := f.state.WeiBalance(f.buyer)
	require.NoError(t, err)
	require.Equal(t, 0, wei.Cmp(mustBig("10000000000000000000")))

	_, err = f.ex.Order(sellID)
	require.ErrorIs(t, err, ErrOrderNotFound)
	buys, sells := f.counts(t)
	require.Zero(t, buys+sells)
}

func TestNewOrderValidation(t *testing.T) {
	f := newFixture(t, PriceSell)
	_, err := f.ex.NewOrder(f.buyer, OrderBuy, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, ErrZeroAmount)
	_, err = f.ex.NewOrder(f.buyer, OrderBuy, big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrZeroPrice)
	_, err = f.ex.NewOrder(f.buyer, OrderBuy, mustBig("20000000000000000000"), big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrInsufficientWei)
	_, err = f.ex.NewOrder(f.seller, OrderSell, big.NewInt(100000001), big.NewInt(1))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	buys, sells := f.counts(t)
	require.Zero(t, buys+sells)
}

func TestBookViewsUsePriceTimePriority(t *testing.T) {
	f := newFixture(t, PriceSell)
	b0 := f.buy(t, "1000", 300)
	b1 := f.buy(t, "1000", 100)
	b2 := f.buy(t, "1000", 300)
	b3 := f.buy(t, "1000", 200)
	s0 := f.sell(t, 10, 500)
	s1 := f.sell(t, 10, 400)

	buys, err := f.ex.BuyOrders(0, 0)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(buys))
	for _, o := range buys {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []uint64{b0, b2, b3, b1}, ids)

	page, err := f.ex.BuyOrders(1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, b2, page[0].ID)

	sells, err := f.ex.SellOrders(0, 10)
	require.NoError(t, err)
	require.Equal(t, s1, sells[0].ID)
	require.Equal(t, s0, sells[1].ID)
}

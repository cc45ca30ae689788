package rates

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/core/state"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/storage"
	"augmint/storage/trie"
)

func newTestOracle(t *testing.T) (*Oracle, *state.Manager, *events.Buffer, crypto.Address) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	feeder := crypto.ModuleAddress("ratesfeeder")
	require.NoError(t, mgr.GrantPermission(feeder, nativecommon.PermRatesFeeder))

	buf := events.NewBuffer()
	oracle := NewOracle()
	oracle.SetState(mgr)
	oracle.SetEmitter(buf)
	return oracle, mgr, buf, feeder
}

func mustBig(t *testing.T, v string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(v, 10)
	require.True(t, ok)
	return out
}

func TestSetMultipleRatesEmitsPerSymbol(t *testing.T) {
	oracle, _, buf, feeder := newTestOracle(t)
	now := time.Unix(1_700_000_000, 0)
	oracle.SetNowFunc(func() time.Time { return now })

	require.NoError(t, oracle.SetMultipleRates(feeder, []string{"eur", "usd"}, []*big.Int{big.NewInt(99800), big.NewInt(117000)}))
	evts := buf.Drain()
	require.Len(t, evts, 2)
	require.Equal(t, "EUR", evts[0].(events.RateChanged).Symbol)
	require.Equal(t, int64(117000), evts[1].(events.RateChanged).NewRate.Int64())

	rate, err := oracle.Rate("EUR")
	require.NoError(t, err)
	require.Equal(t, int64(99800), rate.Rate.Int64())
	require.Equal(t, now.Unix(), rate.LastUpdated.Unix())

	require.ErrorIs(t, oracle.SetMultipleRates(feeder, []string{"eur"}, nil), ErrLengthMismatch)
	require.ErrorIs(t, oracle.SetRate(crypto.ModuleAddress("intruder"), "eur", big.NewInt(1)), coreerrors.ErrPermissionDenied)
}

func TestConversionsRoundHalfUp(t *testing.T) {
	oracle, _, _, feeder := newTestOracle(t)
	require.NoError(t, oracle.SetRate(feeder, "EUR", big.NewInt(99800)))

	tokens, err := oracle.ConvertFromWei("EUR", mustBig(t, "1000000000000000000"))
	require.NoError(t, err)
	require.Equal(t, int64(99800), tokens.Int64())

	wei, err := oracle.ConvertToWei("EUR", big.NewInt(99800))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", wei.String())

	require.NoError(t, oracle.SetRate(feeder, "XAU", big.NewInt(3)))
	wei, err = oracle.ConvertToWei("XAU", big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "333333333333333333", wei.String())
	wei, err = oracle.ConvertToWei("XAU", big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, "666666666666666667", wei.String())
}

func TestConversionFailures(t *testing.T) {
	oracle, _, _, feeder := newTestOracle(t)
	_, err := oracle.ConvertFromWei("EUR", big.NewInt(1))
	require.ErrorIs(t, err, ErrRateNotSet)

	require.NoError(t, oracle.SetRate(feeder, "EUR", big.NewInt(0)))
	_, err = oracle.ConvertToWei("EUR", big.NewInt(1))
	require.ErrorIs(t, err, ErrZeroRate)

	start := time.Unix(1_700_000_000, 0)
	now := start
	oracle.SetNowFunc(func() time.Time { return now })
	oracle.SetMaxAge(time.Hour)
	require.NoError(t, oracle.SetRate(feeder, "EUR", big.NewInt(99800)))
	now = start.Add(2 * time.Hour)
	_, err = oracle.ConvertFromWei("EUR", big.NewInt(1))
	require.ErrorIs(t, err, ErrRateStale)
}

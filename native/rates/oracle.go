package rates

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
)

var (
	ErrRateNotSet     = coreerrors.New(coreerrors.ErrInvalidState, "rates: rate not set")
	ErrZeroRate       = coreerrors.New(coreerrors.ErrArithmeticBounds, "rates: rate must be positive")
	ErrRateStale      = coreerrors.New(coreerrors.ErrInvalidState, "rates: rate is stale")
	ErrLengthMismatch = coreerrors.New(coreerrors.ErrArithmeticBounds, "rates: symbols and rates length mismatch")
	ErrEmptySymbol    = coreerrors.New(coreerrors.ErrInvalidState, "rates: symbol must not be empty")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasPermission(addr crypto.Address, permission string) bool
}

// Rate is the price of 1 ETH expressed in the smallest unit of the pegged token.
type Rate struct {
	Symbol      string
	Rate        *big.Int
	LastUpdated time.Time
}

type rateRecord struct {
	Rate        *big.Int
	LastUpdated uint64
}

// Oracle stores the rates pushed by feeders and converts between wei and token units.
type Oracle struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() time.Time
	maxAge  time.Duration
}

func NewOracle() *Oracle {
	return &Oracle{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

func (o *Oracle) SetState(state engineState) { o.state = state }

func (o *Oracle) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		o.emitter = events.NoopEmitter{}
		return
	}
	o.emitter = emitter
}

func (o *Oracle) SetPauses(p nativecommon.PauseView) { o.pauses = p }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (o *Oracle) SetNowFunc(now func() time.Time) {
	if now == nil {
		o.nowFn = time.Now
		return
	}
	o.nowFn = now
}

// SetMaxAge bounds how old a rate may be when used for conversion. Zero disables the check.
func (o *Oracle) SetMaxAge(maxAge time.Duration) { o.maxAge = maxAge }

func rateKey(symbol string) []byte {
	return []byte("rates/" + symbol)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetRate records a single rate. Requires RatesFeeder.
func (o *Oracle) SetRate(caller crypto.Address, symbol string, rate *big.Int) error {
	return o.SetMultipleRates(caller, []string{symbol}, []*big.Int{rate})
}

// SetMultipleRates records rates pairwise and emits RateChanged per symbol.
// A zero rate is accepted and disables conversions for that symbol.
func (o *Oracle) SetMultipleRates(caller crypto.Address, symbols []string, rates []*big.Int) error {
	if o.state == nil {
		return fmt.Errorf("rates: state not configured")
	}
	if err := nativecommon.Guard(o.pauses, nativecommon.ModuleRates); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(o.state, caller, nativecommon.PermRatesFeeder); err != nil {
		return err
	}
	if len(symbols) != len(rates) {
		return ErrLengthMismatch
	}
	now := o.nowFn().UTC()
	for i, raw := range symbols {
		symbol := normalizeSymbol(raw)
		if symbol == "" {
			return ErrEmptySymbol
		}
		rate := nativecommon.CopyOrZero(rates[i])
		if rate.Sign() < 0 {
			return ErrZeroRate
		}
		rec := rateRecord{Rate: rate, LastUpdated: uint64(now.Unix())}
		if err := o.state.KVPut(rateKey(symbol), rec); err != nil {
			return err
		}
		o.emitter.Emit(events.RateChanged{Symbol: symbol, NewRate: new(big.Int).Set(rate)})
	}
	return nil
}

// Rate returns the stored rate for symbol.
func (o *Oracle) Rate(symbol string) (Rate, error) {
	if o.state == nil {
		return Rate{}, fmt.Errorf("rates: state not configured")
	}
	normalized := normalizeSymbol(symbol)
	var rec rateRecord
	ok, err := o.state.KVGet(rateKey(normalized), &rec)
	if err != nil {
		return Rate{}, err
	}
	if !ok {
		return Rate{}, fmt.Errorf("%w: %s", ErrRateNotSet, normalized)
	}
	return Rate{
		Symbol:      normalized,
		Rate:        nativecommon.CopyOrZero(rec.Rate),
		LastUpdated: time.Unix(int64(rec.LastUpdated), 0).UTC(),
	}, nil
}

func (o *Oracle) usableRate(symbol string) (*big.Int, error) {
	rate, err := o.Rate(symbol)
	if err != nil {
		return nil, err
	}
	if rate.Rate.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroRate, rate.Symbol)
	}
	if o.maxAge > 0 && o.nowFn().Sub(rate.LastUpdated) > o.maxAge {
		return nil, fmt.Errorf("%w: %s updated %s", ErrRateStale, rate.Symbol, rate.LastUpdated.Format(time.RFC3339))
	}
	return rate.Rate, nil
}

// ConvertFromWei returns roundHalfUp(wei * rate / 1e18).
func (o *Oracle) ConvertFromWei(symbol string, wei *big.Int) (*big.Int, error) {
	rate, err := o.usableRate(symbol)
	if err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(wei, rate, nativecommon.WeiPerEther(), nativecommon.RoundHalfUp)
}

// ConvertToWei returns roundHalfUp(value * 1e18 / rate).
func (o *Oracle) ConvertToWei(symbol string, value *big.Int) (*big.Int, error) {
	rate, err := o.usableRate(symbol)
	if err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(value, nativecommon.WeiPerEther(), rate, nativecommon.RoundHalfUp)
}

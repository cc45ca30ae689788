package exchange

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"time"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
)

var (
	ErrZeroAmount     = coreerrors.New(coreerrors.ErrArithmeticBounds, "exchange: amount must be positive")
	ErrZeroPrice      = coreerrors.New(coreerrors.ErrArithmeticBounds, "exchange: price must be positive")
	ErrOrderNotFound  = coreerrors.New(coreerrors.ErrInvalidState, "exchange: order not found")
	ErrWrongSide      = coreerrors.New(coreerrors.ErrInvalidState, "exchange: order is on the wrong side")
	ErrNoCross        = coreerrors.New(coreerrors.ErrArithmeticBounds, "exchange: buy price below sell price")
	ErrZeroFill       = coreerrors.New(coreerrors.ErrArithmeticBounds, "exchange: match would trade nothing")
	ErrNotMaker       = coreerrors.New(coreerrors.ErrPermissionDenied, "exchange: only the maker can cancel")
	ErrLengthMismatch = coreerrors.New(coreerrors.ErrArithmeticBounds, "exchange: buy and sell id lists differ in length")
	ErrNothingMatched = coreerrors.New(coreerrors.ErrInvalidState, "exchange: no orders matched")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	WeiBalance(addr crypto.Address) (*big.Int, error)
	SetWeiBalance(addr crypto.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

type tokenLedger interface {
	TransferNoFee(caller, from, to crypto.Address, amount *big.Int, narrative string) error
}

var (
	orderCountKey = []byte("exchange/orders/count")
	buyBookKey    = []byte("exchange/book/buy")
	sellBookKey   = []byte("exchange/book/sell")
)

func orderKey(id uint64) []byte {
	return append([]byte("exchange/orders/"), encodeID(id)...)
}

func bookKey(t OrderType) []byte {
	if t == OrderBuy {
		return buyBookKey
	}
	return sellBookKey
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// Exchange is an order book trading the token against native ETH.
type Exchange struct {
	cfg     Config
	token   tokenLedger
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() time.Time
}

func New(cfg Config, ledger tokenLedger) *Exchange {
	return &Exchange{cfg: cfg, token: ledger, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

func (e *Exchange) SetState(state engineState) { e.state = state }

func (e *Exchange) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Exchange) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Exchange) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Exchange) Address() crypto.Address { return e.cfg.Address }

func (e *Exchange) Pricing() PricingRule { return e.cfg.Pricing }

func (e *Exchange) guard() error {
	if e.state == nil || e.token == nil {
		return fmt.Errorf("exchange: not configured")
	}
	return nativecommon.Guard(e.pauses, nativecommon.ModuleExchange)
}

// NewOrder places an order and locks its funds in the exchange account: wei for
// BUY orders, tokens for SELL orders.
func (e *Exchange) NewOrder(maker crypto.Address, orderType OrderType, amount, price *big.Int) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	if price == nil || price.Sign() <= 0 {
		return 0, ErrZeroPrice
	}
	if orderType != OrderBuy && orderType != OrderSell {
		return 0, ErrWrongSide
	}
	var id uint64
	err := e.atomic(func() error {
		if orderType == OrderBuy {
			if err := nativecommon.MoveWei(e.state, maker, e.cfg.Address, amount); err != nil {
				return err
			}
		} else {
			if err := e.token.TransferNoFee(e.cfg.Address, maker, e.cfg.Address, amount, "sell order"); err != nil {
				return err
			}
		}
		var count uint64
		if _, err := e.state.KVGet(orderCountKey, &count); err != nil {
			return err
		}
		order := &Order{
			ID:        count,
			Maker:     maker,
			Type:      orderType,
			Amount:    new(big.Int).Set(amount),
			Price:     new(big.Int).Set(price),
			AddedTime: e.nowFn().UTC(),
		}
		if err := e.putOrder(order); err != nil {
			return err
		}
		if err := e.state.KVPut(orderCountKey, count+1); err != nil {
			return err
		}
		if err := e.state.KVAppend(bookKey(orderType), encodeID(order.ID)); err != nil {
			return err
		}
		id = order.ID
		e.emitter.Emit(events.NewOrder{
			OrderID:   order.ID,
			Maker:     maker,
			OrderType: orderType.String(),
			Price:     new(big.Int).Set(price),
			Amount:    new(big.Int).Set(amount),
		})
		return nil
	})
	return id, err
}

// MatchOrders settles a crossing buy/sell pair. Nothing changes on failure.
func (e *Exchange) MatchOrders(buyID, sellID uint64) (*Fill, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	var fill *Fill
	err := e.atomic(func() error {
		var err error
		fill, err = e.match(buyID, sellID)
		return err
	})
	return fill, err
}

// MatchMultipleOrders matches pairs in order until one fails or the match
// budget is spent. Earlier matches stand. It fails only when nothing matched.
func (e *Exchange) MatchMultipleOrders(buyIDs, sellIDs []uint64) ([]*Fill, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if len(buyIDs) != len(sellIDs) {
		return nil, ErrLengthMismatch
	}
	fills := make([]*Fill, 0, len(buyIDs))
	var stopErr error
	for i := range buyIDs {
		if e.cfg.MatchBudget > 0 && len(fills) >= e.cfg.MatchBudget {
			break
		}
		fill, err := e.MatchOrders(buyIDs[i], sellIDs[i])
		if err != nil {
			stopErr = err
			break
		}
		fills = append(fills, fill)
	}
	if len(fills) == 0 {
		if stopErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNothingMatched, stopErr)
		}
		return nil, ErrNothingMatched
	}
	return fills, nil
}

// SettlementPrice returns the price a crossing pair trades at under rule.
func SettlementPrice(rule PricingRule, buyPrice, sellPrice *big.Int) *big.Int {
	if rule == PriceMidpoint {
		mid := new(big.Int).Add(buyPrice, sellPrice)
		return mid.Rsh(mid, 1)
	}
	return new(big.Int).Set(sellPrice)
}

// FillAmounts computes the wei and token legs of a match at price. The sell
// side fills when its wei value fits into the buy order; otherwise the buy
// side fills and the token leg is capped at the sell amount.
func FillAmounts(buyWei, sellTokens, price *big.Int) (weiAmount, tokenAmount *big.Int, err error) {
	sellWei, err := nativecommon.MulDiv(sellTokens, nativecommon.WeiPerEther(), price, nativecommon.RoundHalfUp)
	if err != nil {
		return nil, nil, err
	}
	if sellWei.Cmp(buyWei) <= 0 {
		return sellWei, new(big.Int).Set(sellTokens), nil
	}
	tokens, err := nativecommon.MulDiv(buyWei, price, nativecommon.WeiPerEther(), nativecommon.RoundHalfUp)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(buyWei), nativecommon.Min(tokens, sellTokens), nil
}

func (e *Exchange) match(buyID, sellID uint64) (*Fill, error) {
	buy, err := e.Order(buyID)
	if err != nil {
		return nil, err
	}
	sell, err := e.Order(sellID)
	if err != nil {
		return nil, err
	}
	if buy.Type != OrderBuy || sell.Type != OrderSell {
		return nil, ErrWrongSide
	}
	if buy.Price.Cmp(sell.Price) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrNoCross, buy.Price, sell.Price)
	}
	price := SettlementPrice(e.cfg.Pricing, buy.Price, sell.Price)
	weiAmount, tokenAmount, err := FillAmounts(buy.Amount, sell.Amount, price)
	if err != nil {
		return nil, err
	}
	if weiAmount.Sign() == 0 || tokenAmount.Sign() == 0 {
		return nil, ErrZeroFill
	}

	buy.Amount.Sub(buy.Amount, weiAmount)
	sell.Amount.Sub(sell.Amount, tokenAmount)
	if err := e.storeOrRemove(buy); err != nil {
		return nil, err
	}
	if err := e.storeOrRemove(sell); err != nil {
		return nil, err
	}
	if err := e.token.TransferNoFee(e.cfg.Address, e.cfg.Address, buy.Maker, tokenAmount, "exchange fill"); err != nil {
		return nil, err
	}
	if err := nativecommon.MoveWei(e.state, e.cfg.Address, sell.Maker, weiAmount); err != nil {
		return nil, err
	}

	fill := &Fill{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.Maker,
		Seller:      sell.Maker,
		Price:       price,
		WeiAmount:   weiAmount,
		TokenAmount: tokenAmount,
	}
	e.emitter.Emit(events.OrderFill{
		Buyer:       fill.Buyer,
		Seller:      fill.Seller,
		BuyOrderID:  fill.BuyOrderID,
		SellOrderID: fill.SellOrderID,
		Price:       new(big.Int).Set(price),
		WeiAmount:   new(big.Int).Set(weiAmount),
		TokenAmount: new(big.Int).Set(tokenAmount),
	})
	return fill, nil
}

// CancelOrder refunds the remaining locked funds of an order to its maker.
func (e *Exchange) CancelOrder(caller crypto.Address, id uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.atomic(func() error {
		order, err := e.Order(id)
		if err != nil {
			return err
		}
		if !order.Maker.Equal(caller) {
			return ErrNotMaker
		}
		if err := e.removeOrder(order); err != nil {
			return err
		}
		evt := events.CancelledOrder{OrderID: id, Maker: caller, TokenAmount: big.NewInt(0), WeiAmount: big.NewInt(0)}
		if order.Type == OrderBuy {
			if err := nativecommon.MoveWei(e.state, e.cfg.Address, caller, order.Amount); err != nil {
				return err
			}
			evt.WeiAmount.Set(order.Amount)
		} else {
			if err := e.token.TransferNoFee(e.cfg.Address, e.cfg.Address, caller, order.Amount, "order cancelled"); err != nil {
				return err
			}
			evt.TokenAmount.Set(order.Amount)
		}
		e.emitter.Emit(evt)
		return nil
	})
}

func (e *Exchange) atomic(fn func() error) error {
	snap := e.state.Snapshot()
	journal, hasJournal := e.emitter.(events.Journal)
	mark := 0
	if hasJournal {
		mark = journal.Mark()
	}
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		if hasJournal {
			journal.Rewind(mark)
		}
		return err
	}
	e.state.DiscardSnapshot(snap)
	return nil
}

func (e *Exchange) storeOrRemove(order *Order) error {
	if order.Amount.Sign() == 0 {
		return e.removeOrder(order)
	}
	return e.putOrder(order)
}

func (e *Exchange) putOrder(order *Order) error {
	return e.state.KVPut(orderKey(order.ID), orderRecord{
		ID:        order.ID,
		Maker:     order.Maker.Bytes(),
		Type:      uint8(order.Type),
		Amount:    order.Amount,
		Price:     order.Price,
		AddedTime: uint64(order.AddedTime.Unix()),
	})
}

func (e *Exchange) removeOrder(order *Order) error {
	if err := e.state.KVDelete(orderKey(order.ID)); err != nil {
		return err
	}
	return e.state.KVRemove(bookKey(order.Type), encodeID(order.ID))
}

// Order returns an open order.
func (e *Exchange) Order(id uint64) (*Order, error) {
	if e.state == nil {
		return nil, fmt.Errorf("exchange: not configured")
	}
	var rec orderRecord
	ok, err := e.state.KVGet(orderKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	maker, err := crypto.NewAddress(crypto.AugmintPrefix, rec.Maker)
	if err != nil {
		return nil, err
	}
	amount := big.NewInt(0)
	if rec.Amount != nil {
		amount.Set(rec.Amount)
	}
	price := big.NewInt(0)
	if rec.Price != nil {
		price.Set(rec.Price)
	}
	return &Order{
		ID:        rec.ID,
		Maker:     maker,
		Type:      OrderType(rec.Type),
		Amount:    amount,
		Price:     price,
		AddedTime: time.Unix(int64(rec.AddedTime), 0).UTC(),
	}, nil
}

// OrderCounts returns the number of open buy and sell orders.
func (e *Exchange) OrderCounts() (buyCount, sellCount int, err error) {
	if e.state == nil {
		return 0, 0, fmt.Errorf("exchange: not configured")
	}
	var buys, sells [][]byte
	if err := e.state.KVGetList(buyBookKey, &buys); err != nil {
		return 0, 0, err
	}
	if err := e.state.KVGetList(sellBookKey, &sells); err != nil {
		return 0, 0, err
	}
	return len(buys), len(sells), nil
}

// BuyOrders lists open buy orders by descending price, oldest first on ties.
func (e *Exchange) BuyOrders(offset, limit int) ([]*Order, error) {
	return e.book(OrderBuy, offset, limit)
}

// SellOrders lists open sell orders by ascending price, oldest first on ties.
func (e *Exchange) SellOrders(offset, limit int) ([]*Order, error) {
	return e.book(OrderSell, offset, limit)
}

func (e *Exchange) book(side OrderType, offset, limit int) ([]*Order, error) {
	if e.state == nil {
		return nil, fmt.Errorf("exchange: not configured")
	}
	var ids [][]byte
	if err := e.state.KVGetList(bookKey(side), &ids); err != nil {
		return nil, err
	}
	orders := make([]*Order, 0, len(ids))
	for _, raw := range ids {
		order, err := e.Order(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		cmp := orders[i].Price.Cmp(orders[j].Price)
		if cmp == 0 {
			return orders[i].ID < orders[j].ID
		}
		if side == OrderBuy {
			return cmp > 0
		}
		return cmp < 0
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(orders) {
		return []*Order{}, nil
	}
	orders = orders[offset:]
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

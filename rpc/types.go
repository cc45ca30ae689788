package rpc

import (
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"augmint/core"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/rates"
	"augmint/native/token"
	"augmint/storage/eventlog"
)

const weiDecimals = 18

// Amount carries a base unit integer together with its decimal rendering.
type Amount struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func newAmount(v *big.Int, decimals uint8) Amount {
	if v == nil {
		v = big.NewInt(0)
	}
	d := decimal.NewFromBigInt(v, -int32(decimals))
	return Amount{Value: v.String(), Display: d.StringFixed(int32(decimals))}
}

func (s *Server) tokenAmount(v *big.Int) Amount {
	return newAmount(v, s.decimals())
}

func weiAmount(v *big.Int) Amount { return newAmount(v, weiDecimals) }

func (s *Server) decimals() uint8 {
	info, err := s.node.TokenInfo()
	if err != nil {
		return 0
	}
	return info.Decimals
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

type FeeView struct {
	FeePt  uint64 `json:"feePt"`
	FeeMin Amount `json:"feeMin"`
	FeeMax Amount `json:"feeMax"`
}

type TokenResponse struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	PeggedSymbol string  `json:"peggedSymbol"`
	Decimals     uint8   `json:"decimals"`
	Address      string  `json:"address"`
	TotalSupply  Amount  `json:"totalSupply"`
	Fees         FeeView `json:"fees"`
}

func newTokenResponse(info *core.TokenInfo) TokenResponse {
	return TokenResponse{
		Symbol:       info.Symbol,
		Name:         info.Name,
		PeggedSymbol: info.PeggedSymbol,
		Decimals:     info.Decimals,
		Address:      info.Address.String(),
		TotalSupply:  newAmount(info.TotalSupply, info.Decimals),
		Fees:         newFeeView(info.Fees, info.Decimals),
	}
}

func newFeeView(fees token.FeeParams, decimals uint8) FeeView {
	return FeeView{FeePt: fees.FeePt, FeeMin: newAmount(fees.FeeMin, decimals), FeeMax: newAmount(fees.FeeMax, decimals)}
}

type AccountResponse struct {
	Address     string            `json:"address"`
	Wei         Amount            `json:"wei"`
	Balances    map[string]Amount `json:"balances"`
	Permissions []string          `json:"permissions"`
}

func (s *Server) newAccountResponse(view *core.AccountView) AccountResponse {
	decimals := s.decimals()
	balances := make(map[string]Amount, len(view.Balances))
	for symbol, balance := range view.Balances {
		balances[symbol] = newAmount(balance, decimals)
	}
	perms := append([]string{}, view.Permissions...)
	sort.Strings(perms)
	return AccountResponse{
		Address:     view.Address.String(),
		Wei:         weiAmount(view.Wei),
		Balances:    balances,
		Permissions: perms,
	}
}

type LoanProductResponse struct {
	ID                 uint32 `json:"id"`
	TermSeconds        uint64 `json:"termSeconds"`
	DiscountRate       uint64 `json:"discountRate"`
	CollateralRatio    uint64 `json:"collateralRatio"`
	MinDisbursedAmount Amount `json:"minDisbursedAmount"`
	DefaultingFeePt    uint64 `json:"defaultingFeePt"`
	Active             bool   `json:"active"`
}

func (s *Server) newLoanProductResponse(p *loan.Product) LoanProductResponse {
	return LoanProductResponse{
		ID:                 p.ID,
		TermSeconds:        p.Term,
		DiscountRate:       p.DiscountRate,
		CollateralRatio:    p.CollateralRatio,
		MinDisbursedAmount: s.tokenAmount(p.MinDisbursedAmount),
		DefaultingFeePt:    p.DefaultingFeePt,
		Active:             p.Active,
	}
}

type LoanResponse struct {
	ID               uint64     `json:"id"`
	Borrower         string     `json:"borrower"`
	State            string     `json:"state"`
	ProductID        uint32     `json:"productId"`
	Collateral       Amount     `json:"collateral"`
	LoanAmount       Amount     `json:"loanAmount"`
	RepaymentAmount  Amount     `json:"repaymentAmount"`
	InterestAmount   Amount     `json:"interestAmount"`
	DefaultingFeePt  uint64     `json:"defaultingFeePt"`
	DisbursementTime *time.Time `json:"disbursementTime,omitempty"`
	MaturityTime     *time.Time `json:"maturityTime,omitempty"`
}

func (s *Server) newLoanResponse(l *loan.Loan) LoanResponse {
	return LoanResponse{
		ID:               l.ID,
		Borrower:         l.Borrower.String(),
		State:            l.State.String(),
		ProductID:        l.ProductID,
		Collateral:       weiAmount(l.CollateralAmount),
		LoanAmount:       s.tokenAmount(l.LoanAmount),
		RepaymentAmount:  s.tokenAmount(l.RepaymentAmount),
		InterestAmount:   s.tokenAmount(l.InterestAmount),
		DefaultingFeePt:  l.DefaultingFeePt,
		DisbursementTime: timeOrNil(l.DisbursementTime),
		MaturityTime:     timeOrNil(l.MaturityTime),
	}
}

type CollectResultResponse struct {
	LoanID              uint64 `json:"loanId"`
	CollectedCollateral Amount `json:"collectedCollateral"`
	ReleasedCollateral  Amount `json:"releasedCollateral"`
	DefaultingFee       Amount `json:"defaultingFee"`
}

type OrderResponse struct {
	ID        uint64     `json:"id"`
	Maker     string     `json:"maker"`
	Type      string     `json:"type"`
	Amount    Amount     `json:"amount"`
	Price     string     `json:"price"`
	AddedTime *time.Time `json:"addedTime,omitempty"`
}

func (s *Server) newOrderResponse(o *exchange.Order) OrderResponse {
	amount := weiAmount(o.Amount)
	if o.Type == exchange.OrderSell {
		amount = s.tokenAmount(o.Amount)
	}
	return OrderResponse{
		ID:        o.ID,
		Maker:     o.Maker.String(),
		Type:      o.Type.String(),
		Amount:    amount,
		Price:     o.Price.String(),
		AddedTime: timeOrNil(o.AddedTime),
	}
}

type FillResponse struct {
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Price       string `json:"price"`
	WeiAmount   Amount `json:"weiAmount"`
	TokenAmount Amount `json:"tokenAmount"`
}

func (s *Server) newFillResponse(f *exchange.Fill) FillResponse {
	return FillResponse{
		BuyOrderID:  f.BuyOrderID,
		SellOrderID: f.SellOrderID,
		Buyer:       f.Buyer.String(),
		Seller:      f.Seller.String(),
		Price:       f.Price.String(),
		WeiAmount:   weiAmount(f.WeiAmount),
		TokenAmount: s.tokenAmount(f.TokenAmount),
	}
}

type RateResponse struct {
	Symbol      string     `json:"symbol"`
	Rate        string     `json:"rate"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

func newRateResponse(r rates.Rate) RateResponse {
	return RateResponse{Symbol: r.Symbol, Rate: r.Rate.String(), LastUpdated: timeOrNil(r.LastUpdated)}
}

type SupervisorResponse struct {
	TotalLoanAmount            Amount          `json:"totalLoanAmount"`
	TotalLockedAmount          Amount          `json:"totalLockedAmount"`
	TotalSupply                Amount          `json:"totalSupply"`
	ReserveBalance             Amount          `json:"reserveBalance"`
	InterestEarned             Amount          `json:"interestEarned"`
	MaxLoanAmount              Amount          `json:"maxLoanAmount"`
	LtdLockDifferenceLimit     uint64          `json:"ltdLockDifferenceLimit"`
	LtdLoanDifferenceLimit     uint64          `json:"ltdLoanDifferenceLimit"`
	AllowedLtdDifferenceAmount Amount          `json:"allowedLtdDifferenceAmount"`
	LegacyTokens               map[string]bool `json:"legacyTokens"`
}

func (s *Server) newSupervisorResponse(view *core.SupervisorView) SupervisorResponse {
	return SupervisorResponse{
		TotalLoanAmount:            s.tokenAmount(view.Totals.TotalLoanAmount),
		TotalLockedAmount:          s.tokenAmount(view.Totals.TotalLockedAmount),
		TotalSupply:                s.tokenAmount(view.TotalSupply),
		ReserveBalance:             s.tokenAmount(view.ReserveBalance),
		InterestEarned:             s.tokenAmount(view.InterestEarned),
		MaxLoanAmount:              s.tokenAmount(view.MaxLoanAmount),
		LtdLockDifferenceLimit:     view.Params.LtdLockDifferenceLimit,
		LtdLoanDifferenceLimit:     view.Params.LtdLoanDifferenceLimit,
		AllowedLtdDifferenceAmount: s.tokenAmount(view.Params.AllowedLtdDifferenceAmount),
		LegacyTokens:               view.LegacyTokens,
	}
}

type LockProductResponse struct {
	ID                uint32 `json:"id"`
	PerTermInterest   uint64 `json:"perTermInterest"`
	DurationInSecs    uint64 `json:"durationInSecs"`
	MinimumLockAmount Amount `json:"minimumLockAmount"`
	Active            bool   `json:"active"`
}

func (s *Server) newLockProductResponse(p *locker.LockProduct) LockProductResponse {
	return LockProductResponse{
		ID:                p.ID,
		PerTermInterest:   p.PerTermInterest,
		DurationInSecs:    p.DurationInSecs,
		MinimumLockAmount: s.tokenAmount(p.MinimumLockAmount),
		Active:            p.Active,
	}
}

type LockResponse struct {
	ID             uint64     `json:"id"`
	Owner          string     `json:"owner"`
	ProductID      uint32     `json:"productId"`
	AmountLocked   Amount     `json:"amountLocked"`
	InterestEarned Amount     `json:"interestEarned"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
	Active         bool       `json:"active"`
}

func (s *Server) newLockResponse(l *locker.Lock) LockResponse {
	return LockResponse{
		ID:             l.ID,
		Owner:          l.Owner.String(),
		ProductID:      l.ProductID,
		AmountLocked:   s.tokenAmount(l.AmountLocked),
		InterestEarned: s.tokenAmount(l.InterestEarned),
		LockedUntil:    timeOrNil(l.LockedUntil),
		Active:         l.Active,
	}
}

type EventResponse struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func newEventResponse(rec eventlog.Record) (EventResponse, error) {
	attrs, err := rec.Decoded()
	if err != nil {
		return EventResponse{}, err
	}
	return EventResponse{ID: rec.ID, Type: rec.Type, Attributes: attrs, CreatedAt: rec.CreatedAt}, nil
}

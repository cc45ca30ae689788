package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"augmint/core"
	"augmint/core/events"
	"augmint/core/genesis"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/loan"
	"augmint/rpc/middleware"
	"augmint/storage"
	"augmint/storage/eventlog"
)

type fixture struct {
	server   *Server
	node     *core.Node
	board    crypto.Address
	feeder   crypto.Address
	borrower crypto.Address
}

func newFixture(t *testing.T, auth middleware.AuthConfig) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	clock := time.Unix(1700000000, 0).UTC()
	node, err := core.NewNode(db, core.Options{Now: func() time.Time { return clock }})
	require.NoError(t, err)

	archive, err := eventlog.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	node.AddSink(archive)

	f := &fixture{
		node:     node,
		board:    crypto.ModuleAddress("rpc-board"),
		feeder:   crypto.ModuleAddress("rpc-feeder"),
		borrower: crypto.ModuleAddress("rpc-borrower"),
	}
	wei, _ := new(big.Int).SetString("1000000000000000000", 10)
	require.NoError(t, node.ApplyGenesis(context.Background(), &genesis.Plan{
		Roles: []genesis.RoleGrant{
			{Permission: nativecommon.PermStabilityBoard, Address: f.board},
			{Permission: nativecommon.PermRatesFeeder, Address: f.feeder},
		},
		Wei:    []genesis.Allocation{{Address: f.borrower, Amount: wei}},
		Tokens: map[string][]genesis.Allocation{"AEUR": {{Address: node.Accounts().InterestEarned, Amount: big.NewInt(100000)}}},
		Rates:  []genesis.Rate{{Symbol: "EUR", Value: big.NewInt(10000000)}},
		LoanProducts: []loan.Product{{
			Term:               86400,
			DiscountRate:       854701,
			CollateralRatio:    550000,
			MinDisbursedAmount: big.NewInt(1000),
			DefaultingFeePt:    50000,
			Active:             true,
		}},
	}))

	f.server = NewServer(Config{Auth: auth}, node, archive, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, caller *crypto.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if caller != nil {
		req.Header.Set(middleware.CallerHeader, caller.String())
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, middleware.AuthConfig{})
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestLoanRoutes(t *testing.T) {
	f := newFixture(t, middleware.AuthConfig{})

	rec := f.do(t, http.MethodPost, "/v1/loans", nil, map[string]interface{}{"productId": 0, "collateral": "500000000000000000"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/loans", &f.borrower, map[string]interface{}{"productId": 0, "collateral": "500000000000000000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[LoanResponse](t, rec)
	require.Equal(t, "2350400", created.LoanAmount.Value)
	require.Equal(t, "235.0400", created.LoanAmount.Display)
	require.Equal(t, "0.500000000000000000", created.Collateral.Display)
	require.Equal(t, "open", created.State)

	rec = f.do(t, http.MethodGet, "/v1/loans/0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/loans/99", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/loans/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/loans/collect", nil, map[string]interface{}{"loanIds": []uint64{0}})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "invalid state", decode[errorResponse](t, rec).Kind)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/loans", f.borrower), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]LoanResponse](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/v1/events?type="+events.TypeNewLoan, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	archived := decode[[]EventResponse](t, rec)
	require.Len(t, archived, 1)
	require.Equal(t, events.TypeNewLoan, archived[0].Type)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	f := newFixture(t, middleware.AuthConfig{})

	rec := f.do(t, http.MethodPost, "/v1/rates", &f.borrower, map[string]interface{}{"symbols": []string{"EUR"}, "rates": []string{"1"}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/rates", &f.feeder, map[string]interface{}{"symbols": []string{"EUR"}, "rates": []string{"12000000"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/v1/rates/eur", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "12000000", decode[RateResponse](t, rec).Rate)

	rec = f.do(t, http.MethodPost, "/v1/token/transfer", &f.borrower, map[string]interface{}{"to": f.board.String(), "amount": "5000"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/token/transfer", &f.borrower, map[string]interface{}{"to": f.board.String(), "amount": "-5"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/token/transfer", &f.borrower, map[string]interface{}{"to": f.board.String(), "amount": "1", "bogus": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/admin/pause", &f.board, map[string]interface{}{"module": nativecommon.ModuleExchange, "paused": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/v1/orders", &f.borrower, map[string]interface{}{"type": "buy", "amount": "1000", "price": "9000000"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderAndSupervisorViews(t *testing.T) {
	f := newFixture(t, middleware.AuthConfig{})

	rec := f.do(t, http.MethodPost, "/v1/orders", &f.borrower, map[string]interface{}{"type": "buy", "amount": "100000000000000000", "price": "9000000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[OrderResponse](t, rec)
	require.Equal(t, "0.100000000000000000", order.Amount.Display)

	rec = f.do(t, http.MethodGet, "/v1/orders?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	book := decode[OrderBookResponse](t, rec)
	require.Equal(t, 1, book.BuyCount)
	require.Zero(t, book.SellCount)
	require.Len(t, book.Buys, 1)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/orders/%d", order.ID), &f.board, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/orders/%d", order.ID), &f.borrower, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/supervisor", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sup := decode[SupervisorResponse](t, rec)
	require.Equal(t, "100000", sup.TotalSupply.Value)
	require.Equal(t, "100000", sup.InterestEarned.Value)
}

func TestJWTCaller(t *testing.T) {
	secret := "rpc-test-secret"
	f := newFixture(t, middleware.AuthConfig{HMACSecret: secret, Issuer: "rpc-tests"})

	sign := func(key string, subject string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": subject,
			"iss": "rpc-tests",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		return signed
	}
	send := func(token string) *httptest.ResponseRecorder {
		body := bytes.NewBufferString(`{"productId":0,"collateral":"500000000000000000"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/loans", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, send(sign("wrong-secret", f.borrower.String())).Code)
	require.Equal(t, http.StatusUnauthorized, send(sign(secret, "not-an-address")).Code)
	rec := send(sign(secret, f.borrower.String()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, f.borrower.String(), decode[LoanResponse](t, rec).Borrower)
}

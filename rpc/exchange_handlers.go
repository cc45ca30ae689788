package rpc

import (
	"net/http"

	"augmint/native/exchange"
)

type newOrderRequest struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

type matchRequest struct {
	BuyID  uint64 `json:"buyId"`
	SellID uint64 `json:"sellId"`
}

type matchMultipleRequest struct {
	BuyIDs  []uint64 `json:"buyIds"`
	SellIDs []uint64 `json:"sellIds"`
}

type OrderBookResponse struct {
	BuyCount  int             `json:"buyCount"`
	SellCount int             `json:"sellCount"`
	Buys      []OrderResponse `json:"buys"`
	Sells     []OrderResponse `json:"sells"`
}

const maxOrderPage = 200

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 50, maxOrderPage)
	if err != nil {
		writeError(w, err)
		return
	}
	buys, sells, err := s.node.OrderBook(offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	buyCount, sellCount, err := s.node.OrderCounts()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := OrderBookResponse{
		BuyCount:  buyCount,
		SellCount: sellCount,
		Buys:      make([]OrderResponse, 0, len(buys)),
		Sells:     make([]OrderResponse, 0, len(sells)),
	}
	for _, o := range buys {
		resp.Buys = append(resp.Buys, s.newOrderResponse(o))
	}
	for _, o := range sells {
		resp.Sells = append(resp.Sells, s.newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req newOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	orderType, err := exchange.ParseOrderType(req.Type)
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.node.NewOrder(r.Context(), caller, orderType, amount, price)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := s.node.Order(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.newOrderResponse(order))
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := s.node.Order(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newOrderResponse(order))
}

func (s *Server) handleMatchOrders(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fill, err := s.node.MatchOrders(r.Context(), req.BuyID, req.SellID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newFillResponse(fill))
}

func (s *Server) handleMatchMultiple(w http.ResponseWriter, r *http.Request) {
	var req matchMultipleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fills, err := s.node.MatchMultipleOrders(r.Context(), req.BuyIDs, req.SellIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]FillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, s.newFillResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.CancelOrder(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package rpc

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"augmint/native/supervisor"
	"augmint/storage/eventlog"
)

type ratesRequest struct {
	Symbols []string `json:"symbols"`
	Rates   []string `json:"rates"`
}

type legacyTokenRequest struct {
	Symbol   string `json:"symbol"`
	Accepted bool   `json:"accepted"`
}

type convertRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type ltdParamsRequest struct {
	LtdLockDifferenceLimit     uint64 `json:"ltdLockDifferenceLimit"`
	LtdLoanDifferenceLimit     uint64 `json:"ltdLoanDifferenceLimit"`
	AllowedLtdDifferenceAmount string `json:"allowedLtdDifferenceAmount"`
}

type reserveRequest struct {
	// Action is one of "issue", "burn" or "withdraw".
	Action string `json:"action"`
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type permissionRequest struct {
	Address    string `json:"address"`
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

const maxEventPage = 500

func (s *Server) handleSetRates(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ratesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, badRequest("symbols required"))
		return
	}
	values, err := parseAmounts("rates", req.Rates)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.SetMultipleRates(r.Context(), caller, req.Symbols, values); err != nil {
		writeError(w, err)
		return
	}
	out := make([]RateResponse, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		rate, err := s.node.Rate(symbol)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, newRateResponse(rate))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.node.Rate(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRateResponse(rate))
}

func (s *Server) handleSupervisor(w http.ResponseWriter, r *http.Request) {
	view, err := s.node.Supervisor()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newSupervisorResponse(view))
}

func (s *Server) handleSetLegacyToken(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req legacyTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.SetAcceptedLegacyAugmintToken(r.Context(), caller, req.Symbol, req.Accepted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{strings.ToUpper(strings.TrimSpace(req.Symbol)): req.Accepted})
}

func (s *Server) handleConvertLegacy(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req convertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.ConvertLegacyTokens(r.Context(), req.Symbol, caller, amount); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.node.Account(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newAccountResponse(view))
}

func (s *Server) handleSetLtdParams(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ltdParamsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	allowed, err := parseAmount("allowedLtdDifferenceAmount", req.AllowedLtdDifferenceAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	params := supervisor.Params{
		LtdLockDifferenceLimit:     req.LtdLockDifferenceLimit,
		LtdLoanDifferenceLimit:     req.LtdLoanDifferenceLimit,
		AllowedLtdDifferenceAmount: allowed,
	}
	if err := s.node.SetLtdParams(r.Context(), caller, params); err != nil {
		writeError(w, err)
		return
	}
	s.handleSupervisor(w, r)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reserveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	switch req.Action {
	case "issue":
		err = s.node.IssueToReserve(r.Context(), caller, amount)
	case "burn":
		err = s.node.BurnFromReserve(r.Context(), caller, amount)
	case "withdraw":
		to, perr := parseAddress("to", req.To)
		if perr != nil {
			writeError(w, perr)
			return
		}
		err = s.node.WithdrawFromReserve(r.Context(), caller, to, amount)
	default:
		err = badRequest("unknown reserve action %q", req.Action)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.handleSupervisor(w, r)
}

func (s *Server) handleLockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.node.LockProducts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]LockProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, s.newLockProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req permissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Granted {
		err = s.node.GrantPermission(r.Context(), caller, addr, req.Permission)
	} else {
		err = s.node.RevokePermission(r.Context(), caller, addr, req.Permission)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.node.Account(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newAccountResponse(view))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.SetPaused(r.Context(), caller, req.Module, req.Paused); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{req.Module: req.Paused})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event archive disabled"})
		return
	}
	after, err := queryInt(r, "after", 0, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 100, maxEventPage)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.archive.Query(r.Context(), eventlog.Query{
		Type:    strings.TrimSpace(r.URL.Query().Get("type")),
		AfterID: uint64(after),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]EventResponse, 0, len(records))
	for _, rec := range records {
		evt, err := newEventResponse(rec)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, evt)
	}
	writeJSON(w, http.StatusOK, out)
}

package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"augmint/native/token"
)

type transferRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Narrative string `json:"narrative,omitempty"`
}

type transferAndNotifyRequest struct {
	Target string `json:"target"`
	Amount string `json:"amount"`
	Data   uint64 `json:"data"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
	// Mode is "set" (default), "increase" or "decrease".
	Mode string `json:"mode,omitempty"`
}

type feesRequest struct {
	FeePt  uint64 `json:"feePt"`
	FeeMin string `json:"feeMin"`
	FeeMax string `json:"feeMax"`
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.node.TokenInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(info))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.Transfer(r.Context(), caller, to, amount, req.Narrative); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTransferFrom moves tokens out of req.From using the caller's allowance.
func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.TransferFrom(r.Context(), caller, from, to, amount, req.Narrative); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTransferAndNotify(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transferAndNotifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.TransferAndNotify(r.Context(), caller, target, amount, req.Data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	switch req.Mode {
	case "", "set":
		err = s.node.Approve(r.Context(), caller, spender, amount)
	case "increase":
		err = s.node.IncreaseApproval(r.Context(), caller, spender, amount)
	case "decrease":
		err = s.node.DecreaseApproval(r.Context(), caller, spender, amount)
	default:
		err = badRequest("unknown approval mode %q", req.Mode)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	allowance, err := s.node.Allowance(caller, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]Amount{"allowance": s.tokenAmount(allowance)})
}

func (s *Server) handleSetTransferFees(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req feesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	feeMin, err := parseAmount("feeMin", req.FeeMin)
	if err != nil {
		writeError(w, err)
		return
	}
	feeMax, err := parseAmount("feeMax", req.FeeMax)
	if err != nil {
		writeError(w, err)
		return
	}
	params := token.FeeParams{FeePt: req.FeePt, FeeMin: feeMin, FeeMax: feeMax}
	if err := s.node.SetTransferFees(r.Context(), caller, params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFeeView(params, s.decimals()))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
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

func (s *Server) handleAccountLoans(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	loans, err := s.node.LoansForAddress(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, s.newLoanResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccountLocks(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	locks, err := s.node.LocksForAddress(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]LockResponse, 0, len(locks))
	for _, l := range locks {
		out = append(out, s.newLockResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

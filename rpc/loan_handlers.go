package rpc

import (
	"net/http"

	"augmint/native/loan"
)

type newLoanRequest struct {
	ProductID  uint32 `json:"productId"`
	Collateral string `json:"collateral"`
}

type collectRequest struct {
	LoanIDs []uint64 `json:"loanIds"`
}

type loanProductRequest struct {
	TermSeconds        uint64 `json:"termSeconds"`
	DiscountRate       uint64 `json:"discountRate"`
	CollateralRatio    uint64 `json:"collateralRatio"`
	MinDisbursedAmount string `json:"minDisbursedAmount"`
	DefaultingFeePt    uint64 `json:"defaultingFeePt"`
	Active             bool   `json:"active"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

const maxMaturedPage = 500

func (s *Server) handleLoanProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.node.LoanProducts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]LoanProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, s.newLoanProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddLoanProduct(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req loanProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minimum, err := parseAmount("minDisbursedAmount", req.MinDisbursedAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.node.AddLoanProduct(r.Context(), caller, loan.Product{
		Term:               req.TermSeconds,
		DiscountRate:       req.DiscountRate,
		CollateralRatio:    req.CollateralRatio,
		MinDisbursedAmount: minimum,
		DefaultingFeePt:    req.DefaultingFeePt,
		Active:             req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint32{"id": id})
}

func (s *Server) handleSetLoanProductActive(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathUint32(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.SetLoanProductActiveState(r.Context(), caller, id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (s *Server) handleNewLoan(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req newLoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.node.NewEthBackedLoan(r.Context(), caller, req.ProductID, collateral)
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.node.Loan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.newLoanResponse(l))
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.node.Loan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newLoanResponse(l))
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
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
	if err := s.node.RepayLoan(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.node.Loan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newLoanResponse(l))
}

func (s *Server) handleCollectLoans(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.LoanIDs) == 0 {
		writeError(w, badRequest("loanIds required"))
		return
	}
	results, err := s.node.CollectLoans(r.Context(), req.LoanIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]CollectResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, CollectResultResponse{
			LoanID:              res.LoanID,
			CollectedCollateral: weiAmount(res.CollectedCollateral),
			ReleasedCollateral:  weiAmount(res.ReleasedCollateral),
			DefaultingFee:       weiAmount(res.DefaultingFee),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMaturedLoans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100, maxMaturedPage)
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := s.node.OpenMaturedLoans(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string][]uint64{"loanIds": ids})
}

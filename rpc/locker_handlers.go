package rpc

import (
	"net/http"

	"augmint/native/locker"
)

type lockProductRequest struct {
	PerTermInterest   uint64 `json:"perTermInterest"`
	DurationInSecs    uint64 `json:"durationInSecs"`
	MinimumLockAmount string `json:"minimumLockAmount"`
	Active            bool   `json:"active"`
}

type lockRequest struct {
	ProductID uint32 `json:"productId"`
	Amount    string `json:"amount"`
}

func (s *Server) handleAddLockProduct(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req lockProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minimum, err := parseAmount("minimumLockAmount", req.MinimumLockAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.node.AddLockProduct(r.Context(), caller, locker.LockProduct{
		PerTermInterest:   req.PerTermInterest,
		DurationInSecs:    req.DurationInSecs,
		MinimumLockAmount: minimum,
		Active:            req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint32{"id": id})
}

func (s *Server) handleSetLockProductActive(w http.ResponseWriter, r *http.Request) {
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
	if err := s.node.SetLockProductActiveState(r.Context(), caller, id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (s *Server) handleLockTokens(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req lockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.node.LockTokens(r.Context(), caller, req.ProductID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	lock, err := s.node.Lock(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.newLockResponse(lock))
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	lock, err := s.node.Lock(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newLockResponse(lock))
}

// handleReleaseFunds pays out a matured lock to its owner; anyone may trigger it.
func (s *Server) handleReleaseFunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.node.ReleaseFunds(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	lock, err := s.node.Lock(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newLockResponse(lock))
}

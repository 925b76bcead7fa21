package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleUpdateFee handles POST /api/admin/fee. The core rejects callers
// other than the agent owner.
func (s *Server) handleUpdateFee(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		Fee string `json:"fee"` // wei, decimal string
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fee, ok := parseWei(req.Fee)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fee")
		return
	}

	if err := s.core.UpdateServiceFee(caller, fee); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service_fee": fee.String(),
	})
}

// handleUpdateTimeout handles POST /api/admin/timeout.
func (s *Server) handleUpdateTimeout(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		TimeoutSeconds int64 `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if err := s.core.UpdateEscrowTimeout(caller, timeout); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"escrow_timeout": req.TimeoutSeconds,
	})
}

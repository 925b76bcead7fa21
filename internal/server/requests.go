package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aegis-agents/yieldrisk/internal/storage"
)

// handleDeposit handles POST /api/deposit — credit the caller's balance.
// Payments into escrow are drawn from this internal ledger.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount"` // wei, decimal string
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, ok := parseWei(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := s.bank.Deposit(caller, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": caller.Hex(),
		"balance": s.bank.Balance(caller).String(),
	})
}

// handleBalance handles GET /api/balance/{address}.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	addrHex := r.PathValue("address")
	if !common.IsHexAddress(addrHex) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(addrHex)
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.Hex(),
		"balance": s.bank.Balance(addr).String(),
	})
}

// handleSubmitProtocol handles POST /api/protocol — store a protocol
// description and return its keccak256 hash, the value a later service
// request must carry.
func (s *Server) handleSubmitProtocol(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	hash := crypto.Keccak256Hash([]byte(req.Description))
	p := &storage.Protocol{
		Hash:        hash.Hex(),
		Description: req.Description,
		SubmittedBy: caller.Hex(),
		CreatedAt:   time.Now().Unix(),
	}
	if err := s.db.CreateProtocol(p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store protocol")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"hash": hash.Hex(),
	})
}

// handleGetProtocol handles GET /api/protocol/{hash}.
func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid protocol hash")
		return
	}

	p, err := s.db.GetProtocol(hash.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "protocol not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load protocol")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRequestService handles POST /api/requests — pay the service fee into
// escrow against a previously submitted protocol hash.
func (s *Server) handleRequestService(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		ProtocolHash string `json:"protocol_hash"`
		Payment      string `json:"payment"` // wei, decimal string
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	hash, ok := parseHash(req.ProtocolHash)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid protocol hash")
		return
	}
	payment, ok := parseWei(req.Payment)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	}

	// The hash must refer to a stored description; the analysis worker needs
	// the text to produce a report.
	if _, err := s.db.GetProtocol(hash.Hex()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "protocol not found; submit the description first")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load protocol")
		return
	}

	id, err := s.core.RequestService(caller, payment, hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request_id": id,
		"client":     caller.Hex(),
		"payment":    payment.String(),
	})
}

// handleGetRequest handles GET /api/requests/{id}.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request ID")
		return
	}

	req, err := s.core.GetRequest(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            req.ID,
		"client":        req.Client.Hex(),
		"payment":       req.Payment.String(),
		"created_at":    req.CreatedAt,
		"state":         req.State.String(),
		"protocol_hash": req.ProtocolHash.Hex(),
		"report_hash":   req.ReportHash.Hex(),
		"refunded":      req.Refunded,
	})
}

// handleReleaseEscrow handles POST /api/requests/{id}/release. Deliberately
// unauthenticated: any keeper may trigger an eligible release, the payout
// always goes to the agent owner.
func (s *Server) handleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request ID")
		return
	}

	if err := s.core.ReleaseEscrow(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": id,
		"released":   true,
	})
}

// handleRefund handles POST /api/requests/{id}/refund. The caller must be
// the request's client and must cite a recorded qualifying feedback score,
// unless the request was abandoned past its timeout.
func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request ID")
		return
	}

	var req struct {
		Score uint8 `json:"score"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.core.RefundOnBadFeedback(caller, id, req.Score); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": id,
		"refunded":   true,
	})
}

// handleGetReport handles GET /api/report/{id} — the stored analysis for a
// service request.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request ID")
		return
	}

	rep, err := s.db.GetReportByRequest(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "report not ready")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            rep.ID,
		"request_id":    rep.RequestID,
		"protocol_hash": rep.ProtocolHash,
		"report_hash":   rep.ReportHash,
		"analysis":      json.RawMessage(rep.Body),
		"created_at":    rep.CreatedAt,
	})
}

// handleListReports handles GET /api/reports — report metadata, no bodies.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	reports, err := s.db.ListReports()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []storage.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// Package server exposes the YieldRisk agent service over HTTP: escrow
// operations, feedback, validation, reports, and a WebSocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aegis-agents/yieldrisk/internal/bank"
	"github.com/aegis-agents/yieldrisk/internal/escrow"
	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/ratelimit"
	"github.com/aegis-agents/yieldrisk/internal/registry"
	"github.com/aegis-agents/yieldrisk/internal/reputation"
	"github.com/aegis-agents/yieldrisk/internal/storage"
)

// maxBodySize bounds request bodies; protocol descriptions dominate.
const maxBodySize = 1 << 20 // 1 MB

// Deps are the collaborators a Server needs.
type Deps struct {
	DB         *storage.DB
	Core       *escrow.Service
	Identity   *registry.IdentityRegistry
	Validation *registry.ValidationRegistry
	Reputation *reputation.Registry
	Bank       *bank.Ledger
	Feed       *events.Feed
}

// Server is the main HTTP server for the YieldRisk API.
type Server struct {
	db         *storage.DB
	core       *escrow.Service
	identity   *registry.IdentityRegistry
	validation *registry.ValidationRegistry
	reputation *reputation.Registry
	bank       *bank.Ledger
	feed       *events.Feed
	limiter    *ratelimit.Keyed
	mux        *http.ServeMux
}

// New creates a new Server with all routes registered.
func New(d Deps) *Server {
	s := &Server{
		db:         d.DB,
		core:       d.Core,
		identity:   d.Identity,
		validation: d.Validation,
		reputation: d.Reputation,
		bank:       d.Bank,
		feed:       d.Feed,
		limiter:    ratelimit.NewKeyed(60, time.Minute),
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health and agent card
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/agent", s.handleAgentCard)

	// Bank
	s.mux.HandleFunc("POST /api/deposit", s.handleDeposit)
	s.mux.HandleFunc("GET /api/balance/{address}", s.handleBalance)

	// Protocols and service requests
	s.mux.HandleFunc("POST /api/protocol", s.handleSubmitProtocol)
	s.mux.HandleFunc("GET /api/protocol/{hash}", s.handleGetProtocol)
	s.mux.HandleFunc("POST /api/requests", s.handleRequestService)
	s.mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	s.mux.HandleFunc("POST /api/requests/{id}/release", s.handleReleaseEscrow)
	s.mux.HandleFunc("POST /api/requests/{id}/refund", s.handleRefund)

	// Reports
	s.mux.HandleFunc("GET /api/report/{id}", s.handleGetReport)
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)

	// Reputation
	s.mux.HandleFunc("POST /api/feedback", s.handleGiveFeedback)
	s.mux.HandleFunc("GET /api/reputation/{agentID}", s.handleReputationSummary)

	// Validation
	s.mux.HandleFunc("POST /api/validation", s.handleValidationRequest)
	s.mux.HandleFunc("POST /api/validation/{hash}/response", s.handleValidationResponse)
	s.mux.HandleFunc("GET /api/validation/{hash}", s.handleValidationStatus)

	// Admin (owner-gated in the core)
	s.mux.HandleFunc("POST /api/admin/fee", s.handleUpdateFee)
	s.mux.HandleFunc("POST /api/admin/timeout", s.handleUpdateTimeout)

	// Stats and events
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "yieldrisk",
	})
}

// handleAgentCard returns the agent's identity and current service terms.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	owner, err := s.core.Owner()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve owner failed")
		return
	}
	uri, _ := s.identity.MetadataURI(s.core.AgentID())
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":        s.core.AgentID(),
		"owner":           owner.Hex(),
		"metadata_uri":    uri,
		"service_fee":     s.core.ServiceFee().String(),
		"escrow_timeout":  int64(s.core.EscrowTimeout() / time.Second),
		"refund_endpoint": "/api/requests/{id}/refund",
	})
}

// handleStats returns the escrow aggregate counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	stats := s.core.Statistics()
	reports, err := s.db.CountReports()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count reports failed")
		return
	}
	avgRisk, err := s.db.AverageRiskScore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "average risk score failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_requests": stats.TotalRequests,
		"total_earned":   stats.TotalEarned.String(),
		"total_refunded": stats.TotalRefunded.String(),
		"active_escrow":  stats.ActiveEscrow.String(),
		"reports_stored": reports,
		"avg_risk_score": avgRisk,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps ledger and registry errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor picks the HTTP status for a domain error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, registry.ErrUnknownAgent),
		errors.Is(err, registry.ErrUnknownValidation):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrNotAgentOwner),
		errors.Is(err, escrow.ErrNotRequestClient),
		errors.Is(err, registry.ErrNotAgentOwner),
		errors.Is(err, registry.ErrNotValidator),
		errors.Is(err, reputation.ErrSelfFeedback):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrAlreadyCompleted),
		errors.Is(err, escrow.ErrAlreadySettled),
		errors.Is(err, escrow.ErrNotYetEligible),
		errors.Is(err, escrow.ErrScoreTooHigh),
		errors.Is(err, escrow.ErrScoreNotRecorded),
		errors.Is(err, registry.ErrAlreadyResponded),
		errors.Is(err, registry.ErrDuplicateValidation),
		errors.Is(err, reputation.ErrIndexLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

// allowIP applies the per-IP rate limit for unauthenticated endpoints.
func (s *Server) allowIP(w http.ResponseWriter, r *http.Request) bool {
	if !s.limiter.Allow("ip:" + getIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// parseWei parses a decimal wei amount. Amounts travel as strings because
// they overflow float64-backed JSON numbers.
func parseWei(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// optionalHash parses a hash field that may be absent. Empty or malformed
// input yields the zero hash.
func optionalHash(s string) common.Hash {
	h, _ := parseHash(s)
	return h
}

// parseHash parses a 0x-prefixed 32-byte hex hash.
func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// handleGiveFeedback handles POST /api/feedback — record a score for an
// agent, gated by an owner-signed feedback authorization.
func (s *Server) handleGiveFeedback(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		AgentID      uint64 `json:"agent_id"`
		Score        uint8  `json:"score"`
		Tag1         string `json:"tag1,omitempty"`
		Tag2         string `json:"tag2,omitempty"`
		FeedbackURI  string `json:"feedback_uri,omitempty"`
		FeedbackHash string `json:"feedback_hash,omitempty"`
		Auth         string `json:"auth"` // hex-encoded FeedbackAuth blob
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	authBlob, err := hexutil.Decode(req.Auth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auth blob hex")
		return
	}

	tag1, tag2, fbHash := optionalHash(req.Tag1), optionalHash(req.Tag2), optionalHash(req.FeedbackHash)

	entry, err := s.reputation.GiveFeedback(caller, req.AgentID, req.Score, tag1, tag2, req.FeedbackURI, fbHash, authBlob)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleReputationSummary handles GET /api/reputation/{agentID}.
func (s *Server) handleReputationSummary(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	agentID, err := strconv.ParseUint(r.PathValue("agentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	summary := s.reputation.Summary(agentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":      agentID,
		"count":         summary.Count,
		"average_score": summary.AverageScore,
	})
}

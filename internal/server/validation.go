package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// handleValidationRequest handles POST /api/validation — the agent owner
// asks a validator for an attestation.
func (s *Server) handleValidationRequest(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		Validator   string `json:"validator"`
		AgentID     uint64 `json:"agent_id"`
		RequestURI  string `json:"request_uri"`
		RequestHash string `json:"request_hash"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(req.Validator) {
		writeError(w, http.StatusBadRequest, "invalid validator address")
		return
	}
	hash, ok := parseHash(req.RequestHash)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request hash")
		return
	}

	err := s.validation.Request(caller, common.HexToAddress(req.Validator), req.AgentID, req.RequestURI, hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"request_hash": hash.Hex(),
	})
}

// handleValidationResponse handles POST /api/validation/{hash}/response —
// the designated validator answers a pending request.
func (s *Server) handleValidationResponse(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.signedBody(w, r)
	if !ok {
		return
	}
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request hash")
		return
	}

	var req struct {
		Response     uint8  `json:"response"`
		ResponseURI  string `json:"response_uri,omitempty"`
		ResponseHash string `json:"response_hash,omitempty"`
		Tag          string `json:"tag,omitempty"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.validation.Respond(caller, hash, req.Response, req.ResponseURI, optionalHash(req.ResponseHash), optionalHash(req.Tag))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_hash": hash.Hex(),
		"responded":    true,
	})
}

// handleValidationStatus handles GET /api/validation/{hash}.
func (s *Server) handleValidationStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request hash")
		return
	}

	st, err := s.validation.Status(hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

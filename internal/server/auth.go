package server

import (
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aegis-agents/yieldrisk/internal/httpsig"
)

// signedBody reads the request body, verifies the secp256k1 request
// signature, and applies the per-caller rate limit. On failure it writes the
// error response and returns ok=false.
func (s *Server) signedBody(w http.ResponseWriter, r *http.Request) (caller common.Address, body []byte, ok bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return common.Address{}, nil, false
	}

	caller, err = httpsig.VerifyRequest(r, body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return common.Address{}, nil, false
	}

	if !s.limiter.Allow(caller.Hex()) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return common.Address{}, nil, false
	}
	return caller, body, true
}

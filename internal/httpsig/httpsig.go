// Package httpsig provides secp256k1 request signing and verification for
// the YieldRisk HTTP API. Callers identify themselves by Ethereum address;
// the server recovers the signer from the signature rather than storing
// public keys.
package httpsig

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// TimestampWindow is the maximum age of a signed request before it is rejected.
const TimestampWindow = 5 * time.Minute

// Signed request headers.
const (
	HeaderAddress   = "X-Aegis-Address"
	HeaderTimestamp = "X-Aegis-Timestamp"
	HeaderSignature = "X-Aegis-Signature"
)

// SignRequest adds the address, timestamp, and signature headers to an
// outgoing HTTP request. The signature covers the EIP-191 personal-message
// digest of:
//
//	method + path + timestamp + body
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := crypto.Sign(digest(req.Method, req.URL.Path, ts, body), key)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	req.Header.Set(HeaderAddress, addr.Hex())
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

// VerifyRequest checks that:
//  1. The timestamp is within TimestampWindow of the current time.
//  2. The signature recovers to the address claimed in the header.
//
// On success it returns the verified caller address.
func VerifyRequest(req *http.Request, body []byte) (common.Address, error) {
	addrHex := req.Header.Get(HeaderAddress)
	tsStr := req.Header.Get(HeaderTimestamp)
	sigHex := req.Header.Get(HeaderSignature)

	if addrHex == "" {
		return common.Address{}, fmt.Errorf("missing %s header", HeaderAddress)
	}
	if tsStr == "" {
		return common.Address{}, fmt.Errorf("missing %s header", HeaderTimestamp)
	}
	if sigHex == "" {
		return common.Address{}, fmt.Errorf("missing %s header", HeaderSignature)
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address %q", addrHex)
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	drift := math.Abs(float64(time.Now().Unix() - ts))
	if drift > TimestampWindow.Seconds() {
		return common.Address{}, fmt.Errorf("timestamp expired: %.0fs drift exceeds %v window", drift, TimestampWindow)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d, want %d", len(sig), crypto.SignatureLength)
	}
	// Accept both 27/28 and 0/1 recovery IDs.
	if sig[64] >= 27 {
		sig = append(append([]byte(nil), sig[:64]...), sig[64]-27)
	}

	pub, err := crypto.SigToPub(digest(req.Method, req.URL.Path, tsStr, body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(addrHex) {
		return common.Address{}, fmt.Errorf("signature by %s, header claims %s", recovered.Hex(), addrHex)
	}
	return recovered, nil
}

// digest is the EIP-191 personal-message hash of the canonical request string.
func digest(method, path, ts string, body []byte) []byte {
	msg := method + path + ts + string(body)
	return accounts.TextHash([]byte(msg))
}

// Package reputation implements the reputation ledger and the signed
// feedback-authorization scheme that gates it. An agent owner mints a
// FeedbackAuth token for a specific client; the client attaches the token
// (and the owner's signature over it) to each feedback submission.
package reputation

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aegis-agents/yieldrisk/internal/registry"
)

// Authorization verification errors. Each failure mode is distinct so that
// callers and tests can observe which check rejected the token.
var (
	ErrAuthMalformed      = errors.New("malformed feedback authorization")
	ErrAuthExpired        = errors.New("feedback authorization expired")
	ErrAuthWrongChain     = errors.New("feedback authorization bound to another chain")
	ErrAuthWrongRegistry  = errors.New("feedback authorization bound to another registry")
	ErrAuthWrongAgent     = errors.New("feedback authorization is for another agent")
	ErrAuthWrongClient    = errors.New("feedback authorization is for another client")
	ErrAuthBadSignature   = errors.New("feedback authorization signature invalid")
	ErrAuthSignerNotOwner = errors.New("feedback authorization signer does not own agent")
)

const (
	// encodedAuthLen is the length of the ABI-encoded token: seven static
	// 32-byte words.
	encodedAuthLen = 7 * 32
	// signatureLen is a 65-byte [R || S || V] secp256k1 signature.
	signatureLen = 65
)

// FeedbackAuth is the capability token an agent owner signs to authorize a
// client to submit feedback.
type FeedbackAuth struct {
	AgentID          uint64
	ClientAddress    common.Address
	IndexLimit       uint64
	Expiry           int64 // unix seconds
	ChainID          *big.Int
	IdentityRegistry common.Address
	SignerAddress    common.Address
}

// authArguments is the canonical ABI layout of the token:
// (uint256 agentId, address client, uint64 indexLimit, uint256 expiry,
// uint256 chainId, address identityRegistry, address signer).
var authArguments = mustAuthArguments()

func mustAuthArguments() abi.Arguments {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	uint64Ty, err := abi.NewType("uint64", "", nil)
	if err != nil {
		panic(err)
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Type: uint256Ty}, // agentId
		{Type: addressTy}, // clientAddress
		{Type: uint64Ty},  // indexLimit
		{Type: uint256Ty}, // expiry
		{Type: uint256Ty}, // chainId
		{Type: addressTy}, // identityRegistry
		{Type: addressTy}, // signerAddress
	}
}

// Encode returns the canonical ABI encoding of the token fields.
func (a *FeedbackAuth) Encode() ([]byte, error) {
	if a.ChainID == nil {
		return nil, fmt.Errorf("encode auth: nil chain ID: %w", ErrAuthMalformed)
	}
	return authArguments.Pack(
		new(big.Int).SetUint64(a.AgentID),
		a.ClientAddress,
		a.IndexLimit,
		big.NewInt(a.Expiry),
		a.ChainID,
		a.IdentityRegistry,
		a.SignerAddress,
	)
}

// Digest returns the message the signer signs: the keccak256 hash of the
// encoding, wrapped as an EIP-191 personal message.
func (a *FeedbackAuth) Digest() ([]byte, error) {
	encoded, err := a.Encode()
	if err != nil {
		return nil, err
	}
	return accounts.TextHash(crypto.Keccak256(encoded)), nil
}

// SignAuth encodes the token and appends the signer's 65-byte signature,
// producing the opaque blob clients attach to feedback submissions.
func SignAuth(a *FeedbackAuth, key *ecdsa.PrivateKey) ([]byte, error) {
	encoded, err := a.Encode()
	if err != nil {
		return nil, err
	}
	digest := accounts.TextHash(crypto.Keccak256(encoded))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign auth: %w", err)
	}
	return append(encoded, sig...), nil
}

// decodeAuth splits and decodes a token blob into its fields and signature.
func decodeAuth(blob []byte) (*FeedbackAuth, []byte, error) {
	if len(blob) != encodedAuthLen+signatureLen {
		return nil, nil, fmt.Errorf("auth blob length %d: %w", len(blob), ErrAuthMalformed)
	}
	encoded, sig := blob[:encodedAuthLen], blob[encodedAuthLen:]

	values, err := authArguments.Unpack(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack auth: %w", ErrAuthMalformed)
	}

	agentID, ok1 := values[0].(*big.Int)
	client, ok2 := values[1].(common.Address)
	indexLimit, ok3 := values[2].(uint64)
	expiry, ok4 := values[3].(*big.Int)
	chainID, ok5 := values[4].(*big.Int)
	identityReg, ok6 := values[5].(common.Address)
	signer, ok7 := values[6].(common.Address)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, nil, fmt.Errorf("decode auth fields: %w", ErrAuthMalformed)
	}
	if !agentID.IsUint64() || !expiry.IsInt64() {
		return nil, nil, fmt.Errorf("auth field out of range: %w", ErrAuthMalformed)
	}

	return &FeedbackAuth{
		AgentID:          agentID.Uint64(),
		ClientAddress:    client,
		IndexLimit:       indexLimit,
		Expiry:           expiry.Int64(),
		ChainID:          chainID,
		IdentityRegistry: identityReg,
		SignerAddress:    signer,
	}, sig, nil
}

// AuthVerifier checks feedback-authorization blobs. It holds no mutable
// state: verification is a pure function of the blob, the current time, and
// the verifier's binding parameters.
type AuthVerifier struct {
	ChainID          *big.Int
	IdentityRegistry common.Address
	Identity         registry.OwnershipLookup
}

// NewAuthVerifier creates a verifier bound to the given chain and identity
// registry address.
func NewAuthVerifier(chainID *big.Int, identityRegistry common.Address, identity registry.OwnershipLookup) *AuthVerifier {
	return &AuthVerifier{ChainID: chainID, IdentityRegistry: identityRegistry, Identity: identity}
}

// Verify decodes blob and checks every token invariant against the claimed
// agent and client at time now. It returns the decoded token on success.
func (v *AuthVerifier) Verify(blob []byte, claimedAgentID uint64, claimedClient common.Address, now int64) (*FeedbackAuth, error) {
	auth, sig, err := decodeAuth(blob)
	if err != nil {
		return nil, err
	}

	if auth.AgentID != claimedAgentID {
		return nil, fmt.Errorf("token agent %d, submission agent %d: %w", auth.AgentID, claimedAgentID, ErrAuthWrongAgent)
	}
	if auth.ClientAddress != claimedClient {
		return nil, fmt.Errorf("token client %s, submitter %s: %w", auth.ClientAddress, claimedClient, ErrAuthWrongClient)
	}
	if now >= auth.Expiry {
		return nil, fmt.Errorf("expired at %d, now %d: %w", auth.Expiry, now, ErrAuthExpired)
	}
	if v.ChainID == nil || auth.ChainID == nil || auth.ChainID.Cmp(v.ChainID) != 0 {
		return nil, fmt.Errorf("token chain %v: %w", auth.ChainID, ErrAuthWrongChain)
	}
	if auth.IdentityRegistry != v.IdentityRegistry {
		return nil, fmt.Errorf("token registry %s: %w", auth.IdentityRegistry, ErrAuthWrongRegistry)
	}

	recovered, err := recoverSigner(blob[:encodedAuthLen], sig)
	if err != nil {
		return nil, fmt.Errorf("recover signer: %w", ErrAuthBadSignature)
	}
	if recovered != auth.SignerAddress {
		return nil, fmt.Errorf("recovered %s, declared %s: %w", recovered, auth.SignerAddress, ErrAuthBadSignature)
	}

	owner, err := v.Identity.OwnerOf(auth.AgentID)
	if err != nil {
		return nil, fmt.Errorf("agent %d owner lookup: %w", auth.AgentID, ErrAuthSignerNotOwner)
	}
	if owner != auth.SignerAddress {
		return nil, fmt.Errorf("signer %s, owner %s: %w", auth.SignerAddress, owner, ErrAuthSignerNotOwner)
	}

	return auth, nil
}

// recoverSigner recovers the signing address from the encoded token and a
// 65-byte signature. Both 0/1 and 27/28 recovery IDs are accepted.
func recoverSigner(encoded, sig []byte) (common.Address, error) {
	if len(sig) != signatureLen {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	normalized := bytes.Clone(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	digest := accounts.TextHash(crypto.Keccak256(encoded))
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

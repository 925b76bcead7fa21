package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aegis-agents/yieldrisk/internal/events"
)

// Validation registry errors.
var (
	ErrNotAgentOwner      = errors.New("caller does not own agent")
	ErrNotValidator       = errors.New("caller is not the designated validator")
	ErrUnknownValidation  = errors.New("unknown validation request")
	ErrAlreadyResponded   = errors.New("validation already responded")
	ErrDuplicateValidation = errors.New("validation request hash already used")
)

// ValidationRequest is an event published when an agent owner asks a
// validator for an attestation.
type ValidationRequest struct {
	Validator   common.Address
	AgentID     uint64
	RequestURI  string
	RequestHash common.Hash
}

// ValidationResponse is an event published when the validator answers.
type ValidationResponse struct {
	RequestHash  common.Hash
	Response     uint8
	ResponseURI  string
	ResponseHash common.Hash
	Tag          common.Hash
}

// ValidationStatus is the stored state of one validation exchange.
type ValidationStatus struct {
	Validator    common.Address `json:"validator"`
	AgentID      uint64         `json:"agent_id"`
	RequestURI   string         `json:"request_uri"`
	Response     uint8          `json:"response"`
	Responded    bool           `json:"responded"`
	ResponseURI  string         `json:"response_uri,omitempty"`
	ResponseHash common.Hash    `json:"response_hash,omitempty"`
	Tag          common.Hash    `json:"tag,omitempty"`
	RequestedAt  int64          `json:"requested_at"`
	RespondedAt  int64          `json:"responded_at,omitempty"`
}

// ValidationRegistry tracks attestation requests keyed by request hash.
type ValidationRegistry struct {
	mu       sync.Mutex
	identity OwnershipLookup
	feed     *events.Feed
	requests map[common.Hash]*ValidationStatus
	now      func() int64
}

// NewValidationRegistry creates a ValidationRegistry backed by the given
// identity registry. feed may be nil.
func NewValidationRegistry(identity OwnershipLookup, feed *events.Feed) *ValidationRegistry {
	return &ValidationRegistry{
		identity: identity,
		feed:     feed,
		requests: make(map[common.Hash]*ValidationStatus),
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Request records a validation request. The caller must own the agent, and
// the request hash must be fresh.
func (r *ValidationRegistry) Request(caller, validator common.Address, agentID uint64, requestURI string, requestHash common.Hash) error {
	owner, err := r.identity.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("validation request for agent %d: %w", agentID, ErrNotAgentOwner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[requestHash]; exists {
		return fmt.Errorf("validation request %s: %w", requestHash, ErrDuplicateValidation)
	}
	r.requests[requestHash] = &ValidationStatus{
		Validator:   validator,
		AgentID:     agentID,
		RequestURI:  requestURI,
		RequestedAt: r.now(),
	}
	r.publish(ValidationRequest{
		Validator:   validator,
		AgentID:     agentID,
		RequestURI:  requestURI,
		RequestHash: requestHash,
	})
	return nil
}

// Respond records the validator's answer for a pending request. Only the
// designated validator may respond, and only once.
func (r *ValidationRegistry) Respond(caller common.Address, requestHash common.Hash, response uint8, responseURI string, responseHash, tag common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.requests[requestHash]
	if !ok {
		return fmt.Errorf("validation %s: %w", requestHash, ErrUnknownValidation)
	}
	if caller != st.Validator {
		return fmt.Errorf("validation %s: %w", requestHash, ErrNotValidator)
	}
	if st.Responded {
		return fmt.Errorf("validation %s: %w", requestHash, ErrAlreadyResponded)
	}

	st.Responded = true
	st.Response = response
	st.ResponseURI = responseURI
	st.ResponseHash = responseHash
	st.Tag = tag
	st.RespondedAt = r.now()

	r.publish(ValidationResponse{
		RequestHash:  requestHash,
		Response:     response,
		ResponseURI:  responseURI,
		ResponseHash: responseHash,
		Tag:          tag,
	})
	return nil
}

// Status returns a copy of the stored state for the given request hash.
func (r *ValidationRegistry) Status(requestHash common.Hash) (ValidationStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.requests[requestHash]
	if !ok {
		return ValidationStatus{}, fmt.Errorf("validation %s: %w", requestHash, ErrUnknownValidation)
	}
	return *st, nil
}

func (r *ValidationRegistry) publish(ev any) {
	if r.feed != nil {
		r.feed.Publish(ev)
	}
}

// Package registry implements the external registries the escrow core
// collaborates with: the identity registry (agent ownership) and the
// validation registry (attestation request/response). Both are consumed
// through narrow interfaces so the core can be tested with fakes.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownAgent is returned when an agent ID has never been registered.
var ErrUnknownAgent = errors.New("unknown agent")

// OwnershipLookup is the read interface the escrow core and reputation
// ledger use to resolve agent ownership.
type OwnershipLookup interface {
	// OwnerOf returns the owner address of the agent, or ErrUnknownAgent.
	OwnerOf(agentID uint64) (common.Address, error)
}

// agentRecord is one registered agent.
type agentRecord struct {
	owner       common.Address
	metadataURI string
}

// IdentityRegistry assigns agent IDs and tracks ownership. IDs start at 1;
// 0 is never a valid agent.
type IdentityRegistry struct {
	mu     sync.Mutex
	agents map[uint64]agentRecord
	nextID uint64
}

// NewIdentityRegistry creates an empty IdentityRegistry.
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{agents: make(map[uint64]agentRecord), nextID: 1}
}

// Register records a new agent owned by owner and returns its ID.
func (r *IdentityRegistry) Register(owner common.Address, metadataURI string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.agents[id] = agentRecord{owner: owner, metadataURI: metadataURI}
	return id
}

// OwnerOf returns the owner of the agent with the given ID.
func (r *IdentityRegistry) OwnerOf(agentID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return common.Address{}, fmt.Errorf("agent %d: %w", agentID, ErrUnknownAgent)
	}
	return rec.owner, nil
}

// MetadataURI returns the metadata URI recorded at registration.
func (r *IdentityRegistry) MetadataURI(agentID uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return "", fmt.Errorf("agent %d: %w", agentID, ErrUnknownAgent)
	}
	return rec.metadataURI, nil
}

// TotalAgents returns the number of registered agents.
func (r *IdentityRegistry) TotalAgents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

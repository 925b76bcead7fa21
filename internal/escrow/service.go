// Package escrow implements the escrow ledger and settlement state machine
// at the core of the YieldRisk agent service. A client pays the service fee
// into escrow with a protocol-description hash; the agent owner later commits
// a report hash; funds then either release to the owner after the timeout or
// refund to the client on recorded bad feedback.
//
// Every state-changing call executes under one mutex, giving the serialized
// single-writer model the correctness argument depends on: the first call to
// satisfy a transition's precondition wins, and every later conflicting call
// fails with a terminal state-conflict error.
package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/registry"
)

// Bank is the balance ledger the service draws on. Debit must be
// all-or-nothing: on error no funds have moved.
type Bank interface {
	Debit(addr common.Address, amount *big.Int) error
	Credit(addr common.Address, amount *big.Int)
}

// ReputationReader is the read hook into the external reputation ledger,
// used to verify that a refund claim cites a score the client actually
// recorded. Trusting the caller-supplied score alone would let any client
// fabricate refund eligibility.
type ReputationReader interface {
	ClientScores(agentID uint64, client common.Address) []uint8
}

// Service is the escrow core for one agent. All mutating methods are
// serialized; reads return copies.
type Service struct {
	agentID    uint64
	identity   registry.OwnershipLookup
	reputation ReputationReader
	bank       Bank
	feed       *events.Feed

	mu       sync.Mutex
	cfg      Config
	requests []*ServiceRequest

	totalEarned   *big.Int
	totalRefunded *big.Int
	activeEscrow  *big.Int

	now func() int64 // unix seconds; replaced in tests
}

// New creates a Service for the given agent. The agent must already be
// registered; its owner is resolved per call so ownership transfers in the
// identity registry take effect immediately.
func New(agentID uint64, identity registry.OwnershipLookup, reputation ReputationReader, bank Bank, feed *events.Feed, cfg Config) (*Service, error) {
	if cfg.RefundThreshold == 0 {
		cfg.RefundThreshold = DefaultRefundThreshold
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, err := identity.OwnerOf(agentID); err != nil {
		return nil, err
	}
	cfg.ServiceFee = new(big.Int).Set(cfg.ServiceFee)
	return &Service{
		agentID:       agentID,
		identity:      identity,
		reputation:    reputation,
		bank:          bank,
		feed:          feed,
		cfg:           cfg,
		totalEarned:   new(big.Int),
		totalRefunded: new(big.Int),
		activeEscrow:  new(big.Int),
		now:           func() int64 { return time.Now().Unix() },
	}, nil
}

// AgentID returns the agent this service settles for.
func (s *Service) AgentID() uint64 { return s.agentID }

// Owner resolves the current agent owner from the identity registry.
func (s *Service) Owner() (common.Address, error) {
	return s.identity.OwnerOf(s.agentID)
}

// RequestService deposits payment against a protocol hash and appends a new
// open request, returning its ID. The payment is debited from the client's
// bank balance into escrow.
func (s *Service) RequestService(client common.Address, payment *big.Int, protocolHash common.Hash) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment == nil || payment.Cmp(s.cfg.ServiceFee) < 0 {
		return 0, fmt.Errorf("payment %v below fee %v: %w", payment, s.cfg.ServiceFee, ErrInsufficientPayment)
	}
	if protocolHash == (common.Hash{}) {
		return 0, fmt.Errorf("protocol hash: %w", ErrInvalidHash)
	}
	if err := s.bank.Debit(client, payment); err != nil {
		return 0, fmt.Errorf("escrow deposit: %w", err)
	}

	req := &ServiceRequest{
		ID:           uint64(len(s.requests)),
		Client:       client,
		Payment:      new(big.Int).Set(payment),
		CreatedAt:    s.now(),
		State:        StateOpen,
		ProtocolHash: protocolHash,
	}
	s.requests = append(s.requests, req)
	s.activeEscrow.Add(s.activeEscrow, req.Payment)

	s.publish(ServiceRequested{
		RequestID:    req.ID,
		Client:       client,
		Payment:      new(big.Int).Set(req.Payment),
		ProtocolHash: protocolHash,
	})
	return req.ID, nil
}

// CompleteService commits the report hash for an open request. Only the
// agent owner may call it, and only once per request. No funds move.
func (s *Service) CompleteService(caller common.Address, requestID uint64, reportHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.identity.OwnerOf(s.agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("complete request %d: %w", requestID, ErrNotAgentOwner)
	}

	req, err := s.request(requestID)
	if err != nil {
		return err
	}
	switch req.State {
	case StateCompleted:
		return fmt.Errorf("request %d: %w", requestID, ErrAlreadyCompleted)
	case StateSettled:
		return fmt.Errorf("request %d: %w", requestID, ErrAlreadySettled)
	}
	if reportHash == (common.Hash{}) {
		return fmt.Errorf("report hash: %w", ErrInvalidHash)
	}

	req.State = StateCompleted
	req.ReportHash = reportHash

	s.publish(ServiceCompleted{RequestID: requestID, ReportHash: reportHash})
	return nil
}

// ReleaseEscrow pays a completed request out to the agent owner once the
// escrow timeout has elapsed. It is deliberately permissionless: any keeper
// may trigger an eligible release.
func (s *Service) ReleaseEscrow(requestID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.request(requestID)
	if err != nil {
		return err
	}
	if req.State == StateSettled {
		return fmt.Errorf("request %d: %w", requestID, ErrAlreadySettled)
	}
	if req.State != StateCompleted || !s.timedOut(req) {
		return fmt.Errorf("request %d: %w", requestID, ErrNotYetEligible)
	}

	owner, err := s.identity.OwnerOf(s.agentID)
	if err != nil {
		return err
	}

	s.settle(req, owner, false)
	return nil
}

// RefundOnBadFeedback settles a request back to its client. Two paths
// qualify:
//
//  1. The request is completed and the client has a recorded feedback score
//     for this agent below the refund threshold. The caller supplies the
//     score it is citing; the score must actually exist in the reputation
//     ledger.
//  2. The request is still open and the escrow timeout has fully elapsed:
//     the agent never delivered, so the client reclaims the deposit with no
//     feedback requirement.
func (s *Service) RefundOnBadFeedback(caller common.Address, requestID uint64, score uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.request(requestID)
	if err != nil {
		return err
	}
	if caller != req.Client {
		return fmt.Errorf("refund request %d: %w", requestID, ErrNotRequestClient)
	}
	if req.State == StateSettled {
		return fmt.Errorf("request %d: %w", requestID, ErrAlreadySettled)
	}

	if req.State == StateOpen {
		// Abandonment reclaim: no report was ever delivered.
		if !s.timedOut(req) {
			return fmt.Errorf("request %d not completed: %w", requestID, ErrNotYetEligible)
		}
		s.settle(req, req.Client, true)
		return nil
	}

	if score >= s.cfg.RefundThreshold {
		return fmt.Errorf("score %d, threshold %d: %w", score, s.cfg.RefundThreshold, ErrScoreTooHigh)
	}
	if !s.scoreRecorded(caller, score) {
		return fmt.Errorf("request %d score %d: %w", requestID, score, ErrScoreNotRecorded)
	}

	s.settle(req, req.Client, true)
	return nil
}

// UpdateServiceFee sets the fee charged to requests created after this call.
// Owner only; open requests keep the fee they were created under.
func (s *Service) UpdateServiceFee(caller common.Address, newFee *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if newFee == nil || newFee.Sign() < 0 {
		return fmt.Errorf("fee %v: %w", newFee, ErrInvalidFee)
	}

	old := s.cfg.ServiceFee
	s.cfg.ServiceFee = new(big.Int).Set(newFee)
	s.publish(FeeUpdated{Old: old, New: new(big.Int).Set(newFee)})
	return nil
}

// UpdateEscrowTimeout sets the escrow timeout, bounded to 1 hour .. 7 days.
// Owner only.
func (s *Service) UpdateEscrowTimeout(caller common.Address, newTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := validateTimeout(newTimeout); err != nil {
		return err
	}

	old := s.cfg.EscrowTimeout
	s.cfg.EscrowTimeout = newTimeout
	s.publish(TimeoutUpdated{Old: old, New: newTimeout})
	return nil
}

// GetRequest returns a copy of the request with the given ID.
func (s *Service) GetRequest(requestID uint64) (ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.request(requestID)
	if err != nil {
		return ServiceRequest{}, err
	}
	return req.clone(), nil
}

// Statistics returns a copy of the aggregate counters.
func (s *Service) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{
		TotalRequests: uint64(len(s.requests)),
		TotalEarned:   new(big.Int).Set(s.totalEarned),
		TotalRefunded: new(big.Int).Set(s.totalRefunded),
		ActiveEscrow:  new(big.Int).Set(s.activeEscrow),
	}
}

// ServiceFee returns the fee in effect for new requests.
func (s *Service) ServiceFee() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.cfg.ServiceFee)
}

// EscrowTimeout returns the timeout in effect.
func (s *Service) EscrowTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.EscrowTimeout
}

// --- internals (callers hold s.mu) ---

func (s *Service) request(id uint64) (*ServiceRequest, error) {
	if id >= uint64(len(s.requests)) {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	return s.requests[id], nil
}

func (s *Service) requireOwner(caller common.Address) error {
	owner, err := s.identity.OwnerOf(s.agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("caller %s: %w", caller, ErrNotAgentOwner)
	}
	return nil
}

// timedOut reports whether the escrow timeout has elapsed for req.
func (s *Service) timedOut(req *ServiceRequest) bool {
	return s.now() >= req.CreatedAt+int64(s.cfg.EscrowTimeout/time.Second)
}

// settle moves req to StateSettled and pays recipient. The monotonic state
// flag is the compare-and-set guard: callers have already checked the state
// under s.mu, so exactly one settlement can ever run per request.
func (s *Service) settle(req *ServiceRequest, recipient common.Address, refund bool) {
	req.State = StateSettled
	req.Refunded = refund
	s.activeEscrow.Sub(s.activeEscrow, req.Payment)
	if refund {
		s.totalRefunded.Add(s.totalRefunded, req.Payment)
	} else {
		s.totalEarned.Add(s.totalEarned, req.Payment)
	}
	s.bank.Credit(recipient, req.Payment)

	s.publish(EscrowReleased{
		RequestID: req.ID,
		Recipient: recipient,
		Amount:    new(big.Int).Set(req.Payment),
		IsRefund:  refund,
	})
}

// scoreRecorded reports whether the client has a feedback entry with exactly
// the cited score for this agent.
func (s *Service) scoreRecorded(client common.Address, score uint8) bool {
	if s.reputation == nil {
		return false
	}
	for _, recorded := range s.reputation.ClientScores(s.agentID, client) {
		if recorded == score {
			return true
		}
	}
	return false
}

func (s *Service) publish(ev any) {
	if s.feed != nil {
		s.feed.Publish(ev)
	}
}

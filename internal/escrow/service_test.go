package escrow

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aegis-agents/yieldrisk/internal/bank"
	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/registry"
)

var (
	ownerAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	client1Addr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	client2Addr = common.HexToAddress("0x2222222222222222222222222222222222222222")

	protocolHash = crypto.Keccak256Hash([]byte("Test Protocol"))
	reportHash   = crypto.Keccak256Hash([]byte("Risk Report"))
)

// serviceFee is 0.001 ETH in wei.
var serviceFee = big.NewInt(1_000_000_000_000_000)

const escrowTimeout = 24 * time.Hour

// fakeReputation is a canned ReputationReader.
type fakeReputation struct {
	scores map[common.Address][]uint8
}

func (f *fakeReputation) ClientScores(agentID uint64, client common.Address) []uint8 {
	return f.scores[client]
}

// fixture bundles a Service with its collaborators and a controllable clock.
type fixture struct {
	svc        *Service
	bank       *bank.Ledger
	reputation *fakeReputation
	feed       *events.Feed
	agentID    uint64
	clock      int64
	deposited  *big.Int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	identity := registry.NewIdentityRegistry()
	agentID := identity.Register(ownerAddr, "ipfs://QmAgent")

	f := &fixture{
		bank:       bank.New(),
		reputation: &fakeReputation{scores: make(map[common.Address][]uint8)},
		feed:       events.NewFeed(),
		agentID:    agentID,
		clock:      1700000000,
		deposited:  new(big.Int),
	}

	svc, err := New(agentID, identity, f.reputation, f.bank, f.feed, Config{
		ServiceFee:    serviceFee,
		EscrowTimeout: escrowTimeout,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.now = func() int64 { return f.clock }
	f.svc = svc
	return f
}

// fund deposits amount for client and tracks it for conservation checks.
func (f *fixture) fund(t *testing.T, client common.Address, amount *big.Int) {
	t.Helper()
	if err := f.bank.Deposit(client, amount); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
}

// request creates a request paying exactly the fee.
func (f *fixture) request(t *testing.T, client common.Address, hash common.Hash) uint64 {
	t.Helper()
	f.fund(t, client, serviceFee)
	id, err := f.svc.RequestService(client, serviceFee, hash)
	if err != nil {
		t.Fatalf("RequestService: %v", err)
	}
	f.deposited.Add(f.deposited, serviceFee)
	return id
}

// advance moves the clock forward.
func (f *fixture) advance(d time.Duration) {
	f.clock += int64(d / time.Second)
}

// checkConservation asserts totalEarned + totalRefunded + activeEscrow equals
// everything ever deposited into escrow.
func (f *fixture) checkConservation(t *testing.T) {
	t.Helper()
	stats := f.svc.Statistics()
	sum := new(big.Int).Add(stats.TotalEarned, stats.TotalRefunded)
	sum.Add(sum, stats.ActiveEscrow)
	if sum.Cmp(f.deposited) != 0 {
		t.Errorf("conservation violated: earned+refunded+active = %v, deposited = %v", sum, f.deposited)
	}
}

func TestRequestService(t *testing.T) {
	f := newFixture(t)

	id := f.request(t, client1Addr, protocolHash)
	if id != 0 {
		t.Errorf("first request ID = %d, want 0", id)
	}

	req, err := f.svc.GetRequest(id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if req.Client != client1Addr {
		t.Errorf("Client = %s, want %s", req.Client, client1Addr)
	}
	if req.Payment.Cmp(serviceFee) != 0 {
		t.Errorf("Payment = %v, want %v", req.Payment, serviceFee)
	}
	if req.State != StateOpen {
		t.Errorf("State = %s, want open", req.State)
	}
	if req.ProtocolHash != protocolHash {
		t.Errorf("ProtocolHash = %s, want %s", req.ProtocolHash, protocolHash)
	}
	f.checkConservation(t)
}

func TestRequestServiceInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	low := big.NewInt(100_000_000_000_000) // 0.0001 ETH
	f.fund(t, client1Addr, low)

	_, err := f.svc.RequestService(client1Addr, low, protocolHash)
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Errorf("RequestService error = %v, want ErrInsufficientPayment", err)
	}

	// Scenario E: activeEscrow unchanged and the client keeps their funds.
	if stats := f.svc.Statistics(); stats.ActiveEscrow.Sign() != 0 {
		t.Errorf("ActiveEscrow = %v, want 0", stats.ActiveEscrow)
	}
	if got := f.bank.Balance(client1Addr); got.Cmp(low) != 0 {
		t.Errorf("client balance = %v, want %v", got, low)
	}
}

func TestRequestServiceZeroHash(t *testing.T) {
	f := newFixture(t)
	f.fund(t, client1Addr, serviceFee)

	_, err := f.svc.RequestService(client1Addr, serviceFee, common.Hash{})
	if !errors.Is(err, ErrInvalidHash) {
		t.Errorf("RequestService error = %v, want ErrInvalidHash", err)
	}
	if got := f.bank.Balance(client1Addr); got.Cmp(serviceFee) != 0 {
		t.Errorf("client balance = %v, want %v (no funds taken on rejected call)", got, serviceFee)
	}
}

func TestRequestServiceUnfundedClient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestService(client1Addr, serviceFee, protocolHash)
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Errorf("RequestService error = %v, want bank.ErrInsufficientFunds", err)
	}
}

func TestMultipleRequests(t *testing.T) {
	// Scenario B: two requests from two clients.
	f := newFixture(t)
	f.request(t, client1Addr, crypto.Keccak256Hash([]byte("Protocol 1")))
	f.request(t, client2Addr, crypto.Keccak256Hash([]byte("Protocol 2")))

	stats := f.svc.Statistics()
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	want := new(big.Int).Mul(serviceFee, big.NewInt(2))
	if stats.ActiveEscrow.Cmp(want) != 0 {
		t.Errorf("ActiveEscrow = %v, want %v", stats.ActiveEscrow, want)
	}
	f.checkConservation(t)
}

func TestCompleteService(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}

	req, _ := f.svc.GetRequest(id)
	if req.State != StateCompleted {
		t.Errorf("State = %s, want completed", req.State)
	}
	if req.ReportHash != reportHash {
		t.Errorf("ReportHash = %s, want %s", req.ReportHash, reportHash)
	}

	// Completion moves no funds.
	if stats := f.svc.Statistics(); stats.ActiveEscrow.Cmp(serviceFee) != 0 {
		t.Errorf("ActiveEscrow = %v, want %v", stats.ActiveEscrow, serviceFee)
	}
}

func TestCompleteServiceByNonOwner(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	err := f.svc.CompleteService(client1Addr, id, reportHash)
	if !errors.Is(err, ErrNotAgentOwner) {
		t.Errorf("CompleteService error = %v, want ErrNotAgentOwner", err)
	}
}

func TestCompleteServiceZeroReportHash(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	err := f.svc.CompleteService(ownerAddr, id, common.Hash{})
	if !errors.Is(err, ErrInvalidHash) {
		t.Errorf("CompleteService error = %v, want ErrInvalidHash", err)
	}
}

func TestCompleteServiceTwice(t *testing.T) {
	// Scenario F: second completion fails, report hash unchanged.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("first CompleteService: %v", err)
	}

	other := crypto.Keccak256Hash([]byte("Second Report"))
	err := f.svc.CompleteService(ownerAddr, id, other)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("second CompleteService error = %v, want ErrAlreadyCompleted", err)
	}

	req, _ := f.svc.GetRequest(id)
	if req.ReportHash != reportHash {
		t.Errorf("ReportHash = %s, want first commit %s", req.ReportHash, reportHash)
	}
}

func TestCompleteServiceUnknownRequest(t *testing.T) {
	f := newFixture(t)

	err := f.svc.CompleteService(ownerAddr, 7, reportHash)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteService error = %v, want ErrNotFound", err)
	}
}

func TestReleaseEscrowAfterTimeout(t *testing.T) {
	// Scenario A: request, complete, premature release fails, release after
	// the timeout pays the owner.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}

	if err := f.svc.ReleaseEscrow(id); !errors.Is(err, ErrNotYetEligible) {
		t.Fatalf("premature ReleaseEscrow error = %v, want ErrNotYetEligible", err)
	}

	f.advance(escrowTimeout + time.Second)

	if err := f.svc.ReleaseEscrow(id); err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}

	stats := f.svc.Statistics()
	if stats.TotalEarned.Cmp(serviceFee) != 0 {
		t.Errorf("TotalEarned = %v, want %v", stats.TotalEarned, serviceFee)
	}
	if stats.ActiveEscrow.Sign() != 0 {
		t.Errorf("ActiveEscrow = %v, want 0", stats.ActiveEscrow)
	}
	if got := f.bank.Balance(ownerAddr); got.Cmp(serviceFee) != 0 {
		t.Errorf("owner balance = %v, want %v", got, serviceFee)
	}
	f.checkConservation(t)
}

func TestReleaseEscrowUncompleted(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	f.advance(escrowTimeout + time.Second)

	// Timeout alone is not enough: release requires a delivered report.
	if err := f.svc.ReleaseEscrow(id); !errors.Is(err, ErrNotYetEligible) {
		t.Errorf("ReleaseEscrow error = %v, want ErrNotYetEligible", err)
	}
}

func TestReleaseEscrowExactBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}

	// now == createdAt + timeout is eligible.
	f.advance(escrowTimeout)
	if err := f.svc.ReleaseEscrow(id); err != nil {
		t.Errorf("ReleaseEscrow at exact boundary: %v", err)
	}
}

func TestReleaseEscrowTwice(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.advance(escrowTimeout + time.Second)

	if err := f.svc.ReleaseEscrow(id); err != nil {
		t.Fatalf("first ReleaseEscrow: %v", err)
	}
	if err := f.svc.ReleaseEscrow(id); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("second ReleaseEscrow error = %v, want ErrAlreadySettled", err)
	}

	// Paid exactly once.
	if got := f.bank.Balance(ownerAddr); got.Cmp(serviceFee) != 0 {
		t.Errorf("owner balance = %v, want %v", got, serviceFee)
	}
	f.checkConservation(t)
}

func TestRefundOnBadFeedback(t *testing.T) {
	// Scenario C: completed request, recorded score 20, refund succeeds.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.reputation.scores[client1Addr] = []uint8{20}

	if err := f.svc.RefundOnBadFeedback(client1Addr, id, 20); err != nil {
		t.Fatalf("RefundOnBadFeedback: %v", err)
	}

	stats := f.svc.Statistics()
	if stats.TotalRefunded.Cmp(serviceFee) != 0 {
		t.Errorf("TotalRefunded = %v, want %v", stats.TotalRefunded, serviceFee)
	}
	if got := f.bank.Balance(client1Addr); got.Cmp(serviceFee) != 0 {
		t.Errorf("client balance = %v, want %v", got, serviceFee)
	}
	req, _ := f.svc.GetRequest(id)
	if req.State != StateSettled || !req.Refunded {
		t.Errorf("request state = %s refunded = %v, want settled refund", req.State, req.Refunded)
	}
	f.checkConservation(t)
}

func TestRefundScoreTooHigh(t *testing.T) {
	// Scenario D: score 80 does not qualify.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.reputation.scores[client1Addr] = []uint8{80}

	err := f.svc.RefundOnBadFeedback(client1Addr, id, 80)
	if !errors.Is(err, ErrScoreTooHigh) {
		t.Errorf("RefundOnBadFeedback error = %v, want ErrScoreTooHigh", err)
	}
	f.checkConservation(t)
}

func TestRefundScoreThresholdBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.reputation.scores[client1Addr] = []uint8{DefaultRefundThreshold}

	// A score exactly at the threshold does not qualify.
	err := f.svc.RefundOnBadFeedback(client1Addr, id, DefaultRefundThreshold)
	if !errors.Is(err, ErrScoreTooHigh) {
		t.Errorf("RefundOnBadFeedback at threshold error = %v, want ErrScoreTooHigh", err)
	}
}

func TestRefundSpoofedScoreRejected(t *testing.T) {
	// The caller cites a qualifying score they never actually recorded.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}

	err := f.svc.RefundOnBadFeedback(client1Addr, id, 10)
	if !errors.Is(err, ErrScoreNotRecorded) {
		t.Errorf("RefundOnBadFeedback error = %v, want ErrScoreNotRecorded", err)
	}
	f.checkConservation(t)
}

func TestRefundByNonClient(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.reputation.scores[client2Addr] = []uint8{10}

	err := f.svc.RefundOnBadFeedback(client2Addr, id, 10)
	if !errors.Is(err, ErrNotRequestClient) {
		t.Errorf("RefundOnBadFeedback by non-client error = %v, want ErrNotRequestClient", err)
	}
}

func TestRefundUncompletedBeforeTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	f.reputation.scores[client1Addr] = []uint8{5}

	err := f.svc.RefundOnBadFeedback(client1Addr, id, 5)
	if !errors.Is(err, ErrNotYetEligible) {
		t.Errorf("RefundOnBadFeedback on open request error = %v, want ErrNotYetEligible", err)
	}
}

func TestRefundAbandonedRequest(t *testing.T) {
	// An open request whose timeout fully elapsed can be reclaimed by the
	// client without any feedback on record.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	f.advance(escrowTimeout + time.Second)

	if err := f.svc.RefundOnBadFeedback(client1Addr, id, 0); err != nil {
		t.Fatalf("RefundOnBadFeedback (abandoned): %v", err)
	}

	stats := f.svc.Statistics()
	if stats.TotalRefunded.Cmp(serviceFee) != 0 {
		t.Errorf("TotalRefunded = %v, want %v", stats.TotalRefunded, serviceFee)
	}
	if got := f.bank.Balance(client1Addr); got.Cmp(serviceFee) != 0 {
		t.Errorf("client balance = %v, want %v", got, serviceFee)
	}

	// The abandoned request can no longer be completed.
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("CompleteService after reclaim error = %v, want ErrAlreadySettled", err)
	}
	f.checkConservation(t)
}

func TestReleaseRefundRace(t *testing.T) {
	// Both paths eligible: whichever settles first wins, the loser observes
	// ErrAlreadySettled and no funds move twice.
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.reputation.scores[client1Addr] = []uint8{10}
	f.advance(escrowTimeout + time.Second)

	if err := f.svc.ReleaseEscrow(id); err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if err := f.svc.RefundOnBadFeedback(client1Addr, id, 10); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("losing RefundOnBadFeedback error = %v, want ErrAlreadySettled", err)
	}

	stats := f.svc.Statistics()
	if stats.TotalEarned.Cmp(serviceFee) != 0 || stats.TotalRefunded.Sign() != 0 {
		t.Errorf("TotalEarned = %v TotalRefunded = %v, want fee and 0", stats.TotalEarned, stats.TotalRefunded)
	}
	f.checkConservation(t)
}

func TestUpdateServiceFee(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	newFee := new(big.Int).Mul(serviceFee, big.NewInt(2))
	if err := f.svc.UpdateServiceFee(ownerAddr, newFee); err != nil {
		t.Fatalf("UpdateServiceFee: %v", err)
	}
	if got := f.svc.ServiceFee(); got.Cmp(newFee) != 0 {
		t.Errorf("ServiceFee = %v, want %v", got, newFee)
	}

	// Fee change is not retroactive: the open request keeps its payment.
	req, _ := f.svc.GetRequest(id)
	if req.Payment.Cmp(serviceFee) != 0 {
		t.Errorf("open request payment = %v, want %v", req.Payment, serviceFee)
	}

	// New requests must meet the new fee.
	f.fund(t, client2Addr, serviceFee)
	if _, err := f.svc.RequestService(client2Addr, serviceFee, protocolHash); !errors.Is(err, ErrInsufficientPayment) {
		t.Errorf("RequestService at old fee error = %v, want ErrInsufficientPayment", err)
	}
}

func TestUpdateServiceFeeByNonOwner(t *testing.T) {
	f := newFixture(t)

	err := f.svc.UpdateServiceFee(client1Addr, big.NewInt(1))
	if !errors.Is(err, ErrNotAgentOwner) {
		t.Errorf("UpdateServiceFee error = %v, want ErrNotAgentOwner", err)
	}
}

func TestUpdateEscrowTimeout(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.UpdateEscrowTimeout(ownerAddr, 48*time.Hour); err != nil {
		t.Fatalf("UpdateEscrowTimeout: %v", err)
	}
	if got := f.svc.EscrowTimeout(); got != 48*time.Hour {
		t.Errorf("EscrowTimeout = %v, want 48h", got)
	}
}

func TestUpdateEscrowTimeoutBounds(t *testing.T) {
	f := newFixture(t)

	for _, d := range []time.Duration{30 * time.Minute, 8 * 24 * time.Hour} {
		if err := f.svc.UpdateEscrowTimeout(ownerAddr, d); !errors.Is(err, ErrInvalidTimeout) {
			t.Errorf("UpdateEscrowTimeout(%v) error = %v, want ErrInvalidTimeout", d, err)
		}
	}
	// Bounds are inclusive.
	for _, d := range []time.Duration{time.Hour, 7 * 24 * time.Hour} {
		if err := f.svc.UpdateEscrowTimeout(ownerAddr, d); err != nil {
			t.Errorf("UpdateEscrowTimeout(%v): %v", d, err)
		}
	}
}

func TestGetRequestNotFound(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.GetRequest(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRequest error = %v, want ErrNotFound", err)
	}
}

func TestGetRequestReturnsCopy(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, client1Addr, protocolHash)

	req, _ := f.svc.GetRequest(id)
	req.Payment.SetInt64(1)

	fresh, _ := f.svc.GetRequest(id)
	if fresh.Payment.Cmp(serviceFee) != 0 {
		t.Errorf("ledger mutated through GetRequest copy: payment = %v", fresh.Payment)
	}
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.feed.Subscribe()
	defer cancel()

	id := f.request(t, client1Addr, protocolHash)
	if err := f.svc.CompleteService(ownerAddr, id, reportHash); err != nil {
		t.Fatalf("CompleteService: %v", err)
	}
	f.advance(escrowTimeout + time.Second)
	if err := f.svc.ReleaseEscrow(id); err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}

	requested := (<-ch).(ServiceRequested)
	if requested.RequestID != id || requested.Client != client1Addr {
		t.Errorf("ServiceRequested = %+v", requested)
	}
	completed := (<-ch).(ServiceCompleted)
	if completed.ReportHash != reportHash {
		t.Errorf("ServiceCompleted report hash = %s, want %s", completed.ReportHash, reportHash)
	}
	released := (<-ch).(EscrowReleased)
	if released.IsRefund {
		t.Error("EscrowReleased.IsRefund = true, want false")
	}
	if released.Recipient != ownerAddr {
		t.Errorf("EscrowReleased.Recipient = %s, want %s", released.Recipient, ownerAddr)
	}
	if released.Amount.Cmp(serviceFee) != 0 {
		t.Errorf("EscrowReleased.Amount = %v, want %v", released.Amount, serviceFee)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	identity := registry.NewIdentityRegistry()
	agentID := identity.Register(ownerAddr, "")

	_, err := New(agentID, identity, nil, bank.New(), nil, Config{
		ServiceFee:    serviceFee,
		EscrowTimeout: 30 * time.Minute,
	})
	if !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("New error = %v, want ErrInvalidTimeout", err)
	}
}

func TestNewRejectsUnknownAgent(t *testing.T) {
	identity := registry.NewIdentityRegistry()

	_, err := New(42, identity, nil, bank.New(), nil, Config{
		ServiceFee:    serviceFee,
		EscrowTimeout: escrowTimeout,
	})
	if !errors.Is(err, registry.ErrUnknownAgent) {
		t.Errorf("New error = %v, want ErrUnknownAgent", err)
	}
}

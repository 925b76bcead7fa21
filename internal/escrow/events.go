package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ServiceRequested is published when a client deposits payment and a
// protocol hash. The analysis worker consumes it.
type ServiceRequested struct {
	RequestID    uint64
	Client       common.Address
	Payment      *big.Int
	ProtocolHash common.Hash
}

// ServiceCompleted is published when the agent owner commits a report hash.
type ServiceCompleted struct {
	RequestID  uint64
	ReportHash common.Hash
}

// EscrowReleased is published on settlement, for both outcomes: payout to
// the agent owner (IsRefund false) or refund to the client (IsRefund true).
type EscrowReleased struct {
	RequestID uint64
	Recipient common.Address
	Amount    *big.Int
	IsRefund  bool
}

// FeeUpdated is published when the owner changes the service fee.
type FeeUpdated struct {
	Old *big.Int
	New *big.Int
}

// TimeoutUpdated is published when the owner changes the escrow timeout.
type TimeoutUpdated struct {
	Old time.Duration
	New time.Duration
}

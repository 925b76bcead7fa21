package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the settlement state of a service request. The lifecycle is
// Open -> Completed -> Settled, with Settled terminal. An Open request whose
// timeout fully elapses may be settled directly by an abandonment refund.
type State uint8

const (
	// StateOpen: created, payment in escrow, no result delivered yet.
	StateOpen State = iota
	// StateCompleted: the agent owner has committed a report hash.
	StateCompleted
	// StateSettled: funds have been released or refunded. Terminal.
	StateSettled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// ServiceRequest is one entry in the escrow ledger. Entries are never
// deleted; a settled request remains as a permanent historical record.
type ServiceRequest struct {
	ID           uint64         `json:"id"`
	Client       common.Address `json:"client"`
	Payment      *big.Int       `json:"payment"`
	CreatedAt    int64          `json:"created_at"` // unix seconds
	State        State          `json:"-"`
	ProtocolHash common.Hash    `json:"protocol_hash"`
	ReportHash   common.Hash    `json:"report_hash,omitempty"`
	// Refunded distinguishes the two settlement outcomes once settled.
	Refunded bool `json:"refunded"`
}

// clone returns a deep copy so callers cannot mutate ledger state.
func (r *ServiceRequest) clone() ServiceRequest {
	out := *r
	out.Payment = new(big.Int).Set(r.Payment)
	return out
}

// Statistics are the running aggregate counters of the ledger. At all times
// TotalEarned + TotalRefunded + ActiveEscrow equals the sum of every payment
// ever deposited.
type Statistics struct {
	TotalRequests uint64   `json:"total_requests"`
	TotalEarned   *big.Int `json:"total_earned"`
	TotalRefunded *big.Int `json:"total_refunded"`
	ActiveEscrow  *big.Int `json:"active_escrow"`
}

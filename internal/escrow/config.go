package escrow

import (
	"fmt"
	"math/big"
	"time"
)

// Escrow timeout bounds enforced by UpdateEscrowTimeout.
const (
	MinEscrowTimeout = time.Hour
	MaxEscrowTimeout = 7 * 24 * time.Hour
)

// DefaultRefundThreshold is the score below which a recorded feedback entry
// qualifies the client for a refund.
const DefaultRefundThreshold uint8 = 50

// Config holds the mutable service parameters. The fee and timeout are read
// at call time: changing the fee never affects requests already open.
type Config struct {
	ServiceFee      *big.Int
	EscrowTimeout   time.Duration
	RefundThreshold uint8 // scores strictly below qualify for refund
}

// validate checks the config at construction time.
func (c Config) validate() error {
	if c.ServiceFee == nil || c.ServiceFee.Sign() < 0 {
		return fmt.Errorf("service fee %v: %w", c.ServiceFee, ErrInvalidFee)
	}
	if err := validateTimeout(c.EscrowTimeout); err != nil {
		return err
	}
	if c.RefundThreshold > 100 {
		return fmt.Errorf("refund threshold %d out of 0-100 range", c.RefundThreshold)
	}
	return nil
}

// validateTimeout enforces the 1 hour .. 7 day bounds.
func validateTimeout(d time.Duration) error {
	if d < MinEscrowTimeout || d > MaxEscrowTimeout {
		return fmt.Errorf("timeout %v outside [%v, %v]: %w", d, MinEscrowTimeout, MaxEscrowTimeout, ErrInvalidTimeout)
	}
	return nil
}

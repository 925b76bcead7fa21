// Package bank implements the internal balance ledger the escrow core draws
// on. It stands in for the execution substrate's native-value transfers:
// clients deposit funds here, the core debits them into escrow at request
// time and credits them back out at settlement.
package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientFunds is returned by Debit when the account balance does not
// cover the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidAmount is returned when an amount is nil or negative.
var ErrInvalidAmount = errors.New("invalid amount")

// Ledger is an in-memory account ledger keyed by address. All amounts are in
// wei. The zero value is not usable; call New.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// Deposit credits amount to addr. Amount must be positive.
func (l *Ledger) Deposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
	return nil
}

// Balance returns a copy of the current balance for addr. Unknown accounts
// have a zero balance.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Debit removes amount from addr, failing with ErrInsufficientFunds if the
// balance does not cover it. The ledger is unchanged on failure.
func (l *Ledger) Debit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("debit: %w", ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("debit %s: %w", addr, ErrInsufficientFunds)
	}
	b.Sub(b, amount)
	return nil
}

// Credit adds amount to addr. Negative amounts are ignored.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	b.Add(b, amount)
}

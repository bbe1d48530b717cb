package engine

import (
	"fmt"
	"sync"
)

// Ledger is the abstract value-transfer primitive. The engine never manages
// balances itself; it escrows stakes by debiting bettors into the escrow
// account and credits payouts back out of it. A failed debit or credit aborts
// the enclosing operation before any engine state changes.
type Ledger interface {
	Debit(account string, amount uint64) error
	Credit(account string, amount uint64) error
}

// MemoryLedger is an in-process Ledger keyed by account name. Used in tests
// and development mode; production wires the database-backed ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

// Deposit adds funds to an account.
func (l *MemoryLedger) Deposit(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns the current balance of an account.
func (l *MemoryLedger) Balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Debit removes funds from an account, failing if it would go negative.
func (l *MemoryLedger) Debit(account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[account] < amount {
		return fmt.Errorf("%w: account %s has %d, needs %d",
			ErrInsufficientBalance, account, l.balances[account], amount)
	}
	l.balances[account] -= amount
	return nil
}

// Credit adds funds to an account.
func (l *MemoryLedger) Credit(account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum, err := addChecked(l.balances[account], amount)
	if err != nil {
		return err
	}
	l.balances[account] = sum
	return nil
}

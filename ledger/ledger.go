// Package ledger provides the in-memory implementation of the engine's
// value-transfer primitive. Production deployments replace it with an adapter
// over the actual asset ledger; the engine only ever sees the Transfer call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/susuprotocol/rosca/engine"
)

// ErrInsufficientFunds is returned when the source account cannot cover a
// transfer.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Memory is a minimal single-asset ledger: a map of account balances guarded
// by a mutex. Transfers are atomic; an uncovered debit fails without any
// mutation.
type Memory struct {
	mu       sync.Mutex
	balances map[engine.Address]int64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[engine.Address]int64)}
}

// Mint credits amount to account out of thin air. Test and dev setup only.
func (m *Memory) Mint(account engine.Address, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Balance returns the current balance of account.
func (m *Memory) Balance(account engine.Address) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

func (m *Memory) Transfer(_ context.Context, from, to engine.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	if amount == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, m.balances[from], amount)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrSupplyExceeded = errors.New("total supply exceeded")

// Bank holds spendable account balances outside of any marketplace object.
//
// New funds only enter through Mint, which bounds the total supply to the
// uint64 range. Every other movement conserves the supply, so no balance can
// overflow.
type Bank struct {
	mu       sync.Mutex
	supply   Money
	version  uint64
	balances map[AccountID]Money
}

func NewBank() *Bank {
	return &Bank{
		balances: make(map[AccountID]Money),
	}
}

// Mint creates new funds for an account (faucet, genesis allocation).
func (b *Bank) Mint(to AccountID, amount Money) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount > Money(math.MaxUint64)-b.supply {
		return fmt.Errorf("mint %d to %s: %w", amount, to, ErrSupplyExceeded)
	}
	b.supply += amount
	b.balances[to] += amount
	b.version++
	return nil
}

// Take withdraws amount from an account into a coin.
func (b *Bank) Take(from AccountID, amount Money) (Coin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[from]
	if bal < amount {
		return Coin{}, fmt.Errorf("take %d from %s holding %d: %w", amount, from, bal, ErrInsufficientFunds)
	}
	if bal == amount {
		delete(b.balances, from)
	} else {
		b.balances[from] = bal - amount
	}
	b.version++
	return Coin{value: amount}, nil
}

// Credit deposits all funds held by c into an account.
func (b *Bank) Credit(to AccountID, c *Coin) {
	v := c.Drain()
	if v == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] += v
	b.version++
}

func (b *Bank) Balance(a AccountID) Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[a]
}

// Snapshot returns the balance of a together with the bank version it was
// read at. A snapshot with a higher version always reflects every mutation
// seen by one with a lower version.
func (b *Bank) Snapshot(a AccountID) (Money, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[a], b.version
}

func (b *Bank) Supply() Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supply
}

// Accounts returns a copy of all non-zero balances.
func (b *Bank) Accounts() map[AccountID]Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := make(map[AccountID]Money, len(b.balances))
	for k, v := range b.balances {
		m[k] = v
	}
	return m
}

// Restore replaces all balances, e.g. after loading persisted state. The
// supply is recomputed from the balances plus the amount held in objects and
// the version continues after the highest persisted one.
func (b *Bank) Restore(balances map[AccountID]Money, locked Money, version uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[AccountID]Money, len(balances))
	b.supply = locked
	if version > b.version {
		b.version = version
	}
	b.version++
	for k, v := range balances {
		if v == 0 {
			continue
		}
		b.balances[k] = v
		b.supply += v
	}
}

// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package market

import (
	"sort"
	"sync"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// CollateralPool is the marketplace-wide ledger of collateral locked per
// service id. Each entry has its own lock so deposits and withdrawals for
// unrelated services never contend.
type CollateralPool struct {
	ID ledger.ObjectID

	mu      sync.RWMutex
	entries map[ledger.ObjectID]*collateralEntry
}

type collateralEntry struct {
	mu      sync.Mutex
	balance ledger.Money
	version uint64
}

// CollateralEntry is a point-in-time copy of one pool entry.
type CollateralEntry struct {
	ServiceID ledger.ObjectID
	Balance   ledger.Money
	Version   uint64
}

func NewCollateralPool(id ledger.ObjectID) *CollateralPool {
	return &CollateralPool{
		ID:      id,
		entries: make(map[ledger.ObjectID]*collateralEntry),
	}
}

func (p *CollateralPool) entry(id ledger.ObjectID, create bool) *collateralEntry {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if ok || !create {
		return e
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[id]; !ok {
		e = &collateralEntry{}
		p.entries[id] = e
	}
	return e
}

// Deposit moves all funds in c into the entry for serviceID, creating the
// entry on first use. Identity is not checked here; callers must have
// validated the service relationship.
func (p *CollateralPool) Deposit(serviceID ledger.ObjectID, c *ledger.Coin) CollateralEntry {
	e := p.entry(serviceID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += c.Drain()
	e.version++
	return CollateralEntry{ServiceID: serviceID, Balance: e.balance, Version: e.version}
}

// Withdraw extracts amount from the entry for serviceID. provider is the
// service's recorded provider as validated by the caller.
func (p *CollateralPool) Withdraw(serviceID ledger.ObjectID, caller, provider ledger.AccountID, amount ledger.Money) (ledger.Coin, error) {
	e := p.entry(serviceID, false)
	if e == nil {
		return ledger.Coin{}, &Error{Kind: ErrCollateralNotFound, Op: "withdraw_collateral", Object: serviceID}
	}
	if caller != provider {
		return ledger.Coin{}, notProvider("withdraw_collateral", caller, provider)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount > e.balance {
		return ledger.Coin{}, amountError(ErrInsufficientBalance, "withdraw_collateral", amount, e.balance)
	}
	e.balance -= amount
	e.version++
	return ledger.NewCoin(amount), nil
}

// Balance returns the locked amount for serviceID.
func (p *CollateralPool) Balance(serviceID ledger.ObjectID) (ledger.Money, bool) {
	e := p.entry(serviceID, false)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, true
}

func (p *CollateralPool) Get(serviceID ledger.ObjectID) (CollateralEntry, bool) {
	e := p.entry(serviceID, false)
	if e == nil {
		return CollateralEntry{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return CollateralEntry{ServiceID: serviceID, Balance: e.balance, Version: e.version}, true
}

// Total sums all locked collateral.
func (p *CollateralPool) Total() ledger.Money {
	var sum ledger.Money
	for _, e := range p.Entries() {
		sum += e.Balance
	}
	return sum
}

// Entries returns all entries ordered by service id.
func (p *CollateralPool) Entries() []CollateralEntry {
	p.mu.RLock()
	ids := make([]ledger.ObjectID, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	list := make([]CollateralEntry, 0, len(ids))
	for _, id := range ids {
		if v, ok := p.Get(id); ok {
			list = append(list, v)
		}
	}
	return list
}

// Restore loads a persisted entry. Older versions than the one held are ignored.
func (p *CollateralPool) Restore(v CollateralEntry) {
	e := p.entry(v.ServiceID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if v.Version < e.version {
		return
	}
	e.balance = v.Balance
	e.version = v.Version
}

// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package market

import (
	"sync"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Treasury accumulates platform fees. Only the admin may withdraw.
type Treasury struct {
	ID    ledger.ObjectID
	Admin ledger.AccountID

	mu      sync.Mutex
	balance ledger.Money
	version uint64
}

// TreasuryState is a point-in-time copy of the treasury.
type TreasuryState struct {
	ID      ledger.ObjectID
	Admin   ledger.AccountID
	Balance ledger.Money
	Version uint64
}

func NewTreasury(id ledger.ObjectID, admin ledger.AccountID) *Treasury {
	return &Treasury{ID: id, Admin: admin, version: 1}
}

// Deposit moves all funds in c into the treasury.
func (t *Treasury) Deposit(c *ledger.Coin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance += c.Drain()
	t.version++
}

func (t *Treasury) Withdraw(ctx ledger.CallContext, amount ledger.Money) (ledger.Coin, error) {
	if ctx.Caller != t.Admin {
		return ledger.Coin{}, &Error{Kind: ErrNotAdmin, Op: "withdraw_treasury", Caller: ctx.Caller, Expected: t.Admin}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount > t.balance {
		return ledger.Coin{}, amountError(ErrInsufficientBalance, "withdraw_treasury", amount, t.balance)
	}
	t.balance -= amount
	t.version++
	return ledger.NewCoin(amount), nil
}

func (t *Treasury) Balance() ledger.Money {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

func (t *Treasury) State() TreasuryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TreasuryState{ID: t.ID, Admin: t.Admin, Balance: t.balance, Version: t.version}
}

// Restore loads persisted state unless it is older than the current one.
func (t *Treasury) Restore(s TreasuryState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Version < t.version {
		return
	}
	t.balance = s.Balance
	t.version = s.Version
}

// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package host runs marketplace transactions against in-memory objects the
// way a ledger runtime would. It provides caller identity, the attached
// payment, a monotonic clock and fresh object ids to the market package,
// serializes transactions touching the same objects and persists committed
// state to a store.
package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
	"blockwatch.cc/oracle-market/pkg/metrics"
	"blockwatch.cc/oracle-market/pkg/store"
)

var ErrDemoDisabled = errors.New("demo mode disabled")

// singleton object ids, derived from the all-zero genesis digest
var (
	PoolID     = ledger.DeriveObjectID(ledger.TxDigest{}, 0)
	TreasuryID = ledger.DeriveObjectID(ledger.TxDigest{}, 1)
)

const persistTimeout = 5 * time.Second

type Options struct {
	Admin   ledger.AccountID
	Demo    bool
	Clock   ledger.Clock
	Bank    *ledger.Bank
	Store   store.Store
	Metrics *metrics.Collector
}

type Host struct {
	bank    *ledger.Bank
	clock   ledger.Clock
	store   store.Store
	metrics *metrics.Collector
	demo    bool

	pool     *market.CollateralPool
	treasury *market.Treasury
	locks    *lockTable
	events   eventLog

	mu         sync.RWMutex
	services   map[ledger.ObjectID]*market.Service
	subs       map[ledger.ObjectID]*market.Subscription
	queries    map[ledger.ObjectID]*market.Query
	records    map[ledger.ObjectID]*market.QueryRecord
	byProvider map[ledger.AccountID][]ledger.ObjectID
	byOwner    map[ledger.AccountID][]ledger.ObjectID
}

var _ market.Marketplace = (*Host)(nil)

func New(opts Options) *Host {
	h := &Host{
		bank:       opts.Bank,
		clock:      opts.Clock,
		store:      opts.Store,
		metrics:    opts.Metrics,
		demo:       opts.Demo,
		pool:       market.NewCollateralPool(PoolID),
		treasury:   market.NewTreasury(TreasuryID, opts.Admin),
		locks:      newLockTable(),
		services:   make(map[ledger.ObjectID]*market.Service),
		subs:       make(map[ledger.ObjectID]*market.Subscription),
		queries:    make(map[ledger.ObjectID]*market.Query),
		records:    make(map[ledger.ObjectID]*market.QueryRecord),
		byProvider: make(map[ledger.AccountID][]ledger.ObjectID),
		byOwner:    make(map[ledger.AccountID][]ledger.ObjectID),
	}
	if h.bank == nil {
		h.bank = ledger.NewBank()
	}
	if h.clock == nil {
		h.clock = &ledger.MonotonicClock{}
	}
	if h.store == nil {
		h.store = store.NewMemory()
	}
	return h
}

func (h *Host) Bank() *ledger.Bank {
	return h.bank
}

func (h *Host) Demo() bool {
	return h.demo
}

// tx collects the side effects of one transaction until it commits.
type tx struct {
	op       string
	ctx      ledger.CallContext
	events   []Event
	entries  []store.Entry
	accounts []ledger.AccountID
	err      error
}

func (t *tx) emit(typ EventType, object ledger.ObjectID) *Event {
	t.events = append(t.events, Event{
		Type:   typ,
		Tx:     t.ctx.Digest.String(),
		Time:   t.ctx.Time,
		Caller: t.ctx.Caller,
		Object: object,
	})
	return &t.events[len(t.events)-1]
}

// save encodes a snapshot of v while the object lock is still held.
func (t *tx) save(kind store.Kind, id ledger.ObjectID, version uint64, v any) {
	e, err := store.Encode(kind, id.String(), version, v)
	if err != nil {
		t.err = errors.Join(t.err, err)
		return
	}
	t.entries = append(t.entries, e)
}

func (t *tx) touch(a ledger.AccountID) {
	for _, v := range t.accounts {
		if v == a {
			return
		}
	}
	t.accounts = append(t.accounts, a)
}

// run executes fn as one transaction holding the locks of ids. The call
// context is stamped with the host time and a fresh digest once all locks
// are held.
func (h *Host) run(op string, ctx ledger.CallContext, ids []ledger.ObjectID, fn func(t *tx) error) error {
	start := time.Now()
	unlock := h.locks.Lock(ids...)
	ctx.Time = h.clock.Now()
	if ctx.Digest == (ledger.TxDigest{}) {
		ctx.Digest = ledger.NewTxDigest()
	}
	t := &tx{op: op, ctx: ctx}
	err := fn(t)
	if err == nil {
		h.events.append(t.events...)
	}
	unlock()

	h.metrics.ObserveTx(op, err, time.Since(start))
	if err != nil {
		log.Infof("%s by %s failed: %v", op, ctx.Caller, err)
		return err
	}
	log.Debugf("%s by %s committed tx=%s", op, ctx.Caller, ctx.Digest)
	h.persist(t)
	return nil
}

// take draws amount from the caller. Entry points call it only after every
// market precondition has passed, so a failed transaction never moves funds.
func (h *Host) take(t *tx, amount ledger.Money) (ledger.Coin, error) {
	c, err := h.bank.Take(t.ctx.Caller, amount)
	if err != nil {
		return c, h.insufficient(t, amount)
	}
	t.touch(t.ctx.Caller)
	return c, nil
}

// covered fails unless the caller's balance holds amount. Nothing moves.
func (h *Host) covered(t *tx, amount ledger.Money) error {
	if h.bank.Balance(t.ctx.Caller) < amount {
		return h.insufficient(t, amount)
	}
	return nil
}

func (h *Host) insufficient(t *tx, amount ledger.Money) error {
	return &market.Error{
		Kind:     market.ErrInsufficientBalance,
		Op:       t.op,
		Caller:   t.ctx.Caller,
		Required: uint64(amount),
		Provided: uint64(h.bank.Balance(t.ctx.Caller)),
	}
}

func (h *Host) credit(t *tx, to ledger.AccountID, c *ledger.Coin) {
	if c.IsZero() {
		return
	}
	h.bank.Credit(to, c)
	t.touch(to)
}

func (h *Host) persist(t *tx) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if t.err != nil {
		log.Errorf("%s tx=%s: %v", t.op, t.ctx.Digest, t.err)
	}
	for _, e := range t.entries {
		if _, err := h.store.Put(ctx, e); err != nil {
			h.metrics.PersistFailed(string(e.Kind))
			log.Errorf("%s tx=%s: %v", t.op, t.ctx.Digest, err)
		}
	}
	for _, a := range t.accounts {
		bal, version := h.bank.Snapshot(a)
		if _, err := store.Save(ctx, h.store, store.KindAccount, string(a), version, AccountBalance{Account: a, Balance: bal}); err != nil {
			h.metrics.PersistFailed(string(store.KindAccount))
			log.Errorf("%s tx=%s: %v", t.op, t.ctx.Digest, err)
		}
	}
	h.metrics.SetCollateral(h.pool.Total())
	h.metrics.SetTreasury(h.treasury.Balance())
}

// AccountBalance is the persisted form of a bank balance.
type AccountBalance struct {
	Account ledger.AccountID
	Balance ledger.Money
}

package host

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
	"blockwatch.cc/oracle-market/pkg/store"
)

func (h *Host) lookupService(op string, id ledger.ObjectID) (*market.Service, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.services[id]
	if !ok {
		return nil, market.NotFound(op, id)
	}
	return s, nil
}

func (h *Host) lookupSubscription(op string, id ledger.ObjectID) (*market.Subscription, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subs[id]
	if !ok {
		return nil, market.NotFound(op, id)
	}
	return s, nil
}

func (h *Host) lookupQuery(op string, id ledger.ObjectID) (*market.Query, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	q, ok := h.queries[id]
	if !ok {
		return nil, market.NotFound(op, id)
	}
	return q, nil
}

func (h *Host) addService(s *market.Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[s.ID] = s
	h.byProvider[s.Provider] = append(h.byProvider[s.Provider], s.ID)
}

func (h *Host) addSubscription(s *market.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.ID] = s
}

func (h *Host) addQuery(q *market.Query) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries[q.ID] = q
}

func (h *Host) addRecord(r *market.QueryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[r.ID] = r
	h.byOwner[r.Requester] = append(h.byOwner[r.Requester], r.ID)
}

func (h *Host) saveCollateral(t *tx, id ledger.ObjectID) {
	if e, ok := h.pool.Get(id); ok {
		t.save(store.KindCollateral, id, e.Version, e)
	}
}

func (h *Host) saveTreasury(t *tx) {
	s := h.treasury.State()
	t.save(store.KindTreasury, s.ID, s.Version, s)
}

func (h *Host) CreateService(ctx ledger.CallContext, p market.ServiceParams) (*market.Service, error) {
	var res *market.Service
	err := h.run("create_service", ctx, nil, func(t *tx) error {
		if err := market.ValidateService("create_service", p, t.ctx.Amount); err != nil {
			return err
		}
		coin, err := h.take(t, t.ctx.Amount)
		if err != nil {
			return err
		}
		id := ledger.DeriveObjectID(t.ctx.Digest, 0)
		svc, err := market.CreateService(t.ctx, id, p, &coin, h.pool)
		if err != nil {
			// unreachable, the params were validated above
			h.credit(t, t.ctx.Caller, &coin)
			return err
		}
		h.addService(svc)
		t.emit(EventServiceCreated, id)
		ev := t.emit(EventCollateralDeposited, id)
		ev.Amount = svc.Collateral
		t.save(store.KindService, id, svc.Version, svc)
		h.saveCollateral(t, id)
		res = svc.Clone()
		return nil
	})
	return res, err
}

// CreateServiceSimple records the collateral without locking it. It is only
// available on hosts running in demo mode.
func (h *Host) CreateServiceSimple(ctx ledger.CallContext, p market.ServiceParams) (*market.Service, error) {
	var res *market.Service
	err := h.run("create_service_simple", ctx, nil, func(t *tx) error {
		if !h.demo {
			return ErrDemoDisabled
		}
		if err := market.ValidateService("create_service_simple", p, t.ctx.Amount); err != nil {
			return err
		}
		if err := h.covered(t, t.ctx.Amount); err != nil {
			return err
		}
		// the collateral never leaves the caller's balance
		coin := ledger.NewCoin(t.ctx.Amount)
		id := ledger.DeriveObjectID(t.ctx.Digest, 0)
		svc, err := market.CreateServiceSimple(t.ctx, id, p, &coin)
		if err != nil {
			return err
		}
		h.addService(svc)
		t.emit(EventServiceCreated, id)
		t.save(store.KindService, id, svc.Version, svc)
		res = svc.Clone()
		return nil
	})
	return res, err
}

// updateService runs one provider-gated mutation of a service.
func (h *Host) updateService(op string, ctx ledger.CallContext, id ledger.ObjectID, fn func(svc *market.Service, ctx ledger.CallContext) error) error {
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		svc, err := h.lookupService(op, id)
		if err != nil {
			return err
		}
		if err := fn(svc, t.ctx); err != nil {
			return err
		}
		t.emit(EventServiceUpdated, id)
		t.save(store.KindService, id, svc.Version, svc)
		return nil
	})
}

func (h *Host) UpdatePrice(ctx ledger.CallContext, id ledger.ObjectID, price ledger.Money) error {
	return h.updateService("update_price", ctx, id, func(svc *market.Service, ctx ledger.CallContext) error {
		return svc.UpdatePrice(ctx, price)
	})
}

func (h *Host) SetActive(ctx ledger.CallContext, id ledger.ObjectID, active bool) error {
	return h.updateService("set_active", ctx, id, func(svc *market.Service, ctx ledger.CallContext) error {
		return svc.SetActive(ctx, active)
	})
}

func (h *Host) UpdateConfigID(ctx ledger.CallContext, id ledger.ObjectID, configID string) error {
	return h.updateService("update_config_id", ctx, id, func(svc *market.Service, ctx ledger.CallContext) error {
		return svc.UpdateConfigID(ctx, configID)
	})
}

func (h *Host) UpdateDocumentationURL(ctx ledger.CallContext, id ledger.ObjectID, url string) error {
	return h.updateService("update_documentation_url", ctx, id, func(svc *market.Service, ctx ledger.CallContext) error {
		return svc.UpdateDocumentationURL(ctx, url)
	})
}

func (h *Host) TopUpCollateral(ctx ledger.CallContext, id ledger.ObjectID) error {
	const op = "top_up_collateral"
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		svc, err := h.lookupService(op, id)
		if err != nil {
			return err
		}
		if err := svc.CheckProvider(op, t.ctx); err != nil {
			return err
		}
		coin, err := h.take(t, t.ctx.Amount)
		if err != nil {
			return err
		}
		amount := coin.Value()
		if err := svc.TopUpCollateral(t.ctx, &coin, h.pool); err != nil {
			h.credit(t, t.ctx.Caller, &coin)
			return err
		}
		ev := t.emit(EventCollateralDeposited, id)
		ev.Amount = amount
		h.saveCollateral(t, id)
		return nil
	})
}

// WithdrawCollateral pays the released amount to recipient, or to the
// caller when recipient is empty.
func (h *Host) WithdrawCollateral(ctx ledger.CallContext, id ledger.ObjectID, amount ledger.Money, recipient ledger.AccountID) error {
	const op = "withdraw_collateral"
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		svc, err := h.lookupService(op, id)
		if err != nil {
			return err
		}
		coin, err := svc.WithdrawCollateral(t.ctx, h.pool, amount)
		if err != nil {
			return err
		}
		if recipient.IsZero() {
			recipient = t.ctx.Caller
		}
		h.credit(t, recipient, &coin)
		ev := t.emit(EventCollateralWithdrawn, id)
		ev.Account = recipient
		ev.Amount = amount
		h.saveCollateral(t, id)
		return nil
	})
}

// Subscribe is free; an attached amount is not drawn.
func (h *Host) Subscribe(ctx ledger.CallContext, service ledger.ObjectID) (*market.Subscription, error) {
	const op = "subscribe"
	var res *market.Subscription
	err := h.run(op, ctx, []ledger.ObjectID{service}, func(t *tx) error {
		svc, err := h.lookupService(op, service)
		if err != nil {
			return err
		}
		id := ledger.DeriveObjectID(t.ctx.Digest, 0)
		sub, err := market.Subscribe(t.ctx, id, svc)
		if err != nil {
			return err
		}
		h.addSubscription(sub)
		ev := t.emit(EventSubscribed, id)
		ev.Related = service
		t.save(store.KindSubscription, id, sub.Version, sub)
		res = sub.Clone()
		return nil
	})
	return res, err
}

func (h *Host) CancelSubscription(ctx ledger.CallContext, id ledger.ObjectID) error {
	const op = "cancel_subscription"
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		sub, err := h.lookupSubscription(op, id)
		if err != nil {
			return err
		}
		version := sub.Version
		if err := sub.Cancel(t.ctx); err != nil {
			return err
		}
		if sub.Version == version {
			return nil
		}
		ev := t.emit(EventSubscriptionCancelled, id)
		ev.Related = sub.ServiceID
		t.save(store.KindSubscription, id, sub.Version, sub)
		return nil
	})
}

// CreateQuery opens a query. An empty provider defaults to the caller.
func (h *Host) CreateQuery(ctx ledger.CallContext, p market.QueryParams) (*market.Query, error) {
	var res *market.Query
	err := h.run("create_query", ctx, nil, func(t *tx) error {
		if p.Provider.IsZero() {
			p.Provider = t.ctx.Caller
		}
		id := ledger.DeriveObjectID(t.ctx.Digest, 0)
		q := market.NewQuery(t.ctx, id, p)
		h.addQuery(q)
		ev := t.emit(EventQueryCreated, id)
		ev.Account = q.Provider
		t.save(store.KindQuery, id, q.Version, q)
		res = q.Clone()
		return nil
	})
	return res, err
}

func (h *Host) ResolveQuery(ctx ledger.CallContext, id ledger.ObjectID, r market.Resolution) error {
	const op = "resolve_query"
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		q, err := h.lookupQuery(op, id)
		if err != nil {
			return err
		}
		if err := q.Resolve(t.ctx, r); err != nil {
			return err
		}
		t.emit(EventQueryResolved, id)
		t.save(store.KindQuery, id, q.Version, q)
		return nil
	})
}

func (h *Host) UpdateQuery(ctx ledger.CallContext, id ledger.ObjectID, r market.Resolution) error {
	const op = "update_query"
	return h.run(op, ctx, []ledger.ObjectID{id}, func(t *tx) error {
		q, err := h.lookupQuery(op, id)
		if err != nil {
			return err
		}
		if err := q.Update(t.ctx, r); err != nil {
			return err
		}
		t.emit(EventQueryUpdated, id)
		t.save(store.KindQuery, id, q.Version, q)
		return nil
	})
}

// QueryOracle settles one query. The attached amount is drawn from the
// caller, the price is split between treasury and provider and any excess
// is refunded.
func (h *Host) QueryOracle(ctx ledger.CallContext, service, sub, query ledger.ObjectID) (*market.QueryResult, *market.QueryRecord, error) {
	const op = "query_oracle"
	var (
		res *market.QueryResult
		rec *market.QueryRecord
	)
	err := h.run(op, ctx, []ledger.ObjectID{service, sub, query}, func(t *tx) error {
		svc, err := h.lookupService(op, service)
		if err != nil {
			return err
		}
		s, err := h.lookupSubscription(op, sub)
		if err != nil {
			return err
		}
		q, err := h.lookupQuery(op, query)
		if err != nil {
			return err
		}
		// the attached amount must be covered but only the price leaves
		// the caller, so overpayment never round-trips through the bank
		if err := market.CheckQueryOracle(t.ctx, svc, s, q, t.ctx.Amount); err != nil {
			return err
		}
		if err := h.covered(t, t.ctx.Amount); err != nil {
			return err
		}
		payment, err := h.take(t, svc.PricePerQuery)
		if err != nil {
			return err
		}
		recordID := ledger.DeriveObjectID(t.ctx.Digest, 0)
		st, err := market.QueryOracle(t.ctx, recordID, svc, s, q, &payment, h.treasury)
		if err != nil {
			h.credit(t, t.ctx.Caller, &payment)
			return err
		}
		h.credit(t, st.PayTo, &st.Payout)
		h.addRecord(st.Record)
		h.metrics.ObserveFees(st.PlatformFee, st.ProviderFee)

		ev := t.emit(EventQuerySettled, recordID)
		ev.Related = query
		ev.Account = st.PayTo
		ev.Amount = st.Fee
		t.save(store.KindService, service, svc.Version, svc)
		t.save(store.KindRecord, recordID, 1, st.Record)
		h.saveTreasury(t)

		rec = st.Record
		res = &st.Result
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	r := *rec
	return res, &r, nil
}

// WithdrawTreasury pays accumulated fees to recipient, or to the caller
// when recipient is empty.
func (h *Host) WithdrawTreasury(ctx ledger.CallContext, amount ledger.Money, recipient ledger.AccountID) error {
	return h.run("withdraw_treasury", ctx, []ledger.ObjectID{TreasuryID}, func(t *tx) error {
		coin, err := h.treasury.Withdraw(t.ctx, amount)
		if err != nil {
			return err
		}
		if recipient.IsZero() {
			recipient = t.ctx.Caller
		}
		h.credit(t, recipient, &coin)
		ev := t.emit(EventTreasuryWithdrawn, TreasuryID)
		ev.Account = recipient
		ev.Amount = amount
		h.saveTreasury(t)
		return nil
	})
}

// Faucet mints funds for an account on demo hosts.
func (h *Host) Faucet(to ledger.AccountID, amount ledger.Money) error {
	if !h.demo {
		return ErrDemoDisabled
	}
	if err := h.bank.Mint(to, amount); err != nil {
		return err
	}
	t := &tx{op: "faucet"}
	t.touch(to)
	h.persist(t)
	return nil
}

package host

import (
	"sort"

	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
)

// Read accessors return detached copies taken under the object lock.

func (h *Host) Service(id ledger.ObjectID) (*market.Service, error) {
	unlock := h.locks.Lock(id)
	defer unlock()
	svc, err := h.lookupService("get_service", id)
	if err != nil {
		return nil, err
	}
	return svc.Clone(), nil
}

func (h *Host) Subscription(id ledger.ObjectID) (*market.Subscription, error) {
	unlock := h.locks.Lock(id)
	defer unlock()
	sub, err := h.lookupSubscription("get_subscription", id)
	if err != nil {
		return nil, err
	}
	return sub.Clone(), nil
}

func (h *Host) Query(id ledger.ObjectID) (*market.Query, error) {
	unlock := h.locks.Lock(id)
	defer unlock()
	q, err := h.lookupQuery("get_query", id)
	if err != nil {
		return nil, err
	}
	return q.Clone(), nil
}

// Record returns a settlement receipt. Records are immutable.
func (h *Host) Record(id ledger.ObjectID) (*market.QueryRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.records[id]
	if !ok {
		return nil, market.NotFound("get_record", id)
	}
	c := *r
	return &c, nil
}

// RecordsByOwner lists the receipts owned by a requester in settlement order.
func (h *Host) RecordsByOwner(owner ledger.AccountID) []*market.QueryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.byOwner[owner]
	list := make([]*market.QueryRecord, 0, len(ids))
	for _, id := range ids {
		c := *h.records[id]
		list = append(list, &c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].QueryTime < list[j].QueryTime })
	return list
}

func (h *Host) ServicesByProvider(provider ledger.AccountID) []*market.Service {
	h.mu.RLock()
	ids := append([]ledger.ObjectID(nil), h.byProvider[provider]...)
	h.mu.RUnlock()
	return h.servicesByID(ids)
}

// Services lists all services ordered by creation time.
func (h *Host) Services() []*market.Service {
	h.mu.RLock()
	ids := make([]ledger.ObjectID, 0, len(h.services))
	for id := range h.services {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	return h.servicesByID(ids)
}

func (h *Host) servicesByID(ids []ledger.ObjectID) []*market.Service {
	list := make([]*market.Service, 0, len(ids))
	for _, id := range ids {
		if svc, err := h.Service(id); err == nil {
			list = append(list, svc)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID.Less(list[j].ID)
	})
	return list
}

// CollateralOf returns the amount locked for a service.
func (h *Host) CollateralOf(id ledger.ObjectID) (ledger.Money, bool) {
	return h.pool.Balance(id)
}

func (h *Host) TreasuryBalance() ledger.Money {
	return h.treasury.Balance()
}

func (h *Host) Treasury() market.TreasuryState {
	return h.treasury.State()
}

func (h *Host) Balance(a ledger.AccountID) ledger.Money {
	return h.bank.Balance(a)
}

// Events returns up to limit events newer than seq. A limit of zero returns
// all of them.
func (h *Host) Events(since uint64, limit int) []Event {
	return h.events.since(since, limit)
}

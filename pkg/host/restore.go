package host

import (
	"context"
	"fmt"

	"github.com/echa/log"

	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
	"blockwatch.cc/oracle-market/pkg/store"
)

// Restore loads all persisted objects into an empty host. The bank supply
// is rebuilt from account balances plus funds held by the pool and the
// treasury.
func (h *Host) Restore(ctx context.Context) error {
	var (
		counts   = make(map[store.Kind]int, len(store.Kinds))
		version  uint64
		balances = make(map[ledger.AccountID]ledger.Money)
	)
	for _, kind := range store.Kinds {
		entries, err := h.store.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("restore %s: %w", kind, err)
		}
		for _, e := range entries {
			if err := h.restoreEntry(e, balances); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			if kind == store.KindAccount && e.Version > version {
				version = e.Version
			}
		}
		counts[kind] = len(entries)
	}
	h.bank.Restore(balances, h.pool.Total()+h.treasury.Balance(), version)

	log.Infof("Restored %d services, %d subscriptions, %d queries, %d records, %d accounts",
		counts[store.KindService], counts[store.KindSubscription], counts[store.KindQuery],
		counts[store.KindRecord], len(balances))
	h.metrics.SetCollateral(h.pool.Total())
	h.metrics.SetTreasury(h.treasury.Balance())
	return nil
}

func (h *Host) restoreEntry(e store.Entry, balances map[ledger.AccountID]ledger.Money) error {
	switch e.Kind {
	case store.KindService:
		v, err := store.Decode[market.Service](e)
		if err != nil {
			return err
		}
		h.addService(&v)
	case store.KindSubscription:
		v, err := store.Decode[market.Subscription](e)
		if err != nil {
			return err
		}
		h.addSubscription(&v)
	case store.KindQuery:
		v, err := store.Decode[market.Query](e)
		if err != nil {
			return err
		}
		h.addQuery(&v)
	case store.KindRecord:
		v, err := store.Decode[market.QueryRecord](e)
		if err != nil {
			return err
		}
		h.addRecord(&v)
	case store.KindCollateral:
		v, err := store.Decode[market.CollateralEntry](e)
		if err != nil {
			return err
		}
		h.pool.Restore(v)
	case store.KindTreasury:
		v, err := store.Decode[market.TreasuryState](e)
		if err != nil {
			return err
		}
		if v.ID != h.treasury.ID {
			log.Warnf("restore: skipping foreign treasury %s", v.ID)
			return nil
		}
		if v.Admin != h.treasury.Admin {
			log.Warnf("restore: treasury admin changed from %s to %s", v.Admin, h.treasury.Admin)
		}
		h.treasury.Restore(v)
	case store.KindAccount:
		v, err := store.Decode[AccountBalance](e)
		if err != nil {
			return err
		}
		balances[v.Account] = v.Balance
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

package host

import (
	"sync"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

type EventType string

const (
	EventServiceCreated        EventType = "ServiceCreated"
	EventServiceUpdated        EventType = "ServiceUpdated"
	EventCollateralDeposited   EventType = "CollateralDeposited"
	EventCollateralWithdrawn   EventType = "CollateralWithdrawn"
	EventSubscribed            EventType = "Subscribed"
	EventSubscriptionCancelled EventType = "SubscriptionCancelled"
	EventQueryCreated          EventType = "QueryCreated"
	EventQueryResolved         EventType = "QueryResolved"
	EventQueryUpdated          EventType = "QueryUpdated"
	EventQuerySettled          EventType = "QuerySettled"
	EventTreasuryWithdrawn     EventType = "TreasuryWithdrawn"
)

// EventBufferSize is the number of events kept for pollers.
const EventBufferSize = 10_000

// Event is a notification about a committed transaction. Seq increases by
// one per event in commit order.
type Event struct {
	Seq     uint64           `json:"seq"`
	Type    EventType        `json:"type"`
	Tx      string           `json:"tx"`
	Time    int64            `json:"time"`
	Caller  ledger.AccountID `json:"caller"`
	Object  ledger.ObjectID  `json:"object"`
	Related ledger.ObjectID  `json:"related"`
	Account ledger.AccountID `json:"account,omitempty"`
	Amount  ledger.Money     `json:"amount,omitempty"`
}

type eventLog struct {
	mu     sync.RWMutex
	seq    uint64
	events []Event
}

func (l *eventLog) append(list ...Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range list {
		l.seq++
		e.Seq = l.seq
		l.events = append(l.events, e)
	}
	if n := len(l.events) - EventBufferSize; n > 0 {
		l.events = append(l.events[:0:0], l.events[n:]...)
	}
}

// since returns up to limit events with a sequence number above seq.
func (l *eventLog) since(seq uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []Event
	for _, e := range l.events {
		if e.Seq <= seq {
			continue
		}
		res = append(res, e)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res
}

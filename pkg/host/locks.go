package host

import (
	"sort"
	"sync"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// lockTable hands out one mutex per object. Objects are never deleted, so
// entries are never dropped.
type lockTable struct {
	mu    sync.Mutex
	locks map[ledger.ObjectID]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[ledger.ObjectID]*sync.Mutex)}
}

func (l *lockTable) get(id ledger.ObjectID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Lock acquires the locks of all ids in ascending id order and returns a
// function releasing them. Duplicate ids are locked once.
func (l *lockTable) Lock(ids ...ledger.ObjectID) func() {
	sorted := make([]ledger.ObjectID, 0, len(ids))
	for _, id := range ids {
		if !id.IsZero() {
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	held := make([]*sync.Mutex, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

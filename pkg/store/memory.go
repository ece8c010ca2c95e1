package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a process local store used by tests and ephemeral nodes.
type Memory struct {
	mu   sync.RWMutex
	data map[Kind]map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{data: make(map[Kind]map[string]Entry)}
}

func (m *Memory) Put(_ context.Context, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[e.Kind]
	if !ok {
		bucket = make(map[string]Entry)
		m.data[e.Kind] = bucket
	}
	if cur, ok := bucket[e.Key]; ok && cur.Version >= e.Version {
		return false, nil
	}
	e.Data = append([]byte(nil), e.Data...)
	bucket[e.Key] = e
	return true, nil
}

func (m *Memory) Get(_ context.Context, kind Kind, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[kind][key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) List(_ context.Context, kind Kind) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Entry, 0, len(m.data[kind]))
	for _, e := range m.data[kind] {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list, nil
}

func (m *Memory) Close() error {
	return nil
}
